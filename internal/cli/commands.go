// pattern: Imperative Shell
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"unigen/internal/broker"
	"unigen/internal/config"
	"unigen/internal/instance"
	"unigen/internal/logging"
)

// Env carries what commands need from main.
type Env struct {
	Context   context.Context
	Config    config.Config
	LockDir   string // control-plane lock directory; empty means the system temp dir
	LogPath   string // control-plane stdout log
	Endpoints broker.Endpoints
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *logging.ScopedLogger
}

func (e Env) withDefaults() Env {
	if e.Context == nil {
		e.Context = context.Background()
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Logger == nil {
		e.Logger = logging.NopLogger()
	}
	return e
}

func (e Env) registry() *instance.Registry {
	return instance.ControlPlane(e.LockDir, e.Logger)
}

func (e Env) styles(w io.Writer) *Styles {
	return NewStyles(e.Config.Theme, IsTerminal(w))
}

// BuildApp creates and configures the CLI application with all commands.
func BuildApp(version string, env Env) *App {
	env = env.withDefaults()
	app := NewApp(version)
	app.stderr = env.Stderr

	app.AddCommand(&Command{
		Name:    "status",
		Summary: "Show whether the control plane is running",
		Usage:   "Usage: unigen status",
		Run: func(args []string) error {
			return runStatus(env)
		},
	})

	app.AddCommand(&Command{
		Name:    "cleanup",
		Summary: "Remove a stale control-plane lock file from a crashed instance",
		Usage:   "Usage: unigen cleanup",
		Run: func(args []string) error {
			return runCleanup(env)
		},
	})

	app.AddCommand(&Command{
		Name:    "logs",
		Summary: "Print the control-plane output log",
		Usage:   "Usage: unigen logs [-f|--follow]",
		Run: func(args []string) error {
			return runLogs(env, args)
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: unigen version",
		Run: func(args []string) error {
			fmt.Fprintln(env.Stdout, version)
			return nil
		},
	})

	return app
}

// runStatus prints the control plane's state, its endpoints and log file.
func runStatus(env Env) error {
	st := env.registry().Status()
	s := env.styles(env.Stdout)
	w := env.Stdout

	label := func(name string) string {
		return s.Label(fmt.Sprintf("%-15s", name+":"))
	}

	if st.Running {
		fmt.Fprintf(w, "%s %s\n", label("control plane"), s.Success(fmt.Sprintf("running (pid %d)", st.PID)))
	} else {
		fmt.Fprintf(w, "%s %s\n", label("control plane"), s.Muted("not running"))
	}
	fmt.Fprintf(w, "%s %s %s\n", label("lock file"), st.LockPath, s.Muted(fileDetail(st.LockPath)))
	fmt.Fprintf(w, "%s %s\n", label("commands"), env.Endpoints.Command)
	fmt.Fprintf(w, "%s %s\n", label("event bus"), env.Endpoints.EventBus)
	fmt.Fprintf(w, "%s %s %s\n", label("output log"), env.LogPath, s.Muted(fileDetail(env.LogPath)))
	return nil
}

// fileDetail describes a file's size and age, e.g. "(1.2 kB, 3 minutes ago)".
func fileDetail(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "(missing)"
	}
	return fmt.Sprintf("(%s, %s)", humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
}

// runCleanup removes the control-plane lock file when no process holds it.
func runCleanup(env Env) error {
	reg := env.registry()
	removed, err := reg.Cleanup()
	if errors.Is(err, instance.ErrAlreadyRunning) {
		return fmt.Errorf("the control plane is running (pid %d); stop it with --kill first", reg.PID())
	}
	if err != nil {
		return err
	}

	s := env.styles(env.Stdout)
	if removed {
		fmt.Fprintln(env.Stdout, s.Success("Removed stale lock file "+reg.LockPath()+"."))
	} else {
		fmt.Fprintln(env.Stdout, "Nothing to clean up.")
	}
	return nil
}

// runLogs prints the control-plane output log, or follows it with -f until
// the context is cancelled.
func runLogs(env Env, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	follow := fs.BoolP("follow", "f", false, "keep printing new lines as they are written")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := env.Stdout
	if !IsTerminal(out) {
		out = plainWriter{w: out}
	}

	if !*follow {
		if err := logging.Dump(env.LogPath, out); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("no control-plane log at %s", env.LogPath)
			}
			return err
		}
		return nil
	}

	tailer, err := logging.NewTailer(env.LogPath, out)
	if err != nil {
		return err
	}
	return tailer.Follow(env.Context, true)
}

// plainWriter strips escape sequences so redirected logs stay readable.
type plainWriter struct {
	w io.Writer
}

func (p plainWriter) Write(b []byte) (int, error) {
	if _, err := io.WriteString(p.w, StripANSI(string(b))); err != nil {
		return 0, err
	}
	return len(b), nil
}
