// pattern: Functional Core
package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
)

// Command represents a single CLI command with its metadata and handler.
type Command struct {
	Name    string
	Summary string
	Usage   string
	Run     func(args []string) error
}

// App represents the top-level CLI application.
type App struct {
	commands map[string]*Command
	version  string
	stderr   io.Writer
	exit     func(code int)
}

// NewApp creates a new CLI application with the given version.
func NewApp(version string) *App {
	return &App{
		commands: make(map[string]*Command),
		version:  version,
		stderr:   os.Stderr,
		exit:     os.Exit,
	}
}

// AddCommand registers a command.
func (a *App) AddCommand(cmd *Command) {
	a.commands[cmd.Name] = cmd
}

// Execute dispatches the CLI arguments to the appropriate command.
// Returns true if the application itself should start, false otherwise.
func (a *App) Execute(args []string) bool {
	// No command: run the application
	if len(args) == 0 {
		return true
	}

	cmd, ok := a.commands[args[0]]
	if !ok {
		// Not a command. main treats it as the project directory.
		return true
	}

	for _, arg := range args[1:] {
		if arg == "--help" || arg == "-h" {
			fmt.Fprintf(a.stderr, "%s\n", cmd.Usage)
			return false
		}
	}

	if err := cmd.Run(args[1:]); err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		a.exit(1)
	}
	return false
}

// PrintHelp prints the top-level help text.
func (a *App) PrintHelp(w io.Writer) {
	fmt.Fprintf(w, "Usage: unigen [options] [project-dir]\n")
	fmt.Fprintf(w, "       unigen <command>\n\n")
	fmt.Fprintf(w, "Commands:\n")

	for _, name := range slices.Sorted(maps.Keys(a.commands)) {
		cmd := a.commands[name]
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}

	fmt.Fprintf(w, "  %-10s %s\n", "(none)", "Start unigen, optionally opening project-dir")
	fmt.Fprintf(w, "\nUse \"unigen <command> --help\" for command details.\n\n")
	fmt.Fprintf(w, "Options:\n")
}
