// pattern: Imperative Shell
package cli

import (
	"context"
	"fmt"
	"io"

	"unigen/internal/mqttclient"
	"unigen/internal/shutdown"
)

// PIDReader reads the control plane's recorded PID.
type PIDReader interface {
	PID() uint32
}

// Sender delivers a shutdown command to pid.
type Sender interface {
	Send(ctx context.Context, pid uint32) error
}

// RunKill handles --kill against the real registry and broker and returns
// the process exit code.
func RunKill(env Env) int {
	env = env.withDefaults()
	publisher := shutdown.NewPublisher(shutdown.PublisherConfig{
		BrokerURL:    env.Endpoints.Command,
		PollInterval: env.Config.Kill.PollInterval.Std(),
		MaxPolls:     env.Config.Kill.MaxPolls,
	}, env.Logger)
	ctx, cancel := context.WithTimeout(env.Context, mqttclient.DefaultConnectTimeout+env.Config.KillTimeout())
	defer cancel()
	return Kill(ctx, env.registry(), publisher, env.Stdout, env.Stderr, env.Config.Theme)
}

// Kill asks the control plane to shut down. It returns 0 once the broker
// confirmed delivery and 1 otherwise.
func Kill(ctx context.Context, reg PIDReader, sender Sender, stdout, stderr io.Writer, theme string) int {
	errStyles := NewStyles(theme, IsTerminal(stderr))

	pid := reg.PID()
	if pid == 0 {
		fmt.Fprintln(stderr, errStyles.Failure("error: no running instance (PID is 0)"))
		return 1
	}

	fmt.Fprintf(stdout, "Sending shutdown command to process with PID %d...\n", pid)
	if err := sender.Send(ctx, pid); err != nil {
		fmt.Fprintln(stderr, errStyles.Failure("✗ Failed to send shutdown command: "+err.Error()))
		return 1
	}

	outStyles := NewStyles(theme, IsTerminal(stdout))
	fmt.Fprintln(stdout, outStyles.Success(fmt.Sprintf("✓ Shutdown command sent successfully to PID %d", pid)))
	return 0
}
