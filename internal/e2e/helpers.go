//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// Sandbox isolates one unigen installation: its own temp dir (control-plane
// lock and output log) and config home.
type Sandbox struct {
	t       *testing.T
	Binary  string
	TempDir string
	Config  string
}

// Result is a finished unigen invocation.
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// SkipIfPortsBusy skips the test if the fixed broker ports are taken, e.g. by
// a real unigen running on this machine.
func SkipIfPortsBusy(t *testing.T) {
	t.Helper()
	for _, addr := range []string{"127.0.0.1:31883", "127.0.0.1:31884", "127.0.0.1:38286"} {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			t.Skipf("Skipping test: %s is in use", addr)
		}
		_ = ln.Close()
	}
}

// BuildBinary compiles unigen into a temp dir and returns its path.
func BuildBinary(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("Skipping test: go toolchain not found in PATH")
	}

	name := "unigen"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	bin := filepath.Join(t.TempDir(), name)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "go", "build", "-o", bin, "unigen")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}
	return bin
}

// NewSandbox prepares an isolated environment with a config that lets the
// control plane accept commands immediately.
func NewSandbox(t *testing.T, bin string) *Sandbox {
	t.Helper()
	s := &Sandbox{
		t:       t,
		Binary:  bin,
		TempDir: t.TempDir(),
		Config:  t.TempDir(),
	}

	cfg := "log_level: info\ncontrol_plane:\n  startup_delay: 0s\n  settle_delay: 2s\n"
	if err := os.MkdirAll(filepath.Join(s.Config, "unigen"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Config, "unigen", "config.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return s
}

func (s *Sandbox) env() []string {
	return append(os.Environ(),
		"TMPDIR="+s.TempDir,
		"TMP="+s.TempDir,
		"TEMP="+s.TempDir,
		"XDG_CONFIG_HOME="+s.Config,
		"UNIGEN_APP_MODE=",
	)
}

// ControlPlaneLog is the control plane's structured log file.
func (s *Sandbox) ControlPlaneLog() string {
	return filepath.Join(s.Config, "unigen", "control-plane.log")
}

// Run executes unigen to completion.
func (s *Sandbox) Run(args ...string) Result {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	cmd.Env = s.env()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		s.t.Fatalf("run %v: %v", args, err)
	}
	return Result{Code: code, Stdout: stdout.String(), Stderr: stderr.String()}
}

// Start launches a long-running unigen. It is interrupted at test cleanup.
func (s *Sandbox) Start(args ...string) *exec.Cmd {
	s.t.Helper()
	cmd := exec.Command(s.Binary, args...)
	cmd.Env = s.env()
	if err := cmd.Start(); err != nil {
		s.t.Fatalf("start %v: %v", args, err)
	}
	s.t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
		}
	})
	return cmd
}

// KillControlPlane stops whatever control plane the sandbox left running.
func (s *Sandbox) KillControlPlane() {
	s.t.Helper()
	if r := s.Run("status"); strings.Contains(r.Stdout, "running (pid") {
		s.Run("--kill")
	}
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// FileContains reports whether path exists and contains substr.
func FileContains(path, substr string) bool {
	data, err := os.ReadFile(path)
	return err == nil && strings.Contains(string(data), substr)
}
