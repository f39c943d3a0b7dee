// pattern: Functional Core
package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestApp() (*App, *bytes.Buffer, *int) {
	app := NewApp("1.0.0")
	stderr := &bytes.Buffer{}
	code := -1
	app.stderr = stderr
	app.exit = func(c int) { code = c }
	return app, stderr, &code
}

func TestApp_Execute_NoArgs_ReturnsTrue(t *testing.T) {
	app, _, _ := newTestApp()
	if !app.Execute(nil) {
		t.Error("Execute(nil) returned false, want true")
	}
}

func TestApp_Execute_NonCommand_ReturnsTrue(t *testing.T) {
	app, _, _ := newTestApp()
	app.AddCommand(&Command{Name: "status", Run: func([]string) error {
		t.Error("status should not run")
		return nil
	}})

	if !app.Execute([]string{"/home/me/novel"}) {
		t.Error("a non-command argument should start the application")
	}
}

func TestApp_Execute_Command_Dispatches(t *testing.T) {
	app, _, code := newTestApp()
	var passedArgs []string
	app.AddCommand(&Command{
		Name: "logs",
		Run: func(args []string) error {
			passedArgs = args
			return nil
		},
	})

	if app.Execute([]string{"logs", "-f"}) {
		t.Error("Execute with command returned true, want false")
	}
	if len(passedArgs) != 1 || passedArgs[0] != "-f" {
		t.Errorf("Command received args %v, want [-f]", passedArgs)
	}
	if *code != -1 {
		t.Errorf("exit called with %d on success", *code)
	}
}

func TestApp_Execute_CommandHelp_PrintsUsage(t *testing.T) {
	for _, helpFlag := range []string{"--help", "-h"} {
		t.Run(helpFlag, func(t *testing.T) {
			app, stderr, _ := newTestApp()
			runCalled := false
			app.AddCommand(&Command{
				Name:  "logs",
				Usage: "Usage: unigen logs [-f|--follow]",
				Run: func([]string) error {
					runCalled = true
					return nil
				},
			})

			if app.Execute([]string{"logs", helpFlag}) {
				t.Error("Execute with help returned true")
			}
			if runCalled {
				t.Error("Command Run was called, should have printed usage instead")
			}
			if !strings.Contains(stderr.String(), "Usage: unigen logs") {
				t.Errorf("usage output = %q", stderr.String())
			}
		})
	}
}

func TestApp_Execute_CommandError_ExitsWithCode1(t *testing.T) {
	app, stderr, code := newTestApp()
	app.AddCommand(&Command{
		Name: "cleanup",
		Run:  func([]string) error { return errors.New("lock is held") },
	})

	app.Execute([]string{"cleanup"})

	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if stderr.String() != "error: lock is held\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestApp_PrintHelp_ListsCommandsSorted(t *testing.T) {
	app, _, _ := newTestApp()
	app.AddCommand(&Command{Name: "version", Summary: "Print version"})
	app.AddCommand(&Command{Name: "cleanup", Summary: "Remove stale lock"})
	app.AddCommand(&Command{Name: "status", Summary: "Show state"})

	buf := &bytes.Buffer{}
	app.PrintHelp(buf)
	out := buf.String()

	c, s, v := strings.Index(out, "cleanup"), strings.Index(out, "status"), strings.Index(out, "version")
	if c < 0 || s < 0 || v < 0 {
		t.Fatalf("help missing commands:\n%s", out)
	}
	if !(c < s && s < v) {
		t.Errorf("commands not sorted:\n%s", out)
	}
	if !strings.Contains(out, "project-dir") {
		t.Errorf("help should mention the project directory:\n%s", out)
	}
}
