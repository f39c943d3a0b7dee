//go:build !windows

package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"unigen/internal/logging"
)

func testLogger(t *testing.T) *logging.ScopedLogger {
	t.Helper()
	lm := logging.NewTestLogManager(100)
	t.Cleanup(func() { _ = lm.Close() })
	return lm.For("test")
}

func waitForFile(t *testing.T, path string, want string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(data), want) {
			return string(data)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never contained %q", path, want)
	return ""
}

func TestDetached_RedirectsOutputAndEnv(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "child.log")

	pid, err := NewDetached(testLogger(t)).Launch(Spec{
		Path:    "/bin/sh",
		Args:    []string{"-c", `echo "mode=$UNIGEN_TEST_MODE cwd=$(pwd)"; echo oops >&2`},
		Env:     []string{"UNIGEN_TEST_MODE=detached"},
		LogPath: logPath,
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if pid <= 0 {
		t.Fatalf("Launch() pid = %d", pid)
	}

	out := waitForFile(t, logPath, "oops")
	if !strings.Contains(out, "mode=detached") {
		t.Errorf("child env not applied, output = %q", out)
	}
	if !strings.Contains(out, "cwd=/\n") {
		t.Errorf("child should run from /, output = %q", out)
	}
}

func TestDetached_NewSession(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sid.log")

	_, err := NewDetached(nil).Launch(Spec{
		Path:    "/bin/sh",
		Args:    []string{"-c", `ps -o sid= -p $$ | tr -d ' '; echo pid=$$`},
		LogPath: logPath,
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	out := waitForFile(t, logPath, "pid=")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		t.Skipf("ps unavailable, output = %q", out)
	}
	sid := lines[0]
	pid := strings.TrimPrefix(lines[len(lines)-1], "pid=")
	if sid != pid {
		t.Errorf("child should lead its own session: sid=%s pid=%s", sid, pid)
	}
}

func TestDetached_UnopenableLogDiscards(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "no-such-dir", "child.log")

	if _, err := NewDetached(testLogger(t)).Launch(Spec{Path: "/bin/true", LogPath: logPath}); err != nil {
		t.Fatalf("Launch() should fall back to discarding output, got %v", err)
	}
}

func TestDetached_Errors(t *testing.T) {
	d := NewDetached(nil)
	if _, err := d.Launch(Spec{}); err == nil {
		t.Error("Launch() with empty path should fail")
	}
	if _, err := d.Launch(Spec{Path: filepath.Join(t.TempDir(), "missing-binary")}); err == nil {
		t.Error("Launch() with missing binary should fail")
	}
}
