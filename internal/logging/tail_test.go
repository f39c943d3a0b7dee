package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTailer_FollowsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unigen_mqtt.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out syncBuffer
	tailer, err := NewTailer(path, &out)
	if err != nil {
		t.Fatalf("NewTailer() error = %v", err)
	}
	tailer.pollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tailer.Follow(ctx, false) }()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("new line\n")
	_ = f.Close()

	waitFor(t, func() bool { return strings.Contains(out.String(), "new line") })
	if strings.Contains(out.String(), "old line") {
		t.Error("Follow(fromStart=false) should skip existing content")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Follow() did not return after cancel")
	}
}

func TestTailer_FileCreatedLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.log")

	var out syncBuffer
	tailer, err := NewTailer(path, &out)
	if err != nil {
		t.Fatalf("NewTailer() error = %v", err)
	}
	tailer.pollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tailer.Follow(ctx, true) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return strings.Contains(out.String(), "hello") })
}

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.log")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := Dump(path, &out); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if out.String() != "a\nb\n" {
		t.Errorf("Dump() wrote %q", out.String())
	}
	if err := Dump(filepath.Join(t.TempDir(), "missing"), &out); err == nil {
		t.Error("Dump() should fail for a missing file")
	}
}
