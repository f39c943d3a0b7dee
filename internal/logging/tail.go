// pattern: Imperative Shell

package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tailer follows a plain-text log file and copies each new line to an
// io.Writer. It watches the parent directory with fsnotify so the file may be
// created, rotated or truncated while it runs, and polls as a safeguard
// against missed events.
type Tailer struct {
	filePath     string
	out          io.Writer
	pollInterval time.Duration
	watcher      *fsnotify.Watcher

	mu     sync.Mutex
	file   *os.File
	offset int64
	closed bool
}

// NewTailer creates a Tailer for filePath writing lines to out.
func NewTailer(filePath string, out io.Writer) (*Tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Tailer{
		filePath:     filePath,
		out:          out,
		pollInterval: 2 * time.Second,
		watcher:      watcher,
	}, nil
}

// Follow copies existing content (when fromStart is set) and then every line
// appended afterwards until ctx is cancelled.
func (t *Tailer) Follow(ctx context.Context, fromStart bool) error {
	if err := t.watcher.Add(filepath.Dir(t.filePath)); err != nil {
		_ = t.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	t.mu.Lock()
	if err := t.openFile(!fromStart); err == nil {
		t.copyNewLines()
	}
	t.mu.Unlock()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = t.Close()
			return nil

		case event, ok := <-t.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(t.filePath) {
				continue
			}

			t.mu.Lock()
			switch {
			case event.Has(fsnotify.Create):
				t.closeFile()
				_ = t.openFile(false)
				t.copyNewLines()
			case event.Has(fsnotify.Write):
				t.copyNewLines()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				t.closeFile()
			}
			t.mu.Unlock()

		case <-ticker.C:
			t.mu.Lock()
			if t.file == nil {
				_ = t.openFile(false)
			}
			t.copyNewLines()
			t.mu.Unlock()

		case _, ok := <-t.watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// Dump copies the whole file to out once and returns.
func Dump(filePath string, out io.Writer) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(out, f)
	return err
}

func (t *Tailer) openFile(seekToEnd bool) error {
	if t.file != nil {
		return nil
	}

	file, err := os.Open(t.filePath)
	if err != nil {
		return err
	}

	var offset int64
	if seekToEnd {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			_ = file.Close()
			return err
		}
	}

	t.file = file
	t.offset = offset
	return nil
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
		t.offset = 0
	}
}

func (t *Tailer) copyNewLines() {
	if t.file == nil {
		return
	}

	// Truncated underneath us: start over.
	if info, err := t.file.Stat(); err == nil && info.Size() < t.offset {
		t.offset = 0
	}

	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(t.file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// Partial trailing line: wait for the rest of it.
			break
		}
		t.offset += int64(len(line))
		_, _ = io.WriteString(t.out, line)
	}
}

// Close stops the tailer and releases resources.
func (t *Tailer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	t.closeFile()
	return t.watcher.Close()
}
