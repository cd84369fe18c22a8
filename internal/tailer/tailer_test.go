package tailer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/rathrio/log-slurping/internal/watcher"
)

func startTailer(t *testing.T, logPath string, fromStart bool) (*Tailer, context.CancelFunc) {
	t.Helper()

	w, err := watcher.New([]string{logPath}, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ckpt, err := NewCheckpoint(filepath.Join(filepath.Dir(logPath), ".slurp-state.json"))
	if err != nil {
		t.Fatal(err)
	}

	tail := New(w, ckpt, Options{FromStart: fromStart, Logger: log.NewNopLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	go tail.Start(ctx)
	return tail, cancel
}

func expectLine(t *testing.T, tail *Tailer, want string) {
	t.Helper()
	select {
	case raw := <-tail.Lines():
		if raw.Text != want {
			t.Errorf("expected %q, got %q", want, raw.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestTailNewLines(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	if err := os.WriteFile(logPath, []byte("existing line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tail, cancel := startTailer(t, logPath, false)

	// Give the tailer a moment to initialize and seek to end.
	time.Sleep(300 * time.Millisecond)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("01/02/2023 03:04:05\n")
	f.Close()

	select {
	case raw := <-tail.Lines():
		if raw.Text != "01/02/2023 03:04:05" {
			t.Errorf("expected the appended line, got %q", raw.Text)
		}
		abs, _ := filepath.Abs(logPath)
		if raw.Source != abs {
			t.Errorf("expected source %q, got %q", abs, raw.Source)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for line")
	}

	// Cancel and allow goroutines to stop before TempDir cleanup.
	cancel()
	time.Sleep(200 * time.Millisecond)
}

func TestTailFromStartHoldsPartialLine(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	if err := os.WriteFile(logPath, []byte("first\r\nsecond\nthi"), 0644); err != nil {
		t.Fatal(err)
	}

	tail, cancel := startTailer(t, logPath, true)
	defer func() {
		cancel()
		time.Sleep(200 * time.Millisecond)
	}()

	expectLine(t, tail, "first")
	expectLine(t, tail, "second")

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("rd\n")
	f.Close()

	expectLine(t, tail, "third")
}

func TestCheckpointSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.json")

	c1, err := NewCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	c1.Set("/var/log/dhcp.log", 42)
	c1.Set("/var/log/dhcp.log.1", 1024)
	if err := c1.Save(); err != nil {
		t.Fatal(err)
	}

	c2, err := NewCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}

	v1, ok := c2.Get("/var/log/dhcp.log")
	if !ok || v1 != 42 {
		t.Errorf("expected 42, got %d (found=%v)", v1, ok)
	}

	v2, ok := c2.Get("/var/log/dhcp.log.1")
	if !ok || v2 != 1024 {
		t.Errorf("expected 1024, got %d (found=%v)", v2, ok)
	}

	if _, ok := c2.Get("/nonexistent"); ok {
		t.Error("expected missing key to return false")
	}
}

func TestCheckpointCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCheckpoint(path); err == nil {
		t.Error("expected error for corrupt checkpoint")
	}
}

func TestTailLineOffsetsDoNotAdvanceCheckpoint(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	if err := os.WriteFile(logPath, []byte("first\r\nsecond\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tail, cancel := startTailer(t, logPath, true)
	defer func() {
		cancel()
		time.Sleep(200 * time.Millisecond)
	}()

	for _, want := range []struct {
		text        string
		offset, end int64
	}{
		{"first", 0, 7},
		{"second", 7, 14},
	} {
		select {
		case raw := <-tail.Lines():
			if raw.Text != want.text || raw.Offset != want.offset || raw.End != want.end {
				t.Errorf("expected %q at [%d,%d), got %q at [%d,%d)",
					want.text, want.offset, want.end, raw.Text, raw.Offset, raw.End)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %q", want.text)
		}
	}

	abs, _ := filepath.Abs(logPath)
	if off, ok := tail.ckpt.Get(abs); ok {
		t.Errorf("reading lines must not commit an offset, got %d", off)
	}
}

func TestTailWithoutCheckpointStartsAtEnd(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	content := "01/02/2023 03:04:05\nabc -- TRANSMITTED -- info\n"
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tail, cancel := startTailer(t, logPath, false)
	defer func() {
		cancel()
		time.Sleep(200 * time.Millisecond)
	}()

	abs, _ := filepath.Abs(logPath)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if off, ok := tail.ckpt.Get(abs); ok {
			if off != int64(len(content)) {
				t.Errorf("expected start offset %d, got %d", len(content), off)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the start offset")
		}
		time.Sleep(20 * time.Millisecond)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("server = dhcp01\n")
	f.Close()

	select {
	case raw := <-tail.Lines():
		if raw.Offset != int64(len(content)) {
			t.Errorf("expected first line at offset %d, got %d", len(content), raw.Offset)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for line")
	}
}
