package tailer

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rathrio/log-slurping/internal/model"
	"github.com/rathrio/log-slurping/internal/watcher"
)

const (
	checkpointInterval = 5 * time.Second
	reconnectAttempts  = 5
	reconnectDelay     = time.Second
)

// Options configures a Tailer.
type Options struct {
	// FromStart reads files without a checkpoint from the beginning instead
	// of only following new lines.
	FromStart bool
	Logger    log.Logger
}

// Tailer reads complete lines appended to watched files and emits them as
// RawLine values, in file order per path.
//
// Reading a line does not advance the checkpoint. Offsets are committed by
// whoever consumes the lines, once a whole block is done, so lines still in
// flight at shutdown are read again on the next run.
type Tailer struct {
	mu     sync.Mutex
	files  map[string]*trackedFile
	out    chan model.RawLine
	ckpt   *Checkpoint
	watch  *watcher.Watcher
	opts   Options
	logger log.Logger
}

type trackedFile struct {
	path   string
	file   *os.File
	reader *bufio.Reader
	offset int64  // end of the last complete line
	buf    string // partial line waiting for its newline
}

// New creates a Tailer that reads events from the given Watcher.
func New(w *watcher.Watcher, ckpt *Checkpoint, opts Options) *Tailer {
	return &Tailer{
		files:  make(map[string]*trackedFile),
		out:    make(chan model.RawLine, 512),
		ckpt:   ckpt,
		watch:  w,
		opts:   opts,
		logger: log.With(opts.Logger, "component", "tailer"),
	}
}

// Lines returns the channel raw lines are sent on. It is closed when Start
// returns.
func (t *Tailer) Lines() <-chan model.RawLine {
	return t.out
}

// Start processes watcher events until ctx is cancelled or the watcher
// stops.
func (t *Tailer) Start(ctx context.Context) {
	defer close(t.out)
	defer t.closeAll()
	defer t.saveCheckpoint()

	for _, p := range t.watch.Paths() {
		t.openFile(p)
		t.readNewLines(ctx, p)
	}

	saveTicker := time.NewTicker(checkpointInterval)
	defer saveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-t.watch.Events:
			if !ok {
				return
			}
			t.handleEvent(ctx, ev)

		case <-saveTicker.C:
			t.saveCheckpoint()
		}
	}
}

func (t *Tailer) handleEvent(ctx context.Context, ev watcher.Event) {
	switch {
	case ev.Op.Has(fsnotify.Write):
		t.readNewLines(ctx, ev.Path)

	case ev.Op.Has(fsnotify.Create):
		// New file appeared, possibly after rotation.
		t.openFile(ev.Path)
		t.readNewLines(ctx, ev.Path)

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		t.closeFile(ev.Path)
		go t.reconnect(ctx, ev.Path)
	}
}

// openFile opens a file for tailing, resuming from its checkpointed offset.
func (t *Tailer) openFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[path]; exists {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		level.Warn(t.logger).Log("msg", "cannot open file", "path", path, "err", err)
		return
	}

	var offset int64
	switch saved, ok := t.ckpt.Get(path); {
	case ok:
		offset = saved
	case !t.opts.FromStart:
		offset, _ = f.Seek(0, io.SeekEnd)
		// Resume here next time if no block completes before shutdown.
		t.ckpt.Set(path, offset)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		level.Warn(t.logger).Log("msg", "cannot seek", "path", path, "offset", offset, "err", err)
		f.Close()
		return
	}

	t.files[path] = &trackedFile{
		path:   path,
		file:   f,
		reader: bufio.NewReader(f),
		offset: offset,
	}
}

// readNewLines emits every complete line between the last read offset and EOF.
// A trailing line without newline is held back until it is completed.
func (t *Tailer) readNewLines(ctx context.Context, path string) {
	t.mu.Lock()
	tf, ok := t.files[path]
	t.mu.Unlock()
	if !ok {
		return
	}

	if info, err := tf.file.Stat(); err == nil && info.Size() < tf.offset {
		level.Info(t.logger).Log("msg", "file truncated, restarting from the beginning", "path", path)
		if _, err := tf.file.Seek(0, io.SeekStart); err != nil {
			level.Warn(t.logger).Log("msg", "cannot seek", "path", path, "err", err)
			return
		}
		tf.reader.Reset(tf.file)
		tf.offset = 0
		tf.buf = ""
	}

	for {
		chunk, err := tf.reader.ReadString('\n')
		if err != nil {
			tf.buf += chunk
			if err != io.EOF {
				level.Error(t.logger).Log("msg", "read error", "path", path, "err", err)
			}
			break
		}

		line := tf.buf + chunk
		tf.buf = ""
		raw := model.RawLine{
			Text:   strings.TrimRight(line, "\r\n"),
			Source: path,
			Offset: tf.offset,
			End:    tf.offset + int64(len(line)),
		}
		tf.offset = raw.End

		select {
		case t.out <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// closeFile releases a tracked file.
func (t *Tailer) closeFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tf, ok := t.files[path]; ok {
		tf.file.Close()
		delete(t.files, path)
	}
}

// reconnect polls for a file to reappear after rotation. A rotated file is
// new, so it is read from the beginning.
func (t *Tailer) reconnect(ctx context.Context, path string) {
	for i := 0; i < reconnectAttempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		if _, err := os.Stat(path); err == nil {
			level.Info(t.logger).Log("msg", "reconnected to rotated file", "path", path)
			if err := t.watch.ReWatch(path); err != nil {
				level.Warn(t.logger).Log("msg", "cannot re-watch file", "path", path, "err", err)
			}
			t.ckpt.Set(path, 0)
			t.openFile(path)
			return
		}
	}
	level.Warn(t.logger).Log("msg", "gave up reconnecting", "path", path, "attempts", reconnectAttempts)
}

func (t *Tailer) saveCheckpoint() {
	if err := t.ckpt.Save(); err != nil {
		level.Error(t.logger).Log("msg", "checkpoint save failed", "err", err)
	}
}

func (t *Tailer) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, tf := range t.files {
		tf.file.Close()
		delete(t.files, path)
	}
}
