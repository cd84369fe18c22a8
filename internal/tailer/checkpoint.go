package tailer

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// checkpointData is the on-disk JSON structure for persisted offsets.
type checkpointData struct {
	Offsets map[string]int64 `json:"offsets"`
}

// Checkpoint persists per-file offsets so tailing resumes after the last
// committed block.
type Checkpoint struct {
	mu    sync.RWMutex
	path  string
	data  checkpointData
	dirty bool
}

// NewCheckpoint loads the checkpoint at path. A missing file is an empty
// checkpoint; an unreadable one is an error.
func NewCheckpoint(path string) (*Checkpoint, error) {
	c := &Checkpoint{
		path: path,
		data: checkpointData{Offsets: make(map[string]int64)},
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return c, nil
	case err != nil:
		return nil, errors.Wrap(err, "reading checkpoint")
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, errors.Wrapf(err, "decoding checkpoint %s", path)
	}
	if c.data.Offsets == nil {
		c.data.Offsets = make(map[string]int64)
	}
	return c, nil
}

// Get returns the saved offset for a file path.
func (c *Checkpoint) Get(path string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data.Offsets[path]
	return v, ok
}

// Set records the current offset for a file path.
func (c *Checkpoint) Set(path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.data.Offsets[path]; ok && old == offset {
		return
	}
	c.data.Offsets[path] = offset
	c.dirty = true
}

// Save atomically replaces the checkpoint file if anything changed.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(c.path, raw, 0644); err != nil {
		return errors.Wrap(err, "writing checkpoint")
	}
	c.dirty = false
	return nil
}
