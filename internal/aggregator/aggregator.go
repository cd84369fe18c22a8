package aggregator

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/rathrio/log-slurping/internal/model"
)

const rateWindow = 5 * time.Second

// Stats holds a point-in-time snapshot of aggregated metrics.
type Stats struct {
	Uptime         string           `json:"uptime"`
	TotalRecords   int64            `json:"total_records"`
	RPS            float64          `json:"rps"`
	MessageTypes   map[string]int64 `json:"message_types"`
	Servers        map[string]int64 `json:"servers"`
	RemoteIDs      int              `json:"remote_ids"`
	LastRecordTime *time.Time       `json:"last_record_time,omitempty"`
	DroppedRecords int64            `json:"dropped_records"`
	FilesWatched   int              `json:"files_watched"`
}

// Aggregator consumes a hub subscription and computes counters and a
// records-per-second rate over a sliding window.
type Aggregator struct {
	mu           sync.RWMutex
	startTime    time.Time
	totalRecords int64
	messageTypes map[string]int64
	servers      map[string]int64
	remoteIDs    map[string]struct{}
	lastRecord   time.Time
	window       []time.Time // arrival times within rateWindow
	dropped      func() int64
	fileCount    func() int
	records      <-chan model.Record
}

// New creates an Aggregator reading from records. droppedFn and fileCountFn
// provide live values from the hub and the watcher.
func New(records <-chan model.Record, droppedFn func() int64, fileCountFn func() int) *Aggregator {
	return &Aggregator{
		startTime:    time.Now(),
		messageTypes: make(map[string]int64),
		servers:      make(map[string]int64),
		remoteIDs:    make(map[string]struct{}),
		dropped:      droppedFn,
		fileCount:    fileCountFn,
		records:      records,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cutoff := time.Now().Add(-rateWindow)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	stats := Stats{
		Uptime:         time.Since(a.startTime).Truncate(time.Second).String(),
		TotalRecords:   a.totalRecords,
		RPS:            float64(recent) / rateWindow.Seconds(),
		MessageTypes:   maps.Clone(a.messageTypes),
		Servers:        maps.Clone(a.servers),
		RemoteIDs:      len(a.remoteIDs),
		DroppedRecords: a.dropped(),
		FilesWatched:   a.fileCount(),
	}
	if !a.lastRecord.IsZero() {
		last := a.lastRecord
		stats.LastRecordTime = &last
	}
	return stats
}

// Start consumes records until ctx is cancelled or the channel closes.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-a.records:
			if !ok {
				return
			}
			a.record(r)
		case <-ticker.C:
			a.prune()
		}
	}
}

func (a *Aggregator) record(r model.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRecords++
	a.messageTypes[r.MessageType]++
	a.servers[r.Server]++
	a.remoteIDs[r.RemoteID] = struct{}{}
	if r.Timestamp.After(a.lastRecord) {
		a.lastRecord = r.Timestamp
	}
	a.window = append(a.window, time.Now())
}

// prune removes arrival times older than the rate window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-rateWindow)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}
