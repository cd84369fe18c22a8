package hub

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/rathrio/log-slurping/internal/model"
	"github.com/rathrio/log-slurping/internal/parser"
	"github.com/rathrio/log-slurping/internal/pipeline"
)

const (
	subscriberBuffer = 1024
	sourceBuffer     = 256
)

// CommitFunc is told the offset in source up to which every block has been
// broadcast. Reading can safely resume there.
type CommitFunc func(source string, offset int64)

// Hub receives raw lines from many files, runs one BlockParser per file and
// broadcasts the resulting records to all subscribers.
type Hub struct {
	input  <-chan model.RawLine
	opts   pipeline.Options
	commit CommitFunc

	mu          sync.RWMutex
	subscribers []*subscriber
	dropped     *atomic.Int64
	sources     *atomic.Int64
}

type subscriber struct {
	ch       chan model.Record
	done     chan struct{} // closed by Unsubscribe
	reliable bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithCommit registers fn to be called after each broadcast record with the
// offset just past the block's end marker.
func WithCommit(fn CommitFunc) Option {
	return func(h *Hub) { h.commit = fn }
}

// New creates a Hub reading lines from input. opts.Strict decides whether a
// bad block stops the hub; opts.Source is set per file.
func New(input <-chan model.RawLine, opts pipeline.Options, hubOpts ...Option) *Hub {
	opts = opts.WithDefaults()
	opts.Logger = log.With(opts.Logger, "component", "hub")
	h := &Hub{
		input:   input,
		opts:    opts,
		dropped: atomic.NewInt64(0),
		sources: atomic.NewInt64(0),
	}
	for _, o := range hubOpts {
		o(h)
	}
	return h
}

// Subscribe returns a buffered channel receiving every record. Records are
// dropped for this subscriber while its buffer is full.
func (h *Hub) Subscribe() <-chan model.Record {
	return h.subscribe(false)
}

// SubscribeReliable returns a channel that never drops records: the hub
// waits for the subscriber instead. The subscriber must keep reading until
// the channel is closed.
func (h *Hub) SubscribeReliable() <-chan model.Record {
	return h.subscribe(true)
}

func (h *Hub) subscribe(reliable bool) <-chan model.Record {
	s := &subscriber{
		ch:       make(chan model.Record, subscriberBuffer),
		done:     make(chan struct{}),
		reliable: reliable,
	}
	h.mu.Lock()
	h.subscribers = append(h.subscribers, s)
	h.mu.Unlock()
	return s.ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe. The channel
// is not closed; the caller simply stops reading it.
func (h *Hub) Unsubscribe(ch <-chan model.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subscribers {
		if s.ch == ch {
			close(s.done)
			h.subscribers = append(h.subscribers[:i:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Dropped returns the total number of records dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Sources returns the number of files that have produced lines so far.
func (h *Hub) Sources() int {
	return int(h.sources.Load())
}

// Start routes lines to per-file parsers until ctx is cancelled or the input
// channel is closed, then waits for the parsers to finish and closes every
// subscriber channel. It returns the first strict-mode block error, if any.
func (h *Hub) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	queues := make(map[string]chan model.RawLine)

	route := func(raw model.RawLine) bool {
		q, ok := queues[raw.Source]
		if !ok {
			q = make(chan model.RawLine, sourceBuffer)
			queues[raw.Source] = q
			h.sources.Inc()
			// A file first seen past offset 0 may start inside a block.
			resync := raw.Offset > 0
			g.Go(func() error { return h.parse(gctx, raw.Source, q, resync) })
		}
		select {
		case q <- raw:
			return true
		case <-gctx.Done():
			return false
		}
	}

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case raw, ok := <-h.input:
			if !ok || !route(raw) {
				break loop
			}
		}
	}

	for _, q := range queues {
		close(q)
	}
	err := g.Wait()
	h.closeAll()

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// parse drains one file's lines. A block still open when the queue closes
// is dropped and its lines are never committed.
func (h *Hub) parse(ctx context.Context, source string, lines <-chan model.RawLine, resync bool) error {
	opts := h.opts
	opts.Source = source

	src := parser.NewChanSource(lines)
	var popts []parser.Option
	if resync {
		level.Debug(opts.Logger).Log("msg", "source starts mid-file, skipping to the next block", "source", source)
		popts = append(popts, parser.WithResync())
	}
	p := parser.New(src, popts...)

	emit := func(ctx context.Context, r model.Record) error {
		if err := h.broadcast(ctx, r); err != nil {
			return err
		}
		if h.commit != nil {
			h.commit(source, src.End())
		}
		return nil
	}

	sum, err := pipeline.Drain(ctx, p, emit, opts)
	level.Debug(opts.Logger).Log("msg", "source finished", "source", source,
		"records", sum.Records, "rejected", sum.Rejected, "lines", sum.Lines)
	return err
}

// broadcast sends r to every subscriber. The subscriber list is copied so a
// reliable subscriber that blocks does not hold up Subscribe or Unsubscribe.
func (h *Hub) broadcast(ctx context.Context, r model.Record) error {
	h.mu.RLock()
	subs := append([]*subscriber(nil), h.subscribers...)
	h.mu.RUnlock()

	for _, s := range subs {
		if s.reliable {
			select {
			case s.ch <- r:
			case <-s.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		select {
		case s.ch <- r:
		case <-s.done:
		default:
			n := h.dropped.Inc()
			h.opts.Metrics.HubDropped.Inc()
			level.Debug(h.opts.Logger).Log("msg", "dropped record for slow subscriber", "id", r.ID, "total_dropped", n)
		}
	}
	return nil
}

// closeAll closes the channels of all remaining subscribers. It runs once no
// parser is broadcasting.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subscribers {
		close(s.ch)
	}
	h.subscribers = nil
}
