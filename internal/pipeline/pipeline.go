package pipeline

import (
	"context"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/model"
	"github.com/rathrio/log-slurping/internal/parser"
	"github.com/rathrio/log-slurping/internal/sink"
)

// Options controls how a parser is drained.
type Options struct {
	// Strict stops at the first malformed or incomplete block. Otherwise the
	// block is logged, counted and skipped.
	Strict bool

	// Workers is the number of goroutines writing to the sink. Zero writes
	// from the parsing goroutine.
	Workers   int
	QueueSize int

	Source string // name used in logs and errors

	// Logger and Metrics default to a nop logger and unregistered counters.
	Logger  log.Logger
	Metrics *metrics.Metrics
}

// WithDefaults fills in a nop logger and unregistered metrics where unset.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	return o
}

// Summary describes one drained source.
type Summary struct {
	Records   int // records the sink accepted
	Rejected  int
	Truncated bool
	Lines     int
}

// EmitFunc receives each record in block order.
type EmitFunc func(ctx context.Context, r model.Record) error

// Drain pulls records from p until the end of input and passes them to emit.
// A truncated final block is reported in the Summary, never as an error.
func Drain(ctx context.Context, p *parser.BlockParser, emit EmitFunc, opts Options) (Summary, error) {
	opts = opts.WithDefaults()
	var sum Summary
	logger := log.With(opts.Logger, "source", opts.Source)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		r, err := p.Next()
		sum.Lines = p.Line()
		if err == nil {
			opts.Metrics.RecordsParsed.Inc()
			if err := emit(ctx, r); err != nil {
				return sum, err
			}
			sum.Records++
			continue
		}
		if err == io.EOF {
			return sum, nil
		}

		kind := parser.Kind(err)
		switch kind {
		case "":
			return sum, errors.Wrapf(err, "reading %s", opts.Source)
		case parser.KindTruncatedBlock:
			sum.Truncated = true
			opts.Metrics.TruncatedBlocks.Inc()
			level.Warn(logger).Log("msg", "input ended inside a block, dropping it", "err", err)
			return sum, nil
		}

		sum.Rejected++
		opts.Metrics.BlockErrors.WithLabelValues(kind).Inc()
		if opts.Strict {
			return sum, errors.Wrapf(err, "%s", opts.Source)
		}
		level.Warn(logger).Log("msg", "skipping invalid block", "kind", kind, "err", err)
	}
}

// Run drains p into s, fanning out to opts.Workers writers when set.
// Records keep their order only with a single writer.
func Run(ctx context.Context, p *parser.BlockParser, s sink.Sink, opts Options) (Summary, error) {
	opts = opts.WithDefaults()
	if opts.Workers == 0 {
		return Drain(ctx, p, s.Write, opts)
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan model.Record, opts.QueueSize)
	written := atomic.NewInt64(0)

	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			for r := range queue {
				if gctx.Err() != nil {
					return nil
				}
				if err := s.Write(gctx, r); err != nil {
					return err
				}
				written.Inc()
			}
			return nil
		})
	}

	var sum Summary
	g.Go(func() error {
		defer close(queue)
		var err error
		sum, err = Drain(gctx, p, func(ctx context.Context, r model.Record) error {
			select {
			case queue <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, opts)
		return err
	})

	err := g.Wait()
	sum.Records = int(written.Load())
	return sum, err
}
