package sink

import (
	"context"
	"encoding/json"
	"io"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/model"
)

// Sink accepts records one at a time, in the order they are written.
// Implementations are safe for concurrent use by multiple workers.
type Sink interface {
	Write(ctx context.Context, r model.Record) error
	// Close flushes anything still buffered and releases the sink.
	Close() error
}

// New builds the sink selected by cfg.Output.Sink. Console sinks write to w.
func New(cfg config.Config, w io.Writer, logger log.Logger, m *metrics.Metrics, reg prometheus.Registerer) (Sink, error) {
	logger = log.With(logger, "component", "sink", "sink", cfg.Output.Sink)

	switch cfg.Output.Sink {
	case config.SinkJSON:
		return NewJSONSink(w, m), nil
	case config.SinkText:
		return NewTextSink(w, m), nil
	case config.SinkKafka:
		return NewKafkaSink(cfg.Kafka, logger, m, reg)
	case config.SinkSarama:
		return NewSaramaSink(cfg.Kafka, logger, m)
	default:
		return nil, errors.Errorf("unknown sink %q", cfg.Output.Sink)
	}
}

// encode is the wire form shared by every sink: the record as one JSON object.
func encode(r model.Record) ([]byte, error) {
	b, err := json.Marshal(r)
	return b, errors.Wrap(err, "encoding record")
}
