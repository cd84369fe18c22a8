package sink

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/model"
)

// SaramaSink publishes records one at a time and waits for each
// acknowledgement. It is slower than KafkaSink but a failed Write means
// exactly that record was not delivered.
type SaramaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   log.Logger
	metrics  *metrics.Metrics
}

// NewSaramaSink connects a synchronous producer for cfg.
func NewSaramaSink(cfg config.KafkaConfig, logger log.Logger, m *metrics.Metrics) (*SaramaSink, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Timeout = cfg.WriteTimeout
	sc.Net.DialTimeout = cfg.WriteTimeout

	switch cfg.Acks {
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	default:
		return nil, errors.Errorf("invalid acks %q", cfg.Acks)
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "creating sarama producer")
	}
	return newSaramaSink(producer, cfg.Topic, logger, m), nil
}

func newSaramaSink(p sarama.SyncProducer, topic string, logger log.Logger, m *metrics.Metrics) *SaramaSink {
	return &SaramaSink{producer: p, topic: topic, logger: logger, metrics: m}
}

func (s *SaramaSink) Write(_ context.Context, r model.Record) error {
	value, err := encode(r)
	if err != nil {
		return err
	}

	partition, offset, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(r.RemoteID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		s.metrics.SinkFailures.WithLabelValues(config.SinkSarama).Inc()
		return errors.Wrapf(err, "sending record %s", r.ID)
	}

	s.metrics.SinkWrites.WithLabelValues(config.SinkSarama).Inc()
	level.Debug(s.logger).Log("msg", "record delivered", "id", r.ID, "partition", partition, "offset", offset)
	return nil
}

func (s *SaramaSink) Close() error {
	return errors.Wrap(s.producer.Close(), "closing sarama producer")
}
