package sink

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/atomic"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/model"
)

// KafkaSink publishes records asynchronously with franz-go. Each record is
// keyed by its remote ID, so all records of one remote land in one partition.
// Delivery results arrive on the client's callback and are only counted and
// logged; Close reports how many records were lost.
type KafkaSink struct {
	client  *kgo.Client
	cfg     config.KafkaConfig
	logger  log.Logger
	metrics *metrics.Metrics

	failed *atomic.Int64
}

// NewKafkaSink connects a producer client for cfg. Client metrics are
// registered with reg.
func NewKafkaSink(cfg config.KafkaConfig, logger log.Logger, m *metrics.Metrics, reg prometheus.Registerer) (*KafkaSink, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordDeliveryTimeout(cfg.WriteTimeout),
		kgo.ProduceRequestTimeout(cfg.WriteTimeout),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.WithLogger(newKafkaLogger(logger)),
		kgo.WithHooks(kprom.NewMetrics("slurp_kafka", kprom.Registerer(reg))),
	}
	acks, err := kafkaAcks(cfg.Acks)
	if err != nil {
		return nil, err
	}
	opts = append(opts, acks...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating kafka client")
	}

	return &KafkaSink{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		failed:  atomic.NewInt64(0),
	}, nil
}

// kafkaAcks maps the configured ack policy to client options. Idempotent
// writes need acks from all in-sync replicas, so they are disabled otherwise.
func kafkaAcks(acks string) ([]kgo.Opt, error) {
	switch acks {
	case "none":
		return []kgo.Opt{kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite()}, nil
	case "leader":
		return []kgo.Opt{kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite()}, nil
	case "all":
		return []kgo.Opt{kgo.RequiredAcks(kgo.AllISRAcks())}, nil
	default:
		return nil, errors.Errorf("invalid acks %q", acks)
	}
}

// Write buffers r for delivery. It blocks only while the client buffer is full.
func (s *KafkaSink) Write(ctx context.Context, r model.Record) error {
	value, err := encode(r)
	if err != nil {
		return err
	}
	s.client.Produce(ctx, &kgo.Record{
		Topic: s.cfg.Topic,
		Key:   []byte(r.RemoteID),
		Value: value,
	}, s.delivered)
	return nil
}

func (s *KafkaSink) delivered(r *kgo.Record, err error) {
	if err != nil {
		s.failed.Inc()
		s.metrics.SinkFailures.WithLabelValues(config.SinkKafka).Inc()
		level.Error(s.logger).Log("msg", "failed to deliver record", "topic", r.Topic, "key", string(r.Key), "err", err)
		return
	}
	s.metrics.SinkWrites.WithLabelValues(config.SinkKafka).Inc()
}

// Close waits up to the write timeout for buffered records, then closes the
// client.
func (s *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	flushErr := s.client.Flush(ctx)
	s.client.Close()

	if flushErr != nil {
		return errors.Wrap(flushErr, "flushing kafka producer")
	}
	if n := s.failed.Load(); n > 0 {
		return errors.Errorf("%d records failed delivery", n)
	}
	return nil
}
