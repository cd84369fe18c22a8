package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/model"
)

func TestKafkaSinkPublishesKeyedRecords(t *testing.T) {
	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(1, "dhcp"))
	require.NoError(t, err)
	defer cluster.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, err := NewKafkaSink(config.KafkaConfig{
		Brokers:            cluster.ListenAddrs(),
		Topic:              "dhcp",
		ClientID:           "slurp-test",
		Acks:               "leader",
		WriteTimeout:       5 * time.Second,
		MaxBufferedRecords: 100,
	}, log.NewNopLogger(), m, reg)
	require.NoError(t, err)

	ctx := context.Background()
	second := testRecord
	second.ID = "def456"
	second.RemoteID = "host-10"
	require.NoError(t, s.Write(ctx, testRecord))
	require.NoError(t, s.Write(ctx, second))
	require.NoError(t, s.Close())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.SinkWrites.WithLabelValues(config.SinkKafka)) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SinkFailures.WithLabelValues(config.SinkKafka)))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(cluster.ListenAddrs()...),
		kgo.ConsumeTopics("dhcp"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []*kgo.Record
	pollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for len(got) < 2 {
		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, fetches.Err())
		got = append(got, fetches.Records()...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "host-9", string(got[0].Key))
	assert.Equal(t, "host-10", string(got[1].Key))

	var decoded model.Record
	require.NoError(t, json.Unmarshal(got[0].Value, &decoded))
	assert.Equal(t, "abc123", decoded.ID)
	assert.True(t, decoded.Timestamp.Equal(testRecord.Timestamp))
}

func TestKafkaAcks(t *testing.T) {
	for _, acks := range []string{"none", "leader", "all"} {
		opts, err := kafkaAcks(acks)
		require.NoError(t, err, acks)
		assert.NotEmpty(t, opts, acks)
	}
	_, err := kafkaAcks("most")
	assert.Error(t, err)
}
