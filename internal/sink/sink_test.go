package sink

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
)

func TestNewSelectsConsoleSinks(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s, err := New(cfg, &bytes.Buffer{}, log.NewNopLogger(), m, reg)
	require.NoError(t, err)
	assert.IsType(t, &JSONSink{}, s)

	cfg.Output.Sink = config.SinkText
	s, err = New(cfg, &bytes.Buffer{}, log.NewNopLogger(), m, reg)
	require.NoError(t, err)
	assert.IsType(t, &TextSink{}, s)

	cfg.Output.Sink = "pigeon"
	_, err = New(cfg, &bytes.Buffer{}, log.NewNopLogger(), m, reg)
	assert.Error(t, err)
}
