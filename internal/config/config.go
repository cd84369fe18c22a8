package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Sink names.
const (
	SinkJSON   = "json"
	SinkText   = "text"
	SinkKafka  = "kafka"
	SinkSarama = "sarama"
)

// Config is the full runtime configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Parser ParserConfig `mapstructure:"parser"`
	Input  InputConfig  `mapstructure:"input"`
	Output OutputConfig `mapstructure:"output"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Server ServerConfig `mapstructure:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ParserConfig struct {
	// Strict aborts on the first malformed or incomplete block.
	Strict bool `mapstructure:"strict"`
}

type InputConfig struct {
	BufferSize int    `mapstructure:"buffer_size"`
	FromStart  bool   `mapstructure:"from_start"` // follow mode: read files from offset 0 when no checkpoint exists
	Checkpoint string `mapstructure:"checkpoint"`
}

type OutputConfig struct {
	Sink      string `mapstructure:"sink"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

// KafkaConfig is shared by the kafka and sarama sinks.
type KafkaConfig struct {
	Brokers            []string      `mapstructure:"brokers"`
	Topic              string        `mapstructure:"topic"`
	ClientID           string        `mapstructure:"client_id"`
	Acks               string        `mapstructure:"acks"` // none, leader or all
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxBufferedRecords int           `mapstructure:"max_buffered_records"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "logfmt")
	v.SetDefault("parser.strict", true)
	v.SetDefault("input.buffer_size", 128*1024)
	v.SetDefault("input.from_start", false)
	v.SetDefault("input.checkpoint", ".slurp-state.json")
	v.SetDefault("output.sink", SinkJSON)
	v.SetDefault("output.workers", 0)
	v.SetDefault("output.queue_size", 1024)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "dhcp")
	v.SetDefault("kafka.client_id", "slurp")
	v.SetDefault("kafka.acks", "leader")
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.max_buffered_records", 500000)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot type-check.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf("invalid log.level %q", c.Log.Level)
	}
	switch c.Output.Sink {
	case SinkJSON, SinkText:
	case SinkKafka, SinkSarama:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic must not be empty")
		}
		switch c.Kafka.Acks {
		case "none", "leader", "all":
		default:
			return errors.Errorf("invalid kafka.acks %q (want none, leader or all)", c.Kafka.Acks)
		}
	default:
		return errors.Errorf("unknown output.sink %q", c.Output.Sink)
	}
	if c.Output.Workers < 0 {
		return errors.New("output.workers must not be negative")
	}
	if c.Output.Workers > 0 && c.Output.QueueSize < 1 {
		return errors.New("output.queue_size must be positive when workers are used")
	}
	if c.Input.BufferSize < 4096 {
		return errors.Errorf("input.buffer_size %d is below 4096", c.Input.BufferSize)
	}
	return nil
}
