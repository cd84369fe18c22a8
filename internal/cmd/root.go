package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/logging"
)

var (
	cfgFile     string
	skipInvalid bool

	v = viper.New()
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "slurp",
	Short: "slurp: transmission log shipper",
	Long: `slurp turns multi-line transmission logs into structured records.
Each block, from its timestamp line to its "END TRANSMITTED" line, becomes
one record that is printed as JSON or text, or published to Kafka keyed by
its remote ID.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.slurp.yaml or ./.slurp.yaml)")
	flags.StringP("output", "o", config.SinkJSON, "sink: json, text, kafka, sarama")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&skipInvalid, "skip-invalid", false, "skip malformed or incomplete blocks instead of stopping")
	flags.Int("workers", 0, "sink writer goroutines (0 writes from the parser)")
	flags.StringSlice("brokers", []string{"localhost:9092"}, "kafka seed brokers")
	flags.String("topic", "dhcp", "kafka topic")
	flags.String("acks", "leader", "kafka acks: none, leader, all")

	bindFlags(flags.Lookup, map[string]string{
		"output.sink":    "output",
		"log.level":      "log-level",
		"output.workers": "workers",
		"kafka.brokers":  "brokers",
		"kafka.topic":    "topic",
		"kafka.acks":     "acks",
	})
}

// bindFlags binds config keys to flags, so a flag set on the command line
// wins over the config file and the environment.
func bindFlags(lookup func(string) *pflag.Flag, keys map[string]string) {
	for key, name := range keys {
		cobra.CheckErr(v.BindPFlag(key, lookup(name)))
	}
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".slurp")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SLURP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig reads the config file, applies flags and builds the logger.
func loadConfig() (config.Config, log.Logger, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return config.Config{}, nil, errors.Wrap(err, "reading config")
		}
	}
	if skipInvalid {
		v.Set("parser.strict", false)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
