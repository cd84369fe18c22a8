package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rathrio/log-slurping/internal/config"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/parser"
	"github.com/rathrio/log-slurping/internal/pipeline"
	"github.com/rathrio/log-slurping/internal/sink"
	"github.com/rathrio/log-slurping/internal/watcher"
)

const stdinName = "-"

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse transmission logs and write one record per block",
	Long: `Parse one or more transmission logs (or glob patterns) from start to end
and write every block as a record to the configured sink. Reads stdin when no
file is given or the file is "-".

Examples:
  slurp parse dhcp.log
  slurp parse "/var/log/dhcp/**/*.log" --output text
  cat dhcp.log | slurp parse --output kafka --brokers kafka:9092`,
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().Int("buffer-size", 128*1024, "read buffer size in bytes")
	bindFlags(parseCmd.Flags().Lookup, map[string]string{"input.buffer_size": "buffer-size"})
}

func runParse(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := inputPaths(args)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, err := sink.New(cfg, cmd.OutOrStdout(), logger, m, reg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing sink")
		}
	}()

	var (
		total     pipeline.Summary
		truncated int
	)
	for _, path := range paths {
		sum, err := parsePath(ctx, cmd.InOrStdin(), path, s, cfg, logger, m)
		total.Records += sum.Records
		total.Rejected += sum.Rejected
		total.Lines += sum.Lines
		if sum.Truncated {
			truncated++
		}
		if err != nil {
			return err
		}
	}

	level.Info(logger).Log("msg", "done", "files", len(paths), "records", total.Records,
		"rejected", total.Rejected, "truncated", truncated, "lines", total.Lines)
	return nil
}

// inputPaths expands the arguments to the files to parse, in order. "-"
// stands for stdin and is kept as is.
func inputPaths(args []string) ([]string, error) {
	if len(args) == 0 {
		return []string{stdinName}, nil
	}

	var paths []string
	for _, arg := range args {
		if arg == stdinName {
			paths = append(paths, stdinName)
			continue
		}
		matched, err := watcher.Expand([]string{arg})
		if err != nil {
			return nil, err
		}
		paths = append(paths, matched...)
	}
	return paths, nil
}

// parsePath runs one BlockParser over a single file or stdin.
func parsePath(ctx context.Context, stdin io.Reader, path string, s sink.Sink, cfg config.Config, logger log.Logger, m *metrics.Metrics) (pipeline.Summary, error) {
	r := stdin
	if path != stdinName {
		f, err := os.Open(path)
		if err != nil {
			return pipeline.Summary{}, errors.Wrap(err, "opening input")
		}
		defer f.Close()
		r = f
	}

	src := parser.NewReaderSource(r, cfg.Input.BufferSize)
	sum, err := pipeline.Run(ctx, parser.New(src), s, pipeline.Options{
		Strict:    cfg.Parser.Strict,
		Workers:   cfg.Output.Workers,
		QueueSize: cfg.Output.QueueSize,
		Source:    path,
		Logger:    logger,
		Metrics:   m,
	})
	level.Debug(logger).Log("msg", "parsed", "source", path,
		"records", sum.Records, "rejected", sum.Rejected, "truncated", sum.Truncated)
	return sum, err
}
