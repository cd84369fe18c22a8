package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rathrio/log-slurping/internal/aggregator"
	"github.com/rathrio/log-slurping/internal/hub"
	"github.com/rathrio/log-slurping/internal/metrics"
	"github.com/rathrio/log-slurping/internal/pipeline"
	"github.com/rathrio/log-slurping/internal/server"
	"github.com/rathrio/log-slurping/internal/sink"
	"github.com/rathrio/log-slurping/internal/tailer"
	"github.com/rathrio/log-slurping/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Follow transmission logs and ship new blocks as they are written",
	Long: `Watch one or more transmission logs (or glob patterns) and write every
completed block to the configured sink. Offsets are checkpointed so a restart
resumes where the previous run stopped.

Examples:
  slurp watch /var/log/dhcp.log
  slurp watch "/var/log/dhcp/**/*.log" --output kafka --topic dhcp
  slurp watch dhcp.log --serve --addr :9090`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	flags := watchCmd.Flags()
	flags.Bool("serve", false, "serve stats, metrics and a live record stream")
	flags.String("addr", ":8080", "listen address for --serve")
	flags.Bool("from-start", false, "read files without a checkpoint from the beginning")
	flags.String("checkpoint", ".slurp-state.json", "file storing read offsets")

	bindFlags(flags.Lookup, map[string]string{
		"server.enabled":   "serve",
		"server.addr":      "addr",
		"input.from_start": "from-start",
		"input.checkpoint": "checkpoint",
	})
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(args, logger)
	if err != nil {
		return err
	}
	if len(w.Paths()) == 0 {
		return errors.Errorf("no files matched the given patterns: %v", args)
	}
	for _, p := range w.Paths() {
		level.Info(logger).Log("msg", "watching", "path", p)
	}

	ckpt, err := tailer.NewCheckpoint(cfg.Input.Checkpoint)
	if err != nil {
		return err
	}
	t := tailer.New(w, ckpt, tailer.Options{FromStart: cfg.Input.FromStart, Logger: logger})

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

	// Offsets advance only once a block has been handed to the sink writers.
	h := hub.New(t.Lines(), pipeline.Options{Strict: cfg.Parser.Strict, Logger: logger, Metrics: m},
		hub.WithCommit(ckpt.Set))
	records := h.SubscribeReliable()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { w.Start(gctx); return nil })
	g.Go(func() error { t.Start(gctx); return nil })
	g.Go(func() error { return h.Start(gctx) })

	// Committed records are still written while shutting down; the writers
	// stop when the hub closes records.
	writeCtx := context.WithoutCancel(gctx)
	for i := 0; i < max(cfg.Output.Workers, 1); i++ {
		g.Go(func() error {
			for r := range records {
				if err := s.Write(writeCtx, r); err != nil {
					return errors.Wrapf(err, "writing record %s", r.ID)
				}
			}
			return nil
		})
	}

	if cfg.Server.Enabled {
		agg := aggregator.New(h.Subscribe(), h.Dropped, h.Sources)
		srv := server.New(h, agg, reg, cfg.Server.Addr, logger)
		g.Go(func() error { agg.Start(gctx); return nil })
		g.Go(func() error { return srv.Start(gctx) })
	}

	err = g.Wait()
	level.Info(logger).Log("msg", "shutting down")
	// Blocks committed after the tailer's last save.
	if serr := ckpt.Save(); serr != nil {
		level.Error(logger).Log("msg", "checkpoint save failed", "err", serr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
