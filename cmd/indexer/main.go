package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"stakeScope/internal/analytics"
	"stakeScope/internal/api"
	"stakeScope/internal/indexer"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "EigenLayer pod and beacon deposit indexer",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "Ethereum RPC URL")
	flags.Duration("rpc-timeout", 30*time.Second, "per-call RPC timeout")
	flags.String("storage", "sqlite", "storage engine (postgres, sqlite)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("sqlite-path", "./data/stakescope.db", "SQLite database path")
	flags.String("pod-manager-address", "0x91E677b07F7AF907ec9a428aafA9fc14a0d3A338", "EigenPodManager address")
	flags.String("deposit-contract-address", "0x00000000219ab540356cBB839Cbe05303d7705Fa", "beacon deposit contract address")
	flags.Uint64("pod-known-block", 0, "known EigenPodManager deployment block, 0 means search")
	flags.Uint64("deposit-known-block", 11052984, "known deposit contract deployment block, 0 means search")
	flags.Uint64("fallback-block-offset", 50000, "blocks below head to start from when no deployment is found, 0 disables")
	flags.Uint64("batch-size", 500, "blocks per batch")
	flags.Int("max-retries", 5, "maximum attempts per RPC call")
	flags.Duration("retry-base-delay", 500*time.Millisecond, "initial retry backoff")
	flags.Duration("retry-max-delay", 30*time.Second, "maximum retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run both stream schedules, the summary refresher and the HTTP API",
		RunE:  runStart,
	}
	startCmd.Flags().String("interval", "1m", "indexing interval (duration or @every <duration>)")
	startCmd.Flags().String("refresh-interval", "1m", "summary refresh interval")
	startCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	root.AddCommand(startCmd)

	runOnceCmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run one incremental pass",
		RunE:  runOnce,
	}
	runOnceCmd.Flags().String("stream", "", "stream to index (pod, deposit), empty means both")
	root.AddCommand(runOnceCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Index an explicit block range",
		RunE:  runBackfill,
	}
	backfillCmd.Flags().String("stream", "", "stream to backfill (pod, deposit)")
	backfillCmd.Flags().Uint64("from", 0, "start block (inclusive), 0 means deployment block")
	backfillCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	_ = backfillCmd.MarkFlagRequired("stream")
	root.AddCommand(backfillCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print cursor position and lag per stream",
		RunE:  runStatus,
	}
	root.AddCommand(statusCmd)

	deploymentCmd := &cobra.Command{
		Use:   "deployment-block",
		Short: "Resolve the deployment block of a stream's contract",
		RunE:  runDeploymentBlock,
	}
	deploymentCmd.Flags().String("stream", "", "stream (pod, deposit), empty means both")
	root.AddCommand(deploymentCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh-view",
		Short: "Rebuild the per-block deposit summary",
		RunE:  runRefreshView,
	}
	root.AddCommand(refreshCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored events of a block range to JSONL",
		RunE:  runExport,
	}
	exportCmd.Flags().String("stream", "", "stream to export (pod, deposit)")
	exportCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	exportCmd.Flags().Uint64("to", 0, "end block (inclusive)")
	exportCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path")
	_ = exportCmd.MarkFlagRequired("stream")
	_ = exportCmd.MarkFlagRequired("to")
	root.AddCommand(exportCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	refresher := analytics.NewRefresher(a.store, a.store, a.logger, a.metrics)
	if err := refresher.Start(ctx, a.cfg.RefreshInterval); err != nil {
		return err
	}
	defer refresher.Stop()

	schedulers, _ := a.selected("")
	for _, sched := range schedulers {
		if err := sched.Start(ctx, a.cfg.Interval); err != nil {
			return err
		}
		defer sched.Stop()
	}

	server := api.NewServer(api.Options{
		Addr:       a.cfg.HTTPAddr,
		Store:      a.store,
		Analytics:  analytics.NewService(a.store),
		Refresher:  refresher,
		Schedulers: schedulers,
		Gatherer:   a.registry,
	}, a.logger)

	a.logger.Info("indexer start",
		zap.String("storage", a.cfg.Storage),
		zap.Duration("interval", a.cfg.Interval),
		zap.Duration("refresh_interval", a.cfg.RefreshInterval),
		zap.Uint64("batch_size", a.cfg.BatchSize),
		zap.String("http_addr", a.cfg.HTTPAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		return server.Stop(context.Background())
	})
	return g.Wait()
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	name, _ := cmd.Flags().GetString("stream")
	schedulers, err := a.selected(name)
	if err != nil {
		return err
	}

	results := make(map[model.Stream]indexer.Result, len(schedulers))
	var errs []error
	for _, sched := range schedulers {
		res, err := sched.RunOnce(ctx)
		stream := sched.Status().Stream
		if err != nil {
			a.logger.Error("pass failed", zap.String("stream", string(stream)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", stream, err))
			continue
		}
		results[stream] = res
	}
	if err := printJSON(results); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	name, _ := cmd.Flags().GetString("stream")
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")
	schedulers, err := a.selected(name)
	if err != nil {
		return err
	}

	a.logger.Info("backfill start", zap.String("stream", name), zap.Uint64("from", from), zap.Uint64("to", to))
	res, err := schedulers[0].Backfill(ctx, from, to)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", name, err)
	}
	return printJSON(res)
}

type streamStatus struct {
	indexer.Progress
	DeploymentBlock *uint64 `json:"deployment_block,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	out := make([]streamStatus, 0, len(a.indexers))
	for _, stream := range model.Streams() {
		progress, err := a.indexers[stream].Progress(ctx)
		if err != nil {
			return fmt.Errorf("%s progress: %w", stream, err)
		}
		status := streamStatus{Progress: progress}
		if block, err := a.indexers[stream].DeploymentBlock(ctx); err != nil {
			a.logger.Warn("deployment block unavailable", zap.String("stream", string(stream)), zap.Error(err))
		} else {
			status.DeploymentBlock = &block
		}
		out = append(out, status)
	}
	return printJSON(out)
}

func runDeploymentBlock(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	name, _ := cmd.Flags().GetString("stream")
	streams := model.Streams()
	if name != "" {
		stream, err := model.ParseStream(name)
		if err != nil {
			return err
		}
		streams = []model.Stream{stream}
	}

	out := make(map[model.Stream]uint64, len(streams))
	for _, stream := range streams {
		block, err := a.indexers[stream].DeploymentBlock(ctx)
		if err != nil {
			return fmt.Errorf("%s deployment block: %w", stream, err)
		}
		out[stream] = block
	}
	return printJSON(out)
}

func runRefreshView(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := analytics.NewRefresher(a.store, a.store, a.logger, a.metrics).Refresh(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	name, _ := cmd.Flags().GetString("stream")
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")
	out, _ := cmd.Flags().GetString("out")
	stream, err := model.ParseStream(name)
	if err != nil {
		return err
	}
	if from > to {
		return fmt.Errorf("from block %d is after to block %d", from, to)
	}

	exporter := storage.NewJsonlExporter(out)
	count := 0
	switch stream {
	case model.StreamPod:
		events, err := a.store.PodDeployedInRange(ctx, from, to)
		if err != nil {
			return err
		}
		count = len(events)
		if err := exporter.WritePods(events); err != nil {
			return err
		}
	case model.StreamDeposit:
		events, err := a.store.StakedDepositsInRange(ctx, from, to)
		if err != nil {
			return err
		}
		count = len(events)
		if err := exporter.WriteDeposits(events); err != nil {
			return err
		}
	}

	a.logger.Info("export complete", zap.String("stream", name), zap.Int("events", count), zap.String("out", out))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
