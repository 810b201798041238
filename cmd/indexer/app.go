package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeScope/internal/chain"
	"stakeScope/internal/config"
	"stakeScope/internal/indexer"
	"stakeScope/internal/metrics"
	"stakeScope/internal/model"
	"stakeScope/internal/retry"
	"stakeScope/internal/scheduler"
	"stakeScope/internal/storage"
	"stakeScope/internal/storage/postgres"
	"stakeScope/internal/storage/sqlite"
)

// app holds the wiring shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    storage.Store
	client   *chain.Client
	gateway  *chain.Gateway

	indexers   map[model.Stream]*indexer.RangeIndexer
	schedulers map[model.Stream]*scheduler.Scheduler
}

func loadApp(ctx context.Context, cmd *cobra.Command, withChain bool) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	if withChain {
		if err := cfg.ValidateChain(); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		metrics:    metrics.New(registry),
		indexers:   make(map[model.Stream]*indexer.RangeIndexer),
		schedulers: make(map[model.Stream]*scheduler.Scheduler),
	}

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if withChain {
		if err := a.connectChain(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	}
}

func (a *app) connectChain(ctx context.Context) error {
	client, err := chain.NewClient(ctx, a.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client

	policy := retry.NewPolicy(retry.Config{
		MaxRetries:          a.cfg.MaxRetries,
		BaseDelay:           a.cfg.RetryBaseDelay,
		MaxDelay:            a.cfg.RetryMaxDelay,
		Multiplier:          a.cfg.RetryMultiplier,
		RateLimitMultiplier: a.cfg.RateLimitMultiplier,
	}, retry.DefaultClassifier(), a.logger.Named("retry"), retry.WithObserver(func(op string, kind retry.Kind) {
		a.metrics.ObserveRetry(op, kind.String())
	}))
	a.gateway = chain.NewGateway(client, policy, a.cfg.RPCTimeout, a.metrics)

	podAddress, err := indexer.ParseAddress(a.cfg.PodManagerAddress)
	if err != nil {
		return fmt.Errorf("pod manager address: %w", err)
	}
	depositAddress, err := indexer.ParseAddress(a.cfg.DepositContractAddress)
	if err != nil {
		return fmt.Errorf("deposit contract address: %w", err)
	}

	podStream, err := indexer.NewPodStream(podAddress, model.DeploymentBlockConfig{
		Name:           "EigenPodManager",
		KnownBlock:     a.cfg.PodKnownBlock,
		FallbackOffset: a.cfg.FallbackBlockOffset,
	}, a.gateway, a.store)
	if err != nil {
		return err
	}
	depositStream, err := indexer.NewDepositStream(depositAddress, model.DeploymentBlockConfig{
		Name:           "DepositContract",
		KnownBlock:     a.cfg.DepositKnownBlock,
		FallbackOffset: a.cfg.FallbackBlockOffset,
	}, a.gateway, a.store)
	if err != nil {
		return err
	}

	resolver := indexer.NewDeploymentResolver(a.gateway, a.logger)
	for _, stream := range []indexer.Stream{podStream, depositStream} {
		idx, err := indexer.New(stream, a.gateway, a.store, resolver, indexer.Config{BatchSize: a.cfg.BatchSize}, a.logger, a.metrics)
		if err != nil {
			return err
		}
		a.indexers[stream.Name()] = idx
		a.schedulers[stream.Name()] = scheduler.New(idx, a.logger, a.metrics)
	}
	return nil
}

// selected returns the schedulers for name; an empty name selects every stream.
func (a *app) selected(name string) ([]*scheduler.Scheduler, error) {
	if name == "" {
		out := make([]*scheduler.Scheduler, 0, len(a.schedulers))
		for _, stream := range model.Streams() {
			out = append(out, a.schedulers[stream])
		}
		return out, nil
	}
	stream, err := model.ParseStream(name)
	if err != nil {
		return nil, err
	}
	return []*scheduler.Scheduler{a.schedulers[stream]}, nil
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
