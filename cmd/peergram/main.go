package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/peergramhq/peergram/pkg/app"
	"github.com/peergramhq/peergram/pkg/catalog"
	"github.com/peergramhq/peergram/pkg/config"
	"github.com/peergramhq/peergram/pkg/gateway"
	"github.com/peergramhq/peergram/pkg/ledger"
	"github.com/peergramhq/peergram/pkg/logging"
	"github.com/peergramhq/peergram/pkg/state"
	"github.com/peergramhq/peergram/pkg/storage"
)

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if flags.listenAddr != "" {
		cfg.Gateway.ListenAddr = flags.listenAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewColoredLogger(logging.ComponentApp, cfg.Logging.EnableColors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.NewStore()

	// A ledger node that cannot be reached is an advisory condition, not a
	// startup failure: the client runs with ledger features disabled.
	var provider app.Provider
	var ledgerProvider *ledger.Provider
	if p, err := ledger.Dial(ctx, ledger.Config{
		RPCURL:         cfg.Ledger.RPCURL,
		PrivateKey:     cfg.Ledger.PrivateKey,
		RequestTimeout: cfg.Ledger.RequestTimeout,
	}, logger.Logger); err != nil {
		logger.ComponentWarn(logging.ComponentLedger, "ledger node unavailable", zap.Error(err))
	} else {
		ledgerProvider = p
		provider = p
		defer p.Close()
	}

	deployments, err := ledger.ParseDeployments(cfg.Registry.Deployments)
	if err != nil {
		logger.ComponentError(logging.ComponentLedger, "invalid registry deployments", zap.Error(err))
		os.Exit(1)
	}

	storageClient, err := storage.NewClient(storage.Config{
		ClusterAPIURL: cfg.Storage.ClusterAPIURL,
		APIURL:        cfg.Storage.APIURL,
		Timeout:       cfg.Storage.Timeout,
	}, logger.Logger)
	if err != nil {
		logger.ComponentError(logging.ComponentStorage, "failed to create storage client", zap.Error(err))
		os.Exit(1)
	}

	var cache *catalog.Cache
	if cfg.Cache.Enabled {
		cache, err = catalog.OpenCache(cfg.Cache.Path, logger.Logger)
		if err != nil {
			logger.ComponentWarn(logging.ComponentCatalog, "catalog cache disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	resolve := func(network, identity string) (app.Registry, bool, error) {
		address, ok := deployments.Resolve(network)
		if !ok {
			return nil, false, nil
		}
		registry, err := ledger.NewRegistry(ledgerProvider, address, identity, logger.Logger)
		if err != nil {
			return nil, false, err
		}
		return registry, true, nil
	}

	application, err := app.New(app.Options{
		Provider:                 provider,
		ResolveRegistry:          resolve,
		Storage:                  storageClient,
		Store:                    store,
		Cache:                    cache,
		Logger:                   logger,
		FetchConcurrency:         cfg.Registry.FetchConcurrency,
		LegacyBusyOnStoreFailure: cfg.Registry.LegacyBusyOnStoreFailure,
	})
	if err != nil {
		logger.ComponentError(logging.ComponentApp, "failed to create application", zap.Error(err))
		os.Exit(1)
	}

	// Startup runs in the background so the gateway serves the loading state
	// immediately; the busy flag clears when the sequence finishes.
	go func() {
		if err := application.Start(ctx); err != nil {
			logger.ComponentError(logging.ComponentApp, "startup sequence failed", zap.Error(err))
		}
	}()

	g, err := gateway.New(application, cfg.Gateway.ListenAddr, logger)
	if err != nil {
		logger.ComponentError(logging.ComponentGateway, "failed to create gateway", zap.Error(err))
		os.Exit(1)
	}

	if err := g.Start(ctx); err != nil {
		logger.ComponentError(logging.ComponentGateway, "gateway failed", zap.Error(err))
		os.Exit(1)
	}
}
