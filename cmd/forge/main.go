// Command forge runs the job orchestration engine: it loads
// configuration, opens the persistence adapter, loads native
// extensions, builds the boundary service (StartJob, ContinueJob,
// ReadJobRecord, SaveJob, SaveEnvironment), and stays resident until
// asked to stop. It opens no network listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/forge/internal/boundary"
	"github.com/ternarybob/forge/internal/common"
	"github.com/ternarybob/forge/internal/compose"
	"github.com/ternarybob/forge/internal/extension"
	"github.com/ternarybob/forge/internal/objectstore"
	"github.com/ternarybob/forge/internal/runner"
	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/internal/templater"
	"github.com/ternarybob/forge/internal/workers"
)

// configPaths accumulates repeated -config/-c flags in the order given.
type configPaths []string

func (c *configPaths) String() string {
	return strings.Join(*c, ",")
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   int
	serverPortP  int
	serverHost   string
	showVersion  bool
	showVersionV bool
)

func init() {
	flag.Var(&configFiles, "config", "path to a TOML config file (repeatable)")
	flag.Var(&configFiles, "c", "shorthand for -config")
	flag.IntVar(&serverPort, "port", 0, "override server.port")
	flag.IntVar(&serverPortP, "p", 0, "shorthand for -port")
	flag.StringVar(&serverHost, "host", "", "override server.host")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.BoolVar(&showVersionV, "v", false, "shorthand for -version")
}

func main() {
	flag.Parse()

	if showVersion || showVersionV {
		fmt.Println(common.GetFullVersion())
		return
	}

	finalPort := serverPort
	if finalPort == 0 {
		finalPort = serverPortP
	}

	if len(configFiles) == 0 {
		for _, candidate := range []string{"forge.toml", "deployments/local/forge.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				configFiles = append(configFiles, candidate)
			}
		}
	}

	cfg, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forge: loading configuration: %v\n", err)
		os.Exit(1)
	}
	common.ApplyFlagOverrides(cfg, finalPort, serverHost)

	common.InstallCrashHandler(cfg.Jobs.LogStagingDir)
	defer common.RecoverWithCrashFile()

	logger := common.SetupLogger(cfg)
	common.PrintBanner(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}

	if err := db.Migrate(ctx, cfg.Storage.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	cachedDB, err := store.NewCachingStore(db, cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize schema cache")
	}
	defer cachedDB.Close()

	registry := extension.NewRegistry(logger)
	if err := registry.Load(cfg.Extensions.Dir); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load extensions")
	}

	objects, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	pool := workers.NewPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, logger)
	pool.Start()
	defer pool.Shutdown()

	templateEngine := templater.New()
	host := extension.NewHost(registry, pool, objects, templateEngine, logger)

	composer := compose.New(cachedDB, registry, host)
	executor := runner.NewExecutor(host, db, cfg.Jobs.LogStagingDir, logger)
	coordinator := runner.New(composer, db, executor, logger)

	common.SafeGoWithContext(ctx, logger, "goroutine-diagnostics", func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Debug().Int64("goroutines", common.GetGoroutineCount()).
					Msg("Background goroutine fan-out (run drivers, extension futures)")
			}
		}
	})

	recovered, err := coordinator.RecoverInterrupted(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to recover interrupted runs")
	} else if recovered > 0 {
		logger.Warn().Int("count", recovered).Msg("Recovered interrupted runs by marking them failed")
	}

	// service is the transport-agnostic public surface (§6); HTTP/RPC
	// transport sits in front of it and is out of scope here, so this
	// process keeps it resident for an in-process embedder rather than
	// serving it directly.
	service := boundary.New(db, cachedDB, db, registry, host, coordinator)

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Int("extensions", len(registry.List())).
		Msg("Forge ready - Press Ctrl+C to stop")

	<-ctx.Done()

	common.PrintShutdownBanner(logger)
	_ = service

	common.Stop()
}
