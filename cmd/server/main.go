// Package main is the entry point for the Pecule portfolio tracker.
// It wires configuration, databases, provider clients, and the domain
// services, then runs the HTTP server with the background scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"monpecule/internal/clientdata"
	"monpecule/internal/clients/fmp"
	"monpecule/internal/clients/yahoo"
	"monpecule/internal/config"
	"monpecule/internal/database"
	"monpecule/internal/jobs"
	"monpecule/internal/market"
	"monpecule/internal/modules/analysis"
	"monpecule/internal/modules/currency"
	"monpecule/internal/modules/identity"
	"monpecule/internal/modules/monthly"
	"monpecule/internal/modules/positions"
	"monpecule/internal/modules/quotes"
	"monpecule/internal/modules/refresh"
	"monpecule/internal/modules/valuation"
	"monpecule/internal/reliability"
	"monpecule/internal/scheduler"
	"monpecule/internal/server"
	"monpecule/pkg/logger"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("Starting Pecule")

	tables, err := config.LoadMarket(cfg.MarketConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load market tables")
	}

	// Two databases: portfolio state on the standard profile, provider
	// response cache on the cache profile.
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache,
		Name:    "clientdata",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open client data database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{portfolioDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	// Provider clients share the TTL response cache.
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	yahooClient := yahoo.NewClient(cacheRepo, log)

	var secondary market.QuoteProvider
	if cfg.FMPAPIKey != "" {
		secondary = fmp.NewClient(cfg.FMPAPIKey, cacheRepo, log)
	} else {
		log.Warn().Msg("FMP API key not configured, running with a single quote provider")
	}

	normalizer := quotes.NewNormalizer(tables.Overrides, tables.Fragments)
	resolver := quotes.NewResolver(normalizer, yahooClient, secondary, yahooClient, tables, log)

	converter := currency.NewConverter(tables, log)
	engine := valuation.NewEngine(converter, log)

	positionRepo := positions.NewRepository(portfolioDB.Conn(), log)
	identityRepo := identity.NewRepository(portfolioDB.Conn(), log)
	identityService := identity.NewService(identityRepo, log)
	accumulator := monthly.NewAccumulator(portfolioDB.Conn(), log)

	orchestrator := refresh.NewOrchestrator(
		resolver, positionRepo, accumulator, converter, identityRepo, cfg.ProviderDelay, log)

	scorer := analysis.NewScorer(yahooClient, yahooClient, yahooClient, tables.Watchlist, log)
	snapshotRepo := analysis.NewSnapshotRepository(portfolioDB.Conn(), log)
	analysisService := analysis.NewService(scorer, snapshotRepo, positionRepo, tables.Watchlist, log)

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := jobs.NewRunner(baseCtx, log)

	var backupService *reliability.BackupService
	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(
			cfg.Backup.Endpoint, cfg.Backup.Region,
			cfg.Backup.AccessKeyID, cfg.Backup.SecretAccessKey,
			cfg.Backup.Bucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup client")
		}
		backupService = reliability.NewBackupService(s3Client, []reliability.Source{
			{Name: "portfolio", Conn: portfolioDB.Conn()},
			{Name: "client_data", Conn: cacheDB.Conn()},
		}, cfg.DataDir, cfg.Backup.Keep, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backups enabled")
	}

	sched := scheduler.New(runner, log)
	var backupFn func(ctx context.Context) error
	if backupService != nil {
		backupFn = backupService.Run
	}
	err = sched.Register(scheduler.Config{
		RefreshCron: cfg.RefreshCron,
		ResetCron:   cfg.ResetCron,
		BackupCron:  cfg.BackupCron,
	},
		func(ctx context.Context) error {
			_, err := orchestrator.Run(ctx, refresh.Options{Scheduled: true})
			return err
		},
		func(ctx context.Context) error {
			_, err := accumulator.Reset(monthly.MonthKey(time.Now()))
			return err
		},
		backupFn,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register cron entries")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:          log,
		Cfg:          cfg,
		PortfolioDB:  portfolioDB,
		CacheDB:      cacheDB,
		Identity:     identityService,
		IdentityRepo: identityRepo,
		Positions:    positionRepo,
		Resolver:     resolver,
		Valuation:    engine,
		Monthly:      accumulator,
		Refresh:      orchestrator,
		Analysis:     analysisService,
		Jobs:         runner,
		Backup:       backupService,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	// Expired cache rows are swept hourly so the cache database does
	// not grow without bound.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-baseCtx.Done():
				return
			case <-ticker.C:
				if removed, err := cacheRepo.DeleteAllExpired(); err != nil {
					log.Warn().Err(err).Msg("Cache sweep failed")
				} else {
					var total int64
					for _, n := range removed {
						total += n
					}
					if total > 0 {
						log.Debug().Int64("rows", total).Msg("Expired cache rows removed")
					}
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	runner.Shutdown(shutdownGrace)

	log.Info().Msg("Stopped")
}
