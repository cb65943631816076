package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/cashin-detector/internal/api"
	"github.com/mtlprog/cashin-detector/internal/blockchainapi"
	"github.com/mtlprog/cashin-detector/internal/bus"
	"github.com/mtlprog/cashin-detector/internal/chaos"
	"github.com/mtlprog/cashin-detector/internal/config"
	"github.com/mtlprog/cashin-detector/internal/database"
	"github.com/mtlprog/cashin-detector/internal/domain"
	"github.com/mtlprog/cashin-detector/internal/export"
	"github.com/mtlprog/cashin-detector/internal/lease"
	"github.com/mtlprog/cashin-detector/internal/saga"
	"github.com/mtlprog/cashin-detector/internal/wallethistory"
	"github.com/mtlprog/cashin-detector/internal/worker"
)

const scanLeasePrefix = "cashin-detector:scan"

func runService(c *cli.Context) error {
	ctx, stop := context.WithCancel(c.Context)
	defer stop()

	cfg := config.Load()
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if len(app.scanners) == 0 {
		slog.Warn("no enabled blockchains configured, balance scanning is idle")
	}
	app.checkIntegrations(ctx)

	var locker lease.Locker = lease.NopLocker{}
	if cfg.RedisAddr != "" {
		client, err := lease.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer closeRedis(client)
		locker = lease.NewRedisLocker(client, scanLeasePrefix)
	}

	var wg sync.WaitGroup
	for _, s := range app.scanners {
		w := worker.NewScanWorker(s, cfg.MonitoringPeriod, cfg.ShutdownGracePeriod, locker)
		wg.Go(func() { w.Run(ctx) })
	}

	injector, err := chaos.New(cfg.ChaosStateOfChaos, cfg.ChaosSeed)
	if err != nil {
		return err
	}
	if _, ok := injector.(chaos.Nop); !ok {
		slog.Warn("chaos enabled, wallet lifecycle events will fail deliberately",
			"state_of_chaos", cfg.ChaosStateOfChaos)
	}
	walletSaga := saga.New(app.wallets, app.publisher, injector, app.metrics, saga.Options{
		RearmStoppedWallets: cfg.RearmStoppedWallets,
	})

	if app.kafka != nil {
		dispatcher := bus.NewDispatcher()
		walletSaga.Register(dispatcher)

		consumer := bus.NewConsumer(bus.ConsumerConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.KafkaConsumerGroup,
			Topic:           cfg.WalletEventsTopic,
			DeadLetterTopic: cfg.DeadLetterTopic,
			MaxAttempts:     cfg.BusMaxAttempts,
		}, dispatcher, app.kafka)
		defer func() {
			if err := consumer.Close(); err != nil {
				slog.Warn("closing kafka consumer", "error", err)
			}
		}()

		wg.Go(func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("wallet events consumer stopped", "error", err)
				stop()
			}
		})
	} else {
		slog.Warn("wallet lifecycle events are not consumed without KAFKA_BROKERS")
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, scan endpoint is unprotected")
	}

	handler := api.NewHandler(app.wallets, app.blockchainInfos(), app.apiScanners())
	srv := api.NewServer(cfg.HTTPPort, handler, promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}), cfg.AdminAPIKey)

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down", "grace", cfg.ShutdownGracePeriod)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	wg.Wait()
	slog.Info("shutdown complete")
	return nil
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		slog.Warn("closing redis client", "error", err)
	}
}

func scanOnce(c *cli.Context) error {
	app, err := newApplication(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer app.close()

	s, err := app.scanner(c.String("blockchain"))
	if err != nil {
		return err
	}

	result, err := s.Scan(c.Context)
	var skipped *blockchainapi.SkippedEntriesError
	if err != nil && !errors.As(err, &skipped) {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func migrate(c *cli.Context) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	dir, err := migrationsDir()
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	n, err := database.RunMigrations(c.Context, pool, dir)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "applied", n)
	return nil
}

func exportHistory(c *cli.Context) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	var writer export.SheetWriter
	switch {
	case c.String("xlsx") != "":
		writer = export.NewXLSXWriter(c.String("xlsx"))
	case c.Bool("sheets"):
		if cfg.GoogleSpreadsheetID == "" || cfg.GoogleCredentialsJSON == "" {
			return errors.New("GOOGLE_SPREADSHEET_ID and GOOGLE_CREDENTIALS_JSON are required for --sheets")
		}
		w, err := export.NewSheetsWriter(c.Context, cfg.GoogleSpreadsheetID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return err
		}
		writer = w
	default:
		return errors.New("one of --xlsx or --sheets is required")
	}

	pool, err := connectAndMigrate(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	filter := wallethistory.Filter{
		BlockchainType: c.String("blockchain"),
		State:          domain.WalletHistoryState(c.String("state")),
		Limit:          c.Int("limit"),
	}
	_, err = export.NewService(wallethistory.NewPgRepository(pool), writer).Export(c.Context, filter)
	return err
}
