package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"

	"github.com/mtlprog/cashin-detector/internal/api"
	"github.com/mtlprog/cashin-detector/internal/blockchain"
	"github.com/mtlprog/cashin-detector/internal/bus"
	"github.com/mtlprog/cashin-detector/internal/config"
	"github.com/mtlprog/cashin-detector/internal/database"
	"github.com/mtlprog/cashin-detector/internal/hotwallet"
	"github.com/mtlprog/cashin-detector/internal/metrics"
	"github.com/mtlprog/cashin-detector/internal/saga"
	"github.com/mtlprog/cashin-detector/internal/scanner"
	"github.com/mtlprog/cashin-detector/internal/wallethistory"
)

// eventBus is what the scanners and the saga publish through.
type eventBus interface {
	saga.CommandSender
	scanner.EventPublisher
}

// application holds the shared components of every command.
type application struct {
	cfg         config.Config
	registry    *prometheus.Registry
	metrics     *metrics.Collector
	pool        *pgxpool.Pool
	wallets     wallethistory.Repository
	blockchains *blockchain.Registry
	publisher   eventBus
	kafka       *bus.Publisher // nil when the bus is disabled
	scanners    map[string]*scanner.Scanner
}

func newApplication(ctx context.Context, cfg config.Config) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &application{cfg: cfg, registry: prometheus.NewRegistry()}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)

	if cfg.DatabaseURL != "" {
		pool, err := connectAndMigrate(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.pool = pool
		app.wallets = wallethistory.NewPgRepository(pool)
	} else {
		slog.Warn("DATABASE_URL not set, wallet history is kept in memory and lost on restart")
		app.wallets = wallethistory.NewMemoryRepository()
	}

	if len(cfg.KafkaBrokers) > 0 {
		app.kafka = bus.NewPublisher(cfg.KafkaBrokers, cfg.CommandsTopic, cfg.DepositEventsTopic)
		app.publisher = app.kafka
	} else {
		slog.Warn("KAFKA_BROKERS not set, commands and detections are only logged")
		app.publisher = bus.LogPublisher{}
	}

	hotWallets := hotwallet.NewRegistry(cfg.HotWallets())
	chains, err := blockchain.NewRegistry(cfg.Blockchains, hotWallets, cfg.APIRetryMax, cfg.APIRetryBaseDelay)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("building blockchain registry: %w", err)
	}
	app.blockchains = chains

	app.scanners = make(map[string]*scanner.Scanner)
	for _, b := range chains.Bundles() {
		app.scanners[b.Type] = scanner.NewScanner(b.Type, b.HotWalletAddress, b.Client, app.publisher, cfg.RequestsBatchSize, app.metrics)
	}

	return app, nil
}

func connectAndMigrate(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	dir, err := migrationsDir()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening migrations: %w", err)
	}
	if _, err := database.RunMigrations(ctx, pool, dir); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (a *application) blockchainInfos() []api.BlockchainInfo {
	return lo.Map(a.blockchains.Bundles(), func(b blockchain.Bundle, _ int) api.BlockchainInfo {
		return api.BlockchainInfo{Type: b.Type, APIURL: b.APIURL, HotWalletAddress: b.HotWalletAddress}
	})
}

func (a *application) apiScanners() map[string]api.Scanner {
	return lo.MapValues(a.scanners, func(s *scanner.Scanner, _ string) api.Scanner { return s })
}

// scanner returns the scanner of an enabled blockchain type.
func (a *application) scanner(blockchainType string) (*scanner.Scanner, error) {
	b, err := a.blockchains.Get(blockchainType)
	if err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}
	return a.scanners[b.Type], nil
}

// checkIntegrations logs the integrations that do not respond. Scanning
// still starts; the worker retries on every tick.
func (a *application) checkIntegrations(ctx context.Context) {
	for _, b := range a.blockchains.Bundles() {
		if err := b.Client.IsAlive(ctx); err != nil {
			slog.Warn("blockchain integration is not reachable", "blockchain", b.Type, "error", err)
		}
	}
}

// close releases the Kafka writer and the database pool.
func (a *application) close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			slog.Warn("closing kafka publisher", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
