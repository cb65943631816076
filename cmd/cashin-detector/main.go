package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/cashin-detector/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:   "cashin-detector",
		Usage:  "detects deposits on blockchain deposit wallets and tracks wallet observation",
		Before: setupLogger,
		Action: runService,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run balance scanners, the wallet lifecycle saga and the operator API",
				Action: runService,
			},
			{
				Name:  "scan-once",
				Usage: "scan the deposit wallets of one blockchain and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "blockchain", Aliases: []string{"b"}, Usage: "blockchain type", Required: true},
				},
				Action: scanOnce,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "export-history",
				Usage: "export wallet history to an XLSX file or Google Sheets",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "xlsx", Usage: "write the export to this XLSX file"},
					&cli.BoolFlag{Name: "sheets", Usage: "write the export to GOOGLE_SPREADSHEET_ID"},
					&cli.StringFlag{Name: "blockchain", Usage: "only export this blockchain type"},
					&cli.StringFlag{Name: "state", Usage: "only export wallets in this state (Started or Stopped)"},
					&cli.IntFlag{Name: "limit", Usage: "maximum number of rows, 0 exports all"},
				},
				Action: exportHistory,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("cashin-detector failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(*cli.Context) error {
	cfg := config.Load()
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "cashin-detector"))
	return nil
}

func migrationsDir() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}
