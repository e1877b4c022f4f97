// Command resolver merges balance conflict copies once and exits.
//
//	resolver            merge, archive copies, write the status file
//	resolver dry-run    report what would change, write nothing
//
// Output goes to stdout and is appended to DATA_DIR/logs/conflict-resolver.log.
// The exit status is 1 when the run reported errors, so cron mails the operator.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/clickforcharity/internal/config"
	"github.com/sakif/clickforcharity/internal/repository"
	"github.com/sakif/clickforcharity/internal/repository/filestore"
	sqliteRepo "github.com/sakif/clickforcharity/internal/repository/sqlite"
	"github.com/sakif/clickforcharity/internal/resolver"
	"github.com/sakif/clickforcharity/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	dryRun := false
	for _, a := range args {
		switch a {
		case "dry-run", "--dry-run":
			dryRun = true
		default:
			fmt.Fprintf(os.Stderr, "usage: resolver [dry-run]\n")
			return 2
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolver: %v\n", err)
		return 1
	}

	logFile, err := resolver.OpenLogFile(cfg.ResolverLogFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolver: %v\n", err)
		return 1
	}
	defer logFile.Close()

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("opening data dir", slog.String("error", err.Error()))
		return 1
	}

	var (
		balances  repository.BalanceRepository = store
		recorders                              = []repository.RunRecorder{store}
	)
	if cfg.BalanceBackend == config.BackendSQLite {
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			logger.Error("opening database", slog.String("error", err.Error()))
			return 1
		}
		defer db.Close()
		balances = db
		recorders = append(recorders, db)
	}

	notifier, err := server.NewNotifier(cfg, logger)
	if err != nil {
		logger.Error("creating notifier", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := resolver.New(store, balances, logger,
		resolver.WithRecorders(recorders...),
		resolver.WithNotifier(notifier),
		resolver.WithTxCap(cfg.TxCap),
	)
	status, err := res.Run(ctx, dryRun)
	if err != nil {
		logger.Error("conflict resolution failed", slog.String("error", err.Error()))
		return 1
	}
	if !status.Success {
		return 1
	}
	return 0
}
