package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/g960059/boardd/internal/app"
	"github.com/g960059/boardd/internal/config"
	"github.com/g960059/boardd/internal/daemon"
	"github.com/g960059/boardd/internal/eventlog"
)

func main() {
	cfg := config.DefaultConfig()
	flag.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "UDS path for boardd")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite event log path")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "event log backend: sqlite or badger")
	flag.StringVar(&cfg.BadgerDir, "badger-dir", cfg.BadgerDir, "badger data directory")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotate daemon log to this file instead of stderr")
	flag.Int64Var(&cfg.SnapshotEvery, "snapshot-every", cfg.SnapshotEvery, "board snapshot interval in events")
	flag.Parse()

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer store.Close() //nolint:errcheck

	boardApp := app.NewWithOptions(store, app.Options{SnapshotEvery: cfg.SnapshotEvery})
	srv := daemon.NewServer(cfg, boardApp)
	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (eventlog.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return eventlog.OpenSQLite(ctx, cfg.DBPath)
	case config.BackendBadger:
		return eventlog.OpenBadger(eventlog.BadgerOptions{Dir: cfg.BadgerDir})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "boardd: %v\n", err)
	os.Exit(1)
}
