package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concord/internal/bot"
	"concord/internal/config"
	"concord/internal/storage"

	"go.uber.org/zap"
)

func main() {
	runType := flag.String("type", "bot", "process role: bot or worker")
	splitLogic := flag.Bool("split_logic_bot", false, "run commands only; a separate worker process handles refreshes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var opts bot.Options
	switch *runType {
	case "bot":
		opts = bot.Options{EnableCommands: true, EnableWorker: !*splitLogic}
	case "worker":
		opts = bot.Options{EnableCommands: false, EnableWorker: true}
	default:
		logger.Fatal("unknown --type", zap.String("type", *runType))
	}

	store, err := storage.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	botSvc, err := bot.New(cfg, store, logger, opts)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	if err := botSvc.Start(runCtx); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("started", zap.String("type", *runType), zap.Bool("split_logic_bot", *splitLogic))

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	if err := botSvc.Stop(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
