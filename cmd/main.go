package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/harrowfung/pentagon/internal/api"
	"github.com/harrowfung/pentagon/internal/blobstore"
	"github.com/harrowfung/pentagon/internal/config"
	"github.com/harrowfung/pentagon/internal/logging"
	"github.com/harrowfung/pentagon/internal/metrics"
	"github.com/harrowfung/pentagon/internal/pipeline"
	"github.com/harrowfung/pentagon/internal/sandbox"
)

func main() {
	// main() is also the entry point for the re-exec'd sandbox child:
	// when invoked with the init sentinel it never returns to the
	// server bootstrap below.
	if len(os.Args) > 1 && os.Args[1] == sandbox.InitArg {
		if err := sandbox.RunInit(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logging.Init()
	defer logging.Sync()
	log := logging.L()

	root, err := os.Getwd()
	if err != nil {
		log.Fatal("resolve working directory", zap.Error(err))
	}

	cfg, err := config.Load(root)
	if err != nil {
		log.Fatal("load configuration", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.BaseCodePath, 0o755); err != nil {
		log.Fatal("prepare base_code_path", zap.Error(err), zap.String("path", cfg.BaseCodePath))
	}

	var blobs blobstore.Store
	if cfg.RedisURL != "" {
		store, err := blobstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Warn("redis unreachable, falling back to in-memory blob store", zap.Error(err))
			blobs = blobstore.NewMemoryStore()
		} else {
			blobs = store
			log.Info("blob store connected", zap.String("backend", "redis"))
		}
	} else {
		log.Warn("no redis_url configured, using in-memory blob store")
		blobs = blobstore.NewMemoryStore()
	}
	defer blobs.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	engine := pipeline.New(cfg.BaseCodePath, blobs, m)
	router := api.NewRouter(engine, reg)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal("server error", zap.Error(err))
	case sig := <-quit:
		log.Info("received signal, starting graceful shutdown", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
