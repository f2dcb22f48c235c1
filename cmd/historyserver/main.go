package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"stock-historyv1/config"
	"stock-historyv1/internal/api"
	"stock-historyv1/internal/history"
	"stock-historyv1/internal/logger"
	"stock-historyv1/internal/metrics"
	redisstore "stock-historyv1/internal/store/redis"
	"stock-historyv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	godotenv.Load()

	cfg := config.Load()
	slogger := logger.Init("historyserver", slog.LevelInfo)

	mets := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	reader, err := sqlite.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[historyserver] sqlite open failed: %v", err)
	}
	defer reader.Close()

	// Redis is an optimization layer: if it's absent or down, queries go
	// straight to SQLite and the sync nudge is skipped.
	var source history.BarSource = reader
	var cache *redisstore.Cache
	if cfg.RedisAddr != "" {
		cache, err = redisstore.NewCache(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.CacheTTL,
		}, reader, mets)
		if err != nil {
			log.Printf("[historyserver] redis unavailable, serving without cache: %v", err)
			cache = nil
		} else {
			source = cache
			defer cache.Close()
		}
	}

	svc := history.NewService(source, cfg.DefaultSymbol, slogger, mets)
	if cache != nil {
		svc.SetSyncNotifier(cache)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rdb *goredis.Client
	if cache != nil {
		rdb = cache.Client()
	}
	health.StartLivenessChecker(ctx, reader.DB(), rdb, 15*time.Second)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(svc, health, mets),
	}
	go func() {
		log.Printf("[historyserver] listening on %s (default symbol %s)", cfg.ListenAddr, cfg.DefaultSymbol)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[historyserver] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("[historyserver] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[historyserver] stopped")
}
