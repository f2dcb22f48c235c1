package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"stock-historyv1/config"
	"stock-historyv1/internal/logger"
	"stock-historyv1/internal/metrics"
	"stock-historyv1/internal/notification"
	"stock-historyv1/internal/provider"
	redisstore "stock-historyv1/internal/store/redis"
	"stock-historyv1/internal/store/sqlite"
	"stock-historyv1/internal/tradingcal"
)

// worker owns the ingestion dependencies for one process.
type worker struct {
	cfg      *config.Config
	writer   *sqlite.Writer
	client   *provider.Client
	notifier notification.Notifier
	mets     *metrics.Metrics
	log      *slog.Logger
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	godotenv.Load()

	cfg := config.LoadSync()
	slogger := logger.Init("syncworker", slog.LevelInfo)
	mets := metrics.NewMetrics()

	writer, err := sqlite.NewWriter(sqlite.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[syncworker] sqlite open failed: %v", err)
	}
	defer writer.Close()

	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
	}

	w := &worker{
		cfg:    cfg,
		writer: writer,
		client: provider.New(provider.Config{
			RootURL:    cfg.ProviderRootURL,
			APIKey:     cfg.ProviderAPIKey,
			ClientCode: cfg.ProviderClientCode,
			Password:   cfg.ProviderPassword,
			TOTPSecret: cfg.ProviderTOTPSecret,
		}),
		notifier: notifier,
		mets:     mets,
		log:      slogger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.client.Login(ctx); err != nil {
		w.alert(ctx, notification.AlertCritical, "provider login failed", err.Error())
		log.Fatalf("[syncworker] provider login failed: %v", err)
	}
	log.Println("[syncworker] provider session established")

	// Catch up on startup, then follow the schedule.
	w.syncAll(ctx)

	c := cron.New(cron.WithLocation(tradingcal.ET))
	if _, err := c.AddFunc(cfg.SyncSchedule, func() {
		if !tradingcal.IsTradingDay(time.Now()) {
			log.Println("[syncworker] non-trading day, skipping scheduled sync")
			w.mets.SyncRunsTotal.WithLabelValues("skipped").Inc()
			return
		}
		w.syncAll(ctx)
	}); err != nil {
		log.Fatalf("[syncworker] bad SYNC_SCHEDULE %q: %v", cfg.SyncSchedule, err)
	}
	c.Start()
	log.Printf("[syncworker] scheduled %q for symbols %v", cfg.SyncSchedule, cfg.ParseSyncSymbols())

	// On-demand syncs requested by the history server.
	if cfg.RedisAddr != "" {
		go w.listenSyncRequests(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("[syncworker] shutting down...")
	cronCtx := c.Stop()
	<-cronCtx.Done()
	cancel()
	log.Println("[syncworker] stopped")
}

// syncAll runs one ingestion pass over the configured symbols.
func (w *worker) syncAll(ctx context.Context) {
	for _, symbol := range w.cfg.ParseSyncSymbols() {
		if err := w.syncSymbol(ctx, symbol); err != nil {
			log.Printf("[syncworker] sync %s failed: %v", symbol, err)
			w.mets.SyncRunsTotal.WithLabelValues("error").Inc()
			w.alert(ctx, notification.AlertWarning, "bar sync failed", fmt.Sprintf("%s: %v", symbol, err))
			continue
		}
		w.mets.SyncRunsTotal.WithLabelValues("ok").Inc()
	}
}

// syncSymbol backfills bars from the day after the last stored bar (or the
// configured lookback for a new symbol) through today.
func (w *worker) syncSymbol(ctx context.Context, symbol string) error {
	now := time.Now().In(tradingcal.ET)
	to := civil.DateOf(now)

	var from civil.Date
	last, ok, err := w.writer.LastBarDate(symbol)
	if err != nil {
		return err
	}
	if ok {
		from = last.AddDays(1)
	} else {
		from = civil.DateOf(now.AddDate(-w.cfg.SyncYears, 0, 0))
	}
	if from.After(to) {
		w.log.Info("symbol up to date", slog.String("symbol", symbol))
		return nil
	}

	start := time.Now()
	bars, err := w.client.DailyBars(ctx, symbol, from, to)
	w.mets.ProviderReqDur.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(bars) == 0 {
		w.log.Info("no new bars", slog.String("symbol", symbol), slog.String("from", from.String()))
		return nil
	}

	if err := w.writer.UpsertBars(bars); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := w.writer.RecordSyncRun(symbol, len(bars)); err != nil {
		log.Printf("[syncworker] journal warning: %v", err)
	}
	w.mets.BarsIngestedTotal.Add(float64(len(bars)))

	w.log.Info("synced bars",
		slog.String("symbol", symbol),
		slog.Int("bars", len(bars)),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return nil
}

// listenSyncRequests subscribes to the history server's sync nudges and
// ingests the requested symbols on demand.
func (w *worker) listenSyncRequests(ctx context.Context) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     w.cfg.RedisAddr,
		Password: w.cfg.RedisPassword,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[syncworker] redis unavailable, on-demand sync disabled: %v", err)
		return
	}

	pubsub := rdb.Subscribe(ctx, redisstore.SyncRequestChannel)
	defer pubsub.Close()
	log.Printf("[syncworker] subscribed to %s", redisstore.SyncRequestChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			symbol := msg.Payload
			log.Printf("[syncworker] on-demand sync requested for %s", symbol)
			if err := w.syncSymbol(ctx, symbol); err != nil {
				log.Printf("[syncworker] on-demand sync %s failed: %v", symbol, err)
				w.mets.SyncRunsTotal.WithLabelValues("error").Inc()
				continue
			}
			w.mets.SyncRunsTotal.WithLabelValues("ok").Inc()
		}
	}
}

func (w *worker) alert(ctx context.Context, level notification.AlertLevel, title, msg string) {
	if err := w.notifier.Send(ctx, notification.Alert{Level: level, Title: title, Message: msg}); err != nil {
		log.Printf("[syncworker] alert delivery failed: %v", err)
	}
}
