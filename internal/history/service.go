// Package history implements the time-series retrieval and moving-average
// engine: resolving a symbol + lookback into a date range, reading bars from
// the store, computing requested SMA columns and assembling the response.
//
// The pipeline is a single-pass, stateless transformation. Every request
// allocates its own QueryRange, bar slice and indicator series, so concurrent
// queries never share mutable state; the store read is the only operation
// that can block.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"stock-historyv1/internal/indicator"
	"stock-historyv1/internal/logger"
	"stock-historyv1/internal/metrics"
	"stock-historyv1/internal/model"
)

// BarSource is the read side of the price series store. Implementations must
// return bars strictly ordered by ascending date with no duplicate dates; an
// empty slice is a valid, meaningful outcome, not an error.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, start, end civil.Date) ([]model.Bar, error)
}

// SyncNotifier nudges the out-of-band sync collaborator when a query finds
// no stored data for its range. Delivery is best effort and never affects
// the query outcome.
type SyncNotifier interface {
	NotifySyncNeeded(ctx context.Context, symbol string) error
}

// Request carries the raw query inputs before resolution. Years is kept as a
// string on purpose: unparsable values degrade to the default rather than
// erroring.
type Request struct {
	Symbol string
	Years  string
	MA30   bool
	MA60   bool
}

// Service executes history queries end to end: resolve → fetch → compute →
// assemble.
type Service struct {
	source        BarSource
	defaultSymbol string
	log           *slog.Logger
	mets          *metrics.Metrics
	notifier      SyncNotifier
	now           func() time.Time
}

// NewService creates the query service. mets may be nil (no instrumentation,
// used in tests).
func NewService(source BarSource, defaultSymbol string, log *slog.Logger, mets *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		source:        source,
		defaultSymbol: defaultSymbol,
		log:           log,
		mets:          mets,
		now:           time.Now,
	}
}

// Query runs one history query. The only error outcome is a store failure
// (or upstream cancellation surfacing through the store read); an empty
// series is returned as a successful Response with NeedsSync set. A failed
// query never returns a partial response.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	now := s.now()
	qr := Resolve(req.Symbol, req.Years, req.MA30, req.MA60, s.defaultSymbol, now)
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(qr.Symbol, now))

	fetchStart := time.Now()
	bars, err := s.source.FetchBars(ctx, qr.Symbol, qr.Start, qr.End)
	if s.mets != nil {
		s.mets.StoreReadDur.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s [%s..%s]: %w", qr.Symbol, qr.Start, qr.End, err)
	}

	computeStart := time.Now()
	closes := model.Closes(bars)
	seriesByWindow := make(map[int]indicator.Series, len(qr.Windows))
	for _, w := range qr.Windows {
		seriesByWindow[w] = indicator.SMA(closes, w)
	}
	if s.mets != nil {
		s.mets.SMAComputeDur.Observe(time.Since(computeStart).Seconds())
	}

	resp := Assemble(qr, bars, seriesByWindow)
	if resp.NeedsSync {
		attrs := []any{slog.String("symbol", qr.Symbol), slog.Int("years", qr.Years)}
		s.log.Info("no bars in range, sync needed", append(attrs, logger.LogWithTrace(ctx)...)...)
		if s.notifier != nil {
			if err := s.notifier.NotifySyncNeeded(ctx, qr.Symbol); err != nil {
				s.log.Warn("sync notify failed", slog.String("symbol", qr.Symbol), slog.Any("error", err))
			}
		}
	}
	return resp, nil
}

// SetSyncNotifier wires the optional sync nudge (Redis pub/sub in
// production). Must be called before the service starts handling queries.
func (s *Service) SetSyncNotifier(n SyncNotifier) { s.notifier = n }
