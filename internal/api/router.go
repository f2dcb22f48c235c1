// Package api provides the HTTP query surface of the history service.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"stock-historyv1/internal/history"
	"stock-historyv1/internal/metrics"
)

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// NewRouter sets up HTTP routes for the history server. health may be nil
// (no /healthz on this listener); mets may be nil.
func NewRouter(svc *history.Service, health http.Handler, mets *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	// GET /api/history?symbol=AAPL&years=2&ma30=true&ma60=true
	//
	// The flag literal "true" enables a window; anything else disables it.
	// Malformed years degrades to the default instead of erroring, so the
	// only failure mode here is a store failure (500).
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(map[string]string{"error": "GET only"})
			return
		}

		q := r.URL.Query()
		req := history.Request{
			Symbol: q.Get("symbol"),
			Years:  q.Get("years"),
			MA30:   q.Get("ma30") == "true",
			MA60:   q.Get("ma60") == "true",
		}

		start := time.Now()
		resp, err := svc.Query(r.Context(), req)
		if mets != nil {
			mets.QueryDur.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if mets != nil {
				mets.QueriesTotal.WithLabelValues("error").Inc()
			}
			log.Printf("[api] history query failed: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "failed to load price history"})
			return
		}

		if mets != nil {
			outcome := "ok"
			if resp.NeedsSync {
				outcome = "empty"
			}
			mets.QueriesTotal.WithLabelValues(outcome).Inc()
		}
		json.NewEncoder(w).Encode(resp)
	})

	if health != nil {
		mux.Handle("/healthz", health)
	}

	return mux
}
