package model

import (
	"encoding/json"

	"cloud.google.com/go/civil"
)

// Bar represents one daily OHLCV observation for a single symbol.
// Date is a timezone-naive calendar date; there is at most one bar
// per (symbol, date). Price relationships (low ≤ open,close ≤ high)
// are expected of well-formed data but passed through as stored.
type Bar struct {
	Symbol string     `json:"symbol"`
	Date   civil.Date `json:"date"`
	Open   float64    `json:"open"`
	High   float64    `json:"high"`
	Low    float64    `json:"low"`
	Close  float64    `json:"close"`
	Volume *int64     `json:"volume,omitempty"` // nil when the session volume is unknown
}

// Key returns a unique key for this bar: "symbol:date".
func (b *Bar) Key() string {
	return b.Symbol + ":" + b.Date.String()
}

// JSON returns the JSON-encoded bar (ignoring errors for cache usage).
func (b *Bar) JSON() []byte {
	buf, _ := json.Marshal(b)
	return buf
}

// Closes extracts the closing prices from an ordered bar sequence,
// preserving order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
