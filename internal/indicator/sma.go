// Package indicator provides technical indicator calculations over price
// series.
//
// Indicators here are pure batch transformations: they take an ordered slice
// of values and return a fresh slice of the same length, aligned position by
// position with the input. Positions without enough trailing history are
// marked not-Valid rather than carrying a zero sentinel.
//
// Windows are positional, not calendar-aware: a window of 30 spans 30
// consecutive bars regardless of date gaps between them (weekends, holidays,
// missing sessions).
package indicator

// Value is one position of an indicator series. Valid is false while the
// trailing window has not filled yet.
type Value struct {
	Float64 float64
	Valid   bool
}

// Series is an indicator column aligned index-for-index with its input.
type Series []Value

// SMA computes the simple moving average of values over a trailing window.
// The result has the same length as the input; the first window-1 positions
// are not Valid. A rolling sum keeps the pass O(n).
//
// If len(values) < window (or window < 1), every position is not Valid.
func SMA(values []float64, window int) Series {
	out := make(Series, len(values))
	if window < 1 {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = Value{Float64: sum / float64(window), Valid: true}
		}
	}
	return out
}
