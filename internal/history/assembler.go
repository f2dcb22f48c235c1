package history

import (
	"fmt"

	"stock-historyv1/internal/indicator"
	"stock-historyv1/internal/model"
)

// Assemble joins the fetched bars with their computed indicator columns into
// the response shape. Bars arrive already ordered and de-duplicated by the
// store; assembly consumes that order as given.
//
// Each series in seriesByWindow must be the same length as bars (they are
// built from the same sequence); a mismatch is a caller bug.
func Assemble(qr QueryRange, bars []model.Bar, seriesByWindow map[int]indicator.Series) *Response {
	if len(bars) == 0 {
		return &Response{
			Data:      []Record{},
			Message:   fmt.Sprintf("no historical data stored for %s in the last %d year(s); trigger a sync to backfill bars", qr.Symbol, qr.Years),
			NeedsSync: true,
		}
	}

	data := make([]Record, len(bars))
	for i, b := range bars {
		rec := Record{
			Symbol: qr.Symbol,
			Date:   b.Date.String(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		for window, series := range seriesByWindow {
			v := series[i]
			if !v.Valid {
				continue
			}
			val := v.Float64
			switch window {
			case Window30:
				rec.MA30 = &val
			case Window60:
				rec.MA60 = &val
			}
		}
		data[i] = rec
	}

	return &Response{
		Data: data,
		Stats: &Stats{
			TotalRecords: len(data),
			StartDate:    data[0].Date,
			EndDate:      data[len(data)-1].Date,
			Years:        qr.Years,
		},
	}
}
