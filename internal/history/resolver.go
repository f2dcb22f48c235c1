package history

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultYears is the lookback applied when the years parameter is absent
// or unparsable.
const DefaultYears = 1

// SMA windows exposed on the query surface.
const (
	Window30 = 30
	Window60 = 60
)

// QueryRange is the resolved, request-scoped description of one history
// query: canonical symbol, inclusive date bounds, requested SMA windows and
// the effective lookback. It is created per request and discarded after use.
type QueryRange struct {
	Symbol  string
	Start   civil.Date
	End     civil.Date
	Windows []int
	Years   int
}

// Resolve turns raw query inputs into a concrete QueryRange. Resolution
// never fails: the symbol is uppercased (falling back to defaultSymbol when
// absent), an unparsable years degrades to DefaultYears, and the interval is
// [now - years, now] with both bounds inclusive. Unknown symbols are not
// rejected here; they simply yield an empty result downstream.
func Resolve(symbolInput, yearsInput string, ma30, ma60 bool, defaultSymbol string, now time.Time) QueryRange {
	symbol := strings.ToUpper(strings.TrimSpace(symbolInput))
	if symbol == "" {
		symbol = defaultSymbol
	}

	years := DefaultYears
	if n, err := strconv.Atoi(strings.TrimSpace(yearsInput)); err == nil {
		years = n
	}

	var windows []int
	if ma30 {
		windows = append(windows, Window30)
	}
	if ma60 {
		windows = append(windows, Window60)
	}

	return QueryRange{
		Symbol:  symbol,
		Start:   civil.DateOf(now.AddDate(-years, 0, 0)),
		End:     civil.DateOf(now),
		Windows: windows,
		Years:   years,
	}
}
