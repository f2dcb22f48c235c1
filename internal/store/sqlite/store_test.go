package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-historyv1/internal/model"
)

// setupTestStore creates a temporary database with both ends open.
func setupTestStore(t *testing.T) (*Writer, *Reader, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "stock-history-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "bars.db")
	w, err := NewWriter(WriterConfig{DBPath: dbPath})
	require.NoError(t, err)

	r, err := NewReader(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		r.Close()
		w.Close()
		os.RemoveAll(tmpDir)
	}
	return w, r, cleanup
}

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bar(symbol, day string, close float64, volume int64) model.Bar {
	return model.Bar{
		Symbol: symbol,
		Date:   date(day),
		Open:   close - 1,
		High:   close + 2,
		Low:    close - 2,
		Close:  close,
		Volume: &volume,
	}
}

func TestStore_UpsertAndFetch(t *testing.T) {
	w, r, cleanup := setupTestStore(t)
	defer cleanup()

	bars := []model.Bar{
		bar("AAPL", "2025-03-10", 101, 1000),
		bar("AAPL", "2025-03-11", 102, 1100),
		bar("AAPL", "2025-03-12", 103, 1200),
		bar("MSFT", "2025-03-11", 400, 500),
	}
	require.NoError(t, w.UpsertBars(bars))

	got, err := r.FetchBars(context.Background(), "AAPL", date("2025-03-10"), date("2025-03-12"))
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ascending by date, other symbols excluded
	assert.Equal(t, "2025-03-10", got[0].Date.String())
	assert.Equal(t, "2025-03-12", got[2].Date.String())
	for _, b := range got {
		assert.Equal(t, "AAPL", b.Symbol)
	}
	require.NotNil(t, got[1].Volume)
	assert.Equal(t, int64(1100), *got[1].Volume)
}

func TestStore_InclusiveBounds(t *testing.T) {
	w, r, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, w.UpsertBars([]model.Bar{
		bar("AAPL", "2025-03-10", 101, 1),
		bar("AAPL", "2025-03-11", 102, 1),
		bar("AAPL", "2025-03-12", 103, 1),
	}))

	got, err := r.FetchBars(context.Background(), "AAPL", date("2025-03-11"), date("2025-03-11"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 102.0, got[0].Close)
}

func TestStore_UnknownSymbolIsEmptyNotError(t *testing.T) {
	_, r, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := r.FetchBars(context.Background(), "ZZZZ", date("2020-01-01"), date("2030-01-01"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	w, r, cleanup := setupTestStore(t)
	defer cleanup()

	b := bar("AAPL", "2025-03-10", 101, 1000)
	require.NoError(t, w.UpsertBars([]model.Bar{b}))

	// Re-sync the same session with a corrected close
	b.Close = 105
	require.NoError(t, w.UpsertBars([]model.Bar{b}))

	got, err := r.FetchBars(context.Background(), "AAPL", date("2025-03-10"), date("2025-03-10"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 105.0, got[0].Close)
}

func TestStore_NilVolumeRoundTrip(t *testing.T) {
	w, r, cleanup := setupTestStore(t)
	defer cleanup()

	b := model.Bar{Symbol: "AAPL", Date: date("2025-03-10"), Open: 1, High: 2, Low: 0.5, Close: 1.5}
	require.NoError(t, w.UpsertBars([]model.Bar{b}))

	got, err := r.FetchBars(context.Background(), "AAPL", date("2025-03-10"), date("2025-03-10"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Volume)
}

func TestWriter_LastBarDate(t *testing.T) {
	w, _, cleanup := setupTestStore(t)
	defer cleanup()

	_, ok, err := w.LastBarDate("AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.UpsertBars([]model.Bar{
		bar("AAPL", "2025-03-10", 101, 1),
		bar("AAPL", "2025-03-12", 103, 1),
	}))

	d, ok, err := w.LastBarDate("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-12", d.String())
}

func TestReader_CancelledContext(t *testing.T) {
	w, r, cleanup := setupTestStore(t)
	defer cleanup()

	require.NoError(t, w.UpsertBars([]model.Bar{bar("AAPL", "2025-03-10", 101, 1)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.FetchBars(ctx, "AAPL", date("2025-01-01"), date("2025-12-31"))
	assert.Error(t, err)
}
