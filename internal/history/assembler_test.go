package history

import (
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-historyv1/internal/indicator"
	"stock-historyv1/internal/model"
)

func testBars(closes ...float64) []model.Bar {
	d := civil.Date{Year: 2025, Month: 6, Day: 2}
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Symbol: "AAPL", Date: d, Open: c, High: c, Low: c, Close: c}
		d = d.AddDays(1)
	}
	return bars
}

func TestAssemble_EmptyBars(t *testing.T) {
	qr := QueryRange{Symbol: "NEWCO", Years: 2}
	resp := Assemble(qr, nil, nil)

	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
	assert.True(t, resp.NeedsSync)
	assert.Contains(t, resp.Message, "NEWCO")
	assert.Nil(t, resp.Stats)

	// Shape check: data must serialize as [], not null
	buf, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"data":[]`)
	assert.Contains(t, string(buf), `"needsSync":true`)
}

func TestAssemble_JoinsIndicatorColumns(t *testing.T) {
	bars := testBars(10, 20, 30)
	qr := QueryRange{Symbol: "AAPL", Years: 1, Windows: []int{Window30}}
	series := map[int]indicator.Series{
		// window 2 over closes 10,20,30: absent, 15, 25 — mapped to ma30
		// for the join (the window key drives the column, not the math here)
		Window30: indicator.SMA(model.Closes(bars), 2),
	}

	resp := Assemble(qr, bars, series)
	require.Len(t, resp.Data, 3)

	assert.Nil(t, resp.Data[0].MA30)
	require.NotNil(t, resp.Data[1].MA30)
	require.NotNil(t, resp.Data[2].MA30)
	assert.InDelta(t, 15, *resp.Data[1].MA30, 1e-9)
	assert.InDelta(t, 25, *resp.Data[2].MA30, 1e-9)
	for _, row := range resp.Data {
		assert.Nil(t, row.MA60)
	}
}

func TestAssemble_StatsDerivedFromData(t *testing.T) {
	bars := testBars(1, 2, 3, 4)
	qr := QueryRange{Symbol: "AAPL", Years: 5}
	resp := Assemble(qr, bars, nil)

	require.NotNil(t, resp.Stats)
	assert.Equal(t, len(resp.Data), resp.Stats.TotalRecords)
	assert.Equal(t, resp.Data[0].Date, resp.Stats.StartDate)
	assert.Equal(t, resp.Data[len(resp.Data)-1].Date, resp.Stats.EndDate)
	assert.Equal(t, 5, resp.Stats.Years)
	assert.False(t, resp.NeedsSync)
	assert.Empty(t, resp.Message)
}

func TestAssemble_VolumeOmittedWhenUnknown(t *testing.T) {
	bars := testBars(10)
	v := int64(12345)
	bars[0].Volume = &v
	known := Assemble(QueryRange{Symbol: "AAPL", Years: 1}, bars, nil)

	buf, err := json.Marshal(known)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"volume":12345`)

	bars[0].Volume = nil
	unknown := Assemble(QueryRange{Symbol: "AAPL", Years: 1}, bars, nil)
	buf, err = json.Marshal(unknown)
	require.NoError(t, err)
	assert.NotContains(t, string(buf), `"volume"`)
}

func TestAssemble_DatesAreISO(t *testing.T) {
	resp := Assemble(QueryRange{Symbol: "AAPL", Years: 1}, testBars(10, 20), nil)
	assert.Equal(t, "2025-06-02", resp.Data[0].Date)
	assert.Equal(t, "2025-06-03", resp.Data[1].Date)
}
