package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP" // base32 test seed

func newTestVendor(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	logins := 0

	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "CLIENT1", body["clientCode"])
		require.NotEmpty(t, body["totp"], "login must carry a TOTP")

		logins++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data":   map[string]string{"accessToken": "tok-1"},
		})
	})
	mux.HandleFunc(dailyBarsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": true,
			"data": []map[string]interface{}{
				{"date": "2026-03-02", "open": 100, "high": 102, "low": 99, "close": 101, "volume": 5000},
				{"date": "2026-03-03", "open": 101, "high": 103, "low": 100, "close": 102, "volume": nil},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &logins
}

func testClient(srv *httptest.Server) *Client {
	return New(Config{
		RootURL:    srv.URL,
		APIKey:     "test-key",
		ClientCode: "CLIENT1",
		Password:   "pw",
		TOTPSecret: testTOTPSecret,
	})
}

func TestLoginAndDailyBars(t *testing.T) {
	srv, logins := newTestVendor(t)
	c := testClient(srv)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, 1, *logins)

	from := civil.Date{Year: 2026, Month: 3, Day: 1}
	to := civil.Date{Year: 2026, Month: 3, Day: 5}
	bars, err := c.DailyBars(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, "2026-03-02", bars[0].Date.String())
	assert.Equal(t, 101.0, bars[0].Close)
	require.NotNil(t, bars[0].Volume)
	assert.Equal(t, int64(5000), *bars[0].Volume)
	assert.Nil(t, bars[1].Volume, "missing session volume stays absent")
}

func TestDailyBars_RequiresLogin(t *testing.T) {
	srv, _ := newTestVendor(t)
	c := testClient(srv)

	_, err := c.DailyBars(context.Background(), "AAPL", civil.Date{}, civil.Date{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestDailyBars_RefreshesExpiredSession(t *testing.T) {
	srv, logins := newTestVendor(t)
	c := testClient(srv)

	require.NoError(t, c.Login(context.Background()))
	c.accessToken = "stale" // simulate server-side expiry

	bars, err := c.DailyBars(context.Background(), "AAPL", civil.Date{Year: 2026, Month: 3, Day: 1}, civil.Date{Year: 2026, Month: 3, Day: 5})
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 2, *logins, "expired session must be re-minted exactly once")
}

func TestLogin_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": false, "message": "bad totp"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv)
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad totp")
}
