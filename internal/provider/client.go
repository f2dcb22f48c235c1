// Package provider implements the REST client for the market-data vendor
// that backfills daily bars. The vendor uses broker-style session auth: a
// login call carrying client code, password and a fresh TOTP yields an
// access token that expires server-side and must be re-minted on 401.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/civil"
	"github.com/pquerna/otp/totp"

	"stock-historyv1/internal/model"
)

// ErrNotLoggedIn is returned when a data call runs before a session exists.
var ErrNotLoggedIn = errors.New("provider: no active session, call Login first")

const (
	loginPath     = "/auth/v1/login"
	dailyBarsPath = "/data/v1/bars/daily"

	defaultTimeout = 10 * time.Second
)

// Config holds provider credentials and connection settings.
type Config struct {
	RootURL    string // e.g. https://api.vendor.example
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string // base32 seed for session TOTP

	Timeout time.Duration // default 10s
}

// Client is a provider session. Not safe for concurrent use; the sync worker
// runs syncs sequentially.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	accessToken string
}

// New creates a provider client. Login must be called before data requests.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type loginResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// Login mints a fresh TOTP from the configured seed and opens a session.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("provider: generate totp: %w", err)
	}

	body, _ := json.Marshal(map[string]string{
		"clientCode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RootURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("provider: login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: login status %d", resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("provider: login decode: %w", err)
	}
	if !out.Status || out.Data.AccessToken == "" {
		return fmt.Errorf("provider: login rejected: %s", out.Message)
	}

	c.accessToken = out.Data.AccessToken
	return nil
}

type barRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume *int64  `json:"volume"`
}

type barsResponse struct {
	Status  bool     `json:"status"`
	Message string   `json:"message"`
	Data    []barRow `json:"data"`
}

// DailyBars fetches the vendor's daily candles for symbol within [from, to].
// A session expiring mid-run is refreshed once and the request retried.
func (c *Client) DailyBars(ctx context.Context, symbol string, from, to civil.Date) ([]model.Bar, error) {
	if c.accessToken == "" {
		return nil, ErrNotLoggedIn
	}

	resp, err := c.getDailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err := c.Login(ctx); err != nil {
			return nil, fmt.Errorf("provider: session refresh: %w", err)
		}
		if resp, err = c.getDailyBars(ctx, symbol, from, to); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider: daily bars status %d", resp.StatusCode)
	}

	var out barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("provider: daily bars decode: %w", err)
	}
	if !out.Status {
		return nil, fmt.Errorf("provider: daily bars rejected: %s", out.Message)
	}

	bars := make([]model.Bar, 0, len(out.Data))
	for _, row := range out.Data {
		d, err := civil.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("provider: bad bar date %q: %w", row.Date, err)
		}
		bars = append(bars, model.Bar{
			Symbol: symbol,
			Date:   d,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return bars, nil
}

func (c *Client) getDailyBars(ctx context.Context, symbol string, from, to civil.Date) (*http.Response, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", from.String())
	q.Set("to", to.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RootURL+dailyBarsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("provider: bars request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: bars: %w", err)
	}
	return resp, nil
}
