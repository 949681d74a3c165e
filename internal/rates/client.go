// Package rates fetches historical exchange rates from an
// exchangeratesapi.io-compatible service.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public exchangeratesapi.io endpoint.
const DefaultBaseURL = "https://api.exchangeratesapi.io"

// Client queries historical rates. The base currency is the importer's
// default currency; rates convert from it to the requested currency.
type Client struct {
	baseURL      string
	baseCurrency string
	httpClient   *http.Client
}

// New creates a client converting from baseCurrency.
func New(baseCurrency string) *Client {
	return NewWithBaseURL(DefaultBaseURL, baseCurrency)
}

// NewWithBaseURL creates a client against a custom endpoint, used by tests
// and self-hosted rate services.
func NewWithBaseURL(baseURL, baseCurrency string) *Client {
	return &Client{
		baseURL:      baseURL,
		baseCurrency: baseCurrency,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ratesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate returns the conversion rate from the base currency to the given
// currency on the given date.
func (c *Client) Rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, date.Format("2006-01-02"), url.Values{
		"base":    {c.baseCurrency},
		"symbols": {currency},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates.Rate: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates.Rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("rates.Rate: %s returned %s: %s", u, resp.Status, body)
	}

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("rates.Rate: decoding response: %w", err)
	}
	rate, ok := parsed.Rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("rates.Rate: no %s rate for %s", currency, date.Format("2006-01-02"))
	}
	return rate, nil
}
