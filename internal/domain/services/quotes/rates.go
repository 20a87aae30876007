// Package quotes implements the quote engine: resolving a receiver,
// pricing one side of the payment from the other via the rates service,
// and folding in the source asset's configured sending fee.
package quotes

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/infrastructure/httpclient"
)

// RatesClient queries the exchange rate between two assets, the pricing
// input the quote engine builds low/high/min exchange rates around.
type RatesClient interface {
	GetRate(ctx context.Context, sourceAssetCode string, destinationAssetCode string) (decimal.Decimal, error)
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// HTTPRatesClient queries an external rates service over the engine's
// shared HTTP client, grounded on the same request/response shape the
// webhook dispatcher and remote receiver resolver use for their own
// outbound calls.
type HTTPRatesClient struct {
	client *httpclient.Client
}

// NewHTTPRatesClient builds a rates client over an already-configured
// httpclient.Client (base URL pointed at the rates service).
func NewHTTPRatesClient(client *httpclient.Client) *HTTPRatesClient {
	return &HTTPRatesClient{client: client}
}

// GetRate returns the spot exchange rate from sourceAssetCode to
// destinationAssetCode: how many units of destination one unit of source
// buys.
func (c *HTTPRatesClient) GetRate(ctx context.Context, sourceAssetCode, destinationAssetCode string) (decimal.Decimal, error) {
	if sourceAssetCode == destinationAssetCode {
		return decimal.NewFromInt(1), nil
	}

	var resp ratesResponse
	path := fmt.Sprintf("/rates?base=%s", sourceAssetCode)
	if _, err := c.client.DoJSON(ctx, "GET", path, nil, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("fetch exchange rate: %w", err)
	}

	rate, ok := resp.Rates[destinationAssetCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("rates service has no rate for %s -> %s", sourceAssetCode, destinationAssetCode)
	}
	return rate, nil
}
