package collab

import (
	"context"
	"fmt"
	"net/url"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceClient implements ports.PriceConverter against the price-feed
// collaborator. Amounts travel as decimal strings to avoid float drift.
type PriceClient struct {
	client
}

// NewPriceClient creates a price-feed adapter rooted at baseURL.
func NewPriceClient(baseURL string, httpClient HTTPClient) *PriceClient {
	return &PriceClient{client: client{baseURL: baseURL, httpClient: httpClient}}
}

type convertRequest struct {
	VaultID uuid.UUID `json:"vault_id"`
	Asset   string    `json:"asset"`
	Amount  string    `json:"amount"`
}

type convertResponse struct {
	Value string `json:"value"`
}

// ConvertToBase values amount of asset in base-asset units.
func (c *PriceClient) ConvertToBase(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.convert(ctx, "/v1/convert/to-base", vaultID, asset, amount)
}

// ConvertFromBase values baseValue in units of asset.
func (c *PriceClient) ConvertFromBase(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID, baseValue decimal.Decimal) (decimal.Decimal, error) {
	return c.convert(ctx, "/v1/convert/from-base", vaultID, asset, baseValue)
}

func (c *PriceClient) convert(ctx context.Context, path string, vaultID uuid.UUID, asset domain.AssetID, amount decimal.Decimal) (decimal.Decimal, error) {
	var resp convertResponse
	err := c.postJSON(ctx, path, convertRequest{
		VaultID: vaultID,
		Asset:   string(asset),
		Amount:  amount.String(),
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(resp.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse converted value %q: %w", resp.Value, err)
	}
	return value, nil
}

// HasPriceFeed reports whether a valid feed exists for asset.
func (c *PriceClient) HasPriceFeed(ctx context.Context, asset domain.AssetID) (bool, error) {
	var resp struct {
		Active bool `json:"active"`
	}
	path := "/v1/feeds/" + url.PathEscape(string(asset))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Active, nil
}
