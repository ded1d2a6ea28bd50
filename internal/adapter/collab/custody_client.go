package collab

import (
	"context"
	"fmt"
	"net/url"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustodyClient implements ports.CustodyClient against the custody
// collaborator. Accounts are addressed by stable identity: the vault account
// is the vault ID, escrow accounts are their derived IDs.
type CustodyClient struct {
	client
}

// NewCustodyClient creates a custody adapter rooted at baseURL.
func NewCustodyClient(baseURL string, httpClient HTTPClient) *CustodyClient {
	return &CustodyClient{client: client{baseURL: baseURL, httpClient: httpClient}}
}

// Balance returns a custody account's balance of asset.
func (c *CustodyClient) Balance(ctx context.Context, accountID uuid.UUID, asset domain.AssetID) (decimal.Decimal, error) {
	return c.balance(ctx, "/v1/accounts/", accountID, asset)
}

// HolderBalance returns a holder wallet's own balance of asset.
func (c *CustodyClient) HolderBalance(ctx context.Context, holderID uuid.UUID, asset domain.AssetID) (decimal.Decimal, error) {
	return c.balance(ctx, "/v1/holders/", holderID, asset)
}

func (c *CustodyClient) balance(ctx context.Context, prefix string, id uuid.UUID, asset domain.AssetID) (decimal.Decimal, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	path := prefix + id.String() + "/balances/" + url.PathEscape(string(asset))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", resp.Balance, err)
	}
	return balance, nil
}

type forwardRequest struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
}

// Forward moves the full given amount between custody accounts.
func (c *CustodyClient) Forward(ctx context.Context, from, to uuid.UUID, asset domain.AssetID, amount decimal.Decimal) error {
	return c.postJSON(ctx, "/v1/transfers", forwardRequest{
		From:   from,
		To:     to,
		Asset:  string(asset),
		Amount: amount.String(),
	}, nil)
}
