package collab

import (
	"context"
	"net/url"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
)

// AllowListClient implements ports.AllowList against the allow-list
// collaborator.
type AllowListClient struct {
	client
}

// NewAllowListClient creates an allow-list adapter rooted at baseURL.
func NewAllowListClient(baseURL string, httpClient HTTPClient) *AllowListClient {
	return &AllowListClient{client: client{baseURL: baseURL, httpClient: httpClient}}
}

// IsParticipant checks the mint-side participation list of a provider.
func (c *AllowListClient) IsParticipant(ctx context.Context, provider string, account uuid.UUID) (bool, error) {
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	path := "/v1/providers/" + url.PathEscape(provider) + "/participants/" + account.String()
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// IsRecoverable checks the escrow-recovery asset list.
func (c *AllowListClient) IsRecoverable(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID) (bool, error) {
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	path := "/v1/vaults/" + vaultID.String() + "/recoverable/" + url.PathEscape(string(asset))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}
