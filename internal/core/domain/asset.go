package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetID identifies an asset the vault can hold, namespaced by the venue
// that custodies it (e.g. "erc20:0xa0b8...", "native").
type AssetID string

const (
	// NativeAsset is the chain-native asset, always claimable through escrow
	// recovery regardless of allow-list contents.
	NativeAsset AssetID = "native"

	// SelfBalanceAsset is the burn-side sentinel meaning "pay out in whatever
	// the caller's own wallet already holds of the requested asset".
	SelfBalanceAsset AssetID = "self"
)

// ActiveAssetCap bounds the active-asset registry. The base asset is
// implicitly active and does not count against the cap.
const ActiveAssetCap = 128

// ActiveAsset is a registry entry: an asset with a valid price feed that
// entered vault custody through a tracked path and participates in NAV.
type ActiveAsset struct {
	VaultID uuid.UUID `json:"vault_id"`
	Asset   AssetID   `json:"asset"`
	AddedAt time.Time `json:"added_at"`
}
