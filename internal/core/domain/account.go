package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShareAccount holds one holder's share balance in a vault. Created on first
// mint, deleted when the balance reaches zero. Activation is the earliest
// time the holder may burn; minting resets it for the entire balance, not
// just the new increment.
type ShareAccount struct {
	VaultID    uuid.UUID       `json:"vault_id"`
	HolderID   uuid.UUID       `json:"holder_id"`
	Balance    decimal.Decimal `json:"balance"`
	Activation time.Time       `json:"activation"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Unlocked reports whether the holding period has elapsed at now.
func (a *ShareAccount) Unlocked(now time.Time) bool {
	return !now.Before(a.Activation)
}
