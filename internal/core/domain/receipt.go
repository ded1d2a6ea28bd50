package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptLog marks a cross-replica transfer as applied on this replica,
// preventing the trusted transport from double-delivering a credit.
type ReceiptLog struct {
	Key        string    `json:"key"` // Format: "vault_id:transfer_id"
	TransferID uuid.UUID `json:"transfer_id"`
	AppliedAt  time.Time `json:"applied_at"`
}

// BuildReceiptKey constructs the standard receipt dedup key.
func BuildReceiptKey(vaultID, transferID uuid.UUID) string {
	return vaultID.String() + ":" + transferID.String()
}
