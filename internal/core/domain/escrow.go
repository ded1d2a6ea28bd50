package domain

import (
	"time"

	"github.com/google/uuid"
)

// EscrowOpType names the operation class a recovery account serves. One
// escrow account exists per (vault, opType) pair.
type EscrowOpType string

const (
	EscrowOpTransfer EscrowOpType = "CROSS_REPLICA_TRANSFER"
	EscrowOpSync     EscrowOpType = "CROSS_REPLICA_SYNC"
)

// Valid reports whether op is a known escrow operation type.
func (op EscrowOpType) Valid() bool {
	return op == EscrowOpTransfer || op == EscrowOpSync
}

// EscrowAccount is the deterministically addressed holding account for
// assets refunded by a failed cross-replica transfer. Created lazily on
// first need; persists for the vault's lifetime.
type EscrowAccount struct {
	ID        uuid.UUID    `json:"id"`
	VaultID   uuid.UUID    `json:"vault_id"`
	OpType    EscrowOpType `json:"op_type"`
	CreatedAt time.Time    `json:"created_at"`
}

// DeriveEscrowID maps (vault, opType) to a stable identity. Pure function:
// the account's address is predictable before the account exists.
func DeriveEscrowID(vaultID uuid.UUID, op EscrowOpType) uuid.UUID {
	return uuid.NewSHA1(vaultID, []byte("escrow:"+string(op)))
}
