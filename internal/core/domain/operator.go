package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is an authentication principal's capability class.
type Role string

const (
	// RoleOwner may mutate vault parameters in addition to everything an
	// operator can do.
	RoleOwner Role = "OWNER"
	// RoleOperator may drive holder-facing mutations and dispatches.
	RoleOperator Role = "OPERATOR"
	// RoleTransport is the trusted bridge collaborator; it may deliver
	// cross-replica receipts and transfer status callbacks, nothing else.
	RoleTransport Role = "TRANSPORT"
)

// Operation identifies a command for capability dispatch.
type Operation string

const (
	OpMint          Operation = "MINT"
	OpBurn          Operation = "BURN"
	OpDispatch      Operation = "DISPATCH"
	OpReceive       Operation = "RECEIVE"
	OpSettle        Operation = "SETTLE"
	OpRecover       Operation = "RECOVER"
	OpSetParameters Operation = "SET_PARAMETERS"
	OpSetLock       Operation = "SET_LOCK"
	OpRecompute     Operation = "RECOMPUTE"
)

// mutationCapability is the strategy table of the command dispatcher:
// "mutation permitted" is resolved from caller identity first, then the
// operation is dispatched. No call-type inference.
var mutationCapability = map[Operation]map[Role]bool{
	OpMint:          {RoleOwner: true, RoleOperator: true},
	OpBurn:          {RoleOwner: true, RoleOperator: true},
	OpDispatch:      {RoleOwner: true, RoleOperator: true},
	OpReceive:       {RoleTransport: true},
	OpSettle:        {RoleTransport: true},
	OpRecover:       {RoleOwner: true, RoleOperator: true},
	OpSetParameters: {RoleOwner: true},
	OpSetLock:       {RoleOwner: true},
	OpRecompute:     {RoleOwner: true, RoleOperator: true},
}

// MutationPermitted resolves whether role may execute op.
func MutationPermitted(role Role, op Operation) bool {
	allowed, ok := mutationCapability[op]
	if !ok {
		return false
	}
	return allowed[role]
}

// Operator is an authentication principal for the replica's API.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
