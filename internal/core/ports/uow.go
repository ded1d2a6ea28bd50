package ports

import (
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pooled-asset-vault/internal/core/domain"
)

// UnitOfWork is one atomic mutation scope: a database transaction plus
// ephemeral storage that lives exactly as long as the unit does. State
// recorded here is discarded with the unit, so nothing recorded in one unit
// of work can be observed or manipulated from another.
type UnitOfWork struct {
	Tx        pgx.Tx
	baselines map[string]ReceiptBaseline
}

// NewUnitOfWork wraps a database transaction.
func NewUnitOfWork(tx pgx.Tx) *UnitOfWork {
	return &UnitOfWork{Tx: tx, baselines: make(map[string]ReceiptBaseline)}
}

// ReceiptBaseline is the phase-one record of the two-phase receipt guard:
// the pre-transfer custody total and valuation that phase two verifies
// against the realized increase.
type ReceiptBaseline struct {
	Asset              domain.AssetID
	CustodyBefore      decimal.Decimal
	ExpectedIncrease   decimal.Decimal
	OriginUnitaryValue decimal.Decimal
	LocalUnitaryValue  decimal.Decimal
}

// PutBaseline stores the phase-one baseline for key. A second Put for the
// same key overwrites, which phase two detects as a sequencing violation by
// the transfer id.
func (u *UnitOfWork) PutBaseline(key string, b ReceiptBaseline) {
	u.baselines[key] = b
}

// TakeBaseline returns and removes the baseline for key, so each baseline
// verifies at most once.
func (u *UnitOfWork) TakeBaseline(key string) (ReceiptBaseline, bool) {
	b, ok := u.baselines[key]
	if ok {
		delete(u.baselines, key)
	}
	return b, ok
}
