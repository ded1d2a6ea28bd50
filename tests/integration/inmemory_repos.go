package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Vault Repo ---

type inMemoryVaultRepo struct {
	mu     sync.RWMutex
	vaults map[uuid.UUID]*domain.Vault
	params map[uuid.UUID]*domain.VaultParameters
}

func newInMemoryVaultRepo() *inMemoryVaultRepo {
	return &inMemoryVaultRepo{
		vaults: make(map[uuid.UUID]*domain.Vault),
		params: make(map[uuid.UUID]*domain.VaultParameters),
	}
}

func (r *inMemoryVaultRepo) Create(ctx context.Context, vault *domain.Vault, params *domain.VaultParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[vault.ID]; ok {
		return fmt.Errorf("vault already exists")
	}
	v := *vault
	p := *params
	r.vaults[vault.ID] = &v
	r.params[vault.ID] = &p
	return nil
}

func (r *inMemoryVaultRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaults[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *inMemoryVaultRepo) GetParameters(ctx context.Context, vaultID uuid.UUID) (*domain.VaultParameters, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.params[vaultID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryVaultRepo) UpdateParameters(ctx context.Context, tx pgx.Tx, params *domain.VaultParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.params[params.VaultID]; !ok {
		return fmt.Errorf("vault parameters not found")
	}
	cp := *params
	r.params[params.VaultID] = &cp
	return nil
}

func (r *inMemoryVaultRepo) SetLocked(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[vaultID]
	if !ok {
		return fmt.Errorf("vault not found")
	}
	v.Locked = locked
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu       sync.RWMutex
	accounts map[string]*domain.ShareAccount
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{accounts: make(map[string]*domain.ShareAccount)}
}

func ledgerKey(vaultID, holderID uuid.UUID) string {
	return vaultID.String() + ":" + holderID.String()
}

func (r *inMemoryLedgerRepo) Get(ctx context.Context, vaultID, holderID uuid.UUID) (*domain.ShareAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[ledgerKey(vaultID, holderID)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryLedgerRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, vaultID, holderID uuid.UUID) (*domain.ShareAccount, error) {
	return r.Get(ctx, vaultID, holderID)
}

func (r *inMemoryLedgerRepo) Upsert(ctx context.Context, tx pgx.Tx, account *domain.ShareAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[ledgerKey(account.VaultID, account.HolderID)] = &cp
	return nil
}

func (r *inMemoryLedgerRepo) Delete(ctx context.Context, tx pgx.Tx, vaultID, holderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, ledgerKey(vaultID, holderID))
	return nil
}

func (r *inMemoryLedgerRepo) HolderCount(ctx context.Context, vaultID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, a := range r.accounts {
		if a.VaultID == vaultID && a.Balance.Sign() > 0 {
			count++
		}
	}
	return count, nil
}

// --- In-Memory Supply Repo ---

type inMemorySupplyRepo struct {
	mu     sync.RWMutex
	states map[uuid.UUID]*domain.SupplyState
}

func newInMemorySupplyRepo() *inMemorySupplyRepo {
	return &inMemorySupplyRepo{states: make(map[uuid.UUID]*domain.SupplyState)}
}

func (r *inMemorySupplyRepo) Get(ctx context.Context, vaultID uuid.UUID) (*domain.SupplyState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[vaultID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *inMemorySupplyRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID) (*domain.SupplyState, error) {
	return r.Get(ctx, vaultID)
}

func (r *inMemorySupplyRepo) Update(ctx context.Context, tx pgx.Tx, state *domain.SupplyState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *state
	r.states[state.VaultID] = &cp
	return nil
}

// --- In-Memory Asset Registry Repo ---

type inMemoryAssetRepo struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]map[domain.AssetID]domain.ActiveAsset
}

func newInMemoryAssetRepo() *inMemoryAssetRepo {
	return &inMemoryAssetRepo{entries: make(map[uuid.UUID]map[domain.AssetID]domain.ActiveAsset)}
}

func (r *inMemoryAssetRepo) List(ctx context.Context, vaultID uuid.UUID) ([]domain.ActiveAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.ActiveAsset
	for _, e := range r.entries[vaultID] {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Asset < result[j].Asset })
	return result, nil
}

func (r *inMemoryAssetRepo) IsActive(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[vaultID][asset]
	return ok, nil
}

func (r *inMemoryAssetRepo) Count(ctx context.Context, vaultID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entries[vaultID])), nil
}

func (r *inMemoryAssetRepo) Add(ctx context.Context, tx pgx.Tx, entry *domain.ActiveAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[entry.VaultID] == nil {
		r.entries[entry.VaultID] = make(map[domain.AssetID]domain.ActiveAsset)
	}
	r.entries[entry.VaultID][entry.Asset] = *entry
	return nil
}

// --- In-Memory Transfer Repo ---

type inMemoryTransferRepo struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]*domain.ReplicaTransfer
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{transfers: make(map[uuid.UUID]*domain.ReplicaTransfer)}
}

func (r *inMemoryTransferRepo) Create(ctx context.Context, tx pgx.Tx, transfer *domain.ReplicaTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *transfer
	r.transfers[transfer.ID] = &cp
	return nil
}

func (r *inMemoryTransferRepo) Get(ctx context.Context, id uuid.UUID) (*domain.ReplicaTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransferRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.ReplicaTransfer, error) {
	return r.Get(ctx, id)
}

func (r *inMemoryTransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return fmt.Errorf("transfer not found")
	}
	t.Status = status
	return nil
}

// --- In-Memory Escrow Repo ---

type inMemoryEscrowRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.EscrowAccount
}

func newInMemoryEscrowRepo() *inMemoryEscrowRepo {
	return &inMemoryEscrowRepo{accounts: make(map[uuid.UUID]*domain.EscrowAccount)}
}

func (r *inMemoryEscrowRepo) Get(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryEscrowRepo) GetOrCreate(ctx context.Context, tx pgx.Tx, account *domain.EscrowAccount) (*domain.EscrowAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.accounts[account.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *account
	r.accounts[account.ID] = &cp
	result := cp
	return &result, nil
}

// --- In-Memory Receipt Repo ---

type inMemoryReceiptRepo struct {
	mu   sync.RWMutex
	logs map[string]*domain.ReceiptLog
}

func newInMemoryReceiptRepo() *inMemoryReceiptRepo {
	return &inMemoryReceiptRepo{logs: make(map[string]*domain.ReceiptLog)}
}

func (r *inMemoryReceiptRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.ReceiptLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[log.Key]; ok {
		return fmt.Errorf("receipt already applied")
	}
	cp := *log
	r.logs[log.Key] = &cp
	return nil
}

func (r *inMemoryReceiptRepo) Get(ctx context.Context, key string) (*domain.ReceiptLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

// --- In-Memory Operator Repo ---

type inMemoryOperatorRepo struct {
	mu        sync.RWMutex
	operators map[uuid.UUID]*domain.Operator
}

func newInMemoryOperatorRepo() *inMemoryOperatorRepo {
	return &inMemoryOperatorRepo{operators: make(map[uuid.UUID]*domain.Operator)}
}

func (r *inMemoryOperatorRepo) Create(ctx context.Context, operator *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.operators {
		if existing.Username == operator.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *operator
	r.operators[operator.ID] = &cp
	return nil
}

func (r *inMemoryOperatorRepo) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.operators {
		if o.Username == username {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOperatorRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.operators[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.RWMutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *inMemoryAuditRepo) List(ctx context.Context, actorID *uuid.UUID, limit, offset int) ([]domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.AuditLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		l := r.logs[i]
		if actorID != nil && (l.ActorID == nil || *l.ActorID != *actorID) {
			continue
		}
		result = append(result, l)
	}
	if offset >= len(result) {
		return []domain.AuditLog{}, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// --- Fake Collaborators ---

// fakeCustody is an in-memory custody venue. Balances are keyed by
// (account, asset); Forward fails on insufficient funds like the real venue.
type fakeCustody struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{balances: make(map[string]decimal.Decimal)}
}

func custodyKey(account uuid.UUID, asset domain.AssetID) string {
	return account.String() + ":" + string(asset)
}

func (c *fakeCustody) setBalance(account uuid.UUID, asset domain.AssetID, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[custodyKey(account, asset)] = amount
}

func (c *fakeCustody) Balance(ctx context.Context, accountID uuid.UUID, asset domain.AssetID) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[custodyKey(accountID, asset)], nil
}

func (c *fakeCustody) HolderBalance(ctx context.Context, holderID uuid.UUID, asset domain.AssetID) (decimal.Decimal, error) {
	return c.Balance(ctx, holderID, asset)
}

func (c *fakeCustody) Forward(ctx context.Context, from, to uuid.UUID, asset domain.AssetID, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fromKey := custodyKey(from, asset)
	if c.balances[fromKey].Cmp(amount) < 0 {
		return fmt.Errorf("insufficient custody balance for %s", fromKey)
	}
	c.balances[fromKey] = c.balances[fromKey].Sub(amount)
	toKey := custodyKey(to, asset)
	c.balances[toKey] = c.balances[toKey].Add(amount)
	return nil
}

// fakePrices converts through a fixed per-asset rate: one asset unit is
// worth rate base units.
type fakePrices struct {
	mu    sync.RWMutex
	rates map[domain.AssetID]decimal.Decimal
}

func newFakePrices() *fakePrices {
	return &fakePrices{rates: make(map[domain.AssetID]decimal.Decimal)}
}

func (p *fakePrices) setRate(asset domain.AssetID, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[asset] = rate
}

func (p *fakePrices) ConvertToBase(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID, amount decimal.Decimal) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rate, ok := p.rates[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price feed for %s", asset)
	}
	q, _ := amount.Mul(rate).QuoRem(decimal.NewFromInt(1), 0)
	return q, nil
}

func (p *fakePrices) ConvertFromBase(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID, baseValue decimal.Decimal) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rate, ok := p.rates[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price feed for %s", asset)
	}
	q, _ := baseValue.QuoRem(rate, 0)
	return q, nil
}

func (p *fakePrices) HasPriceFeed(ctx context.Context, asset domain.AssetID) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rates[asset]
	return ok, nil
}

// fakeAllowList tracks participation and recovery allow-lists per test.
type fakeAllowList struct {
	mu           sync.RWMutex
	participants map[string]map[uuid.UUID]bool
	recoverable  map[domain.AssetID]bool
}

func newFakeAllowList() *fakeAllowList {
	return &fakeAllowList{
		participants: make(map[string]map[uuid.UUID]bool),
		recoverable:  make(map[domain.AssetID]bool),
	}
}

func (a *fakeAllowList) addParticipant(provider string, account uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.participants[provider] == nil {
		a.participants[provider] = make(map[uuid.UUID]bool)
	}
	a.participants[provider][account] = true
}

func (a *fakeAllowList) addRecoverable(asset domain.AssetID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recoverable[asset] = true
}

func (a *fakeAllowList) IsParticipant(ctx context.Context, provider string, account uuid.UUID) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.participants[provider][account], nil
}

func (a *fakeAllowList) IsRecoverable(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recoverable[asset], nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }

// compile-time interface checks
var (
	_ ports.VaultRepository         = (*inMemoryVaultRepo)(nil)
	_ ports.LedgerRepository        = (*inMemoryLedgerRepo)(nil)
	_ ports.SupplyRepository        = (*inMemorySupplyRepo)(nil)
	_ ports.AssetRegistryRepository = (*inMemoryAssetRepo)(nil)
	_ ports.TransferRepository      = (*inMemoryTransferRepo)(nil)
	_ ports.EscrowRepository        = (*inMemoryEscrowRepo)(nil)
	_ ports.ReceiptRepository       = (*inMemoryReceiptRepo)(nil)
	_ ports.OperatorRepository      = (*inMemoryOperatorRepo)(nil)
	_ ports.AuditRepository         = (*inMemoryAuditRepo)(nil)
	_ ports.CustodyClient           = (*fakeCustody)(nil)
	_ ports.PriceConverter          = (*fakePrices)(nil)
	_ ports.AllowList               = (*fakeAllowList)(nil)
	_ ports.DBTransactor            = (*inMemoryTransactor)(nil)
)
