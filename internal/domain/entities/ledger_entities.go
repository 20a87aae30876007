package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountKind tags a liquidity account by the domain object that owns it.
// Every ledger account is one of these five kinds; the tag replaces a
// fixed per-product enum because new owner kinds (assets, peers,
// payments, wallet addresses) are added by the protocol, not by product
// requirements.
type AccountKind string

const (
	AccountKindAsset            AccountKind = "asset"
	AccountKindPeer             AccountKind = "peer"
	AccountKindIncomingPayment  AccountKind = "incoming"
	AccountKindOutgoingPayment  AccountKind = "outgoing"
	AccountKindWebMonetization  AccountKind = "web-monetization"
)

// Validate checks if the account kind is valid
func (k AccountKind) Validate() error {
	switch k {
	case AccountKindAsset, AccountKindPeer, AccountKindIncomingPayment,
		AccountKindOutgoingPayment, AccountKindWebMonetization:
		return nil
	default:
		return fmt.Errorf("invalid account kind: %s", k)
	}
}

// IsSettlementPool returns true for account kinds that hold the asset's
// own liquidity pool rather than a counterparty's balance.
func (k AccountKind) IsSettlementPool() bool {
	return k == AccountKindAsset
}

// TransactionType represents the type of ledger transaction
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeReversal   TransactionType = "reversal"
)

// Validate checks if the transaction type is valid
func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer, TransactionTypeReversal:
		return nil
	default:
		return fmt.Errorf("invalid transaction type: %s", t)
	}
}

// TransactionStatus represents the status of a ledger transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusVoided    TransactionStatus = "voided"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Validate checks if the transaction status is valid
func (s TransactionStatus) Validate() error {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusVoided, TransactionStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid transaction status: %s", s)
	}
}

// EntryType represents debit or credit
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Validate checks if the entry type is valid
func (e EntryType) Validate() error {
	switch e {
	case EntryTypeDebit, EntryTypeCredit:
		return nil
	default:
		return fmt.Errorf("invalid entry type: %s", e)
	}
}

// LedgerAccount represents a liquidity account in the double-entry system.
// Ref points at the owning domain row (asset, peer, incoming payment,
// outgoing payment, or wallet address); the pair (Kind, Ref) is unique.
type LedgerAccount struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Kind          AccountKind     `json:"kind" db:"kind"`
	Ref           uuid.UUID       `json:"ref" db:"ref"`
	AssetID       uuid.UUID       `json:"asset_id" db:"asset_id"`
	AssetCode     string          `json:"asset_code" db:"asset_code"`
	AssetScale    int             `json:"asset_scale" db:"asset_scale"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	TotalSent     decimal.Decimal `json:"total_sent" db:"total_sent"`
	TotalReceived decimal.Decimal `json:"total_received" db:"total_received"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate validates the ledger account
func (a *LedgerAccount) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}
	if err := a.Kind.Validate(); err != nil {
		return err
	}
	if a.Ref == uuid.Nil {
		return fmt.Errorf("account ref is required")
	}
	if a.AssetCode == "" {
		return fmt.Errorf("asset code is required")
	}
	if a.Balance.IsNegative() {
		return fmt.Errorf("account balance cannot be negative")
	}
	return nil
}

// LedgerTransaction represents a group of balanced ledger entries.
type LedgerTransaction struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	TransactionType TransactionType   `json:"transaction_type" db:"transaction_type"`
	ReferenceID     *uuid.UUID        `json:"reference_id,omitempty" db:"reference_id"`
	ReferenceType   *string           `json:"reference_type,omitempty" db:"reference_type"`
	Status          TransactionStatus `json:"status" db:"status"`
	IdempotencyKey  string            `json:"idempotency_key" db:"idempotency_key"`
	Timeout         *time.Duration    `json:"timeout,omitempty" db:"-"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	Description     *string           `json:"description,omitempty" db:"description"`
	Metadata        map[string]any    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate validates the ledger transaction
func (t *LedgerTransaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if err := t.TransactionType.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if t.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	return nil
}

// MarkCompleted marks the transaction as completed (post of a two-phase
// transfer, or immediate completion of a one-phase deposit).
func (t *LedgerTransaction) MarkCompleted() {
	now := time.Now()
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
}

// MarkVoided marks a pending two-phase transfer as voided.
func (t *LedgerTransaction) MarkVoided() {
	now := time.Now()
	t.Status = TransactionStatusVoided
	t.CompletedAt = &now
}

// MarkFailed marks the transaction as failed
func (t *LedgerTransaction) MarkFailed() {
	t.Status = TransactionStatusFailed
}

// IsPending reports whether a two-phase transfer is still awaiting post
// or void. It does not look at the timeout; IsExpired does.
func (t *LedgerTransaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// IsExpired reports whether a pending transfer's timeout has elapsed and
// it should be treated as auto-voided.
func (t *LedgerTransaction) IsExpired(now time.Time) bool {
	return t.Status == TransactionStatusPending && t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// LedgerEntry represents an individual debit or credit entry.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id" db:"account_id"`
	EntryType     EntryType       `json:"entry_type" db:"entry_type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	AssetCode     string          `json:"asset_code" db:"asset_code"`
	AssetScale    int             `json:"asset_scale" db:"asset_scale"`
	Description   *string         `json:"description,omitempty" db:"description"`
	Metadata      map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Validate validates the ledger entry
func (e *LedgerEntry) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("entry ID is required")
	}
	if e.TransactionID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if e.AccountID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}
	if err := e.EntryType.Validate(); err != nil {
		return err
	}
	if e.Amount.IsNegative() || e.Amount.IsZero() {
		return fmt.Errorf("entry amount must be positive")
	}
	return nil
}

// IsDebit returns true if this is a debit entry
func (e *LedgerEntry) IsDebit() bool {
	return e.EntryType == EntryTypeDebit
}

// IsCredit returns true if this is a credit entry
func (e *LedgerEntry) IsCredit() bool {
	return e.EntryType == EntryTypeCredit
}

// CreateTransactionRequest represents a request to create a ledger transaction.
type CreateTransactionRequest struct {
	TransactionType TransactionType
	ReferenceID     *uuid.UUID
	ReferenceType   *string
	IdempotencyKey  string
	Timeout         *time.Duration
	Description     *string
	Metadata        map[string]any
	Entries         []CreateEntryRequest
}

// Validate validates the create transaction request
func (r *CreateTransactionRequest) Validate() error {
	if err := r.TransactionType.Validate(); err != nil {
		return err
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if len(r.Entries) < 2 {
		return fmt.Errorf("transaction must have at least 2 entries")
	}
	for i, entry := range r.Entries {
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}

	byAsset := map[string]struct{ debit, credit decimal.Decimal }{}
	for _, entry := range r.Entries {
		b := byAsset[entry.AssetCode]
		if entry.EntryType == EntryTypeDebit {
			b.debit = b.debit.Add(entry.Amount)
		} else {
			b.credit = b.credit.Add(entry.Amount)
		}
		byAsset[entry.AssetCode] = b
	}
	for code, b := range byAsset {
		if !b.debit.Equal(b.credit) {
			return fmt.Errorf("transaction is unbalanced for %s: debits=%s, credits=%s", code, b.debit.String(), b.credit.String())
		}
	}

	return nil
}

// CreateEntryRequest represents a request to create a ledger entry.
type CreateEntryRequest struct {
	AccountID   uuid.UUID
	EntryType   EntryType
	Amount      decimal.Decimal
	AssetCode   string
	AssetScale  int
	Description *string
	Metadata    map[string]any
}

// Validate validates the create entry request
func (r *CreateEntryRequest) Validate() error {
	if r.AccountID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}
	if err := r.EntryType.Validate(); err != nil {
		return err
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return fmt.Errorf("entry amount must be positive")
	}
	if r.AssetCode == "" {
		return fmt.Errorf("asset code is required")
	}
	return nil
}
