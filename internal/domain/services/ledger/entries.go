package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// EntryBuilder helps construct a balanced set of ledger entries.
type EntryBuilder struct {
	entries []entities.CreateEntryRequest
}

// NewEntryBuilder creates a new entry builder
func NewEntryBuilder() *EntryBuilder {
	return &EntryBuilder{
		entries: make([]entities.CreateEntryRequest, 0, 2),
	}
}

// AddDebit adds a debit entry
func (b *EntryBuilder) AddDebit(accountID uuid.UUID, amount decimal.Decimal, assetCode string, assetScale int, description *string) *EntryBuilder {
	b.entries = append(b.entries, entities.CreateEntryRequest{
		AccountID:   accountID,
		EntryType:   entities.EntryTypeDebit,
		Amount:      amount,
		AssetCode:   assetCode,
		AssetScale:  assetScale,
		Description: description,
	})
	return b
}

// AddCredit adds a credit entry
func (b *EntryBuilder) AddCredit(accountID uuid.UUID, amount decimal.Decimal, assetCode string, assetScale int, description *string) *EntryBuilder {
	b.entries = append(b.entries, entities.CreateEntryRequest{
		AccountID:   accountID,
		EntryType:   entities.EntryTypeCredit,
		Amount:      amount,
		AssetCode:   assetCode,
		AssetScale:  assetScale,
		Description: description,
	})
	return b
}

// Build returns the constructed entries
func (b *EntryBuilder) Build() []entities.CreateEntryRequest {
	return b.entries
}

// Validate ensures the entries balance per asset code.
func (b *EntryBuilder) Validate() error {
	if len(b.entries) < 2 {
		return fmt.Errorf("transaction must have at least 2 entries")
	}

	sums := map[string]struct{ debit, credit decimal.Decimal }{}
	for _, entry := range b.entries {
		s := sums[entry.AssetCode]
		if entry.EntryType == entities.EntryTypeDebit {
			s.debit = s.debit.Add(entry.Amount)
		} else {
			s.credit = s.credit.Add(entry.Amount)
		}
		sums[entry.AssetCode] = s
	}
	for code, s := range sums {
		if !s.debit.Equal(s.credit) {
			return fmt.Errorf("transaction is unbalanced for %s: debits=%s, credits=%s", code, s.debit.String(), s.credit.String())
		}
	}

	return nil
}

// CreateDepositEntries creates the two entries for a deposit into a
// liquidity account: the asset's settlement pool is debited and the
// destination account is credited.
func CreateDepositEntries(settlementAccountID, destinationAccountID uuid.UUID, amount decimal.Decimal, assetCode string, assetScale int) []entities.CreateEntryRequest {
	desc := "deposit"
	return NewEntryBuilder().
		AddDebit(settlementAccountID, amount, assetCode, assetScale, &desc).
		AddCredit(destinationAccountID, amount, assetCode, assetScale, &desc).
		Build()
}

// CreateWithdrawalEntries creates the two entries for a withdrawal out of a
// liquidity account back to the asset's settlement pool.
func CreateWithdrawalEntries(sourceAccountID, settlementAccountID uuid.UUID, amount decimal.Decimal, assetCode string, assetScale int) []entities.CreateEntryRequest {
	desc := "withdrawal"
	return NewEntryBuilder().
		AddDebit(sourceAccountID, amount, assetCode, assetScale, &desc).
		AddCredit(settlementAccountID, amount, assetCode, assetScale, &desc).
		Build()
}

// CreateTransferEntries creates the entries for a transfer between two
// liquidity accounts. When the accounts hold different assets (a
// cross-currency packet) sourceAmount and destinationAmount differ and the
// debit and credit carry different asset codes, so
// CreateTransactionRequest.Validate, which balances per asset code, rejects
// the pair. The ledger service records a cross-asset transfer with its
// destination leg in the debit entry's metadata instead.
func CreateTransferEntries(sourceAccountID, destinationAccountID uuid.UUID, sourceAmount decimal.Decimal, sourceAssetCode string, sourceAssetScale int, destinationAmount decimal.Decimal, destinationAssetCode string, destinationAssetScale int) []entities.CreateEntryRequest {
	desc := "transfer"
	if sourceAssetCode == destinationAssetCode && sourceAssetScale == destinationAssetScale {
		return NewEntryBuilder().
			AddDebit(sourceAccountID, sourceAmount, sourceAssetCode, sourceAssetScale, &desc).
			AddCredit(destinationAccountID, sourceAmount, sourceAssetCode, sourceAssetScale, &desc).
			Build()
	}
	return NewEntryBuilder().
		AddDebit(sourceAccountID, sourceAmount, sourceAssetCode, sourceAssetScale, &desc).
		AddCredit(destinationAccountID, destinationAmount, destinationAssetCode, destinationAssetScale, &desc).
		Build()
}

// TransactionRequestBuilder helps construct complete transaction requests
type TransactionRequestBuilder struct {
	req *entities.CreateTransactionRequest
}

// NewTransactionRequestBuilder creates a new transaction request builder
func NewTransactionRequestBuilder() *TransactionRequestBuilder {
	return &TransactionRequestBuilder{
		req: &entities.CreateTransactionRequest{
			Entries: make([]entities.CreateEntryRequest, 0),
		},
	}
}

// WithType sets the transaction type
func (b *TransactionRequestBuilder) WithType(txType entities.TransactionType) *TransactionRequestBuilder {
	b.req.TransactionType = txType
	return b
}

// WithReference sets the reference ID and type
func (b *TransactionRequestBuilder) WithReference(referenceID uuid.UUID, referenceType string) *TransactionRequestBuilder {
	b.req.ReferenceID = &referenceID
	b.req.ReferenceType = &referenceType
	return b
}

// WithIdempotencyKey sets the idempotency key
func (b *TransactionRequestBuilder) WithIdempotencyKey(key string) *TransactionRequestBuilder {
	b.req.IdempotencyKey = key
	return b
}

// WithTimeout sets the two-phase timeout after which a pending transaction
// auto-voids.
func (b *TransactionRequestBuilder) WithTimeout(timeout time.Duration) *TransactionRequestBuilder {
	b.req.Timeout = &timeout
	return b
}

// WithDescription sets the description
func (b *TransactionRequestBuilder) WithDescription(description string) *TransactionRequestBuilder {
	b.req.Description = &description
	return b
}

// WithMetadata sets the metadata
func (b *TransactionRequestBuilder) WithMetadata(metadata map[string]any) *TransactionRequestBuilder {
	b.req.Metadata = metadata
	return b
}

// WithEntries sets the entries
func (b *TransactionRequestBuilder) WithEntries(entries []entities.CreateEntryRequest) *TransactionRequestBuilder {
	b.req.Entries = entries
	return b
}

// AddEntry adds a single entry
func (b *TransactionRequestBuilder) AddEntry(entry entities.CreateEntryRequest) *TransactionRequestBuilder {
	b.req.Entries = append(b.req.Entries, entry)
	return b
}

// Build returns the constructed request
func (b *TransactionRequestBuilder) Build() (*entities.CreateTransactionRequest, error) {
	if err := b.req.Validate(); err != nil {
		return nil, fmt.Errorf("validate request: %w", err)
	}
	return b.req, nil
}

// GenerateIdempotencyKey generates a default idempotency key for a
// transaction from a caller-chosen ID, used when the pipeline or admin API
// didn't supply its own.
func GenerateIdempotencyKey(prefix string, id uuid.UUID) string {
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
