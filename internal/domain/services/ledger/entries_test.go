package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilpcore/engine/internal/domain/entities"
)

func TestEntryBuilderValidateBalanced(t *testing.T) {
	account1, account2 := uuid.New(), uuid.New()
	b := NewEntryBuilder().
		AddDebit(account1, decimal.NewFromInt(100), "USD", 2, nil).
		AddCredit(account2, decimal.NewFromInt(100), "USD", 2, nil)

	assert.NoError(t, b.Validate())
	assert.Len(t, b.Build(), 2)
}

func TestEntryBuilderValidateUnbalanced(t *testing.T) {
	b := NewEntryBuilder().
		AddDebit(uuid.New(), decimal.NewFromInt(100), "USD", 2, nil).
		AddCredit(uuid.New(), decimal.NewFromInt(99), "USD", 2, nil)

	assert.Error(t, b.Validate())
}

func TestEntryBuilderValidateTooFewEntries(t *testing.T) {
	b := NewEntryBuilder().AddDebit(uuid.New(), decimal.NewFromInt(1), "USD", 2, nil)
	assert.Error(t, b.Validate())
}

func TestCreateDepositEntries(t *testing.T) {
	settlement, destination := uuid.New(), uuid.New()
	entries := CreateDepositEntries(settlement, destination, decimal.NewFromInt(500), "USD", 2)

	require.Len(t, entries, 2)
	assert.Equal(t, entities.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, settlement, entries[0].AccountID)
	assert.Equal(t, entities.EntryTypeCredit, entries[1].EntryType)
	assert.Equal(t, destination, entries[1].AccountID)
	assert.True(t, entries[0].Amount.Equal(entries[1].Amount))
}

func TestCreateWithdrawalEntries(t *testing.T) {
	source, settlement := uuid.New(), uuid.New()
	entries := CreateWithdrawalEntries(source, settlement, decimal.NewFromInt(250), "USD", 2)

	require.Len(t, entries, 2)
	assert.Equal(t, source, entries[0].AccountID)
	assert.Equal(t, entities.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, settlement, entries[1].AccountID)
	assert.Equal(t, entities.EntryTypeCredit, entries[1].EntryType)
}

func TestCreateTransferEntriesSameAsset(t *testing.T) {
	source, destination := uuid.New(), uuid.New()
	entries := CreateTransferEntries(source, destination, decimal.NewFromInt(100), "USD", 2, decimal.NewFromInt(100), "USD", 2)

	require.Len(t, entries, 2)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, entries[1].Amount.Equal(decimal.NewFromInt(100)))

	req := &entities.CreateTransactionRequest{
		TransactionType: entities.TransactionTypeTransfer,
		IdempotencyKey:  "k",
		Entries:         entries,
	}
	assert.NoError(t, req.Validate())
}

func TestCreateTransferEntriesCrossAsset(t *testing.T) {
	source, destination := uuid.New(), uuid.New()
	entries := CreateTransferEntries(source, destination, decimal.NewFromInt(123), "USD", 9, decimal.NewFromInt(61), "XRP", 9)

	require.Len(t, entries, 2)
	assert.Equal(t, "USD", entries[0].AssetCode)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(123)))
	assert.Equal(t, "XRP", entries[1].AssetCode)
	assert.True(t, entries[1].Amount.Equal(decimal.NewFromInt(61)))

	req := &entities.CreateTransactionRequest{
		TransactionType: entities.TransactionTypeTransfer,
		IdempotencyKey:  "k",
		Entries:         entries,
	}
	assert.Error(t, req.Validate(), "each asset code holds only one leg, so per-asset balancing fails")
}

func TestTransactionRequestBuilderBuildValidates(t *testing.T) {
	account1, account2 := uuid.New(), uuid.New()
	entries := CreateDepositEntries(account1, account2, decimal.NewFromInt(10), "USD", 2)
	ref := uuid.New()

	req, err := NewTransactionRequestBuilder().
		WithType(entities.TransactionTypeDeposit).
		WithReference(ref, "asset").
		WithIdempotencyKey(GenerateIdempotencyKey("deposit", ref)).
		WithTimeout(30 * time.Second).
		WithDescription("initial funding").
		WithEntries(entries).
		Build()

	require.NoError(t, err)
	assert.Equal(t, entities.TransactionTypeDeposit, req.TransactionType)
	assert.Equal(t, ref, *req.ReferenceID)
	assert.Equal(t, "asset", *req.ReferenceType)
	assert.NotEmpty(t, req.IdempotencyKey)
}

func TestTransactionRequestBuilderBuildRejectsUnbalanced(t *testing.T) {
	_, err := NewTransactionRequestBuilder().
		WithType(entities.TransactionTypeTransfer).
		WithIdempotencyKey("key").
		AddEntry(entities.CreateEntryRequest{AccountID: uuid.New(), EntryType: entities.EntryTypeDebit, Amount: decimal.NewFromInt(10), AssetCode: "USD"}).
		AddEntry(entities.CreateEntryRequest{AccountID: uuid.New(), EntryType: entities.EntryTypeCredit, Amount: decimal.NewFromInt(5), AssetCode: "USD"}).
		Build()

	assert.Error(t, err)
}

func TestGenerateIdempotencyKeyIsDeterministic(t *testing.T) {
	id := uuid.New()
	key1 := GenerateIdempotencyKey("deposit", id)
	key2 := GenerateIdempotencyKey("deposit", id)

	assert.Equal(t, key1, key2)
	assert.Equal(t, "deposit-"+id.String(), key1)
	assert.NotEqual(t, key1, GenerateIdempotencyKey("withdrawal", id))
}
