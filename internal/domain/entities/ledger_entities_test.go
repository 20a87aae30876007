package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountKindValidate(t *testing.T) {
	assert.NoError(t, AccountKindAsset.Validate())
	assert.NoError(t, AccountKindPeer.Validate())
	assert.NoError(t, AccountKindIncomingPayment.Validate())
	assert.NoError(t, AccountKindOutgoingPayment.Validate())
	assert.NoError(t, AccountKindWebMonetization.Validate())
	assert.Error(t, AccountKind("bogus").Validate())
}

func TestAccountKindIsSettlementPool(t *testing.T) {
	assert.True(t, AccountKindAsset.IsSettlementPool())
	assert.False(t, AccountKindPeer.IsSettlementPool())
	assert.False(t, AccountKindIncomingPayment.IsSettlementPool())
}

func TestLedgerAccountValidate(t *testing.T) {
	valid := func() *LedgerAccount {
		return &LedgerAccount{
			ID:        uuid.New(),
			Kind:      AccountKindPeer,
			Ref:       uuid.New(),
			AssetCode: "USD",
			Balance:   decimal.NewFromInt(100),
		}
	}

	require.NoError(t, valid().Validate())

	missingID := valid()
	missingID.ID = uuid.Nil
	assert.Error(t, missingID.Validate())

	badKind := valid()
	badKind.Kind = AccountKind("nope")
	assert.Error(t, badKind.Validate())

	missingRef := valid()
	missingRef.Ref = uuid.Nil
	assert.Error(t, missingRef.Validate())

	missingAssetCode := valid()
	missingAssetCode.AssetCode = ""
	assert.Error(t, missingAssetCode.Validate())

	negativeBalance := valid()
	negativeBalance.Balance = decimal.NewFromInt(-1)
	assert.Error(t, negativeBalance.Validate())
}

func TestLedgerTransactionValidate(t *testing.T) {
	valid := func() *LedgerTransaction {
		return &LedgerTransaction{
			ID:              uuid.New(),
			TransactionType: TransactionTypeDeposit,
			Status:          TransactionStatusPending,
			IdempotencyKey:  "key-1",
		}
	}

	require.NoError(t, valid().Validate())

	missingKey := valid()
	missingKey.IdempotencyKey = ""
	assert.Error(t, missingKey.Validate())

	badType := valid()
	badType.TransactionType = TransactionType("bogus")
	assert.Error(t, badType.Validate())

	badStatus := valid()
	badStatus.Status = TransactionStatus("bogus")
	assert.Error(t, badStatus.Validate())
}

func TestLedgerTransactionLifecycle(t *testing.T) {
	tx := &LedgerTransaction{Status: TransactionStatusPending}
	assert.True(t, tx.IsPending())

	tx.MarkCompleted()
	assert.Equal(t, TransactionStatusCompleted, tx.Status)
	assert.NotNil(t, tx.CompletedAt)
	assert.False(t, tx.IsPending())

	tx2 := &LedgerTransaction{Status: TransactionStatusPending}
	tx2.MarkVoided()
	assert.Equal(t, TransactionStatusVoided, tx2.Status)
	assert.NotNil(t, tx2.CompletedAt)

	tx3 := &LedgerTransaction{Status: TransactionStatusPending}
	tx3.MarkFailed()
	assert.Equal(t, TransactionStatusFailed, tx3.Status)
}

func TestLedgerTransactionIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	expired := &LedgerTransaction{Status: TransactionStatusPending, ExpiresAt: &past}
	assert.True(t, expired.IsExpired(now))

	notYet := &LedgerTransaction{Status: TransactionStatusPending, ExpiresAt: &future}
	assert.False(t, notYet.IsExpired(now))

	noTimeout := &LedgerTransaction{Status: TransactionStatusPending}
	assert.False(t, noTimeout.IsExpired(now))

	completed := &LedgerTransaction{Status: TransactionStatusCompleted, ExpiresAt: &past}
	assert.False(t, completed.IsExpired(now))
}

func TestLedgerEntryValidate(t *testing.T) {
	valid := func() *LedgerEntry {
		return &LedgerEntry{
			ID:            uuid.New(),
			TransactionID: uuid.New(),
			AccountID:     uuid.New(),
			EntryType:     EntryTypeDebit,
			Amount:        decimal.NewFromInt(10),
		}
	}

	require.NoError(t, valid().Validate())

	zeroAmount := valid()
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negativeAmount := valid()
	negativeAmount.Amount = decimal.NewFromInt(-5)
	assert.Error(t, negativeAmount.Validate())

	missingAccount := valid()
	missingAccount.AccountID = uuid.Nil
	assert.Error(t, missingAccount.Validate())
}

func TestLedgerEntryDebitCredit(t *testing.T) {
	debit := &LedgerEntry{EntryType: EntryTypeDebit}
	assert.True(t, debit.IsDebit())
	assert.False(t, debit.IsCredit())

	credit := &LedgerEntry{EntryType: EntryTypeCredit}
	assert.True(t, credit.IsCredit())
	assert.False(t, credit.IsDebit())
}

func TestCreateTransactionRequestValidateBalanced(t *testing.T) {
	req := &CreateTransactionRequest{
		TransactionType: TransactionTypeTransfer,
		IdempotencyKey:  "key-1",
		Entries: []CreateEntryRequest{
			{AccountID: uuid.New(), EntryType: EntryTypeDebit, Amount: decimal.NewFromInt(100), AssetCode: "USD"},
			{AccountID: uuid.New(), EntryType: EntryTypeCredit, Amount: decimal.NewFromInt(100), AssetCode: "USD"},
		},
	}
	assert.NoError(t, req.Validate())
}

func TestCreateTransactionRequestValidateUnbalanced(t *testing.T) {
	req := &CreateTransactionRequest{
		TransactionType: TransactionTypeTransfer,
		IdempotencyKey:  "key-1",
		Entries: []CreateEntryRequest{
			{AccountID: uuid.New(), EntryType: EntryTypeDebit, Amount: decimal.NewFromInt(100), AssetCode: "USD"},
			{AccountID: uuid.New(), EntryType: EntryTypeCredit, Amount: decimal.NewFromInt(99), AssetCode: "USD"},
		},
	}
	assert.Error(t, req.Validate())
}

func TestCreateTransactionRequestValidateTooFewEntries(t *testing.T) {
	req := &CreateTransactionRequest{
		TransactionType: TransactionTypeTransfer,
		IdempotencyKey:  "key-1",
		Entries: []CreateEntryRequest{
			{AccountID: uuid.New(), EntryType: EntryTypeDebit, Amount: decimal.NewFromInt(100), AssetCode: "USD"},
		},
	}
	assert.Error(t, req.Validate())
}

func TestCreateTransactionRequestValidatePerAssetBalance(t *testing.T) {
	req := &CreateTransactionRequest{
		TransactionType: TransactionTypeTransfer,
		IdempotencyKey:  "key-1",
		Entries: []CreateEntryRequest{
			{AccountID: uuid.New(), EntryType: EntryTypeDebit, Amount: decimal.NewFromInt(50), AssetCode: "USD"},
			{AccountID: uuid.New(), EntryType: EntryTypeCredit, Amount: decimal.NewFromInt(100), AssetCode: "XRP"},
			{AccountID: uuid.New(), EntryType: EntryTypeDebit, Amount: decimal.NewFromInt(100), AssetCode: "XRP"},
			{AccountID: uuid.New(), EntryType: EntryTypeCredit, Amount: decimal.NewFromInt(50), AssetCode: "USD"},
		},
	}
	assert.NoError(t, req.Validate())
}

func TestCreateEntryRequestValidate(t *testing.T) {
	valid := CreateEntryRequest{
		AccountID: uuid.New(),
		EntryType: EntryTypeDebit,
		Amount:    decimal.NewFromInt(1),
		AssetCode: "USD",
	}
	assert.NoError(t, valid.Validate())

	noAsset := valid
	noAsset.AssetCode = ""
	assert.Error(t, noAsset.Validate())

	zero := valid
	zero.Amount = decimal.Zero
	assert.Error(t, zero.Validate())
}
