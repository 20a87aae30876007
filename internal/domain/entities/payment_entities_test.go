package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIncomingPaymentStateIsTerminal(t *testing.T) {
	assert.True(t, IncomingPaymentCompleted.IsTerminal())
	assert.True(t, IncomingPaymentExpired.IsTerminal())
	assert.False(t, IncomingPaymentPending.IsTerminal())
	assert.False(t, IncomingPaymentProcessing.IsTerminal())
}

func TestIncomingPaymentIsComplete(t *testing.T) {
	fixed := decimal.NewFromInt(100)

	exact := &IncomingPayment{IncomingAmount: &fixed, ReceivedAmount: decimal.NewFromInt(100)}
	assert.True(t, exact.IsComplete())

	over := &IncomingPayment{IncomingAmount: &fixed, ReceivedAmount: decimal.NewFromInt(150)}
	assert.True(t, over.IsComplete())

	under := &IncomingPayment{IncomingAmount: &fixed, ReceivedAmount: decimal.NewFromInt(99)}
	assert.False(t, under.IsComplete())

	noFixedAmount := &IncomingPayment{ReceivedAmount: decimal.NewFromInt(100000)}
	assert.False(t, noFixedAmount.IsComplete())
}

func TestIncomingPaymentIsExpired(t *testing.T) {
	now := time.Now()
	past := &IncomingPayment{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, past.IsExpired(now))

	future := &IncomingPayment{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, future.IsExpired(now))
}

func TestQuoteIsExpired(t *testing.T) {
	now := time.Now()
	expired := &Quote{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, expired.IsExpired(now))

	fresh := &Quote{ExpiresAt: now.Add(time.Second)}
	assert.False(t, fresh.IsExpired(now))
}

func TestQuoteDebitAndReceiveMoney(t *testing.T) {
	q := &Quote{
		DebitAmount:       decimal.NewFromInt(3582),
		DebitAssetCode:    "USD",
		DebitAssetScale:   2,
		ReceiveAmount:     decimal.NewFromInt(3364),
		ReceiveAssetCode:  "USD",
		ReceiveAssetScale: 2,
	}

	debit := q.DebitMoney()
	assert.True(t, debit.Value.Equal(decimal.NewFromInt(3582)))
	assert.Equal(t, "USD", debit.AssetCode)
	assert.Equal(t, 2, debit.AssetScale)

	receive := q.ReceiveMoney()
	assert.True(t, receive.Value.Equal(decimal.NewFromInt(3364)))
}

func TestOutgoingPaymentStateIsTerminal(t *testing.T) {
	assert.True(t, OutgoingPaymentCompleted.IsTerminal())
	assert.True(t, OutgoingPaymentFailed.IsTerminal())
	assert.False(t, OutgoingPaymentFunding.IsTerminal())
	assert.False(t, OutgoingPaymentSending.IsTerminal())
}

func TestOutgoingPaymentRemainingAmount(t *testing.T) {
	debitAmount := decimal.NewFromInt(100)

	partial := &OutgoingPayment{SentAmount: decimal.NewFromInt(50)}
	assert.True(t, partial.RemainingAmount(debitAmount).Equal(decimal.NewFromInt(50)))

	full := &OutgoingPayment{SentAmount: decimal.NewFromInt(100)}
	assert.True(t, full.RemainingAmount(debitAmount).IsZero())

	overSent := &OutgoingPayment{SentAmount: decimal.NewFromInt(150)}
	assert.True(t, overSent.RemainingAmount(debitAmount).IsZero())
}

func TestOutgoingPaymentGrantAndLimitsShapes(t *testing.T) {
	grant := OutgoingPaymentGrant{ID: uuid.New()}
	assert.NotEqual(t, uuid.Nil, grant.ID)

	receiver := "https://wallet.example/alice"
	limits := GrantLimits{
		Receiver:    &receiver,
		DebitAmount: &Money{Value: decimal.NewFromInt(200), AssetCode: "USD", AssetScale: 2},
	}
	assert.Equal(t, receiver, *limits.Receiver)
	assert.True(t, limits.DebitAmount.Value.Equal(decimal.NewFromInt(200)))
}
