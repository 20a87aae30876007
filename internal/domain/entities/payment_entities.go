package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IncomingPaymentState is the lifecycle state of an incoming payment.
type IncomingPaymentState string

const (
	IncomingPaymentPending    IncomingPaymentState = "Pending"
	IncomingPaymentProcessing IncomingPaymentState = "Processing"
	IncomingPaymentCompleted  IncomingPaymentState = "Completed"
	IncomingPaymentExpired    IncomingPaymentState = "Expired"
)

// IsTerminal reports whether the state accepts no further credits.
func (s IncomingPaymentState) IsTerminal() bool {
	return s == IncomingPaymentCompleted || s == IncomingPaymentExpired
}

// IncomingPayment tracks inbound STREAM credits toward a wallet address.
// Its ledger account (kind AccountKindIncomingPayment) is created lazily
// on the first credit attempt.
type IncomingPayment struct {
	ID              uuid.UUID             `json:"id" db:"id"`
	WalletAddressID uuid.UUID             `json:"walletAddressId" db:"wallet_address_id"`
	AssetID         uuid.UUID             `json:"assetId" db:"asset_id"`
	IncomingAmount  *decimal.Decimal      `json:"incomingAmount,omitempty" db:"incoming_amount"`
	ReceivedAmount  decimal.Decimal       `json:"receivedAmount" db:"received_amount"`
	State           IncomingPaymentState  `json:"state" db:"state"`
	ExpiresAt       time.Time             `json:"expiresAt" db:"expires_at"`
	ConnectionID    *uuid.UUID            `json:"connectionId,omitempty" db:"connection_id"`
	Metadata        map[string]any        `json:"metadata,omitempty" db:"metadata"`
	ProcessAt       *time.Time            `json:"processAt,omitempty" db:"process_at"`
	LedgerAccountID *uuid.UUID            `json:"-" db:"ledger_account_id"`
	CreatedAt       time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time             `json:"updatedAt" db:"updated_at"`
}

// IsComplete reports whether the received amount has satisfied the fixed
// incoming amount, when one was specified.
func (p *IncomingPayment) IsComplete() bool {
	return p.IncomingAmount != nil && p.ReceivedAmount.GreaterThanOrEqual(*p.IncomingAmount)
}

// IsExpired reports whether the payment's deadline has passed.
func (p *IncomingPayment) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Quote is an immutable, single-use commitment of source/destination
// amounts and exchange rate bounds, consumed by exactly one outgoing
// payment.
type Quote struct {
	ID                       uuid.UUID       `json:"id" db:"id"`
	WalletAddressID          uuid.UUID       `json:"walletAddressId" db:"wallet_address_id"`
	AssetID                  uuid.UUID       `json:"assetId" db:"asset_id"`
	Receiver                 string          `json:"receiver" db:"receiver"`
	DebitAmount              decimal.Decimal `json:"debitAmount" db:"debit_amount"`
	DebitAssetCode           string          `json:"debitAssetCode" db:"debit_asset_code"`
	DebitAssetScale          int             `json:"debitAssetScale" db:"debit_asset_scale"`
	ReceiveAmount            decimal.Decimal `json:"receiveAmount" db:"receive_amount"`
	ReceiveAssetCode         string          `json:"receiveAssetCode" db:"receive_asset_code"`
	ReceiveAssetScale        int             `json:"receiveAssetScale" db:"receive_asset_scale"`
	MaxPacketAmount          decimal.Decimal `json:"maxPacketAmount" db:"max_packet_amount"`
	MinExchangeRate          decimal.Decimal `json:"minExchangeRate" db:"min_exchange_rate"`
	LowEstimatedExchangeRate decimal.Decimal `json:"lowEstimatedExchangeRate" db:"low_estimated_exchange_rate"`
	HighEstimatedExchangeRate decimal.Decimal `json:"highEstimatedExchangeRate" db:"high_estimated_exchange_rate"`
	FeeID                    *uuid.UUID      `json:"feeId,omitempty" db:"fee_id"`
	ExpiresAt                time.Time       `json:"expiresAt" db:"expires_at"`
	Client                   *string         `json:"client,omitempty" db:"client"`
	CreatedAt                time.Time       `json:"createdAt" db:"created_at"`
}

// IsExpired reports whether the quote can no longer be consumed.
func (q *Quote) IsExpired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// DebitMoney returns the quote's source-side amount as a Money value.
func (q *Quote) DebitMoney() Money {
	return Money{Value: q.DebitAmount, AssetCode: q.DebitAssetCode, AssetScale: q.DebitAssetScale}
}

// ReceiveMoney returns the quote's destination-side amount as a Money value.
func (q *Quote) ReceiveMoney() Money {
	return Money{Value: q.ReceiveAmount, AssetCode: q.ReceiveAssetCode, AssetScale: q.ReceiveAssetScale}
}

// OutgoingPaymentState is the lifecycle state of an outgoing payment.
type OutgoingPaymentState string

const (
	OutgoingPaymentFunding   OutgoingPaymentState = "Funding"
	OutgoingPaymentSending   OutgoingPaymentState = "Sending"
	OutgoingPaymentCompleted OutgoingPaymentState = "Completed"
	OutgoingPaymentFailed    OutgoingPaymentState = "Failed"
)

// IsTerminal reports whether the payment has reached Completed or Failed.
func (s OutgoingPaymentState) IsTerminal() bool {
	return s == OutgoingPaymentCompleted || s == OutgoingPaymentFailed
}

// OutgoingPayment drives a funded send toward a quote's receiver. Its ID
// equals its quote's ID — a quote is consumed by at most one payment.
type OutgoingPayment struct {
	ID              uuid.UUID            `json:"id" db:"id"`
	WalletAddressID uuid.UUID            `json:"walletAddressId" db:"wallet_address_id"`
	QuoteID         uuid.UUID            `json:"quoteId" db:"quote_id"`
	State           OutgoingPaymentState `json:"state" db:"state"`
	SentAmount      decimal.Decimal      `json:"sentAmount" db:"sent_amount"`
	StateAttempts   int                  `json:"stateAttempts" db:"state_attempts"`
	Error           *string              `json:"error,omitempty" db:"error"`
	PeerID          *uuid.UUID           `json:"peerId,omitempty" db:"peer_id"`
	GrantID         *uuid.UUID           `json:"grantId,omitempty" db:"grant_id"`
	Metadata        map[string]any       `json:"metadata,omitempty" db:"metadata"`
	Client          *string              `json:"client,omitempty" db:"client"`
	ProcessAt       *time.Time           `json:"processAt,omitempty" db:"process_at"`
	LedgerAccountID uuid.UUID            `json:"-" db:"ledger_account_id"`
	CreatedAt       time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time            `json:"updatedAt" db:"updated_at"`
}

// RemainingAmount returns debitAmount - sentAmount, the residual amount to
// withdraw on terminal transition.
func (p *OutgoingPayment) RemainingAmount(debitAmount decimal.Decimal) decimal.Decimal {
	remaining := debitAmount.Sub(p.SentAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// OutgoingPaymentGrant is a lock token and accounting anchor shared by
// every outgoing payment created under the same authorization grant.
type OutgoingPaymentGrant struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// GrantLimits bounds what payments created under a grant may spend,
// optionally restricted to a receiver, a debit or receive amount cap, and
// a repeating ISO 8601 interval the cap resets on.
type GrantLimits struct {
	Receiver      *string          `json:"receiver,omitempty"`
	DebitAmount   *Money           `json:"debitAmount,omitempty"`
	ReceiveAmount *Money           `json:"receiveAmount,omitempty"`
	Interval      *string          `json:"interval,omitempty"`
}

// WebhookEventType names the kinds of events the dispatcher delivers.
type WebhookEventType string

const (
	EventOutgoingPaymentCreated       WebhookEventType = "outgoing_payment.created"
	EventOutgoingPaymentCompleted     WebhookEventType = "outgoing_payment.completed"
	EventOutgoingPaymentFailed       WebhookEventType = "outgoing_payment.failed"
	EventIncomingPaymentCreated       WebhookEventType = "incoming_payment.created"
	EventIncomingPaymentCompleted     WebhookEventType = "incoming_payment.completed"
	EventIncomingPaymentExpired       WebhookEventType = "incoming_payment.expired"
	EventWalletAddressWebMonetization WebhookEventType = "wallet_address.web_monetization"
	EventWalletAddressNotFound        WebhookEventType = "wallet_address.not_found"
)

// WebhookWithdrawal describes a liquidity withdrawal an event consumer is
// expected to settle out-of-band against the named account.
type WebhookWithdrawal struct {
	AccountID uuid.UUID       `json:"accountId"`
	AssetID   uuid.UUID       `json:"assetId"`
	Amount    decimal.Decimal `json:"amount"`
}

// WebhookEvent is an append-only record of a state change, written in the
// same transaction as the change it reports and garbage-collected after
// successful delivery.
type WebhookEvent struct {
	ID         uuid.UUID          `json:"id" db:"id"`
	Type       WebhookEventType   `json:"type" db:"type"`
	Data       map[string]any     `json:"data" db:"data"`
	ProcessAt  *time.Time         `json:"processAt,omitempty" db:"process_at"`
	Attempts   int                `json:"attempts" db:"attempts"`
	Withdrawal *WebhookWithdrawal `json:"withdrawal,omitempty" db:"withdrawal"`
	StatusCode *int               `json:"statusCode,omitempty" db:"status_code"`
	CreatedAt  time.Time          `json:"createdAt" db:"created_at"`
}
