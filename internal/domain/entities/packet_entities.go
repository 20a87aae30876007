package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// ILPPacketType distinguishes the three ILPv4 packet frames.
type ILPPacketType int

const (
	ILPPacketTypePrepare ILPPacketType = 12
	ILPPacketTypeFulfill ILPPacketType = 13
	ILPPacketTypeReject  ILPPacketType = 14
)

// ILPPrepare is an ILPv4 prepare frame: a moneyed packet in flight toward
// destination, redeemable for ExecutionCondition's preimage before ExpiresAt.
type ILPPrepare struct {
	Amount              decimal.Decimal
	ExpiresAt           time.Time
	ExecutionCondition  [32]byte
	Destination         string
	Data                []byte
}

// ILPFulfill is the successful reply to a prepare: FulfillmentPreimage must
// hash (SHA-256) to the prepare's ExecutionCondition.
type ILPFulfill struct {
	FulfillmentPreimage [32]byte
	Data                []byte
}

// ILPReject is the unsuccessful reply to a prepare.
type ILPReject struct {
	Code    string // three-character F/T/R code, e.g. "F08"
	Message string
	TriggeredBy string
	Data    []byte
}
