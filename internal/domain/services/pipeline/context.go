// Package pipeline implements the packet pipeline: a fixed, ordered chain
// of stage functions that carries one ILP prepare packet from an
// authenticated incoming peer to its resolved destination and back,
// preparing exactly one ledger transfer per attempt.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// AccountRef names one side of the packet's ledger transfer: its ledger
// account, the asset it is denominated in, and which domain object (peer,
// incoming payment, wallet address) owns it.
type AccountRef struct {
	AccountID  uuid.UUID
	AssetID    uuid.UUID
	AssetCode  string
	AssetScale int

	Peer            *entities.Peer
	IncomingPayment *entities.IncomingPayment
	WalletAddress   *entities.WalletAddress
}

// Accounts holds the two resolved sides of a packet: incoming (the
// authenticated sender) and outgoing (the resolved destination).
type Accounts struct {
	Incoming AccountRef
	Outgoing AccountRef
}

// PacketContext is the shared mutable state threaded through every stage.
// A stage mutates it in place and returns an error to short-circuit the
// remaining chain.
type PacketContext struct {
	Ctx context.Context

	Prepare *entities.ILPPrepare

	// StreamDestination is the incoming-payment id extracted from a
	// STREAM-encoded destination address, set by the stream-address stage.
	StreamDestination *uuid.UUID

	Accounts Accounts

	// DestinationAmount is the outgoing amount after any cross-asset rate
	// conversion; equals Prepare.Amount when incoming and outgoing share
	// an asset.
	DestinationAmount decimal.Decimal

	// ClampedExpiresAt is Prepare.ExpiresAt capped at now plus the
	// pipeline's DefaultMaxHoldTime.
	ClampedExpiresAt time.Time

	// TransferID identifies the ledger transfer reserved for this packet
	// attempt, set by the balance stage.
	TransferID uuid.UUID
	postTransfer func(context.Context) error
	voidTransfer func(context.Context) error

	// IsILDCP marks a packet the ILDCP responder already answered; later
	// stages that require a resolved outgoing account skip over it.
	IsILDCP bool

	Fulfill *entities.ILPFulfill
	Reject  *entities.ILPReject
}

// Rejected reports whether a prior stage already produced a reject.
func (pc *PacketContext) Rejected() bool {
	return pc.Reject != nil
}

// Settled reports whether the pipeline has a final fulfill or reject.
func (pc *PacketContext) Settled() bool {
	return pc.Fulfill != nil || pc.Reject != nil || pc.IsILDCP
}
