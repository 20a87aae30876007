// Package receivers resolves a connection or incoming-payment URL into
// the ILP destination + STREAM credentials a quote needs,
// the way the pipeline's account middleware resolves a bearer token into
// a peer: local addresses are read straight out of the repositories,
// remote ones go over the wire behind an Open Payments grant.
package receivers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Resolved is what a resolver call returns for either a local or a
// remote receiver, carrying the fields the quote engine needs regardless
// of which path produced them.
type Resolved struct {
	AssetCode       string
	AssetScale      int
	ILPAddress      string
	SharedSecret    [32]byte
	IncomingPayment *uuid.UUID
	IncomingAmount  *decimal.Decimal
	ReceivedAmount  *decimal.Decimal
	ExpiresAt       *time.Time
}

// IsExpired reports whether the receiver's own deadline has already
// passed, the Completed/Expired check the quote engine applies before
// quoting against it.
func (r *Resolved) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// IsComplete reports whether the receiver has already received its full
// incoming amount, the other half of the quote engine's Completed/Expired
// rejection.
func (r *Resolved) IsComplete() bool {
	return r.IncomingAmount != nil && r.ReceivedAmount != nil && r.ReceivedAmount.GreaterThanOrEqual(*r.IncomingAmount)
}
