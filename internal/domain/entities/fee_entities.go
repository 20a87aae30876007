package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeType distinguishes a fee charged on the sending side (inflates the
// debit amount) from one charged on the receiving side (reduces the
// receive amount).
type FeeType string

const (
	FeeTypeSending   FeeType = "Sending"
	FeeTypeReceiving FeeType = "Receiving"
)

// Fee is a linear fee schedule for one asset: a fixed component plus a
// basis-point component of the amount it applies to.
type Fee struct {
	ID            uuid.UUID `json:"id" db:"id"`
	AssetID       uuid.UUID `json:"assetId" db:"asset_id"`
	Type          FeeType   `json:"type" db:"type"`
	FixedFee      decimal.Decimal `json:"fixedFee" db:"fixed_fee"`
	BasisPointFee int64     `json:"basisPointFee" db:"basis_point_fee"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Apply returns fixedFee + ceil(amount * basisPointFee / 10000).
func (f *Fee) Apply(amount decimal.Decimal) decimal.Decimal {
	basisPoints := decimal.NewFromInt(f.BasisPointFee)
	proportional := amount.Mul(basisPoints).Div(decimal.NewFromInt(10000)).Ceil()
	return f.FixedFee.Add(proportional)
}
