package entities

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFeeApplyFixedAndBasisPoints(t *testing.T) {
	fee := &Fee{FixedFee: decimal.NewFromInt(150), BasisPointFee: 200}

	// spec scenario: fixed-delivery with a sending fee on an incoming
	// amount of 3364 (USD, scale 2) yields a debit amount of 3582.
	applied := fee.Apply(decimal.NewFromInt(3364))
	assert.True(t, applied.Equal(decimal.NewFromInt(218)), "expected fee of 218, got %s", applied.String())
	assert.True(t, decimal.NewFromInt(3364).Add(applied).Equal(decimal.NewFromInt(3582)))
}

func TestFeeApplyZeroFee(t *testing.T) {
	fee := &Fee{FixedFee: decimal.Zero, BasisPointFee: 0}
	applied := fee.Apply(decimal.NewFromInt(1000))
	assert.True(t, applied.IsZero())
}

func TestFeeApplyRoundsUp(t *testing.T) {
	// 10 basis points of 99 is 0.099, which must ceil to 1.
	fee := &Fee{FixedFee: decimal.Zero, BasisPointFee: 10}
	applied := fee.Apply(decimal.NewFromInt(99))
	assert.True(t, applied.Equal(decimal.NewFromInt(1)), "expected ceil to 1, got %s", applied.String())
}
