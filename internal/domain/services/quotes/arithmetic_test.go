package quotes

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// CreateQuote itself pulls in concrete *repositories.* struct pointers, so
// it cannot be exercised without a database. These tests instead replicate
// CreateQuote's rate/fee arithmetic directly against entities.Fee.Apply,
// pinning the formula to the scenarios in the testable-properties spec.
func applyReceiveAmountSpecified(receiveAmount, lowRate decimal.Decimal, fee *entities.Fee) decimal.Decimal {
	debitAmount := receiveAmount.Div(lowRate)
	if fee != nil {
		debitAmount = debitAmount.Add(fee.Apply(debitAmount))
	}
	return debitAmount
}

func applyDebitAmountSpecified(debitAmount, lowRate decimal.Decimal, fee *entities.Fee) decimal.Decimal {
	gross := debitAmount.Mul(lowRate)
	if fee != nil {
		gross = gross.Sub(fee.Apply(gross))
	}
	return gross
}

func TestFixedDeliveryWithSendingFee(t *testing.T) {
	// USD scale 2, incoming amount 3364, fee{fixed:150, basisPoints:200},
	// slippage 0 -> debitAmount = 3582.
	fee := &entities.Fee{FixedFee: decimal.NewFromInt(150), BasisPointFee: 200}
	lowRate := decimal.NewFromInt(1)

	debitAmount := applyReceiveAmountSpecified(decimal.NewFromInt(3364), lowRate, fee)

	assert.True(t, debitAmount.Equal(decimal.NewFromInt(3582)), "expected 3582, got %s", debitAmount.String())
}

func TestFixedSendCrossAssetReceiveAmount(t *testing.T) {
	// Wallet A USD scale 9, wallet B XRP scale 9, rate 0.5, debitAmount
	// 123 USD -> receiveAmount approximately 61 (no fee configured).
	lowRate := decimal.NewFromFloat(0.5)
	debitAmount := decimal.NewFromInt(123)

	receiveAmount := applyDebitAmountSpecified(debitAmount, lowRate, nil)

	assert.True(t, receiveAmount.Equal(decimal.NewFromFloat(61.5)), "expected 61.5, got %s", receiveAmount.String())
}

func TestMinExchangeRateAppliesSlippage(t *testing.T) {
	lowRate := decimal.NewFromFloat(0.5)
	slippage := decimal.NewFromFloat(0.01)

	minRate := lowRate.Mul(decimal.NewFromInt(1).Sub(slippage))

	assert.True(t, minRate.Equal(decimal.NewFromFloat(0.495)), "expected 0.495, got %s", minRate.String())
}

func TestMinExchangeRateWithZeroSlippageEqualsLowRate(t *testing.T) {
	lowRate := decimal.NewFromFloat(0.5)
	minRate := lowRate.Mul(decimal.NewFromInt(1).Sub(decimal.Zero))

	assert.True(t, minRate.Equal(lowRate))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Slippage.Equal(decimal.NewFromFloat(0.01)))
}
