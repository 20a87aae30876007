package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorError(t *testing.T) {
	withMessage := &DomainError{Message: "something broke"}
	assert.Equal(t, "something broke", withMessage.Error())

	withWrapped := &DomainError{Err: ErrNotFound}
	assert.Equal(t, ErrNotFound.Error(), withWrapped.Error())

	bare := &DomainError{Code: "SOME_CODE"}
	assert.Equal(t, "SOME_CODE", bare.Error())
}

func TestDomainErrorUnwrapAndIs(t *testing.T) {
	de := &DomainError{Err: ErrNotFound}
	assert.ErrorIs(t, de, ErrNotFound)
	assert.False(t, de.Is(ErrConflict))

	noWrapped := &DomainError{Code: "X"}
	assert.False(t, noWrapped.Is(ErrNotFound))
}

func TestDomainErrorWithDetailsAndRetryable(t *testing.T) {
	de := NewDomainError(ErrConflict, "CONFLICT", "already settled").
		WithDetails(map[string]interface{}{"id": "abc"}).
		WithRetryable(true)

	assert.Equal(t, "abc", de.Details["id"])
	assert.True(t, de.IsRetryable())
}

func TestKindErrorAndHasKind(t *testing.T) {
	err := KindError(KindInsufficientBalance, "not enough liquidity")
	assert.True(t, HasKind(err, KindInsufficientBalance))
	assert.False(t, HasKind(err, KindInsufficientGrant))
	assert.False(t, HasKind(errors.New("plain error"), KindInsufficientBalance))
}

func TestKindErrorfCarriesDetails(t *testing.T) {
	err := KindErrorf(KindAmountTooLarge, "packet exceeds cap", map[string]interface{}{"maxPacketAmount": "100"})
	assert.Equal(t, "100", err.Details["maxPacketAmount"])
	assert.Equal(t, string(KindAmountTooLarge), err.Code)
}

func TestILPCodeMapping(t *testing.T) {
	cases := map[ErrorKind]string{
		KindBadRequest:            "F01",
		KindUnreachableError:      "F02",
		KindWrongCondition:        "F05",
		KindUnexpectedPayment:     "F06",
		KindAmountTooLarge:        "F08",
		KindApplicationError:      "F99",
		KindPeerBusy:              "T01",
		KindInsufficientLiquidity: "T04",
		KindRateLimitExceeded:     "T05",
		KindTransferTimedOut:      "R00",
	}
	for kind, code := range cases {
		assert.Equal(t, code, ILPCode(kind), "kind %s", kind)
	}

	assert.Equal(t, "", ILPCode(KindInsufficientGrant))
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("plain")))

	retryable := (&DomainError{}).WithRetryable(true)
	assert.True(t, ShouldRetry(retryable))

	notRetryable := &DomainError{}
	assert.False(t, ShouldRetry(notRetryable))

	assert.True(t, ShouldRetry(ErrServiceUnavailable))
}

func TestGetErrorCodeAndDetails(t *testing.T) {
	de := NewDomainError(ErrInvalidInput, "VALIDATION_ERROR", "bad amount").
		WithDetails(map[string]interface{}{"field": "amount"})

	assert.Equal(t, "VALIDATION_ERROR", GetErrorCode(de))
	assert.Equal(t, "amount", GetErrorDetails(de)["field"])

	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
