package errors

// ErrorKind is a stable, wire-visible error identifier. Admin responses
// surface it in the `error` field of the response envelope; the packet
// pipeline maps the ILP-tagged subset onto F/T/R reject codes.
type ErrorKind string

const (
	// Input
	KindInvalidID       ErrorKind = "InvalidId"
	KindInvalidAmount   ErrorKind = "InvalidAmount"
	KindInvalidReceiver ErrorKind = "InvalidReceiver"
	KindInvalidQuote    ErrorKind = "InvalidQuote"

	// Not found
	KindUnknownAsset        ErrorKind = "UnknownAsset"
	KindUnknownPeer         ErrorKind = "UnknownPeer"
	KindUnknownWalletAddr   ErrorKind = "UnknownWalletAddress"
	KindUnknownQuote        ErrorKind = "UnknownQuote"
	KindUnknownPayment      ErrorKind = "UnknownPayment"
	KindUnknownTransfer     ErrorKind = "UnknownTransfer"
	KindUnknownIncoming     ErrorKind = "UnknownIncomingPayment"
	KindAccountAlreadyExist ErrorKind = "AccountAlreadyExists"

	// State
	KindInactiveWalletAddr ErrorKind = "InactiveWalletAddress"
	KindWrongState         ErrorKind = "WrongState"
	KindAlreadyPosted      ErrorKind = "AlreadyPosted"
	KindAlreadyVoided      ErrorKind = "AlreadyVoided"
	KindTransferExists     ErrorKind = "TransferExists"

	// Resource
	KindInsufficientBalance ErrorKind = "InsufficientBalance"
	KindInsufficientGrant   ErrorKind = "InsufficientGrant"

	// Lifecycle
	KindSourceAssetConflict        ErrorKind = "SourceAssetConflict"
	KindDestinationAssetConflict   ErrorKind = "DestinationAssetConflict"
	KindReceiverProtocolViolation  ErrorKind = "ReceiverProtocolViolation"
	KindRateProbeFailed            ErrorKind = "RateProbeFailed"
	KindIdleTimeout                ErrorKind = "IdleTimeout"
	KindClosedByReceiver           ErrorKind = "ClosedByReceiver"
	KindEstablishmentFailed        ErrorKind = "EstablishmentFailed"
	KindInsufficientExchangeRate   ErrorKind = "InsufficientExchangeRate"
	KindConnectorError             ErrorKind = "ConnectorError"
	KindIncompatibleReceiveMax     ErrorKind = "IncompatibleReceiveMax"
	KindInvalidGeneratedSequence   ErrorKind = "InvalidGeneratedSequence"
	KindReceiverError              ErrorKind = "ReceiverError"

	// ILP (F/T/R-tagged)
	KindUnreachableError      ErrorKind = "UnreachableError"      // F02
	KindAmountTooLarge        ErrorKind = "AmountTooLarge"        // F08
	KindWrongCondition        ErrorKind = "WrongCondition"        // F05
	KindTransferTimedOut      ErrorKind = "TransferTimedOut"      // R00
	KindInsufficientLiquidity ErrorKind = "InsufficientLiquidity" // T04
	KindRateLimitExceeded     ErrorKind = "RateLimitExceeded"     // T05
	KindPeerBusy              ErrorKind = "PeerBusy"              // T01
	KindUnexpectedPayment     ErrorKind = "UnexpectedPayment"     // F06
	KindBadRequest            ErrorKind = "BadRequest"            // F01
	KindApplicationError      ErrorKind = "ApplicationError"      // F99
	KindInternalError         ErrorKind = "T00"                   // no ILPCode case; pipeline rejects carry F99
)

// ILPCode is the three-character IL-Error code ("F02", "T04", ...)
// corresponding to a given ILP-tagged ErrorKind. Returns "" for kinds that
// are admin-only and never serialized onto the wire.
func ILPCode(kind ErrorKind) string {
	switch kind {
	case KindBadRequest:
		return "F01"
	case KindUnreachableError:
		return "F02"
	case KindWrongCondition:
		return "F05"
	case KindUnexpectedPayment:
		return "F06"
	case KindAmountTooLarge:
		return "F08"
	case KindApplicationError:
		return "F99"
	case KindPeerBusy:
		return "T01"
	case KindInsufficientLiquidity:
		return "T04"
	case KindRateLimitExceeded:
		return "T05"
	case KindTransferTimedOut:
		return "R00"
	default:
		return ""
	}
}

// KindError builds a DomainError carrying the given ErrorKind as its Code.
func KindError(kind ErrorKind, message string) *DomainError {
	return &DomainError{
		Code:    string(kind),
		Message: message,
	}
}

// KindErrorf is KindError with details attached.
func KindErrorf(kind ErrorKind, message string, details map[string]interface{}) *DomainError {
	return &DomainError{
		Code:    string(kind),
		Message: message,
		Details: details,
	}
}

// HasKind reports whether err is a DomainError carrying the given kind.
func HasKind(err error, kind ErrorKind) bool {
	de, ok := err.(*DomainError)
	if !ok {
		return false
	}
	return de.Code == string(kind)
}
