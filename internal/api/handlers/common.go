// Package handlers holds the shared response envelope and parsing
// helpers used by the admin HTTP surface (internal/api/admin).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "github.com/ilpcore/engine/internal/domain/errors"
)

// Envelope is the response shape every admin endpoint returns: {code,
// success, message?, error?, data?}, per SPEC_FULL.md §4.8.
type Envelope struct {
	Code    int         `json:"code"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// GetActorID extracts the authenticated admin caller's ID, set by the
// JWT middleware.
func GetActorID(c *gin.Context) (uuid.UUID, error) {
	actorIDVal, exists := c.Get("actor_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("actor ID not found in context")
	}

	switch v := actorIDVal.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid actor ID type in context")
	}
}

// GetRequestID extracts the request ID set by middleware.RequestID.
func GetRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// RespondSuccess sends a 200 OK envelope wrapping data.
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Code: http.StatusOK, Success: true, Data: data})
}

// RespondCreated sends a 201 Created envelope wrapping data.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Code: http.StatusCreated, Success: true, Data: data})
}

// RespondNoContent sends a 204 No Content response.
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondError sends an error envelope, picking the HTTP status and
// ErrorKind-derived code from err. DomainErrors carry their ErrorKind in
// Code; other errors are matched against the domain sentinel errors
// (ErrNotFound, ErrConflict, ...), and anything unrecognised maps to a
// generic internal error.
func RespondError(c *gin.Context, err error) {
	status, kind := classify(err)
	c.JSON(status, Envelope{
		Code:    status,
		Success: false,
		Error:   kind,
		Message: err.Error(),
	})
}

func classify(err error) (int, string) {
	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		switch domainerrors.ErrorKind(de.Code) {
		case domainerrors.KindInvalidID, domainerrors.KindInvalidAmount, domainerrors.KindInvalidReceiver, domainerrors.KindInvalidQuote, domainerrors.KindBadRequest:
			return http.StatusBadRequest, de.Code
		case domainerrors.KindUnknownAsset, domainerrors.KindUnknownPeer, domainerrors.KindUnknownWalletAddr, domainerrors.KindUnknownQuote, domainerrors.KindUnknownPayment, domainerrors.KindUnknownTransfer, domainerrors.KindUnknownIncoming:
			return http.StatusNotFound, de.Code
		case domainerrors.KindAccountAlreadyExist, domainerrors.KindAlreadyPosted, domainerrors.KindAlreadyVoided, domainerrors.KindTransferExists, domainerrors.KindWrongState:
			return http.StatusConflict, de.Code
		case domainerrors.KindInsufficientBalance, domainerrors.KindInsufficientGrant, domainerrors.KindInsufficientLiquidity:
			return http.StatusUnprocessableEntity, de.Code
		case domainerrors.KindRateLimitExceeded:
			return http.StatusTooManyRequests, de.Code
		}
		if de.Code != "" {
			return http.StatusBadRequest, de.Code
		}
	}
	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domainerrors.ErrAlreadyExists), errors.Is(err, domainerrors.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domainerrors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domainerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domainerrors.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domainerrors.ErrRateLimit):
		return http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"
	case errors.Is(err, domainerrors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// RespondBadRequest sends a 400 envelope with a plain message, for
// request-parsing failures that never reach a domain service.
func RespondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Code: http.StatusBadRequest, Success: false, Error: "INVALID_REQUEST", Message: message})
}

// ParseDecimal parses a string to decimal.Decimal.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty decimal string")
	}
	return decimal.NewFromString(s)
}

// ParseTime parses a string to time.Time (RFC3339 format).
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	return time.Parse(time.RFC3339, s)
}

// ParseUUID parses a string to uuid.UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("empty UUID string")
	}
	return uuid.Parse(s)
}

// ParseIntParam parses a query parameter to int with a default value.
func ParseIntParam(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}
