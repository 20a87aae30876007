package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ilpcore/engine/internal/api/handlers"
	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/domain/services/payments"
	"github.com/ilpcore/engine/internal/domain/services/receivers"
)

type createIncomingPaymentRequest struct {
	WalletAddressID uuid.UUID      `json:"walletAddressId" binding:"required"`
	IncomingAmount  *entities.Money `json:"incomingAmount"`
	ExpiresAt       *time.Time     `json:"expiresAt"`
	Metadata        map[string]any `json:"metadata"`
}

// createIncomingPayment provisions a receiver via the same resolver the
// quote engine uses, so an admin-created incoming payment resolves
// identically to one discovered through a quote. Only wallet addresses
// this node hosts are accepted.
func (h *handlerSet) createIncomingPayment(c *gin.Context) {
	var req createIncomingPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}
	wallet, err := h.deps.WalletAddresses.GetByID(c.Request.Context(), req.WalletAddressID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	resolved, err := h.deps.Receivers.CreateReceiver(c.Request.Context(), receivers.CreateRequest{
		WalletAddressID: req.WalletAddressID,
		IncomingAmount:  req.IncomingAmount,
		ExpiresAt:       req.ExpiresAt,
		Metadata:        req.Metadata,
	}, wallet.URL)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, resolved)
}

func (h *handlerSet) getIncomingPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid incoming payment id")
		return
	}
	payment, err := h.deps.IncomingPayments.GetByID(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, payment)
}

type createOutgoingPaymentRequest struct {
	WalletAddressID uuid.UUID             `json:"walletAddressId" binding:"required"`
	QuoteID         uuid.UUID             `json:"quoteId" binding:"required"`
	Metadata        map[string]any        `json:"metadata"`
	GrantID         *uuid.UUID            `json:"grantId"`
	GrantLimits     *entities.GrantLimits `json:"grantLimits"`
	Client          *string               `json:"client"`
}

func (h *handlerSet) createOutgoingPayment(c *gin.Context) {
	var req createOutgoingPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.deps.PaymentSvc.CreatePayment(c.Request.Context(), payments.CreateRequest{
		WalletAddressID: req.WalletAddressID,
		QuoteID:         req.QuoteID,
		Metadata:        req.Metadata,
		GrantID:         req.GrantID,
		GrantLimits:     req.GrantLimits,
		Client:          req.Client,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, payment)
}

func (h *handlerSet) getOutgoingPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid outgoing payment id")
		return
	}
	payment, err := h.deps.OutgoingPayments.GetByID(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, payment)
}
