package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/api/handlers"
	"github.com/ilpcore/engine/internal/domain/services/quotes"
)

type createQuoteRequest struct {
	WalletAddressID uuid.UUID        `json:"walletAddressId" binding:"required"`
	Receiver        string           `json:"receiver" binding:"required"`
	DebitAmount     *decimal.Decimal `json:"debitAmount"`
	ReceiveAmount   *decimal.Decimal `json:"receiveAmount"`
	Client          *string          `json:"client"`
}

func (h *handlerSet) createQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}

	quote, err := h.deps.QuoteSvc.CreateQuote(c.Request.Context(), quotes.CreateRequest{
		WalletAddressID: req.WalletAddressID,
		Receiver:        req.Receiver,
		DebitAmount:     req.DebitAmount,
		ReceiveAmount:   req.ReceiveAmount,
		Client:          req.Client,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, quote)
}

func (h *handlerSet) getQuote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid quote id")
		return
	}
	quote, err := h.deps.Quotes.GetByID(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, quote)
}
