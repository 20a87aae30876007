package admin

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ilpcore/engine/internal/api/handlers"
	"github.com/ilpcore/engine/internal/domain/entities"
)

type createWalletAddressRequest struct {
	URL        string    `json:"url" binding:"required"`
	AssetID    uuid.UUID `json:"assetId" binding:"required"`
	PublicName *string   `json:"publicName"`
}

// createWalletAddress provisions a wallet address with no ledger account
// yet — accounts.WalletAddresses.EnsureLedgerAccount creates one lazily on
// the first credit, so an address that never receives anything never
// accrues ledger bookkeeping.
func (h *handlerSet) createWalletAddress(c *gin.Context) {
	var req createWalletAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}
	if _, err := h.deps.Assets.GetByID(c.Request.Context(), req.AssetID); err != nil {
		handlers.RespondError(c, err)
		return
	}

	wallet := &entities.WalletAddress{
		ID:         uuid.New(),
		URL:        req.URL,
		AssetID:    req.AssetID,
		PublicName: req.PublicName,
	}
	if err := h.deps.WalletAddresses.Create(c.Request.Context(), wallet); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, wallet)
}

func (h *handlerSet) getWalletAddress(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid wallet address id")
		return
	}
	wallet, err := h.deps.WalletAddresses.GetByID(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, wallet)
}

// triggerWalletAddressEvents manually runs the wallet-address
// web-monetization sweep for up to the requested number of due addresses,
// ahead of the worker's own tick, for operators who don't want to wait out
// the configured interval.
func (h *handlerSet) triggerWalletAddressEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	emitted := h.deps.WalletAddressWorker.TriggerEvents(c.Request.Context(), limit)
	handlers.RespondSuccess(c, gin.H{"emitted": emitted})
}
