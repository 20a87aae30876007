package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/api/handlers"
	"github.com/ilpcore/engine/internal/domain/entities"
)

type createPeerRequest struct {
	AssetID             uuid.UUID        `json:"assetId" binding:"required"`
	StaticIlpAddress    string           `json:"staticIlpAddress" binding:"required"`
	MaxPacketAmount     *decimal.Decimal `json:"maxPacketAmount"`
	HTTPIncomingToken   string           `json:"httpIncomingToken" binding:"required"`
	HTTPOutgoingToken   string           `json:"httpOutgoingToken" binding:"required"`
	HTTPOutgoingURL     string           `json:"httpOutgoingUrl" binding:"required"`
	LiquidityThreshold  *decimal.Decimal `json:"liquidityThreshold"`
}

// createPeer provisions a new peer and its liquidity account up front,
// mirroring createAsset — a peer routes packets from the moment it's
// created, so its account can't wait for the lazy EnsureLedgerAccount path
// the pipeline uses for incoming payments and wallet addresses.
func (h *handlerSet) createPeer(c *gin.Context) {
	var req createPeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}

	asset, err := h.deps.Assets.GetByID(c.Request.Context(), req.AssetID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	peerID := uuid.New()
	account, err := h.deps.Ledger.CreateLiquidityAccount(c.Request.Context(), entities.AccountKindPeer, peerID, asset.ID, asset.Code, asset.Scale)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	peer := &entities.Peer{
		ID:                  peerID,
		AssetID:             req.AssetID,
		StaticIlpAddress:    req.StaticIlpAddress,
		MaxPacketAmount:     req.MaxPacketAmount,
		HTTPIncomingToken:   req.HTTPIncomingToken,
		HTTPOutgoingToken:   req.HTTPOutgoingToken,
		HTTPOutgoingURL:     req.HTTPOutgoingURL,
		LiquidityThreshold:  req.LiquidityThreshold,
		LedgerAccountID:     account.ID,
	}
	if err := h.deps.Peers.Create(c.Request.Context(), peer); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, peer)
}

func (h *handlerSet) listPeers(c *gin.Context) {
	list, err := h.deps.Peers.List(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, list)
}

func (h *handlerSet) getPeer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid peer id")
		return
	}
	peer, err := h.deps.Peers.GetByID(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, peer)
}
