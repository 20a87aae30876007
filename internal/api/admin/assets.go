package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/api/handlers"
	"github.com/ilpcore/engine/internal/domain/entities"
)

type createAssetRequest struct {
	Code                string           `json:"code" binding:"required"`
	Scale               int              `json:"scale" binding:"required"`
	WithdrawalThreshold *decimal.Decimal `json:"withdrawalThreshold"`
}

// createAsset provisions a new asset together with its settlement ledger
// account, in the same way the pipeline lazily provisions peer/payment
// accounts — except an asset's account is created eagerly, since every
// other account's liquidity ultimately nets against it.
func (h *handlerSet) createAsset(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}

	assetID := uuid.New()
	account, err := h.deps.Ledger.CreateLiquidityAccount(c.Request.Context(), entities.AccountKindAsset, assetID, assetID, req.Code, req.Scale)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	asset := &entities.Asset{
		ID:                  assetID,
		Code:                req.Code,
		Scale:               req.Scale,
		WithdrawalThreshold: req.WithdrawalThreshold,
		LedgerAccountID:     account.ID,
	}
	if err := h.deps.Assets.Create(c.Request.Context(), asset); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, asset)
}

func (h *handlerSet) listAssets(c *gin.Context) {
	list, err := h.deps.Assets.List(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, list)
}

func (h *handlerSet) getAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid asset id")
		return
	}
	asset, err := h.deps.Assets.GetByID(c.Request.Context(), id)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, asset)
}

type setFeeRequest struct {
	FixedFee      decimal.Decimal `json:"fixedFee"`
	BasisPointFee int64           `json:"basisPointFee"`
}

func (h *handlerSet) setSendingFee(c *gin.Context) {
	h.setFee(c, entities.FeeTypeSending)
}

func (h *handlerSet) setReceivingFee(c *gin.Context) {
	h.setFee(c, entities.FeeTypeReceiving)
}

// setFee records a new fee schedule entry for an asset. Fees are
// append-only: GetLatestByAsset always resolves the most recently created
// row, so "updating" a fee means inserting a newer one rather than
// mutating history quotes were already priced against.
func (h *handlerSet) setFee(c *gin.Context, feeType entities.FeeType) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid asset id")
		return
	}
	var req setFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}
	if _, err := h.deps.Assets.GetByID(c.Request.Context(), assetID); err != nil {
		handlers.RespondError(c, err)
		return
	}

	fee := &entities.Fee{
		ID:            uuid.New(),
		AssetID:       assetID,
		Type:          feeType,
		FixedFee:      req.FixedFee,
		BasisPointFee: req.BasisPointFee,
	}
	if err := h.deps.Fees.Create(c.Request.Context(), fee); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, fee)
}
