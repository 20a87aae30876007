package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/api/handlers"
	"github.com/ilpcore/engine/internal/domain/entities"
)

type depositRequest struct {
	ReferenceID *uuid.UUID      `json:"referenceId"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

// addAssetLiquidity credits an asset's settlement account directly
// through the single-phase CreateDeposit, the same call that funds an
// outgoing payment — an asset top-up never needs the two-phase
// reserve-then-post flow a withdrawal does, since the funds already exist.
func (h *handlerSet) addAssetLiquidity(c *gin.Context) {
	h.deposit(c, h.assetAccount)
}

func (h *handlerSet) addPeerLiquidity(c *gin.Context) {
	h.deposit(c, h.peerAccount)
}

func (h *handlerSet) deposit(c *gin.Context, resolveAccount func(*gin.Context) (uuid.UUID, error)) {
	accountID, err := resolveAccount(c)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}
	referenceID := uuid.New()
	if req.ReferenceID != nil {
		referenceID = *req.ReferenceID
	}
	if err := h.deps.Ledger.CreateDeposit(c.Request.Context(), referenceID, accountID, req.Amount); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, gin.H{"referenceId": referenceID, "accountId": accountID, "amount": req.Amount})
}

type createWithdrawalRequest struct {
	ReferenceID    *uuid.UUID      `json:"referenceId"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	TimeoutSeconds *int64          `json:"timeoutSeconds"`
}

func (h *handlerSet) createAssetWithdrawal(c *gin.Context) {
	h.createWithdrawal(c, h.assetAccount)
}

func (h *handlerSet) createPeerWithdrawal(c *gin.Context) {
	h.createWithdrawal(c, h.peerAccount)
}

func (h *handlerSet) createWalletAddressWithdrawal(c *gin.Context) {
	h.createWithdrawal(c, h.walletAddressAccount)
}

// createWithdrawal reserves the withdrawal amount against the resolved
// account. The reservation is left pending: the operator confirms it via
// POST /admin/withdrawals/{referenceId}/post, or cancels it via .../void,
// in a later request — see ledger.Service.ResolvePendingWithdrawal.
func (h *handlerSet) createWithdrawal(c *gin.Context, resolveAccount func(*gin.Context) (uuid.UUID, error)) {
	accountID, err := resolveAccount(c)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	var req createWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondBadRequest(c, err.Error())
		return
	}
	referenceID := uuid.New()
	if req.ReferenceID != nil {
		referenceID = *req.ReferenceID
	}
	var timeout *time.Duration
	if req.TimeoutSeconds != nil {
		t := time.Duration(*req.TimeoutSeconds) * time.Second
		timeout = &t
	}

	if _, _, err := h.deps.Ledger.CreateWithdrawal(c.Request.Context(), referenceID, accountID, req.Amount, timeout); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondCreated(c, gin.H{"referenceId": referenceID, "accountId": accountID, "amount": req.Amount})
}

func (h *handlerSet) postWithdrawal(c *gin.Context) {
	referenceID, err := uuid.Parse(c.Param("referenceId"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid reference id")
		return
	}
	post, _, err := h.deps.Ledger.ResolvePendingWithdrawal(c.Request.Context(), referenceID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if err := post(c.Request.Context()); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, gin.H{"referenceId": referenceID, "status": "posted"})
}

func (h *handlerSet) voidWithdrawal(c *gin.Context) {
	referenceID, err := uuid.Parse(c.Param("referenceId"))
	if err != nil {
		handlers.RespondBadRequest(c, "invalid reference id")
		return
	}
	_, void, err := h.deps.Ledger.ResolvePendingWithdrawal(c.Request.Context(), referenceID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if err := void(c.Request.Context()); err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondSuccess(c, gin.H{"referenceId": referenceID, "status": "voided"})
}

func (h *handlerSet) assetAccount(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, err
	}
	asset, err := h.deps.Assets.GetByID(c.Request.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	return asset.LedgerAccountID, nil
}

func (h *handlerSet) peerAccount(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, err
	}
	peer, err := h.deps.Peers.GetByID(c.Request.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	return peer.LedgerAccountID, nil
}

func (h *handlerSet) walletAddressAccount(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, err
	}
	wallet, err := h.deps.WalletAddresses.GetByID(c.Request.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	if wallet.HasLedgerAccount() {
		return *wallet.LedgerAccountID, nil
	}

	asset, err := h.deps.Assets.GetByID(c.Request.Context(), wallet.AssetID)
	if err != nil {
		return uuid.Nil, err
	}
	account, err := h.deps.Ledger.CreateLiquidityAccount(c.Request.Context(), entities.AccountKindWebMonetization, wallet.ID, asset.ID, asset.Code, asset.Scale)
	if err != nil {
		return uuid.Nil, err
	}
	if err := h.deps.WalletAddresses.UpdateLedgerAccount(c.Request.Context(), wallet.ID, account.ID); err != nil {
		return uuid.Nil, err
	}
	return account.ID, nil
}
