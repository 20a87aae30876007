package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
)

// stageIncomingExpiryGuard rejects a packet whose expiry has already
// passed, before any account or ledger work is done.
func stageIncomingExpiryGuard(p *Pipeline, pc *PacketContext) error {
	if !pc.Prepare.ExpiresAt.After(time.Now()) {
		return apperrors.KindError(apperrors.KindTransferTimedOut, "packet already expired")
	}
	return nil
}

// stageStreamAddress extracts the incoming-payment id from a
// STREAM-encoded destination address, if the destination was derived from
// the stream receiver's shared secret.
func stageStreamAddress(p *Pipeline, pc *PacketContext) error {
	if p.stream == nil {
		return nil
	}
	if id, ok := p.stream.DecodeDestination(pc.Prepare.Destination); ok {
		pc.StreamDestination = id
	}
	return nil
}

// stageAccountMiddleware resolves ctx.accounts.outgoing following the
// priority order: stream-addressed incoming payment, SPSP wallet-address
// fallback, peer address-prefix match, then unreachable.
func stageAccountMiddleware(p *Pipeline, pc *PacketContext) error {
	if pc.StreamDestination != nil {
		payment, err := p.incomingPayments.GetByID(pc.Ctx, *pc.StreamDestination)
		if err == nil && payment != nil {
			if payment.State.IsTerminal() {
				if !pc.Prepare.Amount.IsZero() {
					return apperrors.KindError(apperrors.KindUnreachableError, "incoming payment no longer accepting funds")
				}
			}
			accountID, eerr := p.incomingPayments.EnsureLedgerAccount(pc.Ctx, payment)
			if eerr != nil {
				return apperrors.KindError(apperrors.KindInternalError, "provision incoming payment account")
			}
			asset, aerr := p.assets.GetByID(pc.Ctx, payment.AssetID)
			if aerr != nil {
				return apperrors.KindError(apperrors.KindUnknownAsset, "unknown incoming payment asset")
			}
			pc.Accounts.Outgoing = AccountRef{
				AccountID:       accountID,
				AssetID:         payment.AssetID,
				AssetCode:       asset.Code,
				AssetScale:      asset.Scale,
				IncomingPayment: payment,
			}
			return nil
		}

		wallet, werr := p.walletAddresses.GetByID(pc.Ctx, *pc.StreamDestination)
		if werr == nil && wallet != nil {
			accountID, eerr := p.walletAddresses.EnsureLedgerAccount(pc.Ctx, wallet)
			if eerr != nil {
				return apperrors.KindError(apperrors.KindInternalError, "provision wallet address account")
			}
			asset, aerr := p.assets.GetByID(pc.Ctx, wallet.AssetID)
			if aerr != nil {
				return apperrors.KindError(apperrors.KindUnknownAsset, "unknown wallet address asset")
			}
			pc.Accounts.Outgoing = AccountRef{
				AccountID:     accountID,
				AssetID:       wallet.AssetID,
				AssetCode:     asset.Code,
				AssetScale:    asset.Scale,
				WalletAddress: wallet,
			}
			return nil
		}
	}

	if peer, err := p.peers.FindByDestination(pc.Ctx, pc.Prepare.Destination); err == nil && peer != nil {
		accountID, eerr := p.peers.EnsureLedgerAccount(pc.Ctx, peer)
		if eerr != nil {
			return apperrors.KindError(apperrors.KindInternalError, "provision peer account")
		}
		asset, aerr := p.assets.GetByID(pc.Ctx, peer.AssetID)
		if aerr != nil {
			return apperrors.KindError(apperrors.KindUnknownAsset, "unknown peer asset")
		}
		pc.Accounts.Outgoing = AccountRef{
			AccountID:  accountID,
			AssetID:    peer.AssetID,
			AssetCode:  asset.Code,
			AssetScale: asset.Scale,
			Peer:       peer,
		}
		return nil
	}

	return apperrors.KindError(apperrors.KindUnreachableError, "no route to destination")
}

// stageMaxPacketAmount enforces the incoming peer's per-packet cap.
func stageMaxPacketAmount(p *Pipeline, pc *PacketContext) error {
	peer := pc.Accounts.Incoming.Peer
	if peer == nil || peer.MaxPacketAmount == nil {
		return nil
	}
	if pc.Prepare.Amount.GreaterThan(*peer.MaxPacketAmount) {
		return apperrors.KindErrorf(apperrors.KindAmountTooLarge, "packet amount exceeds peer cap", map[string]interface{}{
			"maxPacketAmount": peer.MaxPacketAmount.String(),
		})
	}
	return nil
}

// stageIncomingRateLimit enforces the per-peer packets/s tier.
func stageIncomingRateLimit(p *Pipeline, pc *PacketContext) error {
	if p.limiter == nil || pc.Accounts.Incoming.Peer == nil {
		return nil
	}
	result, err := p.limiter.CheckPacketRate(pc.Ctx, pc.Accounts.Incoming.Peer.ID.String())
	if err != nil {
		return apperrors.KindError(apperrors.KindInternalError, "rate limit check failed")
	}
	if !result.Allowed {
		return apperrors.KindError(apperrors.KindRateLimitExceeded, "incoming packet rate exceeded")
	}
	return nil
}

// stageIncomingThroughput enforces the per-peer amount/s tier.
func stageIncomingThroughput(p *Pipeline, pc *PacketContext) error {
	if p.limiter == nil || pc.Accounts.Incoming.Peer == nil {
		return nil
	}
	amount := pc.Prepare.Amount.IntPart()
	result, err := p.limiter.CheckIncomingThroughput(pc.Ctx, pc.Accounts.Incoming.Peer.ID.String(), amount)
	if err != nil {
		return apperrors.KindError(apperrors.KindInternalError, "throughput check failed")
	}
	if !result.Allowed {
		return apperrors.KindError(apperrors.KindInsufficientLiquidity, "incoming throughput exceeded")
	}
	return nil
}

// stageILDCPResponder answers an ILDCP self-configuration request with the
// incoming peer's asset and client address, short-circuiting the
// remaining pipeline.
func stageILDCPResponder(p *Pipeline, pc *PacketContext) error {
	const ildcpDestination = "peer.config"
	if pc.Prepare.Destination != ildcpDestination {
		return nil
	}
	pc.IsILDCP = true
	pc.Fulfill = &entities.ILPFulfill{
		Data: encodeILDCPResponse(pc.Accounts.Incoming.Peer, pc.Accounts.Incoming.AssetCode, pc.Accounts.Incoming.AssetScale),
	}
	return nil
}

func encodeILDCPResponse(peer *entities.Peer, assetCode string, assetScale int) []byte {
	if peer == nil {
		return nil
	}
	return []byte(peer.StaticIlpAddress + "|" + assetCode)
}

// stageBalanceMiddleware reserves the single ledger transfer this packet
// attempt will post or void. The destination amount is the
// DestinationAmount an upstream caller (the pay step) set, or the source
// amount when that is zero. This stage does no rate lookup and no
// asset-scale conversion.
func stageBalanceMiddleware(p *Pipeline, pc *PacketContext) error {
	if pc.DestinationAmount.IsZero() {
		pc.DestinationAmount = pc.Prepare.Amount
	}

	timeout := time.Until(pc.Prepare.ExpiresAt)
	transferID := uuid.New()
	post, void, err := p.ledger.CreateTransfer(pc.Ctx, ledger.TransferRequest{
		ID:                   transferID,
		SourceAccountID:      pc.Accounts.Incoming.AccountID,
		DestinationAccountID: pc.Accounts.Outgoing.AccountID,
		SourceAmount:         pc.Prepare.Amount,
		DestinationAmount:    pc.DestinationAmount,
		Timeout:              &timeout,
	})
	if err != nil {
		return apperrors.KindError(apperrors.KindInsufficientLiquidity, "failed to reserve packet transfer")
	}
	pc.TransferID = transferID
	pc.postTransfer = post
	pc.voidTransfer = void
	return nil
}

// stageStreamController defers to the stream receiver when the outgoing
// side terminates locally (an incoming payment or wallet address),
// computing a fulfillment from the packet's execution condition. A
// successful fulfillment lets the chain continue to the client stage,
// which for a local destination loops back without a network send.
func stageStreamController(p *Pipeline, pc *PacketContext) error {
	if pc.Accounts.Outgoing.IncomingPayment == nil && pc.Accounts.Outgoing.WalletAddress == nil {
		return nil
	}
	if p.stream == nil {
		return apperrors.KindError(apperrors.KindUnexpectedPayment, "no stream receiver configured")
	}

	var incomingPaymentID uuid.UUID
	if pc.Accounts.Outgoing.IncomingPayment != nil {
		incomingPaymentID = pc.Accounts.Outgoing.IncomingPayment.ID
	}

	fulfill, err := p.stream.Fulfill(pc.Ctx, incomingPaymentID, pc.Prepare)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnexpectedPayment, "stream fulfillment failed")
	}
	pc.Fulfill = fulfill

	if pc.Accounts.Outgoing.IncomingPayment != nil {
		if rerr := p.incomingPayments.RecordReceived(pc.Ctx, incomingPaymentID, pc.DestinationAmount); rerr != nil {
			p.logger.Warn("failed to record received amount", "incoming_payment_id", incomingPaymentID, "error", rerr)
		}
	}
	return nil
}

// stageOutgoingThroughput enforces the per-peer outgoing amount/s tier
// when the outgoing side is itself a peer (packet forwarded onward).
func stageOutgoingThroughput(p *Pipeline, pc *PacketContext) error {
	if p.limiter == nil || pc.Accounts.Outgoing.Peer == nil {
		return nil
	}
	amount := pc.DestinationAmount.IntPart()
	result, err := p.limiter.CheckOutgoingThroughput(pc.Ctx, pc.Accounts.Outgoing.Peer.ID.String(), amount)
	if err != nil {
		return apperrors.KindError(apperrors.KindInternalError, "outgoing throughput check failed")
	}
	if !result.Allowed {
		return apperrors.KindError(apperrors.KindRateLimitExceeded, "outgoing throughput exceeded")
	}
	return nil
}

// stageOutgoingExpireReducer clamps the packet's expiry to now plus the
// pipeline's Config.DefaultMaxHoldTime; no per-peer hold time is consulted.
func stageOutgoingExpireReducer(p *Pipeline, pc *PacketContext) error {
	maxHold := p.config.DefaultMaxHoldTime
	ceiling := time.Now().Add(maxHold)
	if pc.Prepare.ExpiresAt.Before(ceiling) {
		pc.ClampedExpiresAt = pc.Prepare.ExpiresAt
	} else {
		pc.ClampedExpiresAt = ceiling
	}
	return nil
}

// stageOutgoingExpireGuard rejects if the clamped expiry has already
// elapsed, which would otherwise strand a reserved transfer no downstream
// hop has time to settle.
func stageOutgoingExpireGuard(p *Pipeline, pc *PacketContext) error {
	if !pc.ClampedExpiresAt.After(time.Now()) {
		return apperrors.KindError(apperrors.KindTransferTimedOut, "clamped expiry already elapsed")
	}
	return nil
}

// stageClient serializes and sends the packet to the outgoing peer, or —
// for a locally-terminated destination already fulfilled by the stream
// controller — is a no-op that lets the already-set Fulfill pass through.
func stageClient(p *Pipeline, pc *PacketContext) error {
	if pc.Fulfill != nil {
		return nil
	}
	if pc.Accounts.Outgoing.Peer == nil {
		return apperrors.KindError(apperrors.KindUnexpectedPayment, "no client transport for destination")
	}
	if p.client == nil {
		return apperrors.KindError(apperrors.KindInternalError, "no outgoing client configured")
	}

	outgoing := &entities.ILPPrepare{
		Amount:             pc.DestinationAmount,
		ExpiresAt:          pc.ClampedExpiresAt,
		ExecutionCondition: pc.Prepare.ExecutionCondition,
		Destination:        pc.Prepare.Destination,
		Data:               pc.Prepare.Data,
	}
	fulfill, reject, err := p.client.Send(pc.Ctx, pc.Accounts.Outgoing.Peer, outgoing)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnreachableError, "outgoing send failed")
	}
	if reject != nil {
		pc.Reject = reject
		return nil
	}
	pc.Fulfill = fulfill
	return nil
}

// stageFulfillmentValidator checks the returned fulfillment's preimage
// against the packet's execution condition before posting the reserved
// transfer.
func stageFulfillmentValidator(p *Pipeline, pc *PacketContext) error {
	if pc.IsILDCP {
		return nil
	}
	if pc.Fulfill == nil {
		if pc.postTransfer != nil {
			p.voidIfPending(pc)
		}
		return nil
	}
	if !validFulfillment(pc.Prepare.ExecutionCondition, pc.Fulfill.FulfillmentPreimage) {
		pc.Fulfill = nil
		return apperrors.KindError(apperrors.KindWrongCondition, "fulfillment does not match execution condition")
	}
	if pc.postTransfer != nil {
		if err := pc.postTransfer(pc.Ctx); err != nil {
			pc.Fulfill = nil
			return apperrors.KindError(apperrors.KindInternalError, "failed to post packet transfer")
		}
		pc.postTransfer = nil
		pc.voidTransfer = nil
	}
	return nil
}
