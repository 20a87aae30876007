package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/pkg/logger"
	"github.com/ilpcore/engine/pkg/ratelimit"
)

// PeerRepository resolves peers by incoming auth token or by destination
// address prefix.
type PeerRepository interface {
	FindByIncomingToken(ctx context.Context, token string) (*entities.Peer, error)
	FindByDestination(ctx context.Context, destination string) (*entities.Peer, error)
	EnsureLedgerAccount(ctx context.Context, peer *entities.Peer) (uuid.UUID, error)
}

// AssetRepository resolves assets by id.
type AssetRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Asset, error)
}

// IncomingPaymentRepository resolves and lazily provisions incoming
// payments reached via a STREAM-encoded destination.
type IncomingPaymentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.IncomingPayment, error)
	EnsureLedgerAccount(ctx context.Context, payment *entities.IncomingPayment) (uuid.UUID, error)
	RecordReceived(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

// WalletAddressRepository resolves and lazily provisions wallet addresses
// reached via SPSP fallback.
type WalletAddressRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WalletAddress, error)
	EnsureLedgerAccount(ctx context.Context, wallet *entities.WalletAddress) (uuid.UUID, error)
}

// StreamReceiver decodes STREAM-encoded destination addresses and computes
// fulfillments for locally-terminated packets using the receiver's shared
// secret, grounded on the teacher's adapter-boundary interface shape
// (narrow, one verb per concern) rather than a concrete STREAM codec.
type StreamReceiver interface {
	DecodeDestination(destination string) (incomingPaymentID *uuid.UUID, ok bool)
	Fulfill(ctx context.Context, incomingPaymentID uuid.UUID, prepare *entities.ILPPrepare) (*entities.ILPFulfill, error)
}

// OutgoingClient dispatches a prepared packet to a remote peer over its
// configured transport and waits for the fulfill or reject.
type OutgoingClient interface {
	Send(ctx context.Context, peer *entities.Peer, prepare *entities.ILPPrepare) (*entities.ILPFulfill, *entities.ILPReject, error)
}

// Config bounds the pipeline's per-peer ceilings not already owned by the
// peer entity itself.
type Config struct {
	OwnAddress         string
	DefaultMaxHoldTime time.Duration
	MinPacketAmount    int64
}

// Stage is one link in the fixed pipeline chain.
type Stage func(p *Pipeline, pc *PacketContext) error

// Pipeline wires the packet pipeline's stage functions to their
// dependencies and runs the fixed, ordered stage array.
type Pipeline struct {
	ledger            *ledger.Service
	peers             PeerRepository
	assets            AssetRepository
	incomingPayments  IncomingPaymentRepository
	walletAddresses   WalletAddressRepository
	stream            StreamReceiver
	client            OutgoingClient
	limiter           *ratelimit.PeerLimiter
	logger            *logger.Logger
	config            Config

	stages []Stage
}

// New builds a Pipeline with the fixed 14-stage chain described in the
// packet pipeline specification.
func New(
	ledgerSvc *ledger.Service,
	peers PeerRepository,
	assets AssetRepository,
	incomingPayments IncomingPaymentRepository,
	walletAddresses WalletAddressRepository,
	stream StreamReceiver,
	client OutgoingClient,
	limiter *ratelimit.PeerLimiter,
	log *logger.Logger,
	config Config,
) *Pipeline {
	p := &Pipeline{
		ledger:           ledgerSvc,
		peers:            peers,
		assets:           assets,
		incomingPayments: incomingPayments,
		walletAddresses:  walletAddresses,
		stream:           stream,
		client:           client,
		limiter:          limiter,
		logger:           log,
		config:           config,
	}
	p.stages = []Stage{
		stageIncomingExpiryGuard,
		stageStreamAddress,
		stageAccountMiddleware,
		stageMaxPacketAmount,
		stageIncomingRateLimit,
		stageIncomingThroughput,
		stageILDCPResponder,
		stageBalanceMiddleware,
		stageStreamController,
		stageOutgoingThroughput,
		stageOutgoingExpireReducer,
		stageOutgoingExpireGuard,
		stageClient,
		stageFulfillmentValidator,
	}
	return p
}

// Run executes the fixed stage chain against a freshly-authenticated
// incoming packet, returning a fulfill or a reject. Run never returns a Go
// error: every failure mode is either a typed reject (the normal ILP
// outcome) or, for conditions the protocol has no code for, a reject with
// code F99 (KindInternalError has no ILPCode mapping). This mirrors the
// error-handler stage from the specification, implemented here as Run's
// own conversion of any stage error into a reject instead of a first
// array entry; a panic inside a stage is not recovered.
func (p *Pipeline) Run(ctx context.Context, incomingToken string, prepare *entities.ILPPrepare) (*entities.ILPFulfill, *entities.ILPReject) {
	pc := &PacketContext{Ctx: ctx, Prepare: prepare}

	peer, err := p.peers.FindByIncomingToken(ctx, incomingToken)
	if err != nil || peer == nil {
		return nil, rejectFromError(p.config.OwnAddress, apperrors.KindError(apperrors.KindUnreachableError, "unauthenticated incoming peer"))
	}
	accountID, err := p.peers.EnsureLedgerAccount(ctx, peer)
	if err != nil {
		return nil, p.rejectAndUnwind(pc, apperrors.KindError(apperrors.KindInternalError, "resolve incoming account"))
	}
	pc.Accounts.Incoming = AccountRef{
		AccountID:  accountID,
		AssetID:    peer.AssetID,
		Peer:       peer,
	}
	if asset, aerr := p.assets.GetByID(ctx, peer.AssetID); aerr == nil {
		pc.Accounts.Incoming.AssetCode = asset.Code
		pc.Accounts.Incoming.AssetScale = asset.Scale
	}

	for _, stage := range p.stages {
		if pc.IsILDCP {
			break
		}
		if err := stage(p, pc); err != nil {
			return nil, p.rejectAndUnwind(pc, err)
		}
	}

	if pc.IsILDCP {
		return pc.Fulfill, pc.Reject
	}
	if pc.Reject != nil {
		p.voidIfPending(pc)
		return nil, pc.Reject
	}
	return pc.Fulfill, pc.Reject
}

// RunFromAccount executes the fixed stage chain for a packet originated
// locally by the outgoing-payment lifecycle engine rather than received
// from an authenticated peer: the incoming side of the balance transfer is
// the payment's own ledger account, supplied directly instead of resolved
// from a bearer token. destinationAmount lets a cross-asset pay step
// supply the rate-converted amount the balance-middleware stage should
// reserve on the outgoing side; zero defers to the stage's same-asset
// default.
func (p *Pipeline) RunFromAccount(ctx context.Context, incoming AccountRef, prepare *entities.ILPPrepare, destinationAmount decimal.Decimal) (*entities.ILPFulfill, *entities.ILPReject) {
	pc := &PacketContext{Ctx: ctx, Prepare: prepare, DestinationAmount: destinationAmount}
	pc.Accounts.Incoming = incoming

	for _, stage := range p.stages {
		if pc.IsILDCP {
			break
		}
		if err := stage(p, pc); err != nil {
			return nil, p.rejectAndUnwind(pc, err)
		}
	}

	if pc.IsILDCP {
		return pc.Fulfill, pc.Reject
	}
	if pc.Reject != nil {
		p.voidIfPending(pc)
		return nil, pc.Reject
	}
	return pc.Fulfill, pc.Reject
}

// rejectAndUnwind converts err into an ILP reject and voids any reserved
// transfer, satisfying the invariant that post/void happens exactly once
// on return regardless of where in the chain the failure occurred.
func (p *Pipeline) rejectAndUnwind(pc *PacketContext, err error) *entities.ILPReject {
	p.voidIfPending(pc)
	return rejectFromError(p.config.OwnAddress, err)
}

func (p *Pipeline) voidIfPending(pc *PacketContext) {
	if pc.voidTransfer == nil {
		return
	}
	if verr := pc.voidTransfer(pc.Ctx); verr != nil {
		p.logger.Warn("failed to void packet transfer", "transfer_id", pc.TransferID, "error", verr)
	}
	pc.voidTransfer = nil
	pc.postTransfer = nil
}

func rejectFromError(ownAddress string, err error) *entities.ILPReject {
	kind := apperrors.KindInternalError
	message := err.Error()
	if de, ok := err.(*apperrors.DomainError); ok {
		kind = apperrors.ErrorKind(de.Code)
		message = de.Message
	}
	code := apperrors.ILPCode(kind)
	if code == "" {
		code = "F99"
	}
	return &entities.ILPReject{
		Code:        code,
		Message:     message,
		TriggeredBy: ownAddress,
	}
}
