package pipeline

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/pkg/logger"
)

func testPipeline(config Config) *Pipeline {
	return &Pipeline{logger: logger.NewNop(), config: config}
}

func preparePacket(amount int64, expiresAt time.Time) *PacketContext {
	return &PacketContext{
		Ctx: context.Background(),
		Prepare: &entities.ILPPrepare{
			Amount:    decimal.NewFromInt(amount),
			ExpiresAt: expiresAt,
		},
	}
}

func TestStageIncomingExpiryGuardRejectsExpired(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(100, time.Now().Add(-time.Second))

	err := stageIncomingExpiryGuard(p, pc)

	require.Error(t, err)
	assert.True(t, apperrors.HasKind(err, apperrors.KindTransferTimedOut))
}

func TestStageIncomingExpiryGuardAllowsFuture(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(100, time.Now().Add(time.Minute))

	assert.NoError(t, stageIncomingExpiryGuard(p, pc))
}

func TestStageMaxPacketAmountNoPeerConfigured(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(1000, time.Now().Add(time.Minute))
	pc.Accounts.Incoming.Peer = &entities.Peer{}

	assert.NoError(t, stageMaxPacketAmount(p, pc))
}

func TestStageMaxPacketAmountUnderCap(t *testing.T) {
	p := testPipeline(Config{})
	cap := decimal.NewFromInt(500)
	pc := preparePacket(100, time.Now().Add(time.Minute))
	pc.Accounts.Incoming.Peer = &entities.Peer{MaxPacketAmount: &cap}

	assert.NoError(t, stageMaxPacketAmount(p, pc))
}

func TestStageMaxPacketAmountOverCapRejects(t *testing.T) {
	p := testPipeline(Config{})
	cap := decimal.NewFromInt(100)
	pc := preparePacket(101, time.Now().Add(time.Minute))
	pc.Accounts.Incoming.Peer = &entities.Peer{MaxPacketAmount: &cap}

	err := stageMaxPacketAmount(p, pc)

	require.Error(t, err)
	assert.True(t, apperrors.HasKind(err, apperrors.KindAmountTooLarge))
}

func TestStageILDCPResponderAnswersConfigRequest(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(0, time.Now().Add(time.Minute))
	pc.Prepare.Destination = "peer.config"
	pc.Accounts.Incoming.Peer = &entities.Peer{StaticIlpAddress: "g.peer.alice"}
	pc.Accounts.Incoming.AssetCode = "USD"
	pc.Accounts.Incoming.AssetScale = 2

	require.NoError(t, stageILDCPResponder(p, pc))

	assert.True(t, pc.IsILDCP)
	require.NotNil(t, pc.Fulfill)
	assert.Equal(t, "g.peer.alice|USD", string(pc.Fulfill.Data))
}

func TestStageILDCPResponderIgnoresOtherDestinations(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(0, time.Now().Add(time.Minute))
	pc.Prepare.Destination = "g.peer.bob"

	require.NoError(t, stageILDCPResponder(p, pc))

	assert.False(t, pc.IsILDCP)
	assert.Nil(t, pc.Fulfill)
}

func TestStageOutgoingExpireReducerClampsToMaxHold(t *testing.T) {
	p := testPipeline(Config{DefaultMaxHoldTime: 10 * time.Second})
	pc := preparePacket(100, time.Now().Add(time.Hour))

	require.NoError(t, stageOutgoingExpireReducer(p, pc))

	assert.True(t, pc.ClampedExpiresAt.Before(pc.Prepare.ExpiresAt))
}

func TestStageOutgoingExpireReducerKeepsEarlierExpiry(t *testing.T) {
	p := testPipeline(Config{DefaultMaxHoldTime: time.Hour})
	expiry := time.Now().Add(time.Second)
	pc := preparePacket(100, expiry)

	require.NoError(t, stageOutgoingExpireReducer(p, pc))

	assert.True(t, pc.ClampedExpiresAt.Equal(expiry))
}

func TestStageOutgoingExpireGuardRejectsElapsed(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(100, time.Now())
	pc.ClampedExpiresAt = time.Now().Add(-time.Second)

	err := stageOutgoingExpireGuard(p, pc)

	require.Error(t, err)
	assert.True(t, apperrors.HasKind(err, apperrors.KindTransferTimedOut))
}

func TestStageOutgoingExpireGuardAllowsFuture(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(100, time.Now())
	pc.ClampedExpiresAt = time.Now().Add(time.Second)

	assert.NoError(t, stageOutgoingExpireGuard(p, pc))
}

func TestValidFulfillmentMatchesPreimage(t *testing.T) {
	var preimage [32]byte
	copy(preimage[:], []byte("0123456789abcdef0123456789abcde"))
	condition := sha256.Sum256(preimage[:])

	assert.True(t, validFulfillment(condition, preimage))
}

func TestValidFulfillmentRejectsMismatch(t *testing.T) {
	var preimage, other [32]byte
	copy(preimage[:], []byte("0123456789abcdef0123456789abcde"))
	copy(other[:], []byte("fedcba9876543210fedcba9876543210"))
	condition := sha256.Sum256(preimage[:])

	assert.False(t, validFulfillment(condition, other))
}

func TestStageFulfillmentValidatorVoidsOnNoFulfill(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(100, time.Now().Add(time.Minute))
	voided := false
	pc.postTransfer = func(context.Context) error { return nil }
	pc.voidTransfer = func(context.Context) error { voided = true; return nil }

	require.NoError(t, stageFulfillmentValidator(p, pc))

	assert.True(t, voided)
	assert.Nil(t, pc.postTransfer)
}

func TestStageFulfillmentValidatorPostsOnValidFulfillment(t *testing.T) {
	p := testPipeline(Config{})
	var preimage [32]byte
	copy(preimage[:], []byte("0123456789abcdef0123456789abcde"))
	condition := sha256.Sum256(preimage[:])

	pc := preparePacket(100, time.Now().Add(time.Minute))
	pc.Prepare.ExecutionCondition = condition
	pc.Fulfill = &entities.ILPFulfill{FulfillmentPreimage: preimage}

	posted := false
	pc.postTransfer = func(context.Context) error { posted = true; return nil }
	pc.voidTransfer = func(context.Context) error { t.Fatal("should not void a valid fulfillment"); return nil }

	require.NoError(t, stageFulfillmentValidator(p, pc))

	assert.True(t, posted)
	assert.Nil(t, pc.postTransfer)
	assert.Nil(t, pc.voidTransfer)
}

func TestStageFulfillmentValidatorRejectsWrongCondition(t *testing.T) {
	p := testPipeline(Config{})
	var preimage, wrongPreimage [32]byte
	copy(preimage[:], []byte("0123456789abcdef0123456789abcde"))
	copy(wrongPreimage[:], []byte("fedcba9876543210fedcba9876543210"))
	condition := sha256.Sum256(preimage[:])

	pc := preparePacket(100, time.Now().Add(time.Minute))
	pc.Prepare.ExecutionCondition = condition
	pc.Fulfill = &entities.ILPFulfill{FulfillmentPreimage: wrongPreimage}

	err := stageFulfillmentValidator(p, pc)

	require.Error(t, err)
	assert.True(t, apperrors.HasKind(err, apperrors.KindWrongCondition))
	assert.Nil(t, pc.Fulfill)
}

func TestStageFulfillmentValidatorSkipsILDCP(t *testing.T) {
	p := testPipeline(Config{})
	pc := preparePacket(0, time.Now().Add(time.Minute))
	pc.IsILDCP = true

	assert.NoError(t, stageFulfillmentValidator(p, pc))
}

// fakePeerRepository, fakeAssetRepository, fakeIncomingPaymentRepository and
// fakeWalletAddressRepository implement the pipeline's narrow repository
// interfaces purely in memory, grounded on the teacher's hand-written mock
// repositories in test/unit.
type fakePeerRepository struct {
	byDestination map[string]*entities.Peer
}

func (f *fakePeerRepository) FindByIncomingToken(ctx context.Context, token string) (*entities.Peer, error) {
	return nil, apperrors.KindError(apperrors.KindUnknownPeer, "not implemented")
}

func (f *fakePeerRepository) FindByDestination(ctx context.Context, destination string) (*entities.Peer, error) {
	for prefix, peer := range f.byDestination {
		if peer.MatchesDestination(destination) {
			_ = prefix
			return peer, nil
		}
	}
	return nil, nil
}

func (f *fakePeerRepository) EnsureLedgerAccount(ctx context.Context, peer *entities.Peer) (uuid.UUID, error) {
	return peer.LedgerAccountID, nil
}

type fakeAssetRepository struct {
	byID map[uuid.UUID]*entities.Asset
}

func (f *fakeAssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Asset, error) {
	asset, ok := f.byID[id]
	if !ok {
		return nil, apperrors.KindError(apperrors.KindUnknownAsset, "unknown asset")
	}
	return asset, nil
}

type fakeIncomingPaymentRepository struct {
	byID map[uuid.UUID]*entities.IncomingPayment
}

func (f *fakeIncomingPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.IncomingPayment, error) {
	payment, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return payment, nil
}

func (f *fakeIncomingPaymentRepository) EnsureLedgerAccount(ctx context.Context, payment *entities.IncomingPayment) (uuid.UUID, error) {
	if payment.LedgerAccountID != nil {
		return *payment.LedgerAccountID, nil
	}
	id := uuid.New()
	payment.LedgerAccountID = &id
	return id, nil
}

func (f *fakeIncomingPaymentRepository) RecordReceived(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return nil
}

type fakeWalletAddressRepository struct {
	byID map[uuid.UUID]*entities.WalletAddress
}

func (f *fakeWalletAddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WalletAddress, error) {
	wallet, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return wallet, nil
}

func (f *fakeWalletAddressRepository) EnsureLedgerAccount(ctx context.Context, wallet *entities.WalletAddress) (uuid.UUID, error) {
	if wallet.LedgerAccountID != nil {
		return *wallet.LedgerAccountID, nil
	}
	id := uuid.New()
	wallet.LedgerAccountID = &id
	return id, nil
}

func TestStageAccountMiddlewareResolvesPeerByDestination(t *testing.T) {
	asset := &entities.Asset{ID: uuid.New(), Code: "USD", Scale: 2}
	peer := &entities.Peer{ID: uuid.New(), AssetID: asset.ID, StaticIlpAddress: "g.peer.bob", LedgerAccountID: uuid.New()}

	p := &Pipeline{
		logger: logger.NewNop(),
		peers:  &fakePeerRepository{byDestination: map[string]*entities.Peer{"bob": peer}},
		assets: &fakeAssetRepository{byID: map[uuid.UUID]*entities.Asset{asset.ID: asset}},
	}
	pc := preparePacket(100, time.Now().Add(time.Minute))
	pc.Prepare.Destination = "g.peer.bob.1234"

	require.NoError(t, stageAccountMiddleware(p, pc))

	assert.Equal(t, peer.ID, pc.Accounts.Outgoing.Peer.ID)
	assert.Equal(t, "USD", pc.Accounts.Outgoing.AssetCode)
}

func TestStageAccountMiddlewareUnreachableWithNoRoute(t *testing.T) {
	p := &Pipeline{
		logger: logger.NewNop(),
		peers:  &fakePeerRepository{byDestination: map[string]*entities.Peer{}},
		assets: &fakeAssetRepository{byID: map[uuid.UUID]*entities.Asset{}},
	}
	pc := preparePacket(100, time.Now().Add(time.Minute))
	pc.Prepare.Destination = "g.nowhere"

	err := stageAccountMiddleware(p, pc)

	require.Error(t, err)
	assert.True(t, apperrors.HasKind(err, apperrors.KindUnreachableError))
}

func TestStageAccountMiddlewareRejectsNonZeroAmountAgainstTerminalIncomingPayment(t *testing.T) {
	asset := &entities.Asset{ID: uuid.New(), Code: "USD", Scale: 2}
	incomingID := uuid.New()
	payment := &entities.IncomingPayment{ID: incomingID, AssetID: asset.ID, State: entities.IncomingPaymentCompleted}

	p := &Pipeline{
		logger:           logger.NewNop(),
		assets:           &fakeAssetRepository{byID: map[uuid.UUID]*entities.Asset{asset.ID: asset}},
		incomingPayments: &fakeIncomingPaymentRepository{byID: map[uuid.UUID]*entities.IncomingPayment{incomingID: payment}},
		peers:            &fakePeerRepository{byDestination: map[string]*entities.Peer{}},
	}
	pc := preparePacket(1, time.Now().Add(time.Minute))
	pc.StreamDestination = &incomingID

	err := stageAccountMiddleware(p, pc)

	require.Error(t, err)
	assert.True(t, apperrors.HasKind(err, apperrors.KindUnreachableError))
}

func TestStageAccountMiddlewareAllowsZeroAmountAgainstTerminalIncomingPayment(t *testing.T) {
	asset := &entities.Asset{ID: uuid.New(), Code: "USD", Scale: 2}
	incomingID := uuid.New()
	payment := &entities.IncomingPayment{ID: incomingID, AssetID: asset.ID, State: entities.IncomingPaymentExpired}

	p := &Pipeline{
		logger:           logger.NewNop(),
		assets:           &fakeAssetRepository{byID: map[uuid.UUID]*entities.Asset{asset.ID: asset}},
		incomingPayments: &fakeIncomingPaymentRepository{byID: map[uuid.UUID]*entities.IncomingPayment{incomingID: payment}},
		peers:            &fakePeerRepository{byDestination: map[string]*entities.Peer{}},
	}
	pc := preparePacket(0, time.Now().Add(time.Minute))
	pc.StreamDestination = &incomingID

	require.NoError(t, stageAccountMiddleware(p, pc))

	assert.Equal(t, payment.ID, pc.Accounts.Outgoing.IncomingPayment.ID)
}
