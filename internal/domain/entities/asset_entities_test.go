package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoneySameAsset(t *testing.T) {
	usd2 := Money{Value: decimal.NewFromInt(100), AssetCode: "USD", AssetScale: 2}
	usd2b := Money{Value: decimal.NewFromInt(50), AssetCode: "USD", AssetScale: 2}
	usd9 := Money{Value: decimal.NewFromInt(100), AssetCode: "USD", AssetScale: 9}
	xrp2 := Money{Value: decimal.NewFromInt(100), AssetCode: "XRP", AssetScale: 2}

	assert.True(t, usd2.SameAsset(usd2b))
	assert.False(t, usd2.SameAsset(usd9))
	assert.False(t, usd2.SameAsset(xrp2))
}

func TestPeerMatchesDestination(t *testing.T) {
	peer := &Peer{StaticIlpAddress: "g.peer.alice"}

	assert.True(t, peer.MatchesDestination("g.peer.alice"))
	assert.True(t, peer.MatchesDestination("g.peer.alice.1234"))
	assert.False(t, peer.MatchesDestination("g.peer.alicebob"))
	assert.False(t, peer.MatchesDestination("g.peer.ali"))
	assert.False(t, peer.MatchesDestination("g.other.alice"))
}

func TestWalletAddressIsActive(t *testing.T) {
	now := time.Now()

	neverDeactivated := &WalletAddress{}
	assert.True(t, neverDeactivated.IsActive(now))

	scheduledFuture := now.Add(time.Hour)
	future := &WalletAddress{DeactivatedAt: &scheduledFuture}
	assert.True(t, future.IsActive(now))

	scheduledPast := now.Add(-time.Hour)
	past := &WalletAddress{DeactivatedAt: &scheduledPast}
	assert.False(t, past.IsActive(now))
}

func TestWalletAddressHasLedgerAccount(t *testing.T) {
	none := &WalletAddress{}
	assert.False(t, none.HasLedgerAccount())

	id := uuid.New()
	withAccount := &WalletAddress{LedgerAccountID: &id}
	assert.True(t, withAccount.HasLedgerAccount())
}
