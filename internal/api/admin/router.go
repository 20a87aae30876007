// Package admin implements the operator-facing Gin HTTP surface described
// in SPEC_FULL.md §4.8: asset, peer, wallet address, quote, and payment
// administration, liquidity management, and webhook-event introspection.
// Every mutating route requires a bearer admin token and supports the
// Idempotency-Key header.
package admin

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ilpcore/engine/internal/api/middleware"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/internal/domain/services/payments"
	"github.com/ilpcore/engine/internal/domain/services/quotes"
	"github.com/ilpcore/engine/internal/domain/services/receivers"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/internal/workers/wallet_address"
	"github.com/ilpcore/engine/pkg/idempotency"
)

// Dependencies bundles everything the admin handlers read or write.
type Dependencies struct {
	Assets           *repositories.AssetRepository
	Peers            *repositories.PeerRepository
	WalletAddresses  *repositories.WalletAddressRepository
	Fees             *repositories.FeeRepository
	Quotes           *repositories.QuoteRepository
	IncomingPayments *repositories.IncomingPaymentRepository
	OutgoingPayments *repositories.OutgoingPaymentRepository
	WebhookEvents    *repositories.WebhookEventRepository
	Idempotency      *repositories.IdempotencyRepository

	Ledger              *ledger.Service
	QuoteSvc            *quotes.Service
	PaymentSvc          *payments.Service
	Receivers           *receivers.Resolver
	WalletAddressWorker *wallet_address.Worker

	JWTSecret string
	ZapLogger *zap.Logger
}

// Register mounts every admin route onto r under /admin.
func Register(r *gin.Engine, deps *Dependencies) {
	h := &handlerSet{deps: deps}

	group := r.Group("/admin")
	group.Use(middleware.RequestID())
	group.Use(middleware.RequireAdminToken(deps.JWTSecret))
	if deps.Idempotency != nil {
		group.Use(idempotency.Middleware(deps.Idempotency, deps.ZapLogger))
	}

	assets := group.Group("/assets")
	assets.POST("", h.createAsset)
	assets.GET("", h.listAssets)
	assets.GET("/:id", h.getAsset)
	assets.POST("/:id/liquidity", h.addAssetLiquidity)
	assets.POST("/:id/withdrawal", h.createAssetWithdrawal)
	assets.POST("/:id/fees/sending", h.setSendingFee)
	assets.POST("/:id/fees/receiving", h.setReceivingFee)

	peers := group.Group("/peers")
	peers.POST("", h.createPeer)
	peers.GET("", h.listPeers)
	peers.GET("/:id", h.getPeer)
	peers.POST("/:id/liquidity", h.addPeerLiquidity)
	peers.POST("/:id/withdrawal", h.createPeerWithdrawal)

	wallets := group.Group("/wallet-addresses")
	wallets.POST("", h.createWalletAddress)
	wallets.GET("/:id", h.getWalletAddress)
	wallets.POST("/:id/withdrawal", h.createWalletAddressWithdrawal)
	wallets.POST("/:id/trigger-events", h.triggerWalletAddressEvents)

	quoteRoutes := group.Group("/quotes")
	quoteRoutes.POST("", h.createQuote)
	quoteRoutes.GET("/:id", h.getQuote)

	incoming := group.Group("/incoming-payments")
	incoming.POST("", h.createIncomingPayment)
	incoming.GET("/:id", h.getIncomingPayment)

	outgoing := group.Group("/outgoing-payments")
	outgoing.POST("", h.createOutgoingPayment)
	outgoing.GET("/:id", h.getOutgoingPayment)

	withdrawals := group.Group("/withdrawals")
	withdrawals.POST("/:referenceId/post", h.postWithdrawal)
	withdrawals.POST("/:referenceId/void", h.voidWithdrawal)

	group.GET("/webhook-events", h.listWebhookEvents)
}

type handlerSet struct {
	deps *Dependencies
}
