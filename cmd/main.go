package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/api/admin"
	"github.com/ilpcore/engine/internal/domain/services/accounts"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/internal/domain/services/payments"
	"github.com/ilpcore/engine/internal/domain/services/pipeline"
	"github.com/ilpcore/engine/internal/domain/services/quotes"
	"github.com/ilpcore/engine/internal/domain/services/receivers"
	"github.com/ilpcore/engine/internal/domain/services/stream"
	"github.com/ilpcore/engine/internal/infrastructure/config"
	"github.com/ilpcore/engine/internal/infrastructure/database"
	"github.com/ilpcore/engine/internal/infrastructure/httpclient"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/internal/workers/incoming_expiry"
	"github.com/ilpcore/engine/internal/workers/outgoing_payment"
	"github.com/ilpcore/engine/internal/workers/transfer_sweep"
	"github.com/ilpcore/engine/internal/workers/wallet_address"
	"github.com/ilpcore/engine/internal/workers/webhook"
	"github.com/ilpcore/engine/pkg/graceful"
	"github.com/ilpcore/engine/pkg/logger"
	"github.com/ilpcore/engine/pkg/ratelimit"
	"github.com/ilpcore/engine/pkg/tracing"
)

// @title ILP Payment Engine API
// @version 1.0
// @description Open Payments / Interledger packet-switching and payment lifecycle engine.

// @host localhost:8080
// @BasePath /admin

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the admin JWT.

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)

	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Environment != "test",
		CollectorURL: "localhost:4317",
		Environment:  cfg.Environment,
		SampleRate:   1.0,
	}, log.Zap())
	if err != nil {
		log.Fatal("failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())
	log.Info("tracing initialized")

	sqlDB, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	db := sqlx.NewDb(sqlDB, "postgres")

	streamSecret, err := cfg.ILP.StreamSecretBytes()
	if err != nil {
		log.Fatal("invalid stream secret", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Repositories
	assetRepo := repositories.NewAssetRepository(db)
	peerRepo := repositories.NewPeerRepository(db)
	feeRepo := repositories.NewFeeRepository(db)
	walletAddressRepo := repositories.NewWalletAddressRepository(db)
	incomingPaymentRepo := repositories.NewIncomingPaymentRepository(db)
	outgoingPaymentRepo := repositories.NewOutgoingPaymentRepository(db)
	grantRepo := repositories.NewOutgoingPaymentGrantRepository(db)
	quoteRepo := repositories.NewQuoteRepository(db)
	webhookEventRepo := repositories.NewWebhookEventRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	idempotencyRepo := repositories.NewIdempotencyRepository(sqlDB, log.Zap())

	// Domain services
	ledgerSvc := ledger.NewService(ledgerRepo, log)

	peerAccounts := accounts.NewPeers(peerRepo, assetRepo, ledgerSvc)
	assetAccounts := accounts.NewAssets(assetRepo)
	incomingPaymentAccounts := accounts.NewIncomingPayments(incomingPaymentRepo, assetRepo, ledgerSvc)
	walletAddressAccounts := accounts.NewWalletAddresses(walletAddressRepo, assetRepo, ledgerSvc)

	streamReceiver := stream.NewReceiver(cfg.ILP.ILPAddress, streamSecret)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	peerLimiter := ratelimit.NewPeerLimiter(rdb, ratelimit.PeerLimiterConfig{
		IncomingPacketRate: ratelimit.PeerTierConfig{Limit: cfg.RateLimit.IncomingPacketRatePerSec, Window: time.Second},
		IncomingThroughput: ratelimit.PeerTierConfig{Limit: cfg.RateLimit.IncomingThroughputPerSec, Window: time.Second},
		OutgoingThroughput: ratelimit.PeerTierConfig{Limit: cfg.RateLimit.OutgoingThroughputPerSec, Window: time.Second},
	}, log.Zap())

	outgoingHTTPClient := httpclient.New(httpclient.Config{
		Timeout:          10 * time.Second,
		BreakerName:      "peer-outgoing",
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}, log)
	outgoingClient := pipeline.NewHTTPOutgoingClient(outgoingHTTPClient)

	pipe := pipeline.New(
		ledgerSvc,
		peerAccounts,
		assetAccounts,
		incomingPaymentAccounts,
		walletAddressAccounts,
		streamReceiver,
		outgoingClient,
		peerLimiter,
		log,
		pipeline.Config{
			OwnAddress:         cfg.ILP.ILPAddress,
			DefaultMaxHoldTime: 30 * time.Second,
			MinPacketAmount:    1,
		},
	)

	ratesHTTPClient := httpclient.New(httpclient.Config{
		BaseURL:          cfg.ILP.ExchangeRatesURL,
		Timeout:          5 * time.Second,
		BreakerName:      "exchange-rates",
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}, log)
	ratesClient := quotes.NewHTTPRatesClient(ratesHTTPClient)

	remoteHTTPClient := httpclient.New(httpclient.Config{
		Timeout:          10 * time.Second,
		BreakerName:      "open-payments-remote",
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}, log)
	localReceivers := receivers.NewLocal(cfg.ILP.WalletAddressURL, walletAddressRepo, assetRepo, incomingPaymentRepo, streamReceiver)
	remoteReceivers := receivers.NewRemote(remoteHTTPClient, log)
	resolver := receivers.NewResolver(localReceivers, remoteReceivers)

	quoteSvc := quotes.NewService(walletAddressRepo, assetRepo, quoteRepo, feeRepo, resolver, ratesClient, log, quotes.Config{
		QuoteLifespan: cfg.ILP.QuoteLifespan * time.Millisecond,
		Slippage:      decimal.NewFromFloat(cfg.ILP.Slippage),
	})

	paymentSvc := payments.NewService(outgoingPaymentRepo, grantRepo, quoteRepo, walletAddressRepo, assetRepo, webhookEventRepo, ledgerSvc, pipe, log, payments.Config{
		RetryBackoffSeconds: 10,
		MaxStateAttempts:    5,
	})

	// Workers
	outgoingPaymentWorker := outgoing_payment.NewWorker(outgoingPaymentRepo, quoteRepo, paymentSvc, pipe, streamReceiver, &outgoing_payment.Config{
		CheckInterval: time.Duration(cfg.Workers.OutgoingPaymentIntervalSeconds) * time.Second,
		BatchSize:     cfg.Workers.BatchSize,
	}, log)

	incomingExpiryWorker := incoming_expiry.NewWorker(incomingPaymentRepo, webhookEventRepo, &incoming_expiry.Config{
		CheckInterval: time.Duration(cfg.Workers.IncomingExpiryIntervalSeconds) * time.Second,
		BatchSize:     cfg.Workers.BatchSize,
	}, log)

	walletAddressWorker := wallet_address.NewWorker(walletAddressRepo, webhookEventRepo, ledgerSvc, &wallet_address.Config{
		CheckInterval: time.Duration(cfg.Workers.WalletAddressIntervalSeconds) * time.Second,
		BatchSize:     cfg.Workers.BatchSize,
	}, log)

	transferSweepWorker := transfer_sweep.NewWorker(ledgerSvc, &transfer_sweep.Config{
		CheckInterval: time.Duration(cfg.Workers.TransferSweepIntervalSeconds) * time.Second,
		BatchSize:     cfg.Workers.BatchSize,
	}, log)

	webhookConfig := webhook.DefaultConfig(cfg.Workers.WebhookURL)
	webhookConfig.CheckInterval = time.Duration(cfg.Workers.WebhookIntervalSeconds) * time.Second
	webhookConfig.BatchSize = cfg.Workers.BatchSize
	webhookWorker := webhook.NewWorker(webhookEventRepo, webhookConfig, log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go outgoingPaymentWorker.Start(workerCtx)
	go incomingExpiryWorker.Start(workerCtx)
	go walletAddressWorker.Start(workerCtx)
	go transferSweepWorker.Start(workerCtx)
	go webhookWorker.Start(workerCtx)
	log.Info("background workers started")

	// HTTP surface
	router := gin.New()
	router.Use(gin.Recovery())

	admin.Register(router, &admin.Dependencies{
		Assets:           assetRepo,
		Peers:            peerRepo,
		WalletAddresses:  walletAddressRepo,
		Fees:             feeRepo,
		Quotes:           quoteRepo,
		IncomingPayments: incomingPaymentRepo,
		OutgoingPayments: outgoingPaymentRepo,
		WebhookEvents:    webhookEventRepo,
		Idempotency:      idempotencyRepo,

		Ledger:              ledgerSvc,
		QuoteSvc:            quoteSvc,
		PaymentSvc:          paymentSvc,
		Receivers:           resolver,
		WalletAddressWorker: walletAddressWorker,

		JWTSecret: cfg.Admin.JWTSecret,
		ZapLogger: log.Zap(),
	})

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", "error", err)
		}
	}()

	shutdown := graceful.NewShutdownManager(server, sqlDB, log)
	shutdown.Register(outgoingPaymentWorker)
	shutdown.Register(incomingExpiryWorker)
	shutdown.Register(walletAddressWorker)
	shutdown.Register(transferSweepWorker)
	shutdown.Register(webhookWorker)

	shutdown.WaitForShutdown()
	cancelWorkers()
	log.Info("server exited gracefully")
}
