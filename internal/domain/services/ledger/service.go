// Package ledger implements the double-entry liquidity adapter: creating
// accounts, one-phase deposits, two-phase withdrawals, and two-phase
// transfers between accounts that may hold different assets.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/pkg/logger"
)

// OnCreditHook is invoked after a transfer or deposit posts credit to an
// account, with the account's new cumulative total received. Incoming
// payments and wallet addresses register hooks here to advance their own
// state (mark complete, accumulate web-monetization totals) without the
// ledger adapter knowing about either domain.
type OnCreditHook func(ctx context.Context, accountID uuid.UUID, totalReceived decimal.Decimal) error

// TransferRequest describes a two-phase transfer between two liquidity
// accounts, possibly denominated in different assets.
type TransferRequest struct {
	ID                   uuid.UUID
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	SourceAmount         decimal.Decimal
	DestinationAmount    decimal.Decimal
	Timeout              *time.Duration
}

// Service is the ledger adapter: createLiquidityAccount, createDeposit,
// createWithdrawal and createTransfer, plus balance queries and the
// onCredit hook registry.
type Service struct {
	ledgerRepo *repositories.LedgerRepository
	logger     *logger.Logger

	mu    sync.RWMutex
	hooks map[entities.AccountKind][]OnCreditHook
}

// NewService creates a new ledger service.
func NewService(ledgerRepo *repositories.LedgerRepository, log *logger.Logger) *Service {
	return &Service{
		ledgerRepo: ledgerRepo,
		logger:     log,
		hooks:      make(map[entities.AccountKind][]OnCreditHook),
	}
}

// OnCredit registers a hook invoked whenever an account of kind receives a
// credit, from either a deposit or the post of a transfer.
func (s *Service) OnCredit(kind entities.AccountKind, hook OnCreditHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[kind] = append(s.hooks[kind], hook)
}

func (s *Service) runCreditHooks(ctx context.Context, account *entities.LedgerAccount) {
	s.mu.RLock()
	hooks := append([]OnCreditHook(nil), s.hooks[account.Kind]...)
	s.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, account.ID, account.TotalReceived); err != nil {
			s.logger.Warn("on-credit hook failed", "account_id", account.ID, "kind", account.Kind, "error", err)
		}
	}
}

// CreateLiquidityAccount creates the ledger account backing a domain
// object (asset, peer, incoming payment, outgoing payment, wallet
// address). Fails with KindAccountAlreadyExist if one already exists for
// (kind, ref).
func (s *Service) CreateLiquidityAccount(ctx context.Context, kind entities.AccountKind, ref, assetID uuid.UUID, assetCode string, assetScale int) (*entities.LedgerAccount, error) {
	if existing, err := s.ledgerRepo.GetAccountByRef(ctx, kind, ref); err == nil && existing != nil {
		return nil, apperrors.KindError(apperrors.KindAccountAlreadyExist, "liquidity account already exists")
	}

	account := &entities.LedgerAccount{
		ID:         uuid.New(),
		Kind:       kind,
		Ref:        ref,
		AssetID:    assetID,
		AssetCode:  assetCode,
		AssetScale: assetScale,
		Balance:    decimal.Zero,
	}

	if err := s.ledgerRepo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create liquidity account: %w", err)
	}

	return account, nil
}

// GetBalance returns an account's current balance.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.ledgerRepo.GetAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, apperrors.KindError(apperrors.KindUnknownAsset, "unknown account")
	}
	return account.Balance, nil
}

// GetTotalSent returns an account's lifetime debit total.
func (s *Service) GetTotalSent(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.ledgerRepo.GetAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, apperrors.KindError(apperrors.KindUnknownAsset, "unknown account")
	}
	return account.TotalSent, nil
}

// GetTotalReceived returns an account's lifetime credit total.
func (s *Service) GetTotalReceived(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.ledgerRepo.GetAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, apperrors.KindError(apperrors.KindUnknownAsset, "unknown account")
	}
	return account.TotalReceived, nil
}

// CreateDeposit posts a one-phase credit to account from its asset's
// settlement pool, idempotent on id. A second call with the same id is a
// no-op returning nil once the first has completed.
func (s *Service) CreateDeposit(ctx context.Context, id, accountID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() || amount.IsZero() {
		return apperrors.KindError(apperrors.KindInvalidAmount, "deposit amount must be positive")
	}

	idempotencyKey := GenerateIdempotencyKey("deposit", id)
	if existing, err := s.ledgerRepo.GetTransactionByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return fmt.Errorf("check existing deposit: %w", err)
	} else if existing != nil {
		return nil
	}

	account, err := s.ledgerRepo.GetAccountByID(ctx, accountID)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownAsset, "unknown account")
	}

	settlement, err := s.ledgerRepo.GetAssetSettlementAccount(ctx, account.AssetID)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownAsset, "unknown asset settlement account")
	}

	tx, err := s.ledgerRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin deposit tx: %w", err)
	}
	txCtx := repositories.WithLedgerTx(ctx, tx)

	ledgerTx := &entities.LedgerTransaction{
		ID:              uuid.New(),
		TransactionType: entities.TransactionTypeDeposit,
		ReferenceID:     &id,
		Status:          entities.TransactionStatusPending,
		IdempotencyKey:  idempotencyKey,
	}

	if err := s.ledgerRepo.CreateTransaction(txCtx, ledgerTx); err != nil {
		tx.Rollback()
		return fmt.Errorf("create deposit transaction: %w", err)
	}

	entries := CreateDepositEntries(settlement.ID, account.ID, amount, account.AssetCode, account.AssetScale)
	for _, req := range entries {
		entry := &entities.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: ledgerTx.ID,
			AccountID:     req.AccountID,
			EntryType:     req.EntryType,
			Amount:        req.Amount,
			AssetCode:     req.AssetCode,
			AssetScale:    req.AssetScale,
		}
		if err := s.ledgerRepo.CreateEntry(txCtx, entry); err != nil {
			tx.Rollback()
			return fmt.Errorf("create deposit entry: %w", err)
		}
	}

	if err := s.adjustBalance(txCtx, settlement, amount.Neg(), decimal.Zero); err != nil {
		tx.Rollback()
		return fmt.Errorf("debit settlement pool: %w", err)
	}
	if err := s.adjustBalance(txCtx, account, amount, amount); err != nil {
		tx.Rollback()
		return fmt.Errorf("credit account: %w", err)
	}

	ledgerTx.MarkCompleted()
	if err := s.ledgerRepo.UpdateTransactionStatus(txCtx, ledgerTx.ID, entities.TransactionStatusCompleted); err != nil {
		tx.Rollback()
		return fmt.Errorf("complete deposit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deposit: %w", err)
	}

	account.TotalReceived = account.TotalReceived.Add(amount)
	s.runCreditHooks(ctx, account)

	return nil
}

// CreateWithdrawal reserves amount out of account, idempotent on id. The
// withdrawal is two-phase: the account's balance is debited immediately so
// the funds cannot be spent twice, but the settlement pool is only
// credited once the caller invokes the returned post function; void
// reverses the reservation. If timeout is set the withdrawal auto-voids
// once it elapses, enforced by the expiry sweep, not by this call.
func (s *Service) CreateWithdrawal(ctx context.Context, id, accountID uuid.UUID, amount decimal.Decimal, timeout *time.Duration) (post func(context.Context) error, void func(context.Context) error, err error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, nil, apperrors.KindError(apperrors.KindInvalidAmount, "withdrawal amount must be positive")
	}

	idempotencyKey := GenerateIdempotencyKey("withdrawal", id)
	if existing, cerr := s.ledgerRepo.GetTransactionByIdempotencyKey(ctx, idempotencyKey); cerr != nil {
		return nil, nil, fmt.Errorf("check existing withdrawal: %w", cerr)
	} else if existing != nil {
		return s.postPendingTransferFunc(existing.ID), s.voidPendingTransferFunc(existing.ID), nil
	}

	account, err := s.ledgerRepo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, nil, apperrors.KindError(apperrors.KindUnknownAsset, "unknown account")
	}
	if account.Balance.LessThan(amount) {
		return nil, nil, apperrors.KindError(apperrors.KindInsufficientBalance, "insufficient balance for withdrawal")
	}

	tx, err := s.ledgerRepo.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin withdrawal tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	txCtx := repositories.WithLedgerTx(ctx, tx)

	var expiresAt *time.Time
	if timeout != nil {
		t := time.Now().Add(*timeout)
		expiresAt = &t
	}

	ledgerTx := &entities.LedgerTransaction{
		ID:              uuid.New(),
		TransactionType: entities.TransactionTypeWithdrawal,
		ReferenceID:     &id,
		Status:          entities.TransactionStatusPending,
		IdempotencyKey:  idempotencyKey,
		ExpiresAt:       expiresAt,
	}

	if err = s.ledgerRepo.CreateTransaction(txCtx, ledgerTx); err != nil {
		return nil, nil, fmt.Errorf("create withdrawal transaction: %w", err)
	}

	entry := &entities.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: ledgerTx.ID,
		AccountID:     account.ID,
		EntryType:     entities.EntryTypeDebit,
		Amount:        amount,
		AssetCode:     account.AssetCode,
		AssetScale:    account.AssetScale,
	}
	if err = s.ledgerRepo.CreateEntry(txCtx, entry); err != nil {
		return nil, nil, fmt.Errorf("create withdrawal entry: %w", err)
	}

	if err = s.adjustBalance(txCtx, account, amount.Neg(), decimal.Zero); err != nil {
		return nil, nil, fmt.Errorf("reserve withdrawal amount: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit withdrawal reservation: %w", err)
	}

	return s.postPendingTransferFunc(ledgerTx.ID), s.voidPendingTransferFunc(ledgerTx.ID), nil
}

// postPendingTransferFunc posts a pending withdrawal into the asset's
// settlement pool. The account side was already debited at reservation
// time, so this only needs to credit the settlement pool and mark the
// transaction complete.
func (s *Service) postPendingTransferFunc(transactionID uuid.UUID) func(context.Context) error {
	return func(ctx context.Context) error {
		ledgerTx, err := s.loadPendingTransaction(ctx, transactionID)
		if err != nil {
			return err
		}

		entries, err := s.ledgerRepo.GetEntriesByTransactionID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load withdrawal entries: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("withdrawal %s has no entries", transactionID)
		}
		debit := entries[0]

		sourceAccount, err := s.ledgerRepo.GetAccountByID(ctx, debit.AccountID)
		if err != nil {
			return fmt.Errorf("load withdrawal account: %w", err)
		}
		settlement, err := s.ledgerRepo.GetAssetSettlementAccount(ctx, sourceAccount.AssetID)
		if err != nil {
			return fmt.Errorf("load settlement account: %w", err)
		}

		tx, err := s.ledgerRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin post tx: %w", err)
		}
		txCtx := repositories.WithLedgerTx(ctx, tx)

		creditEntry := &entities.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: transactionID,
			AccountID:     settlement.ID,
			EntryType:     entities.EntryTypeCredit,
			Amount:        debit.Amount,
			AssetCode:     debit.AssetCode,
			AssetScale:    debit.AssetScale,
		}
		if err := s.ledgerRepo.CreateEntry(txCtx, creditEntry); err != nil {
			tx.Rollback()
			return fmt.Errorf("credit settlement pool: %w", err)
		}
		if err := s.adjustBalance(txCtx, settlement, debit.Amount, decimal.Zero); err != nil {
			tx.Rollback()
			return fmt.Errorf("adjust settlement balance: %w", err)
		}

		ledgerTx.MarkCompleted()
		if err := s.ledgerRepo.UpdateTransactionStatus(txCtx, transactionID, entities.TransactionStatusCompleted); err != nil {
			tx.Rollback()
			return fmt.Errorf("complete withdrawal: %w", err)
		}

		return tx.Commit()
	}
}

// voidPendingTransferFunc reverses a reservation, returning the debited
// amount to its source account. Shared by withdrawals and transfers since
// both only ever debit the source at reservation time.
func (s *Service) voidPendingTransferFunc(transactionID uuid.UUID) func(context.Context) error {
	return func(ctx context.Context) error {
		ledgerTx, err := s.loadPendingTransaction(ctx, transactionID)
		if err != nil {
			return err
		}

		entries, err := s.ledgerRepo.GetEntriesByTransactionID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("transfer %s has no entries", transactionID)
		}
		debit := entries[0]

		account, err := s.ledgerRepo.GetAccountByID(ctx, debit.AccountID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}

		tx, err := s.ledgerRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin void tx: %w", err)
		}
		txCtx := repositories.WithLedgerTx(ctx, tx)

		if err := s.adjustBalance(txCtx, account, debit.Amount, decimal.Zero); err != nil {
			tx.Rollback()
			return fmt.Errorf("refund reservation: %w", err)
		}

		ledgerTx.MarkVoided()
		if err := s.ledgerRepo.UpdateTransactionStatus(txCtx, transactionID, entities.TransactionStatusVoided); err != nil {
			tx.Rollback()
			return fmt.Errorf("void transfer: %w", err)
		}

		return tx.Commit()
	}
}

func (s *Service) loadPendingTransaction(ctx context.Context, transactionID uuid.UUID) (*entities.LedgerTransaction, error) {
	ledgerTx, err := s.ledgerRepo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindUnknownTransfer, "unknown transfer")
	}
	switch ledgerTx.Status {
	case entities.TransactionStatusCompleted:
		return nil, apperrors.KindError(apperrors.KindAlreadyPosted, "transfer already posted")
	case entities.TransactionStatusVoided:
		return nil, apperrors.KindError(apperrors.KindAlreadyVoided, "transfer already voided")
	case entities.TransactionStatusPending:
		return ledgerTx, nil
	default:
		return nil, apperrors.KindError(apperrors.KindWrongState, "transfer not pending")
	}
}

// CreateTransfer reserves req.SourceAmount out of the source account for a
// transfer toward the destination account, idempotent on req.ID. The
// destination is credited destinationAmount (in its own asset) only once
// post is called; void returns the reservation to the source.
func (s *Service) CreateTransfer(ctx context.Context, req TransferRequest) (post func(context.Context) error, void func(context.Context) error, err error) {
	if req.SourceAmount.IsNegative() || req.SourceAmount.IsZero() {
		return nil, nil, apperrors.KindError(apperrors.KindInvalidAmount, "transfer source amount must be positive")
	}
	destinationAmount := req.DestinationAmount
	if destinationAmount.IsZero() {
		destinationAmount = req.SourceAmount
	}

	idempotencyKey := GenerateIdempotencyKey("transfer", req.ID)
	if existing, cerr := s.ledgerRepo.GetTransactionByIdempotencyKey(ctx, idempotencyKey); cerr != nil {
		return nil, nil, fmt.Errorf("check existing transfer: %w", cerr)
	} else if existing != nil {
		return s.postPendingTransferFunc(existing.ID), s.voidPendingTransferFunc(existing.ID), nil
	}

	source, err := s.ledgerRepo.GetAccountByID(ctx, req.SourceAccountID)
	if err != nil {
		return nil, nil, apperrors.KindError(apperrors.KindUnknownAsset, "unknown source account")
	}
	destination, err := s.ledgerRepo.GetAccountByID(ctx, req.DestinationAccountID)
	if err != nil {
		return nil, nil, apperrors.KindError(apperrors.KindUnknownAsset, "unknown destination account")
	}
	if source.Balance.LessThan(req.SourceAmount) {
		return nil, nil, apperrors.KindError(apperrors.KindInsufficientBalance, "insufficient balance for transfer")
	}

	tx, err := s.ledgerRepo.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	txCtx := repositories.WithLedgerTx(ctx, tx)

	var expiresAt *time.Time
	if req.Timeout != nil {
		t := time.Now().Add(*req.Timeout)
		expiresAt = &t
	}

	ledgerTx := &entities.LedgerTransaction{
		ID:              uuid.New(),
		TransactionType: entities.TransactionTypeTransfer,
		ReferenceID:     &req.ID,
		Status:          entities.TransactionStatusPending,
		IdempotencyKey:  idempotencyKey,
		ExpiresAt:       expiresAt,
	}
	if err = s.ledgerRepo.CreateTransaction(txCtx, ledgerTx); err != nil {
		return nil, nil, fmt.Errorf("create transfer transaction: %w", err)
	}

	debitEntry := &entities.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: ledgerTx.ID,
		AccountID:     source.ID,
		EntryType:     entities.EntryTypeDebit,
		Amount:        req.SourceAmount,
		AssetCode:     source.AssetCode,
		AssetScale:    source.AssetScale,
		Metadata: map[string]any{
			"destination_account_id":  destination.ID.String(),
			"destination_amount":      destinationAmount.String(),
			"destination_asset_code":  destination.AssetCode,
			"destination_asset_scale": destination.AssetScale,
		},
	}
	if err = s.ledgerRepo.CreateEntry(txCtx, debitEntry); err != nil {
		return nil, nil, fmt.Errorf("create transfer debit entry: %w", err)
	}

	if err = s.adjustBalance(txCtx, source, req.SourceAmount.Neg(), decimal.Zero); err != nil {
		return nil, nil, fmt.Errorf("reserve transfer amount: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transfer reservation: %w", err)
	}

	return s.postTransferFunc(ledgerTx.ID), s.voidPendingTransferFunc(ledgerTx.ID), nil
}

// postTransferFunc credits the destination account from the reservation's
// metadata (which may name a different asset than the source) and runs any
// registered onCredit hooks for its kind.
func (s *Service) postTransferFunc(transactionID uuid.UUID) func(context.Context) error {
	return func(ctx context.Context) error {
		ledgerTx, err := s.loadPendingTransaction(ctx, transactionID)
		if err != nil {
			return err
		}

		entries, err := s.ledgerRepo.GetEntriesByTransactionID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load transfer entries: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("transfer %s has no entries", transactionID)
		}
		debit := entries[0]

		destinationAccountID, destinationAmount, destinationAssetCode, destinationAssetScale, err := decodeTransferMetadata(debit.Metadata)
		if err != nil {
			return fmt.Errorf("decode transfer metadata: %w", err)
		}

		destination, err := s.ledgerRepo.GetAccountByID(ctx, destinationAccountID)
		if err != nil {
			return fmt.Errorf("load destination account: %w", err)
		}

		tx, err := s.ledgerRepo.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin post tx: %w", err)
		}
		txCtx := repositories.WithLedgerTx(ctx, tx)

		creditEntry := &entities.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: transactionID,
			AccountID:     destination.ID,
			EntryType:     entities.EntryTypeCredit,
			Amount:        destinationAmount,
			AssetCode:     destinationAssetCode,
			AssetScale:    destinationAssetScale,
		}
		if err := s.ledgerRepo.CreateEntry(txCtx, creditEntry); err != nil {
			tx.Rollback()
			return fmt.Errorf("credit destination: %w", err)
		}
		if err := s.adjustBalance(txCtx, destination, destinationAmount, destinationAmount); err != nil {
			tx.Rollback()
			return fmt.Errorf("adjust destination balance: %w", err)
		}

		ledgerTx.MarkCompleted()
		if err := s.ledgerRepo.UpdateTransactionStatus(txCtx, transactionID, entities.TransactionStatusCompleted); err != nil {
			tx.Rollback()
			return fmt.Errorf("complete transfer: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transfer post: %w", err)
		}

		destination.TotalReceived = destination.TotalReceived.Add(destinationAmount)
		s.runCreditHooks(ctx, destination)
		return nil
	}
}

func decodeTransferMetadata(metadata map[string]any) (accountID uuid.UUID, amount decimal.Decimal, assetCode string, assetScale int, err error) {
	rawID, _ := metadata["destination_account_id"].(string)
	accountID, err = uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, decimal.Zero, "", 0, fmt.Errorf("invalid destination_account_id: %w", err)
	}
	rawAmount, _ := metadata["destination_amount"].(string)
	amount, err = decimal.NewFromString(rawAmount)
	if err != nil {
		return uuid.Nil, decimal.Zero, "", 0, fmt.Errorf("invalid destination_amount: %w", err)
	}
	assetCode, _ = metadata["destination_asset_code"].(string)
	switch v := metadata["destination_asset_scale"].(type) {
	case int:
		assetScale = v
	case float64:
		assetScale = int(v)
	}
	return accountID, amount, assetCode, assetScale, nil
}

// adjustBalance applies delta to account's running balance. When delta is
// negative (a debit), TotalSent accumulates the debited amount; when
// receivedDelta is positive (a credit actually landing on the account, as
// opposed to a reservation debit passing through it), TotalReceived
// accumulates it.
func (s *Service) adjustBalance(ctx context.Context, account *entities.LedgerAccount, delta, receivedDelta decimal.Decimal) error {
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return apperrors.KindError(apperrors.KindInsufficientBalance, "balance would go negative")
	}
	if err := s.ledgerRepo.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
		return err
	}
	account.Balance = newBalance

	totalSent := account.TotalSent
	totalReceived := account.TotalReceived
	if delta.IsNegative() {
		totalSent = totalSent.Add(delta.Neg())
	}
	if receivedDelta.IsPositive() {
		totalReceived = totalReceived.Add(receivedDelta)
	}
	if !totalSent.Equal(account.TotalSent) || !totalReceived.Equal(account.TotalReceived) {
		if err := s.ledgerRepo.UpdateAccountTotals(ctx, account.ID, totalSent, totalReceived); err != nil {
			return err
		}
		account.TotalSent = totalSent
		account.TotalReceived = totalReceived
	}

	return nil
}

// GetEntryHistory returns a page of an account's ledger entries, newest first.
func (s *Service) GetEntryHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	return s.ledgerRepo.GetEntriesByAccountID(ctx, accountID, limit, offset)
}

// ResolvePendingWithdrawal re-derives the post/void functions for a
// withdrawal previously reserved under referenceID, by the same
// idempotency-key lookup CreateWithdrawal itself uses to recognize a
// repeat call. The admin API needs this because a withdrawal's post/void
// closures only live for the lifetime of the HTTP request that created
// them; confirming or cancelling one happens in a later request.
func (s *Service) ResolvePendingWithdrawal(ctx context.Context, referenceID uuid.UUID) (post func(context.Context) error, void func(context.Context) error, err error) {
	return s.resolvePending(ctx, "withdrawal", referenceID, s.postPendingTransferFunc)
}

// ResolvePendingTransfer is ResolvePendingWithdrawal's counterpart for
// CreateTransfer reservations.
func (s *Service) ResolvePendingTransfer(ctx context.Context, referenceID uuid.UUID) (post func(context.Context) error, void func(context.Context) error, err error) {
	return s.resolvePending(ctx, "transfer", referenceID, s.postTransferFunc)
}

func (s *Service) resolvePending(ctx context.Context, prefix string, referenceID uuid.UUID, postFor func(uuid.UUID) func(context.Context) error) (func(context.Context) error, func(context.Context) error, error) {
	idempotencyKey := GenerateIdempotencyKey(prefix, referenceID)
	existing, err := s.ledgerRepo.GetTransactionByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, nil, fmt.Errorf("look up pending %s: %w", prefix, err)
	}
	if existing == nil {
		return nil, nil, apperrors.KindError(apperrors.KindUnknownTransfer, "unknown pending "+prefix)
	}
	return postFor(existing.ID), s.voidPendingTransferFunc(existing.ID), nil
}

// ExpirePendingTransfers voids every pending two-phase transfer/withdrawal
// whose timeout has elapsed as of now, called by the background expiry
// sweep. Returns the number voided.
func (s *Service) ExpirePendingTransfers(ctx context.Context, now time.Time, batchSize int) (int, error) {
	expired, err := s.ledgerRepo.GetPendingTransactionsExpiringBefore(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("load expiring transfers: %w", err)
	}

	voided := 0
	for _, t := range expired {
		if verr := s.voidPendingTransferFunc(t.ID)(ctx); verr != nil {
			s.logger.Warn("failed to auto-void expired transfer", "transaction_id", t.ID, "error", verr)
			continue
		}
		voided++
	}
	return voided, nil
}
