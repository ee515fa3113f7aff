package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of wallet balances.
type Service interface {
	Open(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error)
	OpenTx(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error)
	Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error)

	Deposit(ctx context.Context, input MutationInput) (*models.WalletTransaction, error)
	Withdraw(ctx context.Context, input MutationInput) (*models.WalletTransaction, error)
	HoldPending(ctx context.Context, input MutationInput) (*models.WalletTransaction, error)
	ReleasePending(ctx context.Context, input MutationInput) (*models.WalletTransaction, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, entryType enums.WalletTransactionType, input MutationInput) (*models.WalletTransaction, error)

	Replay(ctx context.Context, walletID uuid.UUID) (*ReplayReport, error)
	Deactivate(ctx context.Context, walletID uuid.UUID) error
	Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

// MutationInput describes one balance change. CorrelationID ties the entry to
// the business operation that caused it; repeating a (wallet, correlation,
// type) triple returns the original entry without moving money.
type MutationInput struct {
	WalletID      uuid.UUID
	Amount        int64
	Currency      enums.Currency
	CorrelationID string
	Memo          string
}

type service struct {
	repo    Repository
	tx      txRunner
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the wallet ledger. ledgerMetrics may be nil.
func NewService(repo Repository, tx txRunner, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		metrics: ledgerMetrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) Open(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		wallet, err = s.OpenTx(ctx, tx, ownerID, currency)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *service) OpenTx(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByOwner(ctx, ownerID, currency)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	wallet := &models.Wallet{
		OwnerID:  ownerID,
		Currency: currency,
		IsActive: true,
		Version:  1,
	}
	if err := repo.Create(ctx, wallet); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	stored, err := repo.FindByOwner(ctx, ownerID, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload wallet")
	}

	logCtx := s.logg.WithWalletID(ctx, stored.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "currency", string(currency)), "wallet opened")
	return stored, nil
}

func (s *service) Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, mapLookupError(err, "wallet")
	}
	return wallet, nil
}

func (s *service) GetByOwner(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	wallet, err := s.repo.FindByOwner(ctx, ownerID, currency)
	if err != nil {
		return nil, mapLookupError(err, "wallet")
	}
	return wallet, nil
}

func (s *service) Deposit(ctx context.Context, input MutationInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, enums.WalletTransactionTypeDeposit, input)
}

func (s *service) Withdraw(ctx context.Context, input MutationInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, enums.WalletTransactionTypeWithdrawal, input)
}

func (s *service) HoldPending(ctx context.Context, input MutationInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, enums.WalletTransactionTypeHold, input)
}

func (s *service) ReleasePending(ctx context.Context, input MutationInput) (*models.WalletTransaction, error) {
	return s.apply(ctx, enums.WalletTransactionTypeRelease, input)
}

func (s *service) apply(ctx context.Context, entryType enums.WalletTransactionType, input MutationInput) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.ApplyTx(ctx, tx, entryType, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyTx performs one mutation inside the caller's transaction so payment
// settlement can post several entries atomically with its own state change.
func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, entryType enums.WalletTransactionType, input MutationInput) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for wallet mutation")
	}
	delta, err := deltaFor(entryType, input.Amount)
	if err != nil {
		return nil, err
	}
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if input.CorrelationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id required")
	}

	repo := s.repo.WithTx(tx)

	prior, err := repo.FindTransaction(ctx, input.WalletID, input.CorrelationID, entryType)
	if err == nil {
		return prior, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check prior wallet entry")
	}

	wallet, err := repo.FindByID(ctx, input.WalletID)
	if err != nil {
		return nil, mapLookupError(err, "wallet")
	}
	if !wallet.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is inactive")
	}
	if input.Currency != "" && input.Currency != wallet.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency does not match wallet").
			WithDetails(map[string]any{"wallet_currency": wallet.Currency, "currency": input.Currency})
	}

	applied, err := repo.ApplyDelta(ctx, wallet.ID, delta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}
	if !applied {
		s.metrics.IncRejected(string(entryType))
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient balance for wallet mutation").
			WithDetails(map[string]any{
				"type":      entryType,
				"amount":    input.Amount,
				"available": wallet.Available,
				"pending":   wallet.Pending,
			})
	}

	updated, err := repo.FindByID(ctx, wallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload wallet")
	}

	entry := &models.WalletTransaction{
		WalletID:       wallet.ID,
		Sequence:       updated.Version,
		Type:           entryType,
		Amount:         input.Amount,
		AvailableAfter: updated.Available,
		PendingAfter:   updated.Pending,
		CorrelationID:  input.CorrelationID,
		Memo:           input.Memo,
		Status:         "posted",
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent wallet mutation")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append wallet entry")
	}

	s.metrics.IncMutation(string(entryType))
	logCtx := s.logg.WithWalletID(ctx, wallet.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"type":            string(entryType),
		"amount":          input.Amount,
		"available_after": updated.Available,
		"pending_after":   updated.Pending,
		"correlation_id":  input.CorrelationID,
	})
	s.logg.Info(logCtx, "wallet entry posted")
	return entry, nil
}

func (s *service) Deactivate(ctx context.Context, walletID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.Deactivate(ctx, walletID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate wallet")
		}
		if changed {
			s.logg.Info(s.logg.WithWalletID(ctx, walletID.String()), "wallet deactivated")
			return nil
		}
		if _, err := repo.FindByID(ctx, walletID); err != nil {
			return mapLookupError(err, "wallet")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet already inactive")
	})
}

func (s *service) Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must not be negative")
	}
	entries, err := s.repo.ListTransactions(ctx, walletID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet entries")
	}
	return entries, nil
}

func deltaFor(entryType enums.WalletTransactionType, amount int64) (balanceDelta, error) {
	if amount <= 0 {
		return balanceDelta{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	switch entryType {
	case enums.WalletTransactionTypeDeposit:
		return balanceDelta{available: amount, deposited: amount}, nil
	case enums.WalletTransactionTypeWithdrawal:
		return balanceDelta{available: -amount, withdrawn: amount, requireAvailable: amount}, nil
	case enums.WalletTransactionTypeHold:
		return balanceDelta{available: -amount, pending: amount, requireAvailable: amount}, nil
	case enums.WalletTransactionTypeRelease:
		return balanceDelta{available: amount, pending: -amount, requirePending: amount}, nil
	default:
		return balanceDelta{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported wallet entry type %q", entryType))
	}
}

func mapLookupError(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, resource+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+resource)
}
