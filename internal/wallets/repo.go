package wallets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Repository manages persistence for wallets and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error)
	ApplyDelta(ctx context.Context, walletID uuid.UUID, delta balanceDelta) (bool, error)
	Deactivate(ctx context.Context, walletID uuid.UUID, at time.Time) (bool, error)
	InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error
	FindTransaction(ctx context.Context, walletID uuid.UUID, correlationID string, entryType enums.WalletTransactionType) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

// balanceDelta describes one conditional balance update. The guards make the
// update a no-op when the balance would go negative.
type balanceDelta struct {
	available        int64
	pending          int64
	deposited        int64
	withdrawn        int64
	requireAvailable int64
	requirePending   int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the wallet unless one already exists for the same owner and
// currency. Callers re-read by owner to get the stored row.
func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "currency"}},
			DoNothing: true,
		}).
		Create(wallet).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByOwner(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND currency = ?", ownerID, currency).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) ApplyDelta(ctx context.Context, walletID uuid.UUID, delta balanceDelta) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND is_active = ?", walletID, true)
	if delta.requireAvailable > 0 {
		q = q.Where("available >= ?", delta.requireAvailable)
	}
	if delta.requirePending > 0 {
		q = q.Where("pending >= ?", delta.requirePending)
	}
	res := q.Updates(map[string]any{
		"available":          gorm.Expr("available + ?", delta.available),
		"pending":            gorm.Expr("pending + ?", delta.pending),
		"lifetime_deposited": gorm.Expr("lifetime_deposited + ?", delta.deposited),
		"lifetime_withdrawn": gorm.Expr("lifetime_withdrawn + ?", delta.withdrawn),
		"version":            gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Deactivate(ctx context.Context, walletID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND is_active = ?", walletID, true).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_at": at,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindTransaction(ctx context.Context, walletID uuid.UUID, correlationID string, entryType enums.WalletTransactionType) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND correlation_id = ? AND type = ?", walletID, correlationID, entryType).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTransactions returns entries in sequence order. A limit of zero returns
// the full log.
func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	q := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.WalletTransaction
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
