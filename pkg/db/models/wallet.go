package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// Wallet holds one owner's balances in one currency. Only the wallet ledger
// writes these columns.
type Wallet struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID      `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_wallets_owner_currency"`
	Currency          enums.Currency `gorm:"column:currency;type:text;not null;uniqueIndex:ux_wallets_owner_currency"`
	Available         int64          `gorm:"column:available;type:bigint;not null;default:0"`
	Pending           int64          `gorm:"column:pending;type:bigint;not null;default:0"`
	LifetimeDeposited int64          `gorm:"column:lifetime_deposited;type:bigint;not null;default:0"`
	LifetimeWithdrawn int64          `gorm:"column:lifetime_withdrawn;type:bigint;not null;default:0"`
	IsActive          bool           `gorm:"column:is_active;not null;default:true"`
	DeactivatedAt     *time.Time     `gorm:"column:deactivated_at"`
	Version           int            `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	return nil
}

// WalletTransaction is an immutable ledger entry with post-mutation snapshots.
// Sequence equals the wallet version the entry produced.
type WalletTransaction struct {
	ID             uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	WalletID       uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:ux_wallet_tx_correlation,priority:1;uniqueIndex:ux_wallet_tx_sequence,priority:1"`
	Sequence       int                         `gorm:"column:sequence;not null;uniqueIndex:ux_wallet_tx_sequence,priority:2"`
	Type           enums.WalletTransactionType `gorm:"column:type;type:text;not null;uniqueIndex:ux_wallet_tx_correlation,priority:3"`
	Amount         int64                       `gorm:"column:amount;type:bigint;not null"`
	AvailableAfter int64                       `gorm:"column:available_after;type:bigint;not null"`
	PendingAfter   int64                       `gorm:"column:pending_after;type:bigint;not null"`
	CorrelationID  string                      `gorm:"column:correlation_id;not null;uniqueIndex:ux_wallet_tx_correlation,priority:2"`
	Memo           string                      `gorm:"column:memo"`
	Status         string                      `gorm:"column:status;not null;default:posted"`
	CreatedAt      time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
