package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// DLQRepository stores events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if entry.ErrorMessage != nil {
		short := truncate(*entry.ErrorMessage)
		entry.ErrorMessage = &short
	}
	return tx.Create(&entry).Error
}

// DeleteFailedBefore prunes entries that failed before cutoff. A nil tx runs
// against the repository's own handle.
func (r *DLQRepository) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// CountByReason reports the dead-letter backlog grouped by failure reason.
func (r *DLQRepository) CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	var rows []struct {
		ErrorReason enums.OutboxDLQErrorReason
		Total       int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("error_reason, COUNT(*) AS total").
		Group("error_reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.OutboxDLQErrorReason]int64, len(rows))
	for _, row := range rows {
		out[row.ErrorReason] = row.Total
	}
	return out, nil
}
