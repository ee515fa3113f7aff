package outbox

import "gorm.io/gorm/clause"

func skipLockedClause() clause.Expression {
	return clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}
}
