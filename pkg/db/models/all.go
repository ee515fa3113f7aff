package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&CargoRequest{},
		&Bid{},
		&Trip{},
		&CommissionRule{},
		&CommissionTier{},
		&Payment{},
		&Wallet{},
		&WalletTransaction{},
		&Rating{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
