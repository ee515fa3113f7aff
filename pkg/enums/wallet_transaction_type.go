package enums

// WalletTransactionType classifies an immutable ledger entry.
type WalletTransactionType string

const (
	WalletTransactionTypeDeposit    WalletTransactionType = "deposit"
	WalletTransactionTypeWithdrawal WalletTransactionType = "withdrawal"
	WalletTransactionTypeHold       WalletTransactionType = "payment_hold"
	WalletTransactionTypeRelease    WalletTransactionType = "release"
)

var walletTransactionTypes = newSet("wallet transaction type",
	WalletTransactionTypeDeposit,
	WalletTransactionTypeWithdrawal,
	WalletTransactionTypeHold,
	WalletTransactionTypeRelease,
)

func (t WalletTransactionType) String() string { return string(t) }

// IsValid reports whether the value is a known WalletTransactionType.
func (t WalletTransactionType) IsValid() bool { return walletTransactionTypes.has(t) }

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	return walletTransactionTypes.parse(value)
}
