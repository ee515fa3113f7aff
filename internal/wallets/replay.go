package wallets

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

// ReplayReport is the result of rebuilding a wallet from its entry log.
type ReplayReport struct {
	WalletID          uuid.UUID
	Entries           int
	Available         int64
	Pending           int64
	LifetimeDeposited int64
	LifetimeWithdrawn int64
	AvailableDrift    int64
	PendingDrift      int64
	// BrokenSequences lists entries whose snapshots do not follow from the
	// previous entry.
	BrokenSequences []int
}

// Consistent reports whether the log and the wallet row agree.
func (r *ReplayReport) Consistent() bool {
	return r.AvailableDrift == 0 && r.PendingDrift == 0 && len(r.BrokenSequences) == 0
}

func (s *service) Replay(ctx context.Context, walletID uuid.UUID) (*ReplayReport, error) {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, mapLookupError(err, "wallet")
	}
	entries, err := s.repo.ListTransactions(ctx, walletID, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet entries")
	}

	report := replayEntries(walletID, entries)
	report.AvailableDrift = wallet.Available - report.Available
	report.PendingDrift = wallet.Pending - report.Pending

	if !report.Consistent() {
		logCtx := s.logg.WithWalletID(ctx, walletID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"available_drift":  report.AvailableDrift,
			"pending_drift":    report.PendingDrift,
			"broken_sequences": report.BrokenSequences,
		})
		s.logg.Warn(logCtx, "wallet replay drift detected")
	}
	return report, nil
}

func replayEntries(walletID uuid.UUID, entries []models.WalletTransaction) *ReplayReport {
	report := &ReplayReport{WalletID: walletID, Entries: len(entries)}
	for _, entry := range entries {
		switch entry.Type {
		case enums.WalletTransactionTypeDeposit:
			report.Available += entry.Amount
			report.LifetimeDeposited += entry.Amount
		case enums.WalletTransactionTypeWithdrawal:
			report.Available -= entry.Amount
			report.LifetimeWithdrawn += entry.Amount
		case enums.WalletTransactionTypeHold:
			report.Available -= entry.Amount
			report.Pending += entry.Amount
		case enums.WalletTransactionTypeRelease:
			report.Available += entry.Amount
			report.Pending -= entry.Amount
		}
		if entry.AvailableAfter != report.Available || entry.PendingAfter != report.Pending {
			report.BrokenSequences = append(report.BrokenSequences, entry.Sequence)
			// continue from the recorded snapshot so one bad entry is reported once
			report.Available = entry.AvailableAfter
			report.Pending = entry.PendingAfter
		}
	}
	return report
}
