package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/freightmarket-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestPaymentsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_payments.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"CONSTRAINT ck_payments_net CHECK (net_amount = gross_amount - commission_amount)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_authority",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_trip_live",
		"WHERE status IN ('pending','processing','completed')",
		"DROP TABLE IF EXISTS payments",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWalletsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_wallets.sql")

	checks := []string{
		"CONSTRAINT ck_wallets_available CHECK (available >= 0)",
		"CONSTRAINT ck_wallets_pending CHECK (pending >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_wallets_owner_currency ON wallets (owner_id, currency)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_wallet_tx_correlation ON wallet_transactions (wallet_id, correlation_id, type)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_wallet_tx_sequence ON wallet_transactions (wallet_id, sequence)",
		"DROP TABLE IF EXISTS wallet_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBidsMigrationAllowsOneAcceptedBid(t *testing.T) {
	content := readMigration(t, "*_create_bids.sql")
	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_bids_cargo_request_accepted") {
		t.Errorf("missing accepted bid index")
	}
	if !strings.Contains(content, "WHERE status = 'accepted'") {
		t.Errorf("accepted bid index must be partial")
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Trip Notes!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_trip_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationSortsAfterNewest(t *testing.T) {
	dir := t.TempDir()
	future := "29990101000000_later.sql"
	if err := os.WriteFile(filepath.Join(dir, future), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	path, err := migrate.CreateSQLMigration(dir, "next")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "29990101000001_next.sql" {
		t.Fatalf("unexpected filename %s", path)
	}

	files, err := migrate.List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[1].Name != "next" {
		t.Fatalf("unexpected listing %+v", files)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"20260101000000_Bad-Name.sql": "-- +goose Up\n-- +goose Down\n",
		"20261399000000_month.sql":    "-- +goose Up\n-- +goose Down\n",
		"20260101000000_no_down.sql":  "-- +goose Up\nSELECT 1;\n",
		"20260101000000_reversed.sql": "-- +goose Down\n-- +goose Up\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if err := migrate.ValidateDir(dir); err == nil {
				t.Fatalf("expected %s to fail validation", name)
			}
		})
	}
}
