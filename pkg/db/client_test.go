package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type ledgerRow struct {
	ID    int
	Label string
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	pool, err := conn.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	conn := openMemory(t)
	client := Wrap(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Label: "kept"}).Error
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRollsBackOnErrorAndPanic(t *testing.T) {
	conn := openMemory(t)
	client := Wrap(conn)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Label: "dropped"}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 0, countRows(t, conn))

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Label: "panicked"}).Error)
			panic("kaboom")
		})
	})
	require.EqualValues(t, 0, countRows(t, conn))
}

func TestPing(t *testing.T) {
	require.NoError(t, Wrap(openMemory(t)).Ping(context.Background()))
}

func TestNewRequiresDatasource(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, false, nil)
	require.ErrorContains(t, err, "DSN")

	_, err = New(context.Background(), config.DBConfig{}, true, nil)
	require.ErrorContains(t, err, "sqlite path")
}

func TestQueryLoggerReportsFailuresAndSlowStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})
	ql := newQueryLogger(logg, 10*time.Millisecond)
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(context.Background(), time.Now(), stmt, nil)
	require.Empty(t, buf.String())

	ql.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	require.Empty(t, buf.String())

	ql.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	require.Contains(t, buf.String(), "db.slow_query")

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), stmt, errors.New("syntax error"))
	require.Contains(t, buf.String(), "db.query_failed")

	buf.Reset()
	quiet := ql.LogMode(gormlogger.Error)
	quiet.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	require.Empty(t, buf.String())
	quiet.Trace(context.Background(), time.Now(), stmt, errors.New("syntax error"))
	require.Contains(t, buf.String(), "db.query_failed")
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_payments_authority"`), want: true},
		{name: "postgres named", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_payments_authority"`), constraint: "ux_payments_authority", want: true},
		{name: "postgres other constraint", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_wallets_owner"`), constraint: "ux_payments_authority", want: false},
		{name: "pgconn", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_payments_authority"}), constraint: "ux_payments_authority", want: true},
		{name: "pgconn other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "ux_wallets_owner"}, constraint: "ux_payments_authority", want: false},
		{name: "pgconn other code", err: &pgconn.PgError{Code: "23503", Message: "duplicate key value"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: wallets.owner_id, wallets.currency"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}
