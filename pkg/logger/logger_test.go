package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestScopedFieldsTravelOnContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "dispatch", Level: zerolog.DebugLevel, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-7")
	ctx = log.WithTripID(ctx, "trip-42")
	ctx = log.WithFields(ctx, map[string]any{"from": "loading", "to": "in_transit"})
	log.Error(ctx, "trip.transition_failed", errors.New("stale version"))

	entry := lastEntry(t, buf)
	require.Equal(t, "dispatch", entry["service"])
	require.Equal(t, "req-7", entry["request_id"])
	require.Equal(t, "trip-42", entry["trip_id"])
	require.Equal(t, "in_transit", entry["to"])
	require.Equal(t, "stale version", entry["error"])
	require.NotEmpty(t, entry["stack"])
}

func TestParentContextIsUntouched(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "dispatch", Output: buf})

	parent := log.WithWalletID(context.Background(), "w-1")
	_ = log.WithPaymentID(parent, "p-1")
	log.Info(parent, "wallet.opened")

	entry := lastEntry(t, buf)
	require.Equal(t, "w-1", entry["wallet_id"])
	require.NotContains(t, entry, "payment_id")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "dispatch", Output: buf, WarnStack: true}).Warn(context.Background(), "slow")
	require.Contains(t, lastEntry(t, buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "dispatch", Output: buf}).Warn(context.Background(), "slow")
	require.NotContains(t, lastEntry(t, buf), "stack")
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "dispatch", Output: buf})
	log.Debug(context.Background(), "hidden")
	require.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithField(context.Background(), "k", "v")
	log.Info(ctx, "nothing")
	log.Error(ctx, "nothing", errors.New("x"))
}
