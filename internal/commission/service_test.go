package commission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), client, logger.Nop())
	require.NoError(t, err)
	return svc
}

func TestServiceComputesFromStoredRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, CreateRuleInput{
		Name:          "standard",
		Type:          enums.CommissionTypePercentage,
		Applicability: enums.CommissionApplicabilityDriver,
		Currency:      enums.CurrencyIRR,
		Rate:          decimal.RequireFromString("0.10"),
		EffectiveFrom: asOf.AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	result, err := svc.Compute(ctx, Input{
		Amount:      irr(950000),
		VehicleType: enums.VehicleTypeHeavyTruck,
		CargoType:   enums.CargoTypeGeneral,
		AsOf:        asOf,
		Party:       enums.CommissionApplicabilityDriver,
	})
	require.NoError(t, err)
	require.Equal(t, int64(95000), result.Commission.Amount)
	require.Equal(t, int64(855000), result.Net.Amount)
}

func TestServiceTieredRuleRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, CreateRuleInput{
		Name:          "tiered",
		Type:          enums.CommissionTypeTiered,
		Applicability: enums.CommissionApplicabilityBoth,
		Currency:      enums.CurrencyIRR,
		EffectiveFrom: asOf.AddDate(0, -1, 0),
		Tiers: []TierInput{
			{MinAmount: 0, MaxAmount: ptr(int64(100000)), Rate: decimal.RequireFromString("0.15")},
			{MinAmount: 100000, Rate: decimal.RequireFromString("0.10")},
		},
	})
	require.NoError(t, err)

	result, err := svc.Compute(ctx, Input{Amount: irr(50000), AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, int64(7500), result.Commission.Amount)
}

func TestServiceDeactivateStopsMatchingFromThenOn(t *testing.T) {
	svc := newTestService(t)
	deactivatedAt := asOf.Add(time.Hour)
	svc.(*service).now = func() time.Time { return deactivatedAt }
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, CreateRuleInput{
		Name:          "standard",
		Type:          enums.CommissionTypePercentage,
		Applicability: enums.CommissionApplicabilityDriver,
		Currency:      enums.CurrencyIRR,
		Rate:          decimal.RequireFromString("0.10"),
		EffectiveFrom: asOf.AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	in := Input{Amount: irr(950000), AsOf: asOf, Party: enums.CommissionApplicabilityDriver}
	before, err := svc.Compute(ctx, in)
	require.NoError(t, err)
	require.Equal(t, int64(95000), before.Commission.Amount)

	require.NoError(t, svc.Deactivate(ctx, rule.ID))
	require.True(t, pkgerrors.IsCode(svc.Deactivate(ctx, rule.ID), pkgerrors.CodeStateConflict))
	require.True(t, pkgerrors.IsCode(svc.Deactivate(ctx, uuid.New()), pkgerrors.CodeNotFound))

	audit, err := svc.Compute(ctx, in)
	require.NoError(t, err)
	require.Equal(t, before.Commission, audit.Commission, "earlier instants keep their commission")
	require.Equal(t, rule.ID, *audit.RuleID)

	in.AsOf = deactivatedAt.Add(time.Minute)
	after, err := svc.Compute(ctx, in)
	require.NoError(t, err)
	require.Nil(t, after.RuleID)
}

func TestCreateRuleValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input CreateRuleInput
		field string
	}{
		{
			name:  "rate above one",
			input: CreateRuleInput{Name: "x", Type: enums.CommissionTypePercentage, Applicability: enums.CommissionApplicabilityDriver, Currency: enums.CurrencyIRR, Rate: decimal.NewFromInt(2), EffectiveFrom: from},
			field: "rate",
		},
		{
			name:  "fixed without amount",
			input: CreateRuleInput{Name: "x", Type: enums.CommissionTypeFixed, Applicability: enums.CommissionApplicabilityDriver, Currency: enums.CurrencyIRR, EffectiveFrom: from},
			field: "fixed_amount",
		},
		{
			name: "overlapping tiers",
			input: CreateRuleInput{Name: "x", Type: enums.CommissionTypeTiered, Applicability: enums.CommissionApplicabilityDriver, Currency: enums.CurrencyIRR, EffectiveFrom: from, Tiers: []TierInput{
				{MinAmount: 0, MaxAmount: ptr(int64(200)), Rate: decimal.RequireFromString("0.1")},
				{MinAmount: 100, Rate: decimal.RequireFromString("0.1")},
			}},
			field: "tiers",
		},
		{
			name:  "window inverted",
			input: CreateRuleInput{Name: "x", Type: enums.CommissionTypePercentage, Applicability: enums.CommissionApplicabilityDriver, Currency: enums.CurrencyIRR, EffectiveFrom: from, EffectiveTo: ptr(from.Add(-time.Hour))},
			field: "effective_to",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRule(ctx, tc.input)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			require.Equal(t, pkgerrors.CodeValidation, typed.Code())
			details, ok := typed.Details().(map[string]string)
			require.True(t, ok)
			require.Contains(t, details, tc.field)
		})
	}
}
