package commission

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
)

var asOf = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func percentageRule(rate string) models.CommissionRule {
	return models.CommissionRule{
		ID:            uuid.New(),
		Type:          enums.CommissionTypePercentage,
		Applicability: enums.CommissionApplicabilityDriver,
		Currency:      enums.CurrencyIRR,
		Rate:          decimal.RequireFromString(rate),
		EffectiveFrom: asOf.AddDate(0, -1, 0),
		IsActive:      true,
	}
}

func irr(amount int64) money.Money {
	return money.Money{Amount: amount, Currency: enums.CurrencyIRR}
}

func TestComputePercentageScenario(t *testing.T) {
	result, err := Compute([]models.CommissionRule{percentageRule("0.10")}, Input{
		Amount:      irr(950000),
		VehicleType: enums.VehicleTypeHeavyTruck,
		CargoType:   enums.CargoTypeGeneral,
		AsOf:        asOf,
		Party:       enums.CommissionApplicabilityDriver,
	})
	require.NoError(t, err)
	require.Equal(t, int64(95000), result.Commission.Amount)
	require.Equal(t, int64(855000), result.Net.Amount)
	require.NotNil(t, result.RuleID)
}

func TestComputeModels(t *testing.T) {
	tiered := percentageRule("0")
	tiered.Type = enums.CommissionTypeTiered
	tiered.Tiers = []models.CommissionTier{
		{MinAmount: 0, MaxAmount: ptr(int64(100000)), Rate: decimal.RequireFromString("0.15")},
		{MinAmount: 100000, MaxAmount: ptr(int64(1000000)), Rate: decimal.RequireFromString("0.10")},
		{MinAmount: 1000000, Rate: decimal.RequireFromString("0.05")},
	}

	clamped := percentageRule("0.10")
	clamped.MinAmount = ptr(int64(5000))
	clamped.MaxAmount = ptr(int64(50000))

	fixed := percentageRule("0")
	fixed.Type = enums.CommissionTypeFixed
	fixed.FixedAmount = ptr(int64(20000))

	perTx := percentageRule("0")
	perTx.Type = enums.CommissionTypePerTransaction
	perTx.FixedAmount = ptr(int64(3000))

	rounding := percentageRule("0.125")

	tests := []struct {
		name   string
		rule   models.CommissionRule
		amount int64
		want   int64
	}{
		{name: "tier lower bracket", rule: tiered, amount: 99999, want: 15000},
		{name: "tier boundary belongs to upper bracket", rule: tiered, amount: 100000, want: 10000},
		{name: "tier open bracket", rule: tiered, amount: 2000000, want: 100000},
		{name: "percentage clamped to min", rule: clamped, amount: 10000, want: 5000},
		{name: "percentage clamped to max", rule: clamped, amount: 900000, want: 50000},
		{name: "fixed", rule: fixed, amount: 950000, want: 20000},
		{name: "fixed capped at amount", rule: fixed, amount: 15000, want: 15000},
		{name: "per transaction", rule: perTx, amount: 950000, want: 3000},
		{name: "half rounds away from zero", rule: rounding, amount: 12, want: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Compute([]models.CommissionRule{tc.rule}, Input{Amount: irr(tc.amount), AsOf: asOf})
			require.NoError(t, err)
			require.Equal(t, tc.want, result.Commission.Amount)
			require.Equal(t, tc.amount-tc.want, result.Net.Amount)
		})
	}
}

func TestComputeMostSpecificRuleWins(t *testing.T) {
	global := percentageRule("0.10")
	vehicle := percentageRule("0.08")
	vehicle.VehicleType = ptr(enums.VehicleTypeVan)
	both := percentageRule("0.05")
	both.VehicleType = ptr(enums.VehicleTypeVan)
	both.CargoType = ptr(enums.CargoTypeFragile)

	rules := []models.CommissionRule{global, vehicle, both}

	result, err := Compute(rules, Input{Amount: irr(100000), VehicleType: enums.VehicleTypeVan, CargoType: enums.CargoTypeFragile, AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, both.ID, *result.RuleID)

	result, err = Compute(rules, Input{Amount: irr(100000), VehicleType: enums.VehicleTypeVan, CargoType: enums.CargoTypeBulk, AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, vehicle.ID, *result.RuleID)

	result, err = Compute(rules, Input{Amount: irr(100000), VehicleType: enums.VehicleTypeTanker, AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, global.ID, *result.RuleID)
}

func TestComputeLatestEffectiveRuleWinsWithinScope(t *testing.T) {
	older := percentageRule("0.10")
	newer := percentageRule("0.07")
	newer.EffectiveFrom = asOf.AddDate(0, 0, -1)

	result, err := Compute([]models.CommissionRule{older, newer}, Input{Amount: irr(100000), AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, int64(7000), result.Commission.Amount)

	// the newer rule is not yet in effect a week earlier
	result, err = Compute([]models.CommissionRule{older, newer}, Input{Amount: irr(100000), AsOf: asOf.AddDate(0, 0, -7)})
	require.NoError(t, err)
	require.Equal(t, int64(10000), result.Commission.Amount)
}

func TestComputeFilters(t *testing.T) {
	inactive := percentageRule("0.10")
	inactive.IsActive = false

	deactivated := percentageRule("0.10")
	deactivated.IsActive = false
	deactivated.DeactivatedAt = ptr(asOf)

	expired := percentageRule("0.10")
	expired.EffectiveTo = ptr(asOf)

	threshold := percentageRule("0.10")
	threshold.ThresholdAmount = ptr(int64(500000))

	ownerOnly := percentageRule("0.10")
	ownerOnly.Applicability = enums.CommissionApplicabilityOwner

	usd := percentageRule("0.10")
	usd.Currency = enums.CurrencyUSD

	for name, rule := range map[string]models.CommissionRule{
		"inactive":        inactive,
		"deactivated":     deactivated,
		"expired":         expired,
		"below threshold": threshold,
		"other party":     ownerOnly,
		"other currency":  usd,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := Compute([]models.CommissionRule{rule}, Input{
				Amount: irr(100000),
				AsOf:   asOf,
				Party:  enums.CommissionApplicabilityDriver,
			})
			require.NoError(t, err)
			require.Nil(t, result.RuleID)
			require.True(t, result.Commission.IsZero())
			require.Equal(t, int64(100000), result.Net.Amount)
		})
	}
}

func TestComputeDeactivatedRuleStillPricesEarlierInstants(t *testing.T) {
	rule := percentageRule("0.10")
	rule.IsActive = false
	rule.DeactivatedAt = ptr(asOf.Add(time.Hour))

	in := Input{Amount: irr(950000), AsOf: asOf, Party: enums.CommissionApplicabilityDriver}
	result, err := Compute([]models.CommissionRule{rule}, in)
	require.NoError(t, err)
	require.Equal(t, int64(95000), result.Commission.Amount)
	require.Equal(t, rule.ID, *result.RuleID)

	in.AsOf = asOf.Add(time.Hour)
	result, err = Compute([]models.CommissionRule{rule}, in)
	require.NoError(t, err)
	require.Nil(t, result.RuleID)
}

func TestComputeIsDeterministic(t *testing.T) {
	a := percentageRule("0.10")
	b := percentageRule("0.20")
	b.EffectiveFrom = a.EffectiveFrom

	first, err := Compute([]models.CommissionRule{a, b}, Input{Amount: irr(100000), AsOf: asOf})
	require.NoError(t, err)
	second, err := Compute([]models.CommissionRule{b, a}, Input{Amount: irr(100000), AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, *first.RuleID, *second.RuleID)
	require.Equal(t, first.Commission, second.Commission)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	_, err := Compute(nil, Input{Amount: irr(-1), AsOf: asOf})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Compute(nil, Input{Amount: money.Money{Amount: 10}, AsOf: asOf})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Compute(nil, Input{Amount: irr(10)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
