package commission

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
)

// Input is everything a commission depends on. Party selects which side of the
// settlement the fee is charged to; an empty party matches every rule.
type Input struct {
	Amount      money.Money
	VehicleType enums.VehicleType
	CargoType   enums.CargoType
	AsOf        time.Time
	Party       enums.CommissionApplicability
}

// Result carries the commission and the rule that produced it. RuleID is nil
// when no rule matched and the commission is zero.
type Result struct {
	Commission money.Money
	Net        money.Money
	RuleID     *uuid.UUID
	RuleType   enums.CommissionType
	Rate       decimal.Decimal
}

// Compute selects the governing rule from candidates and applies it. It has no
// side effects: the same rules and input always produce the same result.
func Compute(rules []models.CommissionRule, in Input) (Result, error) {
	if !in.Amount.Currency.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "amount currency required")
	}
	if in.Amount.IsNegative() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if in.AsOf.IsZero() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "as-of date required")
	}

	rule := selectRule(rules, in)
	if rule == nil {
		return Result{Commission: money.Zero(in.Amount.Currency), Net: in.Amount}, nil
	}

	fee, rate, err := apply(rule, in.Amount)
	if err != nil {
		return Result{}, err
	}
	// the platform cut never exceeds the settled amount
	zero := int64(0)
	fee = fee.Clamp(&zero, &in.Amount.Amount)

	net, err := in.Amount.Sub(fee)
	if err != nil {
		return Result{}, err
	}
	id := rule.ID
	return Result{
		Commission: fee,
		Net:        net,
		RuleID:     &id,
		RuleType:   rule.Type,
		Rate:       rate,
	}, nil
}

func selectRule(rules []models.CommissionRule, in Input) *models.CommissionRule {
	var matches []*models.CommissionRule
	for i := range rules {
		if ruleMatches(&rules[i], in) {
			matches = append(matches, &rules[i])
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if sa, sb := specificity(a), specificity(b); sa != sb {
			return sa > sb
		}
		if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
			return a.EffectiveFrom.After(b.EffectiveFrom)
		}
		return a.ID.String() < b.ID.String()
	})
	return matches[0]
}

func ruleMatches(rule *models.CommissionRule, in Input) bool {
	if !inForceAt(rule, in.AsOf) || rule.Currency != in.Amount.Currency {
		return false
	}
	if in.AsOf.Before(rule.EffectiveFrom) {
		return false
	}
	if rule.EffectiveTo != nil && !in.AsOf.Before(*rule.EffectiveTo) {
		return false
	}
	if rule.VehicleType != nil && *rule.VehicleType != in.VehicleType {
		return false
	}
	if rule.CargoType != nil && *rule.CargoType != in.CargoType {
		return false
	}
	if rule.ThresholdAmount != nil && in.Amount.Amount < *rule.ThresholdAmount {
		return false
	}
	return appliesTo(rule.Applicability, in.Party)
}

// inForceAt treats deactivation as the end of a rule's window, so past
// settlements keep resolving to the rule that priced them.
func inForceAt(rule *models.CommissionRule, at time.Time) bool {
	if rule.IsActive {
		return true
	}
	return rule.DeactivatedAt != nil && at.Before(*rule.DeactivatedAt)
}

func appliesTo(applicability, party enums.CommissionApplicability) bool {
	if party == "" {
		return true
	}
	switch applicability {
	case party, enums.CommissionApplicabilityBoth, enums.CommissionApplicabilityPlatform:
		return true
	default:
		return false
	}
}

func specificity(rule *models.CommissionRule) int {
	score := 0
	if rule.VehicleType != nil {
		score++
	}
	if rule.CargoType != nil {
		score++
	}
	return score
}

func apply(rule *models.CommissionRule, amount money.Money) (money.Money, decimal.Decimal, error) {
	switch rule.Type {
	case enums.CommissionTypePercentage:
		return amount.MulRate(rule.Rate).Clamp(rule.MinAmount, rule.MaxAmount), rule.Rate, nil
	case enums.CommissionTypeTiered:
		tier := tierFor(rule.Tiers, amount.Amount)
		if tier == nil {
			return money.Zero(amount.Currency), decimal.Zero, nil
		}
		return amount.MulRate(tier.Rate).Clamp(rule.MinAmount, rule.MaxAmount), tier.Rate, nil
	case enums.CommissionTypeFixed, enums.CommissionTypePerTransaction:
		if rule.FixedAmount == nil {
			return money.Money{}, decimal.Zero, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("commission rule %s has no fixed amount", rule.ID))
		}
		return money.Money{Amount: *rule.FixedAmount, Currency: amount.Currency}, decimal.Zero, nil
	default:
		return money.Money{}, decimal.Zero, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unsupported commission type %q", rule.Type))
	}
}

// tierFor returns the [min, max) bracket containing amount. A nil max is open.
func tierFor(tiers []models.CommissionTier, amount int64) *models.CommissionTier {
	for i := range tiers {
		tier := &tiers[i]
		if amount < tier.MinAmount {
			continue
		}
		if tier.MaxAmount != nil && amount >= *tier.MaxAmount {
			continue
		}
		return tier
	}
	return nil
}
