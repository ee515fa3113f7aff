package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service loads rules and delegates to Compute.
type Service interface {
	Compute(ctx context.Context, in Input) (Result, error)
	ComputeTx(ctx context.Context, tx *gorm.DB, in Input) (Result, error)
	CreateRule(ctx context.Context, input CreateRuleInput) (*models.CommissionRule, error)
	Deactivate(ctx context.Context, ruleID uuid.UUID) error
}

// TierInput is one bracket of a tiered rule.
type TierInput struct {
	MinAmount int64
	MaxAmount *int64
	Rate      decimal.Decimal
}

// CreateRuleInput describes a new rule as entered by an administrator.
type CreateRuleInput struct {
	Name            string
	Type            enums.CommissionType
	Applicability   enums.CommissionApplicability
	Currency        enums.Currency
	Rate            decimal.Decimal
	FixedAmount     *int64
	MinAmount       *int64
	MaxAmount       *int64
	ThresholdAmount *int64
	VehicleType     *enums.VehicleType
	CargoType       *enums.CargoType
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
	Tiers           []TierInput
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

func (s *service) Compute(ctx context.Context, in Input) (Result, error) {
	return s.ComputeTx(ctx, nil, in)
}

// ComputeTx reads rules through tx when it is non-nil.
func (s *service) ComputeTx(ctx context.Context, tx *gorm.DB, in Input) (Result, error) {
	if in.AsOf.IsZero() {
		in.AsOf = s.now().UTC()
	}
	rules, err := s.repo.WithTx(tx).ListCandidates(ctx, in.Amount.Currency, in.AsOf)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rules")
	}
	result, err := Compute(rules, in)
	if err != nil {
		return Result{}, err
	}
	if result.RuleID == nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"amount":       in.Amount.Amount,
			"currency":     string(in.Amount.Currency),
			"vehicle_type": string(in.VehicleType),
			"cargo_type":   string(in.CargoType),
		})
		s.logg.Warn(logCtx, "no commission rule matched; commission is zero")
	}
	return result, nil
}

func (s *service) CreateRule(ctx context.Context, input CreateRuleInput) (*models.CommissionRule, error) {
	if err := validateRule(input); err != nil {
		return nil, err
	}

	rule := &models.CommissionRule{
		Name:            strings.TrimSpace(input.Name),
		Type:            input.Type,
		Applicability:   input.Applicability,
		Currency:        input.Currency,
		Rate:            input.Rate,
		FixedAmount:     input.FixedAmount,
		MinAmount:       input.MinAmount,
		MaxAmount:       input.MaxAmount,
		ThresholdAmount: input.ThresholdAmount,
		VehicleType:     input.VehicleType,
		CargoType:       input.CargoType,
		EffectiveFrom:   input.EffectiveFrom.UTC(),
		IsActive:        true,
	}
	if input.EffectiveTo != nil {
		to := input.EffectiveTo.UTC()
		rule.EffectiveTo = &to
	}
	for _, tier := range input.Tiers {
		rule.Tiers = append(rule.Tiers, models.CommissionTier{
			MinAmount: tier.MinAmount,
			MaxAmount: tier.MaxAmount,
			Rate:      tier.Rate,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, rule); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission rule")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"rule_id": rule.ID.String(),
		"type":    string(rule.Type),
	})
	s.logg.Info(logCtx, "commission rule created")
	return rule, nil
}

func (s *service) Deactivate(ctx context.Context, ruleID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.Deactivate(ctx, ruleID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate commission rule")
		}
		if changed {
			s.logg.Info(s.logg.WithField(ctx, "rule_id", ruleID.String()), "commission rule deactivated")
			return nil
		}
		if _, err := repo.FindByID(ctx, ruleID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "commission rule not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rule")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "commission rule already inactive")
	})
}

func validateRule(input CreateRuleInput) error {
	details := map[string]string{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "is required"
	}
	if !input.Type.IsValid() {
		details["type"] = "is invalid"
	}
	if !input.Applicability.IsValid() {
		details["applicability"] = "is invalid"
	}
	if !input.Currency.IsValid() {
		details["currency"] = "is invalid"
	}
	if input.EffectiveFrom.IsZero() {
		details["effective_from"] = "is required"
	}
	if input.EffectiveTo != nil && !input.EffectiveTo.After(input.EffectiveFrom) {
		details["effective_to"] = "must be after effective_from"
	}
	if input.MinAmount != nil && input.MaxAmount != nil && *input.MinAmount > *input.MaxAmount {
		details["max_amount"] = "must not be below min_amount"
	}
	if input.VehicleType != nil && !input.VehicleType.IsValid() {
		details["vehicle_type"] = "is invalid"
	}
	if input.CargoType != nil && !input.CargoType.IsValid() {
		details["cargo_type"] = "is invalid"
	}

	switch input.Type {
	case enums.CommissionTypePercentage:
		if !validRate(input.Rate) {
			details["rate"] = "must be between 0 and 1"
		}
	case enums.CommissionTypeFixed, enums.CommissionTypePerTransaction:
		if input.FixedAmount == nil || *input.FixedAmount < 0 {
			details["fixed_amount"] = "is required"
		}
	case enums.CommissionTypeTiered:
		if msg := validateTiers(input.Tiers); msg != "" {
			details["tiers"] = msg
		}
	}

	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid commission rule").WithDetails(details)
	}
	return nil
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1))
}

// validateTiers requires brackets sorted by min with no overlap.
func validateTiers(tiers []TierInput) string {
	if len(tiers) == 0 {
		return "at least one tier is required"
	}
	for i, tier := range tiers {
		if !validRate(tier.Rate) {
			return fmt.Sprintf("tier %d rate must be between 0 and 1", i)
		}
		if tier.MaxAmount != nil && *tier.MaxAmount <= tier.MinAmount {
			return fmt.Sprintf("tier %d max must exceed min", i)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if prev.MaxAmount == nil || *prev.MaxAmount > tier.MinAmount {
			return fmt.Sprintf("tier %d overlaps tier %d", i, i-1)
		}
	}
	return ""
}
