package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/internal/commission"
	"github.com/angelmondragon/freightmarket-backend/internal/payments/gateway"
	"github.com/angelmondragon/freightmarket-backend/internal/trips"
	"github.com/angelmondragon/freightmarket-backend/internal/wallets"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CommissionCalculator prices the platform fee inside the creating transaction.
type CommissionCalculator interface {
	ComputeTx(ctx context.Context, tx *gorm.DB, in commission.Input) (commission.Result, error)
}

// Ledger posts settlement entries inside the payment transaction.
type Ledger interface {
	OpenTx(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, entryType enums.WalletTransactionType, input wallets.MutationInput) (*models.WalletTransaction, error)
}

type Service interface {
	CreatePayment(ctx context.Context, input CreateInput) (*models.Payment, error)
	// InitiateForTrip starts settlement with the deployment's default gateway.
	InitiateForTrip(ctx context.Context, tripID uuid.UUID) (*models.Payment, error)
	VerifyPayment(ctx context.Context, input VerifyInput) (*models.Payment, error)
	RefundPayment(ctx context.Context, input RefundInput) (*models.Payment, error)
	CancelPayment(ctx context.Context, input CancelInput) (*models.Payment, error)
	SyncStatus(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)

	Get(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Payment, error)
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
}

// CreateInput starts settlement for a completed trip. A nil PayerID means the
// system initiated it on completion; otherwise it must be the trip owner.
type CreateInput struct {
	TripID      uuid.UUID
	PayerID     uuid.UUID
	Method      enums.PaymentMethod
	Gateway     enums.PaymentGateway
	SourceToken string
	Description string
}

// VerifyInput is what a gateway callback carries back.
type VerifyInput struct {
	Gateway   enums.PaymentGateway
	Authority string
	Amount    int64
}

type RefundInput struct {
	PaymentID uuid.UUID
	ActorID   uuid.UUID
	Reason    string
}

type CancelInput struct {
	PaymentID uuid.UUID
	ActorID   uuid.UUID
	Reason    string
}

type Options struct {
	DefaultGateway  enums.PaymentGateway
	GatewayTimeout  time.Duration
	CallbackBaseURL string
	PlatformOwnerID uuid.UUID
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	trips      trips.Repository
	commission CommissionCalculator
	ledger     Ledger
	gateways   *gateway.Registry
	metrics    *metrics.PaymentMetrics
	opts       Options
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the orchestrator. paymentMetrics may be nil.
func NewService(
	repo Repository,
	tx txRunner,
	outbox outboxPublisher,
	tripRepo trips.Repository,
	calculator CommissionCalculator,
	ledger Ledger,
	gateways *gateway.Registry,
	paymentMetrics *metrics.PaymentMetrics,
	opts Options,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if tripRepo == nil {
		return nil, fmt.Errorf("trips repository required")
	}
	if calculator == nil {
		return nil, fmt.Errorf("commission calculator required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.PlatformOwnerID == uuid.Nil {
		return nil, fmt.Errorf("platform owner id required")
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 15 * time.Second
	}
	if opts.DefaultGateway == "" {
		opts.DefaultGateway = enums.PaymentGatewayWallet
	}
	return &service{
		repo:       repo,
		tx:         tx,
		outbox:     outbox,
		trips:      tripRepo,
		commission: calculator,
		ledger:     ledger,
		gateways:   gateways,
		metrics:    paymentMetrics,
		opts:       opts,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) InitiateForTrip(ctx context.Context, tripID uuid.UUID) (*models.Payment, error) {
	method := enums.PaymentMethodGateway
	if s.opts.DefaultGateway == enums.PaymentGatewayWallet {
		method = enums.PaymentMethodWallet
	}
	return s.CreatePayment(ctx, CreateInput{
		TripID:  tripID,
		Method:  method,
		Gateway: s.opts.DefaultGateway,
	})
}

// CreatePayment persists the payment Pending and asks the gateway for a
// redirect or token. A retryable gateway failure leaves it Pending and a
// later call for the same trip resumes it. The payment is returned together
// with the error whenever one was recorded.
func (s *service) CreatePayment(ctx context.Context, input CreateInput) (*models.Payment, error) {
	if input.TripID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	}
	if input.Method == "" {
		input.Method = enums.PaymentMethodGateway
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.Method == enums.PaymentMethodWallet {
		input.Gateway = enums.PaymentGatewayWallet
	}
	if input.Gateway == "" {
		input.Gateway = s.opts.DefaultGateway
	}
	if input.Method == enums.PaymentMethodGateway && input.Gateway == enums.PaymentGatewayWallet {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway method requires an external gateway")
	}
	adapter, err := s.gateways.Get(input.Gateway)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payment, err = s.openTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	if payment.Status != enums.PaymentStatusPending {
		return payment, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	created, callErr := adapter.Create(callCtx, gateway.CreateRequest{
		PaymentID:   payment.ID,
		Amount:      money.Money{Amount: payment.GrossAmount, Currency: payment.Currency},
		Description: payment.Description,
		CallbackURL: s.callbackURL(payment.Gateway),
		SourceToken: input.SourceToken,
	})
	callErr = timedOut(callErr)
	cancel()
	if callErr != nil {
		if gateway.IsDecline(callErr) {
			failed, err := s.fail(ctx, payment, enums.PaymentStatusPending, callErr.Error())
			if err != nil {
				return payment, err
			}
			return failed, callErr
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", callErr.Error()), "gateway create failed; payment left pending")
		return payment, callErr
	}

	now := s.now().UTC()
	updates := map[string]any{
		"status":        enums.PaymentStatusProcessing,
		"authority":     created.Authority,
		"processing_at": now,
		"updated_at":    now,
	}
	if created.RedirectURL != "" {
		updates["redirect_url"] = created.RedirectURL
	}
	if created.ClientToken != "" {
		updates["client_token"] = created.ClientToken
	}
	processing, err := s.transition(ctx, payment, enums.PaymentStatusPending, enums.PaymentStatusProcessing, enums.EventPaymentProcessing, updates, "")
	if err != nil {
		return payment, err
	}
	s.logg.Info(s.logg.WithField(ctx, "gateway", payment.Gateway), "payment processing")

	if processing.Method == enums.PaymentMethodWallet {
		return s.VerifyPayment(ctx, VerifyInput{
			Gateway:   processing.Gateway,
			Authority: *processing.Authority,
			Amount:    processing.GrossAmount,
		})
	}
	return processing, nil
}

// openTx validates the trip and returns the payment to drive: the resumable
// Pending one when it exists, a new Pending one otherwise.
func (s *service) openTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Payment, error) {
	trip, err := s.trips.WithTx(tx).FindByID(ctx, input.TripID)
	if err != nil {
		return nil, mapLookupError(err, "trip")
	}
	if trip.Status != enums.TripStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "trip is not payable").
			WithDetails(map[string]any{"trip_status": trip.Status})
	}
	if input.PayerID != uuid.Nil && input.PayerID != trip.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the cargo owner pays for a trip")
	}

	repo := s.repo.WithTx(tx)
	live, err := repo.FindLiveForTrip(ctx, trip.ID)
	switch {
	case err == nil:
		if live.Status == enums.PaymentStatusPending && live.Authority == nil {
			return s.retarget(ctx, tx, live, input)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "trip already has a live payment").
			WithDetails(map[string]any{"payment_id": live.ID, "status": live.Status})
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check live payment")
	}

	now := s.now().UTC()
	gross := money.Money{Amount: trip.SettlementAmount(), Currency: trip.Currency}
	fee, err := s.commission.ComputeTx(ctx, tx, commission.Input{
		Amount:      gross,
		VehicleType: trip.VehicleType,
		CargoType:   trip.CargoType,
		AsOf:        now,
		Party:       enums.CommissionApplicabilityDriver,
	})
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = fmt.Sprintf("settlement for trip %s", trip.TripNumber)
	}
	payment := &models.Payment{
		TripID:           trip.ID,
		PayerID:          trip.OwnerID,
		PayeeID:          trip.DriverID,
		GrossAmount:      gross.Amount,
		CommissionAmount: fee.Commission.Amount,
		NetAmount:        fee.Net.Amount,
		Currency:         trip.Currency,
		CommissionRuleID: fee.RuleID,
		CommissionAsOf:   now,
		Method:           input.Method,
		Gateway:          input.Gateway,
		Status:           enums.PaymentStatusPending,
		Description:      description,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent payment creation")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	if err := s.emit(ctx, tx, payment, enums.EventPaymentCreated, ""); err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(payment.Gateway), string(payment.Status))

	logCtx := s.logg.WithPaymentID(s.logg.WithTripID(ctx, trip.ID.String()), payment.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"gross":      payment.GrossAmount,
		"commission": payment.CommissionAmount,
		"net":        payment.NetAmount,
		"gateway":    payment.Gateway,
	})
	s.logg.Info(logCtx, "payment created")
	return payment, nil
}

// retarget points a resumable payment at the requested gateway.
func (s *service) retarget(ctx context.Context, tx *gorm.DB, payment *models.Payment, input CreateInput) (*models.Payment, error) {
	if payment.Method == input.Method && payment.Gateway == input.Gateway {
		return payment, nil
	}
	updated, err := s.casTx(ctx, tx, payment, enums.PaymentStatusPending, map[string]any{
		"method":     input.Method,
		"gateway":    input.Gateway,
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// VerifyPayment confirms a payment with its gateway and settles it into the
// ledger. The authority is the idempotency key: once the payment is
// Completed every further call returns the stored result untouched.
func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) (*models.Payment, error) {
	authority := strings.TrimSpace(input.Authority)
	if authority == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authority required")
	}
	payment, err := s.repo.FindByAuthority(ctx, authority)
	if err != nil {
		return nil, mapLookupError(err, "payment")
	}
	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	if input.Gateway != "" && input.Gateway != payment.Gateway {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authority belongs to another gateway")
	}

	switch payment.Status {
	case enums.PaymentStatusCompleted, enums.PaymentStatusRefunded:
		s.logg.Info(ctx, "payment already verified")
		return payment, nil
	case enums.PaymentStatusProcessing:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot be verified").
			WithDetails(map[string]any{"status": payment.Status})
	}
	if input.Amount != payment.GrossAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match payment").
			WithDetails(map[string]any{"expected": payment.GrossAmount, "amount": input.Amount})
	}

	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	verified, callErr := adapter.Verify(callCtx, authority, money.Money{Amount: payment.GrossAmount, Currency: payment.Currency})
	callErr = timedOut(callErr)
	cancel()
	if callErr != nil {
		if gateway.IsDecline(callErr) {
			failed, err := s.fail(ctx, payment, enums.PaymentStatusProcessing, callErr.Error())
			if err != nil {
				return nil, err
			}
			return failed, callErr
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", callErr.Error()), "gateway verify failed; payment left processing")
		return nil, callErr
	}

	var settled *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paidAt := verified.PaidAt
		if paidAt.IsZero() {
			paidAt = s.now().UTC()
		}
		updated, err := s.casTx(ctx, tx, payment, enums.PaymentStatusProcessing, map[string]any{
			"status":       enums.PaymentStatusCompleted,
			"reference_id": verified.ReferenceID,
			"paid_at":      paidAt,
			"updated_at":   s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := s.creditTx(ctx, tx, updated); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, updated, enums.EventPaymentCompleted, ""); err != nil {
			return err
		}
		settled = updated
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			// A concurrent verification won; hand back what it stored.
			current, loadErr := s.Get(ctx, payment.ID)
			if loadErr == nil && current.Status == enums.PaymentStatusCompleted {
				return current, nil
			}
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) && payment.Method == enums.PaymentMethodWallet {
			failed, failErr := s.fail(ctx, payment, enums.PaymentStatusProcessing, "insufficient wallet balance")
			if failErr == nil {
				return failed, err
			}
		}
		return nil, err
	}

	s.metrics.IncTransition(string(settled.Gateway), string(settled.Status))
	s.logg.Info(s.logg.WithField(ctx, "reference_id", verified.ReferenceID), "payment completed")
	return settled, nil
}

// creditTx posts the settlement: payee receives net and the platform the
// commission. Wallet-funded payments debit the payer's gross first.
func (s *service) creditTx(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	corr := "payment:" + payment.ID.String()
	if payment.Method == enums.PaymentMethodWallet {
		if err := s.post(ctx, tx, payment.PayerID, enums.WalletTransactionTypeWithdrawal, payment.GrossAmount, payment.Currency, corr, "trip payment"); err != nil {
			return err
		}
	}
	if err := s.post(ctx, tx, payment.PayeeID, enums.WalletTransactionTypeDeposit, payment.NetAmount, payment.Currency, corr, "trip earnings"); err != nil {
		return err
	}
	return s.post(ctx, tx, s.opts.PlatformOwnerID, enums.WalletTransactionTypeDeposit, payment.CommissionAmount, payment.Currency, corr, "trip commission")
}

// post skips zero amounts; a zero commission leaves no ledger entry.
func (s *service) post(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, entryType enums.WalletTransactionType, amount int64, currency enums.Currency, correlationID, memo string) error {
	if amount == 0 {
		return nil
	}
	wallet, err := s.ledger.OpenTx(ctx, tx, ownerID, currency)
	if err != nil {
		return err
	}
	_, err = s.ledger.ApplyTx(ctx, tx, entryType, wallets.MutationInput{
		WalletID:      wallet.ID,
		Amount:        amount,
		Currency:      currency,
		CorrelationID: correlationID,
		Memo:          memo,
	})
	return err
}

// RefundPayment reverses a completed payment. Ledger holds are placed before
// the gateway is called so the credited funds cannot be spent meanwhile; a
// failed gateway refund releases them again.
func (s *service) RefundPayment(ctx context.Context, input RefundInput) (*models.Payment, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}
	payment, err := s.Get(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded").
			WithDetails(map[string]any{"status": payment.Status})
	}
	if payment.RefundPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "refund already in progress")
	}
	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, err
	}

	corr := fmt.Sprintf("refund:%s:%s", payment.ID, uuid.NewString())
	var held *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.casTx(ctx, tx, payment, enums.PaymentStatusCompleted, map[string]any{
			"refund_pending": true,
			"refund_reason":  reason,
			"updated_at":     s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := s.post(ctx, tx, payment.PayeeID, enums.WalletTransactionTypeHold, payment.NetAmount, payment.Currency, corr, "refund hold"); err != nil {
			return err
		}
		if err := s.post(ctx, tx, s.opts.PlatformOwnerID, enums.WalletTransactionTypeHold, payment.CommissionAmount, payment.Currency, corr, "refund hold"); err != nil {
			return err
		}
		held = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	authority := ""
	if held.Authority != nil {
		authority = *held.Authority
	}
	reference := ""
	if held.ReferenceID != nil {
		reference = *held.ReferenceID
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	callErr := adapter.Refund(callCtx, gateway.RefundRequest{
		Authority:      authority,
		ReferenceID:    reference,
		Amount:         money.Money{Amount: held.GrossAmount, Currency: held.Currency},
		Reason:         reason,
		IdempotencyKey: corr,
	})
	callErr = timedOut(callErr)
	cancel()

	if callErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", callErr.Error()), "gateway refund failed; releasing holds")
		if err := s.releaseHolds(ctx, held, corr); err != nil {
			s.logg.Error(ctx, "release refund holds failed", err)
			return nil, err
		}
		return nil, callErr
	}

	var refunded *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		updated, err := s.casTx(ctx, tx, held, enums.PaymentStatusCompleted, map[string]any{
			"status":         enums.PaymentStatusRefunded,
			"refund_pending": false,
			"refunded_at":    now,
			"updated_at":     now,
		})
		if err != nil {
			return err
		}
		if err := s.reverseTx(ctx, tx, updated, corr); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, updated, enums.EventPaymentRefunded, reason); err != nil {
			return err
		}
		refunded = updated
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "refund accepted by gateway but not recorded", err)
		return nil, err
	}

	s.metrics.IncTransition(string(refunded.Gateway), string(refunded.Status))
	s.logg.Info(s.logg.WithField(ctx, "reason", reason), "payment refunded")
	return refunded, nil
}

func (s *service) releaseHolds(ctx context.Context, payment *models.Payment, corr string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.casTx(ctx, tx, payment, enums.PaymentStatusCompleted, map[string]any{
			"refund_pending": false,
			"updated_at":     s.now().UTC(),
		}); err != nil {
			return err
		}
		if err := s.post(ctx, tx, payment.PayeeID, enums.WalletTransactionTypeRelease, payment.NetAmount, payment.Currency, corr, "refund hold released"); err != nil {
			return err
		}
		return s.post(ctx, tx, s.opts.PlatformOwnerID, enums.WalletTransactionTypeRelease, payment.CommissionAmount, payment.Currency, corr, "refund hold released")
	})
}

// reverseTx turns the holds into withdrawals and, for wallet payments,
// returns the gross to the payer.
func (s *service) reverseTx(ctx context.Context, tx *gorm.DB, payment *models.Payment, corr string) error {
	legs := []struct {
		owner  uuid.UUID
		amount int64
	}{
		{payment.PayeeID, payment.NetAmount},
		{s.opts.PlatformOwnerID, payment.CommissionAmount},
	}
	for _, leg := range legs {
		if err := s.post(ctx, tx, leg.owner, enums.WalletTransactionTypeRelease, leg.amount, payment.Currency, corr, "refund hold released"); err != nil {
			return err
		}
		if err := s.post(ctx, tx, leg.owner, enums.WalletTransactionTypeWithdrawal, leg.amount, payment.Currency, corr, "refund reversal"); err != nil {
			return err
		}
	}
	if payment.Method == enums.PaymentMethodWallet {
		return s.post(ctx, tx, payment.PayerID, enums.WalletTransactionTypeDeposit, payment.GrossAmount, payment.Currency, corr, "trip payment refunded")
	}
	return nil
}

// CancelPayment abandons a payment before it is confirmed.
func (s *service) CancelPayment(ctx context.Context, input CancelInput) (*models.Payment, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason required")
	}
	payment, err := s.Get(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if input.ActorID != uuid.Nil && input.ActorID != payment.PayerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the payer can cancel a payment")
	}
	switch payment.Status {
	case enums.PaymentStatusPending, enums.PaymentStatusProcessing:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment can no longer be cancelled").
			WithDetails(map[string]any{"status": payment.Status})
	}

	now := s.now().UTC()
	cancelled, err := s.transition(ctx, payment, payment.Status, enums.PaymentStatusCancelled, enums.EventPaymentCancelled, map[string]any{
		"status":        enums.PaymentStatusCancelled,
		"cancel_reason": reason,
		"cancelled_at":  now,
		"updated_at":    now,
	}, reason)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithPaymentID(ctx, payment.ID.String()), "reason", reason), "payment cancelled")
	return cancelled, nil
}

// SyncStatus reconciles a Processing payment with its gateway: paid runs the
// verification path, failed closes the payment, anything else is left alone.
func (s *service) SyncStatus(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusProcessing || payment.Authority == nil {
		return payment, nil
	}
	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())

	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	status, err := adapter.Status(callCtx, *payment.Authority)
	err = timedOut(err)
	cancel()
	if err != nil {
		return nil, err
	}

	switch status {
	case gateway.StatusPaid:
		return s.VerifyPayment(ctx, VerifyInput{Gateway: payment.Gateway, Authority: *payment.Authority, Amount: payment.GrossAmount})
	case gateway.StatusFailed:
		return s.fail(ctx, payment, enums.PaymentStatusProcessing, "gateway reported failure")
	case gateway.StatusRefunded:
		s.logg.Warn(ctx, "gateway reports refund for a payment that was never completed")
		return payment, nil
	default:
		return payment, nil
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "payment")
	}
	return payment, nil
}

func (s *service) ListForTrip(ctx context.Context, tripID uuid.UUID) ([]models.Payment, error) {
	out, err := s.repo.ListForTrip(ctx, tripID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return out, nil
}

// ListStale returns Processing payments untouched for at least olderThan.
func (s *service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error) {
	out, err := s.repo.ListStale(ctx, enums.PaymentStatusProcessing, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}
	return out, nil
}

func (s *service) fail(ctx context.Context, payment *models.Payment, from enums.PaymentStatus, reason string) (*models.Payment, error) {
	now := s.now().UTC()
	failed, err := s.transition(ctx, payment, from, enums.PaymentStatusFailed, enums.EventPaymentFailed, map[string]any{
		"status":         enums.PaymentStatusFailed,
		"failure_reason": reason,
		"failed_at":      now,
		"updated_at":     now,
	}, reason)
	if err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment failed")
	return failed, nil
}

// transition runs one CAS plus its event in its own transaction.
func (s *service) transition(ctx context.Context, payment *models.Payment, from, to enums.PaymentStatus, event enums.OutboxEventType, updates map[string]any, reason string) (*models.Payment, error) {
	var out *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.casTx(ctx, tx, payment, from, updates)
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, updated, event, reason); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(out.Gateway), string(to))
	return out, nil
}

// casTx applies updates when the row is still at (from, payment.Version) and
// returns the reloaded row.
func (s *service) casTx(ctx context.Context, tx *gorm.DB, payment *models.Payment, from enums.PaymentStatus, updates map[string]any) (*models.Payment, error) {
	repo := s.repo.WithTx(tx)
	ok, err := repo.CompareAndSwap(ctx, payment.ID, from, payment.Version, updates)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment authority already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment changed concurrently").
			WithDetails(map[string]any{"payment_id": payment.ID, "expected_status": from, "expected_version": payment.Version})
	}
	updated, err := repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return updated, nil
}

func (s *service) callbackURL(gw enums.PaymentGateway) string {
	base := strings.TrimRight(s.opts.CallbackBaseURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/verify", base, gw)
}

func mapLookupError(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, resource+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+resource)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, payment *models.Payment, eventType enums.OutboxEventType, reason string) error {
	data := payloads.PaymentEvent{
		PaymentID:        payment.ID,
		TripID:           payment.TripID,
		PayerID:          payment.PayerID,
		PayeeID:          payment.PayeeID,
		GrossAmount:      payment.GrossAmount,
		CommissionAmount: payment.CommissionAmount,
		NetAmount:        payment.NetAmount,
		Currency:         payment.Currency,
		Gateway:          payment.Gateway,
		Status:           payment.Status,
		Reason:           reason,
	}
	if payment.Authority != nil {
		data.Authority = *payment.Authority
	}
	if payment.ReferenceID != nil {
		data.ReferenceID = *payment.ReferenceID
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		OccurredAt:    s.now().UTC(),
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
	}
	return nil
}

// timedOut turns a bare deadline from a gateway call into a retryable
// dependency error. Errors the adapter already classified pass through.
func timedOut(err error) error {
	if err == nil || pkgerrors.As(err) != nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway call timed out")
}
