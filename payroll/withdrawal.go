/*
withdrawal.go - Salary withdrawal orchestration

PURPOSE:
  Turns a withdrawal request into at most one regular SalaryPayment and
  exactly one WithdrawalAuditEntry, without ever paying out more than the
  cycle's earnings.

SEQUENCE (inside the caller's transaction):
  1. Lock the staff row (must exist and be active)
  2. Cycle = first of payment date's month .. payment date
  3. Earnings for the cycle (earnings.go)
  4. Regular payments already made in the cycle (ledger.go)
  5. Evaluate (policy.go)
  6. Allowed: insert payment, insert audit linked to it
     Denied:  insert audit only

  A denial returns a result, not an error, so the caller commits the audit
  row. Any store failure returns an error and the caller rolls back the
  payment and the audit together.

CONCURRENCY:
  Step 1 serializes withdrawals per staff member. Without it two requests
  could both read the same already-paid total and overdraw.

SEE ALSO:
  - policy.go: Decision rules
  - audit.go: Audit rows
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/policlinic/backoffice/logger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the entry point for every payroll operation. It is safe for
// concurrent use; all state lives in the Store passed to each call.
type Engine struct {
	cfg   Config
	calc  *Calculator
	audit *Recorder
	now   func() time.Time
}

type Option func(*Engine)

// WithClock overrides time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.calc = NewCalculator(cfg)
	e.audit = NewRecorder(e.now)
	return e
}

func (e *Engine) Calculator() *Calculator { return e.calc }

// =============================================================================
// WITHDRAWAL
// =============================================================================

type WithdrawalRequest struct {
	StaffID     StaffID
	Amount      decimal.Decimal
	PaymentDate time.Time
	Note        *string
	Actor       *Actor
}

type WithdrawalResult struct {
	Decision
	Cycle         Cycle
	TotalEarnings decimal.Decimal
	AlreadyPaid   decimal.Decimal
	Payment       *SalaryPayment
	Audit         WithdrawalAuditEntry
}

// Withdraw evaluates and, when allowed, disburses a salary withdrawal.
func (e *Engine) Withdraw(ctx context.Context, s Store, req WithdrawalRequest) (WithdrawalResult, error) {
	req.Amount = RoundMoney(req.Amount)
	if !req.Amount.IsPositive() {
		return WithdrawalResult{}, fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidAmount)
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = e.now()
	}
	req.PaymentDate = DateOf(req.PaymentDate)

	rec, err := s.LockStaff(ctx, req.StaffID)
	if err != nil {
		return WithdrawalResult{}, staffLookupError(req.StaffID, err)
	}
	staff, err := rec.Member(e.cfg.DefaultCommissionRate)
	if err != nil {
		return WithdrawalResult{}, err
	}

	res := WithdrawalResult{Cycle: CycleFor(req.PaymentDate)}
	if res.TotalEarnings, err = e.calc.Earnings(ctx, s, staff, res.Cycle); err != nil {
		return WithdrawalResult{}, err
	}
	if res.AlreadyPaid, err = e.calc.AlreadyPaid(ctx, s, req.StaffID, res.Cycle); err != nil {
		return WithdrawalResult{}, err
	}
	res.Decision = Evaluate(res.TotalEarnings, res.AlreadyPaid, req.Amount)

	log := logger.FromContext(ctx).With().
		Int64("staff_id", int64(req.StaffID)).
		Str("requested", req.Amount.StringFixed(2)).
		Str("status", string(res.Status)).
		Logger()

	if !res.Allowed {
		if res.Audit, err = e.audit.Withdrawal(ctx, s, req, res.Decision, nil); err != nil {
			return WithdrawalResult{}, err
		}
		log.Warn().Str("available", res.AvailableBefore.StringFixed(2)).Msg("withdrawal denied")
		return res, nil
	}

	payment := SalaryPayment{
		StaffID:     req.StaffID,
		Amount:      res.ProcessedAmount,
		PaymentDate: req.PaymentDate,
		Note:        req.Note,
		Kind:        KindRegular,
		CreatedAt:   e.now().UTC(),
	}
	if payment.ID, err = s.InsertSalaryPayment(ctx, payment); err != nil {
		return WithdrawalResult{}, fmt.Errorf("insert salary payment: %w", err)
	}
	res.Payment = &payment

	if res.Audit, err = e.audit.Withdrawal(ctx, s, req, res.Decision, &payment.ID); err != nil {
		return WithdrawalResult{}, err
	}
	log.Info().Int64("payment_id", int64(payment.ID)).Msg("withdrawal processed")
	return res, nil
}

// =============================================================================
// PAYMENT DELETION
// =============================================================================

// DeletePayment removes a regular salary payment and flags its withdrawal
// audit rows as deleted. Commission payments are refused.
func (e *Engine) DeletePayment(ctx context.Context, s Store, id PaymentID) error {
	p, err := s.GetSalaryPayment(ctx, id)
	if err != nil {
		return err
	}
	if p.Kind == KindCommission {
		return fmt.Errorf("%w: payment %d", ErrCommissionPayment, id)
	}
	if err := e.deletePayment(ctx, s, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info().
		Int64("payment_id", int64(id)).
		Int64("staff_id", int64(p.StaffID)).
		Msg("salary payment deleted")
	return nil
}

func (e *Engine) deletePayment(ctx context.Context, s Store, id PaymentID) error {
	if err := e.audit.PaymentDeleted(ctx, s, id); err != nil {
		return err
	}
	if err := s.DeleteSalaryPayment(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete salary payment %d: %w", id, err)
	}
	return nil
}
