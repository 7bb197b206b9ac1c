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
// COMMISSION AUTO-POSTER - Income records and their commission payments
// =============================================================================

type IncomeInput struct {
	PatientID     PatientID
	DoctorID      StaffID
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	ServiceDate   time.Time
	Note          *string
}

// RecordIncome stores an income record and, when the doctor's rate is
// positive, the commission payment it earns. Both rows are written in the
// caller's transaction. The commission is nil when none was posted.
func (e *Engine) RecordIncome(ctx context.Context, s Store, in IncomeInput) (IncomeRecord, *SalaryPayment, error) {
	amount := RoundMoney(in.Amount)
	if !amount.IsPositive() {
		return IncomeRecord{}, nil, fmt.Errorf("%w: income amount must be positive", ErrInvalidAmount)
	}
	if !in.PaymentMethod.Valid() {
		return IncomeRecord{}, nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, in.PaymentMethod)
	}
	if in.PatientID <= 0 {
		return IncomeRecord{}, nil, fmt.Errorf("%w: patient id required", ErrInvalidPatient)
	}
	if in.ServiceDate.IsZero() {
		in.ServiceDate = e.now()
	}

	doctor, err := e.doctor(ctx, s, in.DoctorID)
	if err != nil {
		return IncomeRecord{}, nil, err
	}

	rec := IncomeRecord{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		Amount:        amount,
		PaymentMethod: in.PaymentMethod,
		ServiceDate:   DateOf(in.ServiceDate),
		Note:          in.Note,
		CreatedAt:     e.now().UTC(),
	}
	if rec.ID, err = s.InsertIncome(ctx, rec); err != nil {
		return IncomeRecord{}, nil, fmt.Errorf("insert income: %w", err)
	}

	if !doctor.CommissionRate.IsPositive() {
		return rec, nil, nil
	}
	commission := RoundMoney(amount.Mul(doctor.CommissionRate))
	if !commission.IsPositive() {
		return rec, nil, nil
	}

	incomeID := rec.ID
	note := CommissionNote(rec.ID)
	p := SalaryPayment{
		StaffID:     rec.DoctorID,
		Amount:      commission,
		PaymentDate: rec.ServiceDate,
		Note:        &note,
		Kind:        KindCommission,
		IncomeID:    &incomeID,
		CreatedAt:   rec.CreatedAt,
	}
	if p.ID, err = s.InsertSalaryPayment(ctx, p); err != nil {
		return IncomeRecord{}, nil, fmt.Errorf("insert commission for income %d: %w", rec.ID, err)
	}

	logger.FromContext(ctx).Info().
		Int64("income_id", int64(rec.ID)).
		Int64("doctor_id", int64(rec.DoctorID)).
		Str("commission", commission.StringFixed(2)).
		Msg("commission posted")
	return rec, &p, nil
}

// DeleteIncome removes an income record together with its commission.
func (e *Engine) DeleteIncome(ctx context.Context, s Store, id IncomeID) error {
	p, err := s.CommissionPayment(ctx, id)
	switch {
	case err == nil:
		if err := e.deletePayment(ctx, s, p.ID); err != nil {
			return err
		}
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("load commission for income %d: %w", id, err)
	}

	if err := s.DeleteIncome(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete income %d: %w", id, err)
	}
	logger.FromContext(ctx).Info().Int64("income_id", int64(id)).Msg("income deleted")
	return nil
}

func (e *Engine) doctor(ctx context.Context, s Store, id StaffID) (Doctor, error) {
	rec, err := s.FindStaff(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Doctor{}, fmt.Errorf("%w: staff %d not found", ErrInvalidDoctor, id)
	}
	if err != nil {
		return Doctor{}, fmt.Errorf("load doctor %d: %w", id, err)
	}
	if !rec.Active || ParseRole(rec.RoleName) != RoleDoctor {
		return Doctor{}, fmt.Errorf("%w: staff %d is not an active doctor", ErrInvalidDoctor, id)
	}
	staff, err := rec.Member(e.cfg.DefaultCommissionRate)
	if err != nil {
		return Doctor{}, err
	}
	return staff.(Doctor), nil
}
