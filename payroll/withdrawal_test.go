package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/payroll/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march1  = payroll.NewDate(2025, time.March, 1)
	march10 = payroll.NewDate(2025, time.March, 10)
	march15 = payroll.NewDate(2025, time.March, 15)
	april2  = payroll.NewDate(2025, time.April, 2)
	fixedAt = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T) (*payroll.Engine, *store.Memory) {
	t.Helper()
	cfg := payroll.Config{DefaultCommissionRate: dec("0.3")}
	return payroll.NewEngine(cfg, payroll.WithClock(func() time.Time { return fixedAt })), store.NewMemory()
}

func addDoctor(m *store.Memory, rate *string) payroll.StaffID {
	rec := payroll.StaffRecord{FirstName: "Ana", LastName: "Lopes", RoleName: "doctor", Active: true}
	if rate != nil {
		rec.CommissionRate = decimal.NewNullDecimal(dec(*rate))
	}
	return m.AddStaff(rec)
}

func addAdmin(m *store.Memory, salary string) payroll.StaffID {
	return m.AddStaff(payroll.StaffRecord{FirstName: "Rui", LastName: "Costa", RoleName: "administrator", BaseSalary: dec(salary), Active: true})
}

func addNurse(m *store.Memory, hourly string) payroll.StaffID {
	return m.AddStaff(payroll.StaffRecord{FirstName: "Eva", LastName: "Reis", RoleName: "nurse", BaseSalary: dec(hourly), Active: true})
}

func strPtr(s string) *string { return &s }

func withdraw(t *testing.T, e *payroll.Engine, m *store.Memory, staff payroll.StaffID, amount string, date time.Time) (payroll.WithdrawalResult, error) {
	t.Helper()
	var res payroll.WithdrawalResult
	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		var err error
		res, err = e.Withdraw(context.Background(), s, payroll.WithdrawalRequest{
			StaffID:     staff,
			Amount:      dec(amount),
			PaymentDate: date,
			Actor:       &payroll.Actor{ID: 99, Role: "admin"},
		})
		return err
	})
	return res, err
}

// =============================================================================
// WITHDRAWAL SCENARIOS
// =============================================================================

func TestWithdraw_FullBalance_Allowed(t *testing.T) {
	// GIVEN: An administrator earning 100 with nothing paid
	// WHEN: Withdrawing 100
	// THEN: Payment of 100 is written and linked from an ok audit row
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")

	res, err := withdraw(t, engine, m, admin, "100", march15)
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Equal(t, payroll.StatusOK, res.Status)
	assert.True(t, res.AvailableAfter.IsZero())
	require.NotNil(t, res.Payment)

	payments := m.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, payroll.KindRegular, payments[0].Kind)
	assert.True(t, dec("100").Equal(payments[0].Amount))

	audits := m.WithdrawalAudits()
	require.Len(t, audits, 1)
	assert.Equal(t, payroll.StatusOK, audits[0].Status)
	require.NotNil(t, audits[0].SalaryPaymentID)
	assert.Equal(t, payments[0].ID, *audits[0].SalaryPaymentID)
	assert.Nil(t, audits[0].ErrorCode)
	require.NotNil(t, audits[0].RequestedBy)
	assert.Equal(t, payroll.StaffID(99), *audits[0].RequestedBy)
}

func TestWithdraw_ExceedsRemaining_DeniedAndAudited(t *testing.T) {
	// GIVEN: Administrator earning 100, already paid 50
	// WHEN: Withdrawing 60
	// THEN: Denied insufficient_balance, audit committed, no new payment
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")

	_, err := withdraw(t, engine, m, admin, "50", march10)
	require.NoError(t, err)

	res, err := withdraw(t, engine, m, admin, "60", march15)
	require.NoError(t, err, "a denial is not an error")

	assert.False(t, res.Allowed)
	assert.Equal(t, payroll.StatusInsufficientBalance, res.Status)
	assert.True(t, res.ProcessedAmount.IsZero())
	assert.Nil(t, res.Payment)
	assert.Len(t, m.Payments(), 1)

	audits := m.WithdrawalAudits()
	require.Len(t, audits, 2)
	denied := audits[1]
	assert.Equal(t, payroll.StatusInsufficientBalance, denied.Status)
	assert.Nil(t, denied.SalaryPaymentID)
	require.NotNil(t, denied.ErrorCode)
	assert.Equal(t, "insufficient_balance", *denied.ErrorCode)
	assert.True(t, dec("60").Equal(denied.RequestedAmount))
	assert.True(t, denied.ProcessedAmount.IsZero())
}

func TestWithdraw_AlreadyWithdrawn(t *testing.T) {
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")

	_, err := withdraw(t, engine, m, admin, "100", march10)
	require.NoError(t, err)

	res, err := withdraw(t, engine, m, admin, "10", march15)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusSalaryAlreadyWithdrawn, res.Status)
}

func TestWithdraw_NoEarnings(t *testing.T) {
	// GIVEN: A nurse with no timesheets
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "12.50")

	res, err := withdraw(t, engine, m, nurse, "10", march15)
	require.NoError(t, err)

	assert.Equal(t, payroll.StatusNoEarnings, res.Status)
	assert.Empty(t, m.Payments())
	assert.Len(t, m.WithdrawalAudits(), 1)
}

func TestWithdraw_CycleResetsOnNewMonth(t *testing.T) {
	// GIVEN: Administrator fully paid in March
	// WHEN: Withdrawing in April
	// THEN: April's cycle has its own flat salary
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")

	_, err := withdraw(t, engine, m, admin, "100", march15)
	require.NoError(t, err)

	res, err := withdraw(t, engine, m, admin, "100", april2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, payroll.NewDate(2025, time.April, 1), res.Cycle.Start)
}

func TestWithdraw_CommissionNeverCountsAsPaid(t *testing.T) {
	// GIVEN: Doctor with income 200 at rate 0.3 (commission 60 auto-posted)
	// WHEN: Withdrawing 60
	// THEN: Allowed, the commission payment did not reduce the balance
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, nil)
	recordIncome(t, engine, m, doctor, "200", march10)

	res, err := withdraw(t, engine, m, doctor, "60", march15)
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.True(t, dec("60").Equal(res.TotalEarnings))
	assert.True(t, res.AlreadyPaid.IsZero())
}

func TestWithdraw_HourlyStaff(t *testing.T) {
	// GIVEN: Nurse at 10/h who worked 09:00-17:30 (8.5h)
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	createShift(t, engine, m, nurse, march10, "09:00", "17:30")

	res, err := withdraw(t, engine, m, nurse, "85.01", march15)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusInsufficientBalance, res.Status)

	res, err = withdraw(t, engine, m, nurse, "85", march15)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// =============================================================================
// VALIDATION AND ATOMICITY
// =============================================================================

func TestWithdraw_InvalidInput(t *testing.T) {
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")
	inactive := m.AddStaff(payroll.StaffRecord{RoleName: "administrator", BaseSalary: dec("100"), Active: false})

	_, err := withdraw(t, engine, m, admin, "0", march15)
	assert.ErrorIs(t, err, payroll.ErrInvalidAmount)

	_, err = withdraw(t, engine, m, admin, "-5", march15)
	assert.ErrorIs(t, err, payroll.ErrInvalidAmount)

	_, err = withdraw(t, engine, m, 4242, "10", march15)
	assert.ErrorIs(t, err, payroll.ErrInvalidStaff)

	_, err = withdraw(t, engine, m, inactive, "10", march15)
	var staffErr *payroll.StaffError
	require.ErrorAs(t, err, &staffErr)
	assert.Equal(t, inactive, staffErr.StaffID)

	assert.Empty(t, m.WithdrawalAudits(), "rejected input leaves no audit row")
}

func TestWithdraw_AuditFailureRollsBackPayment(t *testing.T) {
	// GIVEN: The audit insert fails
	// WHEN: Withdrawing an allowed amount
	// THEN: The payment is rolled back with it
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")
	m.FailOn("InsertWithdrawalAudit", errors.New("disk full"))

	_, err := withdraw(t, engine, m, admin, "40", march15)
	require.Error(t, err)

	assert.Empty(t, m.Payments())
	assert.Empty(t, m.WithdrawalAudits())
}

func TestWithdraw_StoreFailureIsNotADenial(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, strPtr("0.4"))
	m.FailOn("SumIncome", errors.New("connection reset"))

	_, err := withdraw(t, engine, m, doctor, "10", march15)
	require.Error(t, err)
	assert.False(t, payroll.IsClientError(err))
	assert.Empty(t, m.WithdrawalAudits())
}

// =============================================================================
// PAYMENT DELETION
// =============================================================================

func TestDeletePayment_MarksAuditDeleted(t *testing.T) {
	// GIVEN: A processed withdrawal
	// WHEN: Its payment is deleted
	// THEN: Audit row kept with status deleted and no payment link
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")

	res, err := withdraw(t, engine, m, admin, "30", march15)
	require.NoError(t, err)

	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		return engine.DeletePayment(context.Background(), s, res.Payment.ID)
	})
	require.NoError(t, err)

	assert.Empty(t, m.Payments())
	audits := m.WithdrawalAudits()
	require.Len(t, audits, 1)
	assert.Equal(t, payroll.StatusDeleted, audits[0].Status)
	assert.Nil(t, audits[0].SalaryPaymentID)
	require.NotNil(t, audits[0].ErrorCode)
	assert.Equal(t, "deleted", *audits[0].ErrorCode)

	// The freed amount can be withdrawn again
	again, err := withdraw(t, engine, m, admin, "100", march15)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}

func TestDeletePayment_Errors(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, nil)
	_, commission := recordIncome(t, engine, m, doctor, "100", march10)
	require.NotNil(t, commission)

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		return engine.DeletePayment(context.Background(), s, 777)
	})
	assert.True(t, payroll.IsNotFound(err))

	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		return engine.DeletePayment(context.Background(), s, commission.ID)
	})
	assert.ErrorIs(t, err, payroll.ErrCommissionPayment)
	assert.Len(t, m.Payments(), 1)
}

// =============================================================================
// SUGGESTION
// =============================================================================

func TestSuggest_RemainingNeverNegative(t *testing.T) {
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "100")
	_, err := withdraw(t, engine, m, admin, "70", march10)
	require.NoError(t, err)

	var sug payroll.Suggestion
	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		sug, err = engine.Suggest(context.Background(), s, admin, payroll.CycleFor(march15))
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, payroll.RoleAdministrator, sug.Role)
	assert.True(t, dec("30").Equal(sug.Suggested))
	assert.True(t, dec("70").Equal(sug.AlreadyPaid))
}
