package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/report"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march3  = payroll.NewDate(2025, time.March, 3)
	march15 = payroll.NewDate(2025, time.March, 15)
	fixedAt = time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine() *payroll.Engine {
	cfg := payroll.Config{DefaultCommissionRate: dec("0.3")}
	return payroll.NewEngine(cfg, payroll.WithClock(func() time.Time { return fixedAt }))
}

func addStaff(t *testing.T, s *Store, role, salary string, rate *string) payroll.StaffID {
	t.Helper()
	rec := payroll.StaffRecord{FirstName: "Test", LastName: role, RoleName: role, BaseSalary: dec(salary), Active: true}
	if rate != nil {
		rec.CommissionRate = decimal.NewNullDecimal(dec(*rate))
	}
	id, err := s.InsertStaff(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func addPatient(t *testing.T, s *Store) payroll.PatientID {
	t.Helper()
	id, err := s.InsertPatient(context.Background(), Patient{FirstName: "Joana", LastName: "Silva"})
	require.NoError(t, err)
	return id
}

func recordIncome(t *testing.T, s *Store, e *payroll.Engine, patient payroll.PatientID, doctor payroll.StaffID, amount string, day time.Time) (payroll.IncomeRecord, *payroll.SalaryPayment) {
	t.Helper()
	var (
		rec  payroll.IncomeRecord
		comm *payroll.SalaryPayment
	)
	err := s.WithTx(context.Background(), func(tx payroll.Store) error {
		var err error
		rec, comm, err = e.RecordIncome(context.Background(), tx, payroll.IncomeInput{
			PatientID:     patient,
			DoctorID:      doctor,
			Amount:        dec(amount),
			PaymentMethod: payroll.PaymentCash,
			ServiceDate:   day,
		})
		return err
	})
	require.NoError(t, err)
	return rec, comm
}

func withdraw(s *Store, e *payroll.Engine, staff payroll.StaffID, amount string, day time.Time) (payroll.WithdrawalResult, error) {
	var res payroll.WithdrawalResult
	err := s.WithTx(context.Background(), func(tx payroll.Store) error {
		var err error
		res, err = e.Withdraw(context.Background(), tx, payroll.WithdrawalRequest{
			StaffID:     staff,
			Amount:      dec(amount),
			PaymentDate: day,
		})
		return err
	})
	return res, err
}

func strPtr(s string) *string { return &s }

// =============================================================================
// WITHDRAWALS
// =============================================================================

func TestSQLStore_Withdraw_AllowedThenDenied(t *testing.T) {
	// GIVEN: An administrator earning 1000
	// WHEN: Withdrawing 600 twice in the same month
	// THEN: First is paid, second is denied and both are audited
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	admin := addStaff(t, s, "administrator", "1000", nil)

	first, err := withdraw(s, e, admin, "600", march3)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	require.NotNil(t, first.Payment)

	second, err := withdraw(s, e, admin, "600", march15)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Equal(t, payroll.StatusInsufficientBalance, second.Status)
	assert.True(t, dec("400").Equal(second.AvailableBefore))

	payments, err := s.ListPayments(ctx, admin, payroll.CycleFor(march15))
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, dec("600").Equal(payments[0].Amount))
	assert.Equal(t, march3, payments[0].PaymentDate)

	audits, err := s.WithdrawalAudits(ctx, admin)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, payroll.StatusOK, audits[0].Status)
	require.NotNil(t, audits[0].SalaryPaymentID)
	assert.Equal(t, payments[0].ID, *audits[0].SalaryPaymentID)
	assert.Nil(t, audits[1].SalaryPaymentID)
	require.NotNil(t, audits[1].ErrorCode)
	assert.Equal(t, "insufficient_balance", *audits[1].ErrorCode)
}

func TestSQLStore_Withdraw_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	// GIVEN: An administrator earning 500
	// WHEN: Ten concurrent withdrawals of 100
	// THEN: Exactly five are paid
	s := newTestStore(t)
	e := newTestEngine()
	admin := addStaff(t, s, "administrator", "500", nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := withdraw(s, e, admin, "100", march15)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	paid, err := s.SumRegularPayments(context.Background(), admin, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(paid), "paid %s", paid)

	audits, err := s.WithdrawalAudits(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, audits, 10)
}

func TestSQLStore_Withdraw_FailedTransactionLeavesNothing(t *testing.T) {
	// GIVEN: An administrator earning 100
	// WHEN: The surrounding transaction fails after the withdrawal
	// THEN: Neither the payment nor the audit row survive
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	admin := addStaff(t, s, "administrator", "100", nil)

	err := s.WithTx(ctx, func(tx payroll.Store) error {
		if _, err := e.Withdraw(ctx, tx, payroll.WithdrawalRequest{StaffID: admin, Amount: dec("50"), PaymentDate: march15}); err != nil {
			return err
		}
		_, err := tx.GetSalaryPayment(ctx, 9999)
		return err
	})
	require.Error(t, err)
	assert.True(t, payroll.IsNotFound(err))

	payments, err := s.ListPayments(ctx, admin, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.Empty(t, payments)
	audits, err := s.WithdrawalAudits(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestSQLStore_DeletePayment_MarksAuditDeleted(t *testing.T) {
	// GIVEN: A paid withdrawal
	// WHEN: The payment is deleted
	// THEN: The audit row stays, unlinked and flagged deleted
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	admin := addStaff(t, s, "administrator", "100", nil)

	res, err := withdraw(s, e, admin, "100", march15)
	require.NoError(t, err)
	require.NotNil(t, res.Payment)

	err = s.WithTx(ctx, func(tx payroll.Store) error {
		return e.DeletePayment(ctx, tx, res.Payment.ID)
	})
	require.NoError(t, err)

	audits, err := s.WithdrawalAudits(ctx, admin)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Nil(t, audits[0].SalaryPaymentID)
	assert.Equal(t, payroll.StatusDeleted, audits[0].Status)
	require.NotNil(t, audits[0].ErrorCode)
	assert.Equal(t, "deleted", *audits[0].ErrorCode)

	// The balance is available again
	again, err := withdraw(s, e, admin, "100", march15)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}

// =============================================================================
// COMMISSIONS
// =============================================================================

func TestSQLStore_RecordIncome_PostsCommissionNotCountedAsPaid(t *testing.T) {
	// GIVEN: A doctor at 30% with 100 of income
	// WHEN: Withdrawing the full 30
	// THEN: The auto-posted commission doesn't reduce the withdrawable balance
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	doctor := addStaff(t, s, "doctor", "0", strPtr("0.3"))
	patient := addPatient(t, s)

	rec, comm := recordIncome(t, s, e, patient, doctor, "100", march3)
	require.NotNil(t, comm)
	assert.Equal(t, payroll.KindCommission, comm.Kind)
	require.NotNil(t, comm.IncomeID)
	assert.Equal(t, rec.ID, *comm.IncomeID)
	assert.True(t, dec("30").Equal(comm.Amount))

	stored, err := s.CommissionPayment(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, comm.ID, stored.ID)
	require.NotNil(t, stored.Note)
	assert.Equal(t, payroll.CommissionNote(rec.ID), *stored.Note)

	res, err := withdraw(s, e, doctor, "30", march15)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "status %s", res.Status)
	assert.True(t, dec("30").Equal(res.TotalEarnings))
	assert.True(t, res.AlreadyPaid.IsZero())
}

func TestSQLStore_DoctorEarnings_MatchPostedCommission(t *testing.T) {
	// GIVEN: A doctor on 0.3 with income of 100.05, a half-cent commission
	// WHEN: Earnings are computed and the full commission is withdrawn
	// THEN: Earnings equal the posted 30.02 and the withdrawal is allowed
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	doctor := addStaff(t, s, "doctor", "0", strPtr("0.3"))
	_, comm := recordIncome(t, s, e, addPatient(t, s), doctor, "100.05", march3)
	require.NotNil(t, comm)
	assert.True(t, dec("30.02").Equal(comm.Amount), "commission %s", comm.Amount)

	earned, err := e.Calculator().EarningsFor(ctx, s, doctor, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.True(t, dec("30.02").Equal(earned), "earned %s", earned)

	res, err := withdraw(s, e, doctor, "30.02", march15)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "status %s", res.Status)
}

func TestSQLStore_DoctorEarnings_SumAcrossRecords(t *testing.T) {
	// GIVEN: Several incomes whose float sum is not exact
	// THEN: Earnings are the decimal sum times the rate
	s := newTestStore(t)
	e := newTestEngine()
	doctor := addStaff(t, s, "doctor", "0", strPtr("0.3"))
	patient := addPatient(t, s)
	for _, amount := range []string{"0.1", "0.2", "100.05"} {
		recordIncome(t, s, e, patient, doctor, amount, march3)
	}

	earned, err := e.Calculator().EarningsFor(context.Background(), s, doctor, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.True(t, dec("30.11").Equal(earned), "earned %s", earned)
}

func TestSQLStore_DeleteIncome_RemovesCommission(t *testing.T) {
	// GIVEN: An income record with its commission
	// WHEN: The income is deleted
	// THEN: Both rows are gone and the commission can't be deleted on its own before that
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	doctor := addStaff(t, s, "doctor", "0", nil)
	patient := addPatient(t, s)

	rec, comm := recordIncome(t, s, e, patient, doctor, "200", march3)
	require.NotNil(t, comm)
	assert.True(t, dec("60").Equal(comm.Amount), "default rate applies")

	err := s.WithTx(ctx, func(tx payroll.Store) error {
		return e.DeletePayment(ctx, tx, comm.ID)
	})
	assert.ErrorIs(t, err, payroll.ErrCommissionPayment)

	err = s.WithTx(ctx, func(tx payroll.Store) error {
		return e.DeleteIncome(ctx, tx, rec.ID)
	})
	require.NoError(t, err)

	_, err = s.GetIncome(ctx, rec.ID)
	assert.True(t, payroll.IsNotFound(err))
	_, err = s.GetSalaryPayment(ctx, comm.ID)
	assert.True(t, payroll.IsNotFound(err))
}

func TestSQLStore_Migrate_BackfillsLegacyCommissions(t *testing.T) {
	// GIVEN: A commission written before payment_kind existed
	// WHEN: The database is reopened
	// THEN: It is reclassified and linked to its income record
	path := filepath.Join(t.TempDir(), "clinic.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	ctx := context.Background()

	doctor := addStaff(t, s, "doctor", "0", strPtr("0.5"))
	patient := addPatient(t, s)
	incomeID, err := s.InsertIncome(ctx, payroll.IncomeRecord{
		PatientID: patient, DoctorID: doctor, Amount: dec("80"),
		PaymentMethod: payroll.PaymentCard, ServiceDate: march3, CreatedAt: fixedAt,
	})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO salary_payments (staff_id, amount, payment_date, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		int64(doctor), "40", "2025-03-03", payroll.CommissionNote(incomeID), fixedAt)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	comm, err := s.CommissionPayment(ctx, incomeID)
	require.NoError(t, err)
	assert.Equal(t, payroll.KindCommission, comm.Kind)

	paid, err := s.SumRegularPayments(ctx, doctor, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func TestSQLStore_Timesheets_RoundTripAndAudit(t *testing.T) {
	// GIVEN: A nurse paid 12 per hour
	// WHEN: A shift is created, patched and deleted
	// THEN: Hours feed earnings and every step leaves an audit row
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	nurse := addStaff(t, s, "nurse", "12", nil)
	actor := &payroll.Actor{ID: nurse, Role: "nurse"}

	var ts payroll.Timesheet
	err := s.WithTx(ctx, func(tx payroll.Store) error {
		var err error
		ts, err = e.CreateTimesheet(ctx, tx, payroll.TimesheetInput{
			StaffID: nurse, WorkDate: march3, StartTime: "08:00", EndTime: "16:30",
		}, actor)
		return err
	})
	require.NoError(t, err)
	assert.True(t, dec("8.5").Equal(ts.Hours))

	got, err := s.GetTimesheet(ctx, ts.ID)
	require.NoError(t, err)
	assert.Equal(t, "08:00", got.StartTime.String())
	assert.Equal(t, "16:30", got.EndTime.String())
	assert.Equal(t, march3, got.WorkDate)

	earned, err := e.Calculator().EarningsFor(ctx, s, nurse, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.True(t, dec("102").Equal(earned), "earned %s", earned)

	err = s.WithTx(ctx, func(tx payroll.Store) error {
		_, err := e.UpdateTimesheet(ctx, tx, ts.ID, payroll.TimesheetPatch{EndTime: strPtr("18:00")}, actor)
		if err != nil {
			return err
		}
		_, err = e.DeleteTimesheet(ctx, tx, ts.ID, actor)
		return err
	})
	require.NoError(t, err)

	_, err = s.GetTimesheet(ctx, ts.ID)
	assert.True(t, payroll.IsNotFound(err))

	audits, err := s.TimesheetAudits(ctx, ts.ID)
	require.NoError(t, err)
	require.Len(t, audits, 3)
	assert.Equal(t, payroll.ActionCreate, audits[0].Action)
	assert.Nil(t, audits[0].OldData)
	assert.Equal(t, payroll.ActionUpdate, audits[1].Action)
	assert.JSONEq(t, string(audits[0].NewData), string(audits[1].OldData))
	assert.Equal(t, payroll.ActionDelete, audits[2].Action)
	assert.Nil(t, audits[2].NewData)
	require.NotNil(t, audits[2].ChangedBy)
	assert.Equal(t, nurse, *audits[2].ChangedBy)
}

func TestSQLStore_Timesheets_KeepSeconds(t *testing.T) {
	// GIVEN: Shifts given to the second
	// THEN: Seconds are stored and count towards hours
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	nurse := addStaff(t, s, "nurse", "12", nil)

	var short, long payroll.Timesheet
	err := s.WithTx(ctx, func(tx payroll.Store) error {
		var err error
		if short, err = e.CreateTimesheet(ctx, tx, payroll.TimesheetInput{
			StaffID: nurse, WorkDate: march3, StartTime: "09:00:30", EndTime: "09:00:45",
		}, nil); err != nil {
			return err
		}
		long, err = e.CreateTimesheet(ctx, tx, payroll.TimesheetInput{
			StaffID: nurse, WorkDate: march15, StartTime: "09:00:00", EndTime: "17:30:59",
		}, nil)
		return err
	})
	require.NoError(t, err)
	assert.True(t, short.Hours.IsZero(), "hours %s", short.Hours)
	assert.True(t, dec("8.52").Equal(long.Hours), "hours %s", long.Hours)

	got, err := s.GetTimesheet(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00:30", got.StartTime.String())
	assert.Equal(t, "09:00:45", got.EndTime.String())
}

func TestSQLStore_DailyHours_GroupsByDate(t *testing.T) {
	// GIVEN: Two shifts on one day and one on another
	// WHEN: Reading daily hours
	// THEN: One row per date in date order
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	nurse := addStaff(t, s, "nurse", "10", nil)
	march4 := payroll.NewDate(2025, time.March, 4)

	shifts := []payroll.TimesheetInput{
		{StaffID: nurse, WorkDate: march4, StartTime: "08:00", EndTime: "12:00"},
		{StaffID: nurse, WorkDate: march3, StartTime: "08:00", EndTime: "12:00"},
		{StaffID: nurse, WorkDate: march3, StartTime: "13:00", EndTime: "19:00"},
	}
	for _, in := range shifts {
		err := s.WithTx(ctx, func(tx payroll.Store) error {
			_, err := e.CreateTimesheet(ctx, tx, in, nil)
			return err
		})
		require.NoError(t, err)
	}

	days, err := s.DailyHours(ctx, nurse, payroll.CycleFor(march15))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, march3, days[0].Date)
	assert.True(t, dec("10").Equal(days[0].Hours))
	assert.Equal(t, march4, days[1].Date)
	assert.True(t, dec("4").Equal(days[1].Hours))
}

// =============================================================================
// REPORTS AND EXPENSES
// =============================================================================

func TestSQLStore_Reports_Dashboard(t *testing.T) {
	// GIVEN: Income, an expense and the commission it triggered
	// WHEN: Building the dashboard
	// THEN: Outcome includes the expense and the commission
	s := newTestStore(t)
	e := newTestEngine()
	ctx := context.Background()
	doctor := addStaff(t, s, "doctor", "0", strPtr("0.25"))
	patient := addPatient(t, s)

	recordIncome(t, s, e, patient, doctor, "400", march3)
	_, err := s.InsertExpense(ctx, Expense{Category: "Supplies", Amount: dec("50"), ExpenseDate: march3})
	require.NoError(t, err)

	svc := report.NewService(s, payroll.Config{DefaultCommissionRate: dec("0.3")})
	dash, err := svc.Dashboard(ctx, payroll.CycleFor(march15))
	require.NoError(t, err)

	require.Len(t, dash.DailyPnL, 1)
	day := dash.DailyPnL[0]
	assert.Equal(t, march3, day.Day)
	assert.True(t, dec("400").Equal(day.Income))
	assert.True(t, dec("150").Equal(day.Outcome), "outcome %s", day.Outcome)
	assert.True(t, dec("250").Equal(day.PnL))
	assert.Equal(t, 1, dash.ActiveDoctorsCount)
	assert.True(t, dec("100").Equal(dash.AvgDoctorEarnings))

	total, err := svc.IncomeTotal(ctx, payroll.CycleFor(march15), "")
	require.NoError(t, err)
	assert.True(t, dec("400").Equal(total.ByMethod[payroll.PaymentCash]))
	assert.True(t, total.ByMethod[payroll.PaymentCard].IsZero())

	outcome, err := svc.MonthlyOutcome(ctx)
	require.NoError(t, err)
	require.Len(t, outcome, 1)
	assert.Equal(t, "2025-03", outcome[0].Month)
	assert.True(t, dec("150").Equal(outcome[0].Total))
}

func TestSQLStore_InsertExpense_Rejections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertExpense(ctx, Expense{Category: "Rent", Amount: dec("0"), ExpenseDate: march3})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	_, err = s.InsertExpense(ctx, Expense{Category: "Rent", Amount: dec("10")})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	_, err = s.InsertExpense(ctx, Expense{Category: "  ", Amount: dec("10"), ExpenseDate: march3})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	first, err := s.EnsureCategory(ctx, "Rent")
	require.NoError(t, err)
	second, err := s.EnsureCategory(ctx, "Rent")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSQLStore_SetCommissionRate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doctor := addStaff(t, s, "doctor", "0", nil)
	admin := addStaff(t, s, "administrator", "900", nil)

	require.NoError(t, s.SetCommissionRate(ctx, doctor, decimal.NewNullDecimal(dec("0.4"))))
	rec, err := s.FindStaff(ctx, doctor)
	require.NoError(t, err)
	require.True(t, rec.CommissionRate.Valid)
	assert.True(t, dec("0.4").Equal(rec.CommissionRate.Decimal))

	err = s.SetCommissionRate(ctx, doctor, decimal.NewNullDecimal(dec("1.5")))
	assert.ErrorIs(t, err, payroll.ErrInvalidStaff)

	err = s.SetCommissionRate(ctx, admin, decimal.NewNullDecimal(dec("0.1")))
	assert.ErrorIs(t, err, payroll.ErrInvalidDoctor)

	require.NoError(t, s.SetStaffActive(ctx, doctor, false))
	active, err := s.ListStaff(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, admin, active[0].ID)
}

func TestSQLStore_InsertSalaryPayment_RejectsZeroAmount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := addStaff(t, s, "administrator", "1000", nil)

	_, err := s.InsertSalaryPayment(ctx, payroll.SalaryPayment{
		StaffID: admin, Amount: decimal.Zero, PaymentDate: march3, Kind: payroll.KindRegular,
	})
	assert.Error(t, err)

	paid, err := newTestEngine().Calculator().AlreadyPaid(ctx, s, admin, payroll.CycleFor(march15))
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
}
