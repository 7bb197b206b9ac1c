package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/payroll/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordIncome(t *testing.T, e *payroll.Engine, m *store.Memory, doctor payroll.StaffID, amount string, date time.Time) (payroll.IncomeRecord, *payroll.SalaryPayment) {
	t.Helper()
	var (
		rec        payroll.IncomeRecord
		commission *payroll.SalaryPayment
	)
	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		var err error
		rec, commission, err = e.RecordIncome(context.Background(), s, payroll.IncomeInput{
			PatientID:     1,
			DoctorID:      doctor,
			Amount:        dec(amount),
			PaymentMethod: payroll.PaymentCard,
			ServiceDate:   date,
		})
		return err
	})
	require.NoError(t, err)
	return rec, commission
}

func TestRecordIncome_PostsCommission(t *testing.T) {
	// GIVEN: A doctor on the default 0.3 rate
	// WHEN: Recording 200 of income on March 10
	// THEN: A 60.00 commission payment dated March 10 references the income
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, nil)

	rec, commission := recordIncome(t, engine, m, doctor, "200", march10)

	require.NotNil(t, commission)
	assert.True(t, dec("60").Equal(commission.Amount))
	assert.Equal(t, march10, commission.PaymentDate)
	assert.Equal(t, payroll.KindCommission, commission.Kind)
	require.NotNil(t, commission.IncomeID)
	assert.Equal(t, rec.ID, *commission.IncomeID)
	require.NotNil(t, commission.Note)
	assert.Equal(t, payroll.CommissionNote(rec.ID), *commission.Note)
	assert.Len(t, m.Payments(), 1)
}

func TestRecordIncome_RoundsAmounts(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, strPtr("0.333"))

	rec, commission := recordIncome(t, engine, m, doctor, "33.335", march10)

	assert.Equal(t, "33.34", rec.Amount.StringFixed(2))
	require.NotNil(t, commission)
	// 33.34 × 0.333 = 11.10222
	assert.Equal(t, "11.10", commission.Amount.StringFixed(2))
}

func TestRecordIncome_ZeroRatePostsNothing(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, strPtr("0"))

	_, commission := recordIncome(t, engine, m, doctor, "200", march10)

	assert.Nil(t, commission)
	assert.Empty(t, m.Payments())
	assert.Len(t, m.Income(), 1)
}

func TestRecordIncome_Validation(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, nil)
	nurse := addNurse(m, "10")
	retired := m.AddStaff(payroll.StaffRecord{RoleName: "doctor", Active: false})

	tests := []struct {
		name string
		in   payroll.IncomeInput
		want error
	}{
		{"zero amount", payroll.IncomeInput{PatientID: 1, DoctorID: doctor, Amount: dec("0"), PaymentMethod: payroll.PaymentCash}, payroll.ErrInvalidAmount},
		{"negative amount", payroll.IncomeInput{PatientID: 1, DoctorID: doctor, Amount: dec("-1"), PaymentMethod: payroll.PaymentCash}, payroll.ErrInvalidAmount},
		{"unknown method", payroll.IncomeInput{PatientID: 1, DoctorID: doctor, Amount: dec("10"), PaymentMethod: "cheque"}, payroll.ErrInvalidPaymentMethod},
		{"missing patient", payroll.IncomeInput{DoctorID: doctor, Amount: dec("10"), PaymentMethod: payroll.PaymentCash}, payroll.ErrInvalidPatient},
		{"not a doctor", payroll.IncomeInput{PatientID: 1, DoctorID: nurse, Amount: dec("10"), PaymentMethod: payroll.PaymentCash}, payroll.ErrInvalidDoctor},
		{"inactive doctor", payroll.IncomeInput{PatientID: 1, DoctorID: retired, Amount: dec("10"), PaymentMethod: payroll.PaymentCash}, payroll.ErrInvalidDoctor},
		{"unknown doctor", payroll.IncomeInput{PatientID: 1, DoctorID: 999, Amount: dec("10"), PaymentMethod: payroll.PaymentCash}, payroll.ErrInvalidDoctor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.WithTx(context.Background(), func(s payroll.Store) error {
				_, _, err := engine.RecordIncome(context.Background(), s, tt.in)
				return err
			})
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, payroll.IsClientError(err))
		})
	}
	assert.Empty(t, m.Income())
}

func TestRecordIncome_CommissionFailureRollsBackIncome(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, nil)
	m.FailOn("InsertSalaryPayment", errors.New("constraint violated"))

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		_, _, err := engine.RecordIncome(context.Background(), s, payroll.IncomeInput{
			PatientID: 1, DoctorID: doctor, Amount: dec("200"), PaymentMethod: payroll.PaymentCash, ServiceDate: march10,
		})
		return err
	})
	require.Error(t, err)
	assert.Empty(t, m.Income())
}

func TestDeleteIncome_RemovesCommission(t *testing.T) {
	// GIVEN: Income with its commission
	// WHEN: The income is deleted
	// THEN: Both rows are gone and the doctor's earnings drop
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, nil)
	rec, _ := recordIncome(t, engine, m, doctor, "200", march10)
	recordIncome(t, engine, m, doctor, "100", march10)

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		return engine.DeleteIncome(context.Background(), s, rec.ID)
	})
	require.NoError(t, err)

	assert.Len(t, m.Income(), 1)
	payments := m.Payments()
	require.Len(t, payments, 1)
	assert.True(t, dec("30").Equal(payments[0].Amount))

	var earned = dec("0")
	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		earned, err = engine.Calculator().EarningsFor(context.Background(), s, doctor, payroll.CycleFor(march15))
		return err
	})
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(earned))
}

func TestDeleteIncome_NotFound(t *testing.T) {
	engine, m := newTestEngine(t)

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		return engine.DeleteIncome(context.Background(), s, 12345)
	})
	assert.True(t, payroll.IsNotFound(err))
}

func TestEarnings_DoctorUsesOwnRateAndCycle(t *testing.T) {
	engine, m := newTestEngine(t)
	doctor := addDoctor(m, strPtr("0.5"))
	recordIncome(t, engine, m, doctor, "100", march10)
	recordIncome(t, engine, m, doctor, "80", march1)
	recordIncome(t, engine, m, doctor, "999", april2)

	var earned = dec("0")
	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		var err error
		earned, err = engine.Calculator().EarningsFor(context.Background(), s, doctor, payroll.CycleFor(march15))
		return err
	})
	require.NoError(t, err)
	assert.True(t, dec("90").Equal(earned), "got %s", earned)
}

func TestStaffRecord_MemberRejectsBadRate(t *testing.T) {
	rec := payroll.StaffRecord{ID: 7, RoleName: "doctor", Active: true}
	rec.CommissionRate.Valid = true
	rec.CommissionRate.Decimal = dec("1.5")

	_, err := rec.Member(dec("0.3"))
	assert.ErrorIs(t, err, payroll.ErrInvalidStaff)

	rec.CommissionRate.Valid = false
	staff, err := rec.Member(dec("0.3"))
	require.NoError(t, err)
	doctor, ok := staff.(payroll.Doctor)
	require.True(t, ok)
	assert.True(t, dec("0.3").Equal(doctor.CommissionRate))
}
