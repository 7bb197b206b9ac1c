/*
ledger.go - Payment ledger reader, salary suggestions and pay statements

PURPOSE:
  Reads what has already been disbursed and combines it with earnings.

ALREADY PAID:
  Only KindRegular payments count. Commission payments are disbursed with
  the income itself and must not reduce what a doctor may withdraw.

STATEMENTS:
  Hourly staff get a per-day breakdown: the first 8 hours of a day are
  regular, the rest is overtime paid at 1.5×. Administrators are paid their
  flat salary whatever the hours. Doctors have no statement.

SEE ALSO:
  - earnings.go: Earnings per pay model
  - withdrawal.go: Uses AlreadyPaid under the staff lock
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	regularDayHours    = decimal.NewFromInt(8)
	overtimeMultiplier = decimal.NewFromFloat(1.5)
)

// AlreadyPaid totals regular salary payments dated in the cycle.
func (c *Calculator) AlreadyPaid(ctx context.Context, s Store, id StaffID, cycle Cycle) (decimal.Decimal, error) {
	paid, err := s.SumRegularPayments(ctx, id, cycle)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payments for staff %d: %w", id, err)
	}
	return RoundMoney(paid), nil
}

// =============================================================================
// SUGGESTION - What an admin would pay out now
// =============================================================================

type Suggestion struct {
	StaffID       StaffID
	Role          Role
	Cycle         Cycle
	TotalEarnings decimal.Decimal
	AlreadyPaid   decimal.Decimal
	Suggested     decimal.Decimal
}

// Suggest computes the remaining withdrawable amount without locking.
func (e *Engine) Suggest(ctx context.Context, s Store, id StaffID, cycle Cycle) (Suggestion, error) {
	staff, err := e.calc.Member(ctx, s, id)
	if err != nil {
		return Suggestion{}, err
	}
	earned, err := e.calc.Earnings(ctx, s, staff, cycle)
	if err != nil {
		return Suggestion{}, err
	}
	paid, err := e.calc.AlreadyPaid(ctx, s, id, cycle)
	if err != nil {
		return Suggestion{}, err
	}
	return Suggestion{
		StaffID:       id,
		Role:          staff.Role(),
		Cycle:         cycle,
		TotalEarnings: earned,
		AlreadyPaid:   paid,
		Suggested:     RoundMoney(NonNegative(earned.Sub(paid))),
	}, nil
}

// =============================================================================
// STATEMENT - Staff self view with overtime split
// =============================================================================

type StatementDay struct {
	Date     time.Time
	Hours    decimal.Decimal
	Regular  decimal.Decimal
	Overtime decimal.Decimal
}

type Statement struct {
	StaffID       StaffID
	Role          Role
	Cycle         Cycle
	Rate          decimal.Decimal
	Days          []StatementDay
	TotalHours    decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	RegularPay    decimal.Decimal
	OvertimePay   decimal.Decimal
	TotalPay      decimal.Decimal
	Payments      []SalaryPayment
	TotalPaid     decimal.Decimal
	Remaining     decimal.Decimal
}

// Statement builds the pay statement of a non-doctor staff member.
func (e *Engine) Statement(ctx context.Context, s Store, id StaffID, cycle Cycle) (Statement, error) {
	staff, err := e.calc.Member(ctx, s, id)
	if err != nil {
		return Statement{}, err
	}

	st := Statement{StaffID: id, Role: staff.Role(), Cycle: cycle}
	switch m := staff.(type) {
	case Doctor:
		return Statement{}, &StaffError{StaffID: id, Reason: "doctors are paid by commission"}
	case Administrator:
		st.Rate = m.MonthlySalary
	case OtherStaff:
		st.Rate = m.HourlyRate
	}

	days, err := s.DailyHours(ctx, id, cycle)
	if err != nil {
		return Statement{}, fmt.Errorf("daily hours for staff %d: %w", id, err)
	}
	for _, d := range days {
		regular := decimal.Min(d.Hours, regularDayHours)
		overtime := NonNegative(d.Hours.Sub(regularDayHours))
		st.Days = append(st.Days, StatementDay{Date: d.Date, Hours: d.Hours, Regular: regular, Overtime: overtime})
		st.TotalHours = st.TotalHours.Add(d.Hours)
		st.RegularHours = st.RegularHours.Add(regular)
		st.OvertimeHours = st.OvertimeHours.Add(overtime)
	}

	if staff.Role() == RoleAdministrator {
		st.TotalPay = RoundMoney(st.Rate)
	} else {
		st.RegularPay = RoundMoney(st.RegularHours.Mul(st.Rate))
		st.OvertimePay = RoundMoney(st.OvertimeHours.Mul(st.Rate).Mul(overtimeMultiplier))
		st.TotalPay = st.RegularPay.Add(st.OvertimePay)
	}

	if st.Payments, err = s.ListPayments(ctx, id, cycle); err != nil {
		return Statement{}, fmt.Errorf("list payments for staff %d: %w", id, err)
	}
	for _, p := range st.Payments {
		if p.Kind == KindRegular {
			st.TotalPaid = st.TotalPaid.Add(p.Amount)
		}
	}
	st.Remaining = RoundMoney(NonNegative(st.TotalPay.Sub(st.TotalPaid)))
	return st, nil
}
