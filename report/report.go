/*
report.go - Read-only financial dashboards

PURPOSE:
  Aggregates income, expenses and salary payments for the back-office
  dashboards. The store does the grouping; this package merges series,
  applies commission rates and rounds.

REPORTS:
  IncomeTotal:     Total income in a cycle, split by payment method
  DailyIncome:     Income per service date
  MonthlyIncome:   Income per YYYY-MM
  MonthlyOutcome:  Expenses and salaries per YYYY-MM
  DoctorOverview:  Lifetime and today figures for one doctor
  Dashboard:       Daily P&L plus average doctor commission in a cycle

OUTCOME:
  Outcome is expenses plus every salary payment, commission included:
  both are cash leaving the clinic.

SEE ALSO:
  - store/sqlstore/reports.go: Store implementation
  - api/handlers.go: HTTP endpoints
*/
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type DayAmount struct {
	Day    time.Time       `db:"day"`
	Amount decimal.Decimal `db:"amount"`
}

type MonthAmount struct {
	Month  string          `db:"month"`
	Amount decimal.Decimal `db:"amount"`
}

type MethodAmount struct {
	Method payroll.PaymentMethod `db:"method"`
	Amount decimal.Decimal       `db:"amount"`
}

// VisitStats are a doctor's income figures over some range.
type VisitStats struct {
	Income   decimal.Decimal `db:"income"`
	Visits   int64           `db:"visits"`
	Patients int64           `db:"patients"`
}

// DoctorIncome is one active doctor's income in a cycle.
type DoctorIncome struct {
	Doctor payroll.StaffRecord
	Income decimal.Decimal
}

// Store is the read side the reports need. method "" means all methods.
type Store interface {
	FindStaff(ctx context.Context, id payroll.StaffID) (payroll.StaffRecord, error)
	IncomeByDay(ctx context.Context, cycle payroll.Cycle, method payroll.PaymentMethod) ([]DayAmount, error)
	IncomeByMonth(ctx context.Context, method payroll.PaymentMethod) ([]MonthAmount, error)
	IncomeByMethod(ctx context.Context, cycle payroll.Cycle) ([]MethodAmount, error)
	ExpensesByDay(ctx context.Context, cycle payroll.Cycle) ([]DayAmount, error)
	ExpensesByMonth(ctx context.Context) ([]MonthAmount, error)
	SalariesByDay(ctx context.Context, cycle payroll.Cycle) ([]DayAmount, error)
	SalariesByMonth(ctx context.Context) ([]MonthAmount, error)

	// DoctorVisits covers all time when cycle is nil.
	DoctorVisits(ctx context.Context, doctorID payroll.StaffID, cycle *payroll.Cycle) (VisitStats, error)
	DoctorIncome(ctx context.Context, cycle payroll.Cycle) ([]DoctorIncome, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store       Store
	defaultRate decimal.Decimal
}

func NewService(store Store, cfg payroll.Config) *Service {
	return &Service{store: store, defaultRate: cfg.DefaultCommissionRate}
}

type IncomeTotal struct {
	Cycle    payroll.Cycle
	Total    decimal.Decimal
	ByMethod map[payroll.PaymentMethod]decimal.Decimal
}

// IncomeTotal always reports both methods, zero when absent.
func (s *Service) IncomeTotal(ctx context.Context, cycle payroll.Cycle, method payroll.PaymentMethod) (IncomeTotal, error) {
	rows, err := s.store.IncomeByMethod(ctx, cycle)
	if err != nil {
		return IncomeTotal{}, fmt.Errorf("income by method: %w", err)
	}
	out := IncomeTotal{
		Cycle: cycle,
		ByMethod: map[payroll.PaymentMethod]decimal.Decimal{
			payroll.PaymentCash: decimal.Zero,
			payroll.PaymentCard: decimal.Zero,
		},
	}
	for _, r := range rows {
		if method != "" && r.Method != method {
			continue
		}
		amount := payroll.RoundMoney(r.Amount)
		out.ByMethod[r.Method] = out.ByMethod[r.Method].Add(amount)
		out.Total = out.Total.Add(amount)
	}
	return out, nil
}

func (s *Service) DailyIncome(ctx context.Context, cycle payroll.Cycle, method payroll.PaymentMethod) ([]DayAmount, error) {
	rows, err := s.store.IncomeByDay(ctx, cycle, method)
	if err != nil {
		return nil, fmt.Errorf("income by day: %w", err)
	}
	return roundDays(rows), nil
}

func (s *Service) MonthlyIncome(ctx context.Context, method payroll.PaymentMethod) ([]MonthAmount, error) {
	rows, err := s.store.IncomeByMonth(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("income by month: %w", err)
	}
	for i := range rows {
		rows[i].Amount = payroll.RoundMoney(rows[i].Amount)
	}
	return rows, nil
}

// =============================================================================
// OUTCOME
// =============================================================================

type MonthlyOutcome struct {
	Month    string
	Expenses decimal.Decimal
	Salaries decimal.Decimal
	Total    decimal.Decimal
}

// MonthlyOutcome merges expenses and salary payments, newest month first.
func (s *Service) MonthlyOutcome(ctx context.Context) ([]MonthlyOutcome, error) {
	expenses, err := s.store.ExpensesByMonth(ctx)
	if err != nil {
		return nil, fmt.Errorf("expenses by month: %w", err)
	}
	salaries, err := s.store.SalariesByMonth(ctx)
	if err != nil {
		return nil, fmt.Errorf("salaries by month: %w", err)
	}

	byMonth := make(map[string]*MonthlyOutcome)
	get := func(month string) *MonthlyOutcome {
		m, ok := byMonth[month]
		if !ok {
			m = &MonthlyOutcome{Month: month}
			byMonth[month] = m
		}
		return m
	}
	for _, r := range expenses {
		m := get(r.Month)
		m.Expenses = m.Expenses.Add(payroll.RoundMoney(r.Amount))
	}
	for _, r := range salaries {
		m := get(r.Month)
		m.Salaries = m.Salaries.Add(payroll.RoundMoney(r.Amount))
	}

	out := make([]MonthlyOutcome, 0, len(byMonth))
	for _, m := range byMonth {
		m.Total = m.Expenses.Add(m.Salaries)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

// =============================================================================
// DOCTOR OVERVIEW
// =============================================================================

type DoctorFigures struct {
	Income                  decimal.Decimal
	Commission              decimal.Decimal
	Visits                  int64
	Patients                int64
	AvgCommissionPerPatient decimal.Decimal
}

type DoctorOverview struct {
	Doctor         payroll.StaffRecord
	CommissionRate decimal.Decimal
	Lifetime       DoctorFigures
	Today          DoctorFigures
}

func (s *Service) DoctorOverview(ctx context.Context, doctorID payroll.StaffID, today time.Time) (DoctorOverview, error) {
	rec, err := s.store.FindStaff(ctx, doctorID)
	if err != nil {
		return DoctorOverview{}, err
	}
	if payroll.ParseRole(rec.RoleName) != payroll.RoleDoctor {
		return DoctorOverview{}, fmt.Errorf("%w: staff %d is not a doctor", payroll.ErrInvalidDoctor, doctorID)
	}

	out := DoctorOverview{Doctor: rec, CommissionRate: s.rateOf(rec)}

	lifetime, err := s.store.DoctorVisits(ctx, doctorID, nil)
	if err != nil {
		return DoctorOverview{}, fmt.Errorf("doctor lifetime visits: %w", err)
	}
	day := payroll.Cycle{Start: payroll.DateOf(today), End: payroll.DateOf(today)}
	todays, err := s.store.DoctorVisits(ctx, doctorID, &day)
	if err != nil {
		return DoctorOverview{}, fmt.Errorf("doctor visits today: %w", err)
	}

	out.Lifetime = figures(lifetime, out.CommissionRate)
	out.Today = figures(todays, out.CommissionRate)
	return out, nil
}

func figures(v VisitStats, rate decimal.Decimal) DoctorFigures {
	f := DoctorFigures{
		Income:     payroll.RoundMoney(v.Income),
		Commission: payroll.RoundMoney(v.Income.Mul(rate)),
		Visits:     v.Visits,
		Patients:   v.Patients,
	}
	if v.Patients > 0 {
		f.AvgCommissionPerPatient = payroll.RoundMoney(f.Commission.Div(decimal.NewFromInt(v.Patients)))
	}
	return f
}

func (s *Service) rateOf(rec payroll.StaffRecord) decimal.Decimal {
	if rec.CommissionRate.Valid {
		return rec.CommissionRate.Decimal
	}
	return s.defaultRate
}

// =============================================================================
// CLINIC DASHBOARD
// =============================================================================

type DayPnL struct {
	Day     time.Time
	Income  decimal.Decimal
	Outcome decimal.Decimal
	PnL     decimal.Decimal
}

type Dashboard struct {
	Cycle              payroll.Cycle
	DailyPnL           []DayPnL
	TotalIncome        decimal.Decimal
	TotalOutcome       decimal.Decimal
	AvgDoctorEarnings  decimal.Decimal
	ActiveDoctorsCount int
}

// Dashboard builds the clinic P&L for every day in the cycle that has any
// movement, ordered by day.
func (s *Service) Dashboard(ctx context.Context, cycle payroll.Cycle) (Dashboard, error) {
	income, err := s.store.IncomeByDay(ctx, cycle, "")
	if err != nil {
		return Dashboard{}, fmt.Errorf("income by day: %w", err)
	}
	expenses, err := s.store.ExpensesByDay(ctx, cycle)
	if err != nil {
		return Dashboard{}, fmt.Errorf("expenses by day: %w", err)
	}
	salaries, err := s.store.SalariesByDay(ctx, cycle)
	if err != nil {
		return Dashboard{}, fmt.Errorf("salaries by day: %w", err)
	}

	days := make(map[time.Time]*DayPnL)
	get := func(t time.Time) *DayPnL {
		d := payroll.DateOf(t)
		p, ok := days[d]
		if !ok {
			p = &DayPnL{Day: d}
			days[d] = p
		}
		return p
	}
	for _, r := range income {
		p := get(r.Day)
		p.Income = p.Income.Add(payroll.RoundMoney(r.Amount))
	}
	for _, r := range append(expenses, salaries...) {
		p := get(r.Day)
		p.Outcome = p.Outcome.Add(payroll.RoundMoney(r.Amount))
	}

	out := Dashboard{Cycle: cycle, DailyPnL: make([]DayPnL, 0, len(days))}
	for _, p := range days {
		p.PnL = p.Income.Sub(p.Outcome)
		out.TotalIncome = out.TotalIncome.Add(p.Income)
		out.TotalOutcome = out.TotalOutcome.Add(p.Outcome)
		out.DailyPnL = append(out.DailyPnL, *p)
	}
	sort.Slice(out.DailyPnL, func(i, j int) bool { return out.DailyPnL[i].Day.Before(out.DailyPnL[j].Day) })

	doctors, err := s.store.DoctorIncome(ctx, cycle)
	if err != nil {
		return Dashboard{}, fmt.Errorf("doctor income: %w", err)
	}
	out.ActiveDoctorsCount = len(doctors)
	if len(doctors) > 0 {
		total := decimal.Zero
		for _, d := range doctors {
			total = total.Add(d.Income.Mul(s.rateOf(d.Doctor)))
		}
		out.AvgDoctorEarnings = payroll.RoundMoney(total.Div(decimal.NewFromInt(int64(len(doctors)))))
	}
	return out, nil
}

func roundDays(rows []DayAmount) []DayAmount {
	for i := range rows {
		rows[i].Day = payroll.DateOf(rows[i].Day)
		rows[i].Amount = payroll.RoundMoney(rows[i].Amount)
	}
	return rows
}
