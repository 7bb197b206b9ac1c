package sqlstore

import (
	"context"

	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/report"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORT QUERIES - report.Store
// =============================================================================

func (q *queries) IncomeByDay(ctx context.Context, cycle payroll.Cycle, method payroll.PaymentMethod) ([]report.DayAmount, error) {
	query := `
		SELECT service_date AS day, SUM(amount) AS amount
		FROM income_records
		WHERE service_date BETWEEN ? AND ?`
	args := []any{date(cycle.Start), date(cycle.End)}
	if method != "" {
		query += ` AND payment_method = ?`
		args = append(args, string(method))
	}
	query += ` GROUP BY service_date ORDER BY service_date`

	var out []report.DayAmount
	return out, q.sel(ctx, &out, query, args...)
}

func (q *queries) IncomeByMonth(ctx context.Context, method payroll.PaymentMethod) ([]report.MonthAmount, error) {
	month := q.monthExpr("service_date")
	query := `SELECT ` + month + ` AS month, SUM(amount) AS amount FROM income_records`
	var args []any
	if method != "" {
		query += ` WHERE payment_method = ?`
		args = append(args, string(method))
	}
	query += ` GROUP BY ` + month + ` ORDER BY month DESC`

	var out []report.MonthAmount
	return out, q.sel(ctx, &out, query, args...)
}

func (q *queries) IncomeByMethod(ctx context.Context, cycle payroll.Cycle) ([]report.MethodAmount, error) {
	var out []report.MethodAmount
	return out, q.sel(ctx, &out, `
		SELECT payment_method AS method, SUM(amount) AS amount
		FROM income_records
		WHERE service_date BETWEEN ? AND ?
		GROUP BY payment_method`,
		date(cycle.Start), date(cycle.End),
	)
}

func (q *queries) ExpensesByDay(ctx context.Context, cycle payroll.Cycle) ([]report.DayAmount, error) {
	var out []report.DayAmount
	return out, q.sel(ctx, &out, `
		SELECT expense_date AS day, SUM(amount) AS amount
		FROM outcome_records
		WHERE expense_date BETWEEN ? AND ?
		GROUP BY expense_date ORDER BY expense_date`,
		date(cycle.Start), date(cycle.End),
	)
}

func (q *queries) ExpensesByMonth(ctx context.Context) ([]report.MonthAmount, error) {
	month := q.monthExpr("expense_date")
	var out []report.MonthAmount
	return out, q.sel(ctx, &out, `
		SELECT `+month+` AS month, SUM(amount) AS amount
		FROM outcome_records
		GROUP BY `+month+` ORDER BY month DESC`,
	)
}

func (q *queries) SalariesByDay(ctx context.Context, cycle payroll.Cycle) ([]report.DayAmount, error) {
	var out []report.DayAmount
	return out, q.sel(ctx, &out, `
		SELECT payment_date AS day, SUM(amount) AS amount
		FROM salary_payments
		WHERE payment_date BETWEEN ? AND ?
		GROUP BY payment_date ORDER BY payment_date`,
		date(cycle.Start), date(cycle.End),
	)
}

func (q *queries) SalariesByMonth(ctx context.Context) ([]report.MonthAmount, error) {
	month := q.monthExpr("payment_date")
	var out []report.MonthAmount
	return out, q.sel(ctx, &out, `
		SELECT `+month+` AS month, SUM(amount) AS amount
		FROM salary_payments
		GROUP BY `+month+` ORDER BY month DESC`,
	)
}

func (q *queries) DoctorVisits(ctx context.Context, doctorID payroll.StaffID, cycle *payroll.Cycle) (report.VisitStats, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0) AS income,
		       COUNT(*) AS visits,
		       COUNT(DISTINCT patient_id) AS patients
		FROM income_records
		WHERE doctor_id = ?`
	args := []any{int64(doctorID)}
	if cycle != nil {
		query += ` AND service_date BETWEEN ? AND ?`
		args = append(args, date(cycle.Start), date(cycle.End))
	}

	var out report.VisitStats
	return out, q.get(ctx, &out, query, args...)
}

// DoctorIncome lists every active doctor, including those without income in
// the cycle.
func (q *queries) DoctorIncome(ctx context.Context, cycle payroll.Cycle) ([]report.DoctorIncome, error) {
	var rows []struct {
		staffRow
		Income decimal.Decimal `db:"income"`
	}
	err := q.sel(ctx, &rows, `
		SELECT s.id, s.first_name, s.last_name, s.role, s.base_salary, s.commission_rate, s.is_active,
		       COALESCE(SUM(ir.amount), 0) AS income
		FROM staff s
		LEFT JOIN income_records ir
		       ON ir.doctor_id = s.id AND ir.service_date BETWEEN ? AND ?
		WHERE s.role = 'doctor' AND s.is_active = TRUE
		GROUP BY s.id, s.first_name, s.last_name, s.role, s.base_salary, s.commission_rate, s.is_active
		ORDER BY s.id`,
		date(cycle.Start), date(cycle.End),
	)
	if err != nil {
		return nil, err
	}
	out := make([]report.DoctorIncome, len(rows))
	for i, r := range rows {
		out[i] = report.DoctorIncome{Doctor: r.record(), Income: r.Income}
	}
	return out, nil
}

var _ report.Store = (*queries)(nil)
