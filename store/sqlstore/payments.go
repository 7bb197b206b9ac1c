package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SALARY PAYMENTS
// =============================================================================

type paymentRow struct {
	ID          int64           `db:"id"`
	StaffID     int64           `db:"staff_id"`
	Amount      decimal.Decimal `db:"amount"`
	PaymentDate time.Time       `db:"payment_date"`
	Note        *string         `db:"note"`
	Kind        string          `db:"payment_kind"`
	IncomeID    *int64          `db:"income_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r paymentRow) payment() payroll.SalaryPayment {
	p := payroll.SalaryPayment{
		ID:          payroll.PaymentID(r.ID),
		StaffID:     payroll.StaffID(r.StaffID),
		Amount:      r.Amount,
		PaymentDate: payroll.DateOf(r.PaymentDate),
		Note:        r.Note,
		Kind:        payroll.PaymentKind(r.Kind),
		CreatedAt:   r.CreatedAt,
	}
	if r.IncomeID != nil {
		id := payroll.IncomeID(*r.IncomeID)
		p.IncomeID = &id
	}
	return p
}

const paymentColumns = `id, staff_id, amount, payment_date, note, payment_kind, income_id, created_at`

func (q *queries) InsertSalaryPayment(ctx context.Context, p payroll.SalaryPayment) (payroll.PaymentID, error) {
	var incomeID *int64
	if p.IncomeID != nil {
		id := int64(*p.IncomeID)
		incomeID = &id
	}
	id, err := q.insert(ctx, `
		INSERT INTO salary_payments (staff_id, amount, payment_date, note, payment_kind, income_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(p.StaffID), p.Amount, date(p.PaymentDate), p.Note, string(p.Kind), incomeID, p.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return payroll.PaymentID(id), nil
}

func (q *queries) GetSalaryPayment(ctx context.Context, id payroll.PaymentID) (payroll.SalaryPayment, error) {
	var row paymentRow
	if err := q.get(ctx, &row, `SELECT `+paymentColumns+` FROM salary_payments WHERE id = ?`, int64(id)); err != nil {
		return payroll.SalaryPayment{}, notFoundOr(err, "salary payment", int64(id))
	}
	return row.payment(), nil
}

func (q *queries) CommissionPayment(ctx context.Context, incomeID payroll.IncomeID) (payroll.SalaryPayment, error) {
	var row paymentRow
	err := q.get(ctx, &row, `
		SELECT `+paymentColumns+` FROM salary_payments
		WHERE income_id = ? AND payment_kind = 'commission'`,
		int64(incomeID),
	)
	if err != nil {
		return payroll.SalaryPayment{}, notFoundOr(err, "commission for income", int64(incomeID))
	}
	return row.payment(), nil
}

func (q *queries) DeleteSalaryPayment(ctx context.Context, id payroll.PaymentID) error {
	return q.deleteOne(ctx, "salary_payments", "salary payment", int64(id))
}

func (q *queries) SumRegularPayments(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.get(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM salary_payments
		WHERE staff_id = ? AND payment_kind = 'regular' AND payment_date BETWEEN ? AND ?`,
		int64(staffID), date(cycle.Start), date(cycle.End),
	)
	return total, err
}

func (q *queries) ListPayments(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) ([]payroll.SalaryPayment, error) {
	var rows []paymentRow
	err := q.sel(ctx, &rows, `
		SELECT `+paymentColumns+` FROM salary_payments
		WHERE staff_id = ? AND payment_date BETWEEN ? AND ?
		ORDER BY payment_date, id`,
		int64(staffID), date(cycle.Start), date(cycle.End),
	)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.SalaryPayment, len(rows))
	for i, r := range rows {
		out[i] = r.payment()
	}
	return out, nil
}

// PaymentListItem is a salary payment with the staff member's name and role.
type PaymentListItem struct {
	payroll.SalaryPayment
	StaffName string
	Role      string
}

// ListAllPayments lists every staff member's payments in the cycle, newest
// first. kind "" lists both kinds.
func (q *queries) ListAllPayments(ctx context.Context, cycle payroll.Cycle, kind payroll.PaymentKind) ([]PaymentListItem, error) {
	query := `
		SELECT sp.id, sp.staff_id, sp.amount, sp.payment_date, sp.note, sp.payment_kind, sp.income_id, sp.created_at,
		       s.first_name || ' ' || s.last_name AS staff_name, s.role
		FROM salary_payments sp
		JOIN staff s ON s.id = sp.staff_id
		WHERE sp.payment_date BETWEEN ? AND ?`
	args := []any{date(cycle.Start), date(cycle.End)}
	if kind != "" {
		query += ` AND sp.payment_kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY sp.payment_date DESC, sp.id DESC`

	var rows []struct {
		paymentRow
		StaffName string `db:"staff_name"`
		Role      string `db:"role"`
	}
	if err := q.sel(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]PaymentListItem, len(rows))
	for i, r := range rows {
		out[i] = PaymentListItem{SalaryPayment: r.payment(), StaffName: r.StaffName, Role: r.Role}
	}
	return out, nil
}
