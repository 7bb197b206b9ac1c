package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INCOME RECORDS
// =============================================================================

type incomeRow struct {
	ID            int64           `db:"id"`
	PatientID     int64           `db:"patient_id"`
	DoctorID      int64           `db:"doctor_id"`
	Amount        decimal.Decimal `db:"amount"`
	PaymentMethod string          `db:"payment_method"`
	ServiceDate   time.Time       `db:"service_date"`
	Note          *string         `db:"note"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r incomeRow) record() payroll.IncomeRecord {
	return payroll.IncomeRecord{
		ID:            payroll.IncomeID(r.ID),
		PatientID:     payroll.PatientID(r.PatientID),
		DoctorID:      payroll.StaffID(r.DoctorID),
		Amount:        r.Amount,
		PaymentMethod: payroll.PaymentMethod(r.PaymentMethod),
		ServiceDate:   payroll.DateOf(r.ServiceDate),
		Note:          r.Note,
		CreatedAt:     r.CreatedAt,
	}
}

const incomeColumns = `id, patient_id, doctor_id, amount, payment_method, service_date, note, created_at`

func (q *queries) InsertIncome(ctx context.Context, rec payroll.IncomeRecord) (payroll.IncomeID, error) {
	id, err := q.insert(ctx, `
		INSERT INTO income_records (patient_id, doctor_id, amount, payment_method, service_date, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(rec.PatientID), int64(rec.DoctorID), rec.Amount, string(rec.PaymentMethod),
		date(rec.ServiceDate), rec.Note, rec.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return payroll.IncomeID(id), nil
}

func (q *queries) GetIncome(ctx context.Context, id payroll.IncomeID) (payroll.IncomeRecord, error) {
	var row incomeRow
	if err := q.get(ctx, &row, `SELECT `+incomeColumns+` FROM income_records WHERE id = ?`, int64(id)); err != nil {
		return payroll.IncomeRecord{}, notFoundOr(err, "income record", int64(id))
	}
	return row.record(), nil
}

func (q *queries) DeleteIncome(ctx context.Context, id payroll.IncomeID) error {
	return q.deleteOne(ctx, "income_records", "income record", int64(id))
}

func (q *queries) SumIncome(ctx context.Context, doctorID payroll.StaffID, cycle payroll.Cycle) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.get(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM income_records
		WHERE doctor_id = ? AND service_date BETWEEN ? AND ?`,
		int64(doctorID), date(cycle.Start), date(cycle.End),
	)
	return total, err
}

// IncomeFilter narrows ListIncome. Zero fields don't filter.
type IncomeFilter struct {
	Cycle    payroll.Cycle
	DoctorID payroll.StaffID
	Method   payroll.PaymentMethod
}

// IncomeListItem is an income record with display names.
type IncomeListItem struct {
	payroll.IncomeRecord
	PatientName string
	DoctorName  string
}

func (q *queries) ListIncome(ctx context.Context, f IncomeFilter) ([]IncomeListItem, error) {
	query := `
		SELECT ir.id, ir.patient_id, ir.doctor_id, ir.amount, ir.payment_method, ir.service_date, ir.note, ir.created_at,
		       p.first_name || ' ' || p.last_name AS patient_name,
		       s.first_name || ' ' || s.last_name AS doctor_name
		FROM income_records ir
		JOIN patients p ON p.id = ir.patient_id
		JOIN staff s ON s.id = ir.doctor_id
		WHERE ir.service_date BETWEEN ? AND ?`
	args := []any{date(f.Cycle.Start), date(f.Cycle.End)}
	if f.DoctorID != 0 {
		query += ` AND ir.doctor_id = ?`
		args = append(args, int64(f.DoctorID))
	}
	if f.Method != "" {
		query += ` AND ir.payment_method = ?`
		args = append(args, string(f.Method))
	}
	query += ` ORDER BY ir.service_date DESC, ir.id DESC`

	var rows []struct {
		incomeRow
		PatientName string `db:"patient_name"`
		DoctorName  string `db:"doctor_name"`
	}
	if err := q.sel(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}
	out := make([]IncomeListItem, len(rows))
	for i, r := range rows {
		out[i] = IncomeListItem{IncomeRecord: r.record(), PatientName: r.PatientName, DoctorName: r.DoctorName}
	}
	return out, nil
}
