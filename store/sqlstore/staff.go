package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STAFF
// =============================================================================

type staffRow struct {
	ID             int64               `db:"id"`
	FirstName      string              `db:"first_name"`
	LastName       string              `db:"last_name"`
	Role           string              `db:"role"`
	BaseSalary     decimal.Decimal     `db:"base_salary"`
	CommissionRate decimal.NullDecimal `db:"commission_rate"`
	IsActive       bool                `db:"is_active"`
}

func (r staffRow) record() payroll.StaffRecord {
	return payroll.StaffRecord{
		ID:             payroll.StaffID(r.ID),
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		RoleName:       r.Role,
		BaseSalary:     r.BaseSalary,
		CommissionRate: r.CommissionRate,
		Active:         r.IsActive,
	}
}

const staffColumns = `id, first_name, last_name, role, base_salary, commission_rate, is_active`

func (q *queries) FindStaff(ctx context.Context, id payroll.StaffID) (payroll.StaffRecord, error) {
	var row staffRow
	if err := q.get(ctx, &row, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, int64(id)); err != nil {
		return payroll.StaffRecord{}, notFoundOr(err, "staff", int64(id))
	}
	return row.record(), nil
}

func (q *queries) LockStaff(ctx context.Context, id payroll.StaffID) (payroll.StaffRecord, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = ?`
	if q.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	var row staffRow
	if err := q.get(ctx, &row, query, int64(id)); err != nil {
		return payroll.StaffRecord{}, notFoundOr(err, "staff", int64(id))
	}
	return row.record(), nil
}

// ListStaff returns staff ordered by name. Inactive rows only when asked.
func (q *queries) ListStaff(ctx context.Context, includeInactive bool) ([]payroll.StaffRecord, error) {
	query := `SELECT ` + staffColumns + ` FROM staff`
	if !includeInactive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY last_name, first_name, id`

	var rows []staffRow
	if err := q.sel(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	out := make([]payroll.StaffRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// InsertStaff creates a staff member. The id on rec is ignored.
func (q *queries) InsertStaff(ctx context.Context, rec payroll.StaffRecord) (payroll.StaffID, error) {
	id, err := q.insert(ctx, `
		INSERT INTO staff (first_name, last_name, role, base_salary, commission_rate, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.FirstName, rec.LastName, rec.RoleName, rec.BaseSalary, rec.CommissionRate, rec.Active, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert staff: %w", err)
	}
	return payroll.StaffID(id), nil
}

// SetStaffActive deactivates or restores a staff member. Rows are never
// hard-deleted.
func (q *queries) SetStaffActive(ctx context.Context, id payroll.StaffID, active bool) error {
	n, err := q.exec(ctx, `UPDATE staff SET is_active = ? WHERE id = ?`, active, int64(id))
	if err != nil {
		return fmt.Errorf("set staff %d active=%t: %w", id, active, err)
	}
	if n == 0 {
		return &payroll.NotFoundError{Kind: "staff", ID: int64(id)}
	}
	return nil
}

// SetCommissionRate changes a doctor's rate; a null rate falls back to the
// configured default.
func (q *queries) SetCommissionRate(ctx context.Context, id payroll.StaffID, rate decimal.NullDecimal) error {
	if rate.Valid && (rate.Decimal.IsNegative() || rate.Decimal.GreaterThan(decimal.NewFromInt(1))) {
		return &payroll.StaffError{StaffID: id, Reason: fmt.Sprintf("commission rate %s outside [0, 1]", rate.Decimal)}
	}
	rec, err := q.FindStaff(ctx, id)
	if err != nil {
		return err
	}
	if payroll.ParseRole(rec.RoleName) != payroll.RoleDoctor {
		return fmt.Errorf("%w: staff %d is not a doctor", payroll.ErrInvalidDoctor, id)
	}
	if _, err := q.exec(ctx, `UPDATE staff SET commission_rate = ? WHERE id = ?`, rate, int64(id)); err != nil {
		return fmt.Errorf("set commission rate of staff %d: %w", id, err)
	}
	return nil
}

// =============================================================================
// PATIENTS
// =============================================================================

type Patient struct {
	ID        payroll.PatientID `db:"id"`
	FirstName string            `db:"first_name"`
	LastName  string            `db:"last_name"`
	Phone     *string           `db:"phone"`
	Email     *string           `db:"email"`
}

func (q *queries) InsertPatient(ctx context.Context, p Patient) (payroll.PatientID, error) {
	id, err := q.insert(ctx, `
		INSERT INTO patients (first_name, last_name, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.FirstName, p.LastName, p.Phone, p.Email, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert patient: %w", err)
	}
	return payroll.PatientID(id), nil
}

func (q *queries) ListPatients(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := q.sel(ctx, &out, `SELECT id, first_name, last_name, phone, email FROM patients ORDER BY last_name, first_name, id`); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

func (q *queries) FindPatient(ctx context.Context, id payroll.PatientID) (Patient, error) {
	var p Patient
	if err := q.get(ctx, &p, `SELECT id, first_name, last_name, phone, email FROM patients WHERE id = ?`, int64(id)); err != nil {
		return Patient{}, notFoundOr(err, "patient", int64(id))
	}
	return p, nil
}
