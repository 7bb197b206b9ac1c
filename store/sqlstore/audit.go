package sqlstore

import (
	"context"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// WITHDRAWAL AUDIT
// =============================================================================

type withdrawalAuditRow struct {
	ID              int64           `db:"id"`
	StaffID         int64           `db:"staff_id"`
	SalaryPaymentID *int64          `db:"salary_payment_id"`
	PaymentDate     time.Time       `db:"payment_date"`
	RequestedAmount decimal.Decimal `db:"requested_amount"`
	ProcessedAmount decimal.Decimal `db:"processed_amount"`
	Status          string          `db:"status"`
	ErrorCode       *string         `db:"error_code"`
	RequestedBy     *int64          `db:"requested_by"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (r withdrawalAuditRow) entry() payroll.WithdrawalAuditEntry {
	e := payroll.WithdrawalAuditEntry{
		ID:              r.ID,
		StaffID:         payroll.StaffID(r.StaffID),
		PaymentDate:     payroll.DateOf(r.PaymentDate),
		RequestedAmount: r.RequestedAmount,
		ProcessedAmount: r.ProcessedAmount,
		Status:          payroll.WithdrawalStatus(r.Status),
		ErrorCode:       r.ErrorCode,
		CreatedAt:       r.CreatedAt,
	}
	if r.SalaryPaymentID != nil {
		id := payroll.PaymentID(*r.SalaryPaymentID)
		e.SalaryPaymentID = &id
	}
	if r.RequestedBy != nil {
		id := payroll.StaffID(*r.RequestedBy)
		e.RequestedBy = &id
	}
	return e
}

func (q *queries) InsertWithdrawalAudit(ctx context.Context, e payroll.WithdrawalAuditEntry) (int64, error) {
	var paymentID, requestedBy *int64
	if e.SalaryPaymentID != nil {
		id := int64(*e.SalaryPaymentID)
		paymentID = &id
	}
	if e.RequestedBy != nil {
		id := int64(*e.RequestedBy)
		requestedBy = &id
	}
	return q.insert(ctx, `
		INSERT INTO salary_withdrawal_audit
			(staff_id, salary_payment_id, payment_date, requested_amount, processed_amount, status, error_code, requested_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(e.StaffID), paymentID, date(e.PaymentDate), e.RequestedAmount, e.ProcessedAmount,
		string(e.Status), e.ErrorCode, requestedBy, e.CreatedAt,
	)
}

func (q *queries) MarkWithdrawalAuditDeleted(ctx context.Context, paymentID payroll.PaymentID) (int64, error) {
	return q.exec(ctx, `
		UPDATE salary_withdrawal_audit
		SET salary_payment_id = NULL,
		    status = 'deleted',
		    error_code = COALESCE(error_code, 'deleted')
		WHERE salary_payment_id = ?`,
		int64(paymentID),
	)
}

func (q *queries) WithdrawalAudits(ctx context.Context, staffID payroll.StaffID) ([]payroll.WithdrawalAuditEntry, error) {
	var rows []withdrawalAuditRow
	err := q.sel(ctx, &rows, `
		SELECT id, staff_id, salary_payment_id, payment_date, requested_amount, processed_amount,
		       status, error_code, requested_by, created_at
		FROM salary_withdrawal_audit
		WHERE staff_id = ?
		ORDER BY id`,
		int64(staffID),
	)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.WithdrawalAuditEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out, nil
}

// =============================================================================
// TIMESHEET AUDIT
// =============================================================================

type timesheetAuditRow struct {
	ID          int64     `db:"id"`
	TimesheetID int64     `db:"timesheet_id"`
	StaffID     int64     `db:"staff_id"`
	Action      string    `db:"action"`
	OldData     *string   `db:"old_data"`
	NewData     *string   `db:"new_data"`
	ChangedBy   *int64    `db:"changed_by"`
	ChangedAt   time.Time `db:"changed_at"`
}

// jsonArg binds a snapshot as text: lib/pq would send []byte as bytea.
func jsonArg(data []byte) *string {
	if data == nil {
		return nil
	}
	s := string(data)
	return &s
}

func jsonBytes(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

func (q *queries) InsertTimesheetAudit(ctx context.Context, e payroll.TimesheetAuditEntry) (int64, error) {
	var changedBy *int64
	if e.ChangedBy != nil {
		id := int64(*e.ChangedBy)
		changedBy = &id
	}
	return q.insert(ctx, `
		INSERT INTO timesheet_audit (timesheet_id, staff_id, action, old_data, new_data, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(e.TimesheetID), int64(e.StaffID), string(e.Action),
		jsonArg(e.OldData), jsonArg(e.NewData), changedBy, e.ChangedAt,
	)
}

func (q *queries) TimesheetAudits(ctx context.Context, timesheetID payroll.TimesheetID) ([]payroll.TimesheetAuditEntry, error) {
	var rows []timesheetAuditRow
	err := q.sel(ctx, &rows, `
		SELECT id, timesheet_id, staff_id, action, old_data, new_data, changed_by, changed_at
		FROM timesheet_audit
		WHERE timesheet_id = ?
		ORDER BY id`,
		int64(timesheetID),
	)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.TimesheetAuditEntry, len(rows))
	for i, r := range rows {
		out[i] = payroll.TimesheetAuditEntry{
			ID:          r.ID,
			TimesheetID: payroll.TimesheetID(r.TimesheetID),
			StaffID:     payroll.StaffID(r.StaffID),
			Action:      payroll.AuditAction(r.Action),
			OldData:     jsonBytes(r.OldData),
			NewData:     jsonBytes(r.NewData),
			ChangedAt:   r.ChangedAt,
		}
		if r.ChangedBy != nil {
			id := payroll.StaffID(*r.ChangedBy)
			out[i].ChangedBy = &id
		}
	}
	return out, nil
}
