/*
audit.go - Append-only withdrawal and timesheet history

PURPOSE:
  Writes audit rows inside the same transaction as the change they
  describe, so an audit row exists exactly when the change committed.

WITHDRAWAL ENTRIES:
  One row per evaluation, accepted or denied. Lifecycle:

    created (ok | no_earnings | salary_already_withdrawn | insufficient_balance)
        |
        v  linked payment deleted
    deleted (error_code kept, or set to "deleted"; payment link cleared)

TIMESHEET ENTRIES:
  One row per create/update/delete carrying JSON snapshots of the row
  before and after, plus the acting user.

SEE ALSO:
  - withdrawal.go: Records withdrawal evaluations
  - timesheet.go: Records timesheet mutations
*/
package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Recorder writes audit rows through the transaction-scoped Store.
type Recorder struct {
	now func() time.Time
}

func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Withdrawal records one evaluated withdrawal. paymentID is nil for denials.
func (r *Recorder) Withdrawal(ctx context.Context, s Store, req WithdrawalRequest, d Decision, paymentID *PaymentID) (WithdrawalAuditEntry, error) {
	entry := WithdrawalAuditEntry{
		StaffID:         req.StaffID,
		SalaryPaymentID: paymentID,
		PaymentDate:     DateOf(req.PaymentDate),
		RequestedAmount: RoundMoney(req.Amount),
		ProcessedAmount: RoundMoney(d.ProcessedAmount),
		Status:          d.Status,
		ErrorCode:       d.ErrorCode(),
		CreatedAt:       r.now().UTC(),
	}
	if req.Actor != nil {
		id := req.Actor.ID
		entry.RequestedBy = &id
	}

	id, err := s.InsertWithdrawalAudit(ctx, entry)
	if err != nil {
		return WithdrawalAuditEntry{}, fmt.Errorf("insert withdrawal audit: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// PaymentDeleted flags the audit rows of a deleted payment.
func (r *Recorder) PaymentDeleted(ctx context.Context, s Store, id PaymentID) error {
	if _, err := s.MarkWithdrawalAuditDeleted(ctx, id); err != nil {
		return fmt.Errorf("mark withdrawal audit of payment %d deleted: %w", id, err)
	}
	return nil
}

// TimesheetSnapshot is the JSON form of a timesheet kept in audit rows.
type TimesheetSnapshot struct {
	WorkDate  string          `json:"work_date"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
	Hours     decimal.Decimal `json:"hours"`
	Note      *string         `json:"note"`
}

func SnapshotOf(ts Timesheet) TimesheetSnapshot {
	return TimesheetSnapshot{
		WorkDate:  ts.WorkDate.Format(DateLayout),
		StartTime: ts.StartTime.String(),
		EndTime:   ts.EndTime.String(),
		Hours:     ts.Hours,
		Note:      ts.Note,
	}
}

// Timesheet records a timesheet mutation. before is nil on create and
// after is nil on delete.
func (r *Recorder) Timesheet(ctx context.Context, s Store, action AuditAction, before, after *Timesheet, actor *Actor) error {
	entry := TimesheetAuditEntry{Action: action, ChangedAt: r.now().UTC()}
	if actor != nil {
		id := actor.ID
		entry.ChangedBy = &id
	}

	var err error
	if before != nil {
		entry.TimesheetID, entry.StaffID = before.ID, before.StaffID
		if entry.OldData, err = json.Marshal(SnapshotOf(*before)); err != nil {
			return fmt.Errorf("encode timesheet snapshot: %w", err)
		}
	}
	if after != nil {
		entry.TimesheetID, entry.StaffID = after.ID, after.StaffID
		if entry.NewData, err = json.Marshal(SnapshotOf(*after)); err != nil {
			return fmt.Errorf("encode timesheet snapshot: %w", err)
		}
	}

	if _, err := s.InsertTimesheetAudit(ctx, entry); err != nil {
		return fmt.Errorf("insert timesheet audit: %w", err)
	}
	return nil
}
