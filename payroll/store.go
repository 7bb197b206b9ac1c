/*
store.go - Persistence contract for the payroll engine

PURPOSE:
  Defines the narrow read/write interface between the engine and the
  database. Every method runs inside the caller's transaction: the engine
  receives a transaction-scoped Store and never commits or rolls back.

KEY INTERFACES:
  Store:   Everything the engine reads or writes inside one unit of work
  TxStore: Opens a unit of work (WithTx)

LOCKING:
  LockStaff takes a pessimistic lock on the staff row for the remainder of
  the transaction. Two concurrent withdrawals for the same staff member are
  serialized there, so the second one sees the first one's payment.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL through sqlx
  - payroll/store/memory.go: In-memory for testing

EXAMPLE:
  err := txStore.WithTx(ctx, func(s payroll.Store) error {
      res, err = engine.Withdraw(ctx, s, req)
      return err
  })

SEE ALSO:
  - withdrawal.go: Main consumer
  - store/sqlstore/sqlstore.go: Concrete implementation
*/
package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Transaction-scoped reads and writes
// =============================================================================

type Store interface {
	StaffStore
	IncomeStore
	PaymentStore
	TimesheetStore
	AuditStore
}

type StaffStore interface {
	// FindStaff returns ErrNotFound for an unknown id. Inactive rows are
	// returned as is.
	FindStaff(ctx context.Context, id StaffID) (StaffRecord, error)

	// LockStaff is FindStaff plus a row lock held until the transaction ends.
	LockStaff(ctx context.Context, id StaffID) (StaffRecord, error)
}

type IncomeStore interface {
	InsertIncome(ctx context.Context, rec IncomeRecord) (IncomeID, error)
	GetIncome(ctx context.Context, id IncomeID) (IncomeRecord, error)
	DeleteIncome(ctx context.Context, id IncomeID) error

	// SumIncome totals a doctor's income with service_date in the cycle.
	SumIncome(ctx context.Context, doctorID StaffID, cycle Cycle) (decimal.Decimal, error)
}

type PaymentStore interface {
	InsertSalaryPayment(ctx context.Context, p SalaryPayment) (PaymentID, error)
	GetSalaryPayment(ctx context.Context, id PaymentID) (SalaryPayment, error)

	// CommissionPayment returns the commission posted for an income record.
	CommissionPayment(ctx context.Context, incomeID IncomeID) (SalaryPayment, error)
	DeleteSalaryPayment(ctx context.Context, id PaymentID) error

	// SumRegularPayments totals KindRegular payments dated in the cycle.
	SumRegularPayments(ctx context.Context, staffID StaffID, cycle Cycle) (decimal.Decimal, error)
	ListPayments(ctx context.Context, staffID StaffID, cycle Cycle) ([]SalaryPayment, error)
}

type TimesheetStore interface {
	InsertTimesheet(ctx context.Context, ts Timesheet) (TimesheetID, error)
	GetTimesheet(ctx context.Context, id TimesheetID) (Timesheet, error)
	UpdateTimesheet(ctx context.Context, ts Timesheet) error
	DeleteTimesheet(ctx context.Context, id TimesheetID) error
	ListTimesheets(ctx context.Context, staffID StaffID, cycle Cycle) ([]Timesheet, error)
	SumHours(ctx context.Context, staffID StaffID, cycle Cycle) (decimal.Decimal, error)

	// DailyHours groups hours by work date, ordered by date.
	DailyHours(ctx context.Context, staffID StaffID, cycle Cycle) ([]DayHours, error)
}

// AuditStore is append-only apart from MarkWithdrawalAuditDeleted.
type AuditStore interface {
	InsertWithdrawalAudit(ctx context.Context, e WithdrawalAuditEntry) (int64, error)

	// MarkWithdrawalAuditDeleted flags entries linked to a payment as deleted,
	// keeps any existing error code and clears the link. Returns rows touched.
	MarkWithdrawalAuditDeleted(ctx context.Context, paymentID PaymentID) (int64, error)
	WithdrawalAudits(ctx context.Context, staffID StaffID) ([]WithdrawalAuditEntry, error)

	InsertTimesheetAudit(ctx context.Context, e TimesheetAuditEntry) (int64, error)
	TimesheetAudits(ctx context.Context, timesheetID TimesheetID) ([]TimesheetAuditEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Unit of work
// =============================================================================

// TxStore opens units of work.
type TxStore interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
