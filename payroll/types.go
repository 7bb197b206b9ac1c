/*
Package payroll provides the salary, commission and withdrawal engine.

PURPOSE:
  Computes what each staff member has earned inside a pay cycle, what has
  already been disbursed, and whether a new salary withdrawal may go out.
  Every decision (accepted or denied) leaves exactly one audit row.

KEY CONCEPTS IN THIS FILE (types.go):
  - Staff: Tagged variant over the three pay models (Doctor, Administrator,
    OtherStaff). StaffRecord is the flat row as stored.
  - IncomeRecord: A patient payment attributed to a doctor
  - SalaryPayment: A disbursement, either a regular withdrawal or the
    commission auto-posted with an income record
  - Timesheet: Hours worked on a day by an hourly staff member
  - Audit entries: Append-only withdrawal and timesheet history

DESIGN PRINCIPLES:
  1. Precision: All money and hours use decimal.Decimal, persisted at 2dp
  2. Explicit units of work: every entry point takes the transaction-scoped
     Store and never commits on its own
  3. Commission payments are identified by Kind, never by their note text

SEE ALSO:
  - earnings.go: Role-specific earnings
  - policy.go: Withdrawal decision function
  - withdrawal.go: Withdrawal orchestration
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StaffID int64
type PatientID int64
type IncomeID int64
type PaymentID int64
type TimesheetID int64

// =============================================================================
// MONEY
// =============================================================================

// RoundMoney rounds to cents, the precision every amount is persisted with.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// STAFF - Tagged variant over pay models
// =============================================================================

type Role string

const (
	RoleDoctor        Role = "doctor"
	RoleAdministrator Role = "administrator"
	RoleOther         Role = "other"
)

// ParseRole maps a stored role name onto a pay model. Any name that is not
// doctor or administrator (nurse, assistant, receptionist) is paid hourly.
func ParseRole(name string) Role {
	switch Role(name) {
	case RoleDoctor:
		return RoleDoctor
	case RoleAdministrator, "admin":
		return RoleAdministrator
	default:
		return RoleOther
	}
}

// Staff is one of Doctor, Administrator or OtherStaff.
type Staff interface {
	StaffID() StaffID
	Role() Role
	isStaff()
}

// Doctor is paid a commission on every income record attributed to them.
type Doctor struct {
	ID             StaffID
	CommissionRate decimal.Decimal
}

// Administrator is paid a flat salary per cycle.
type Administrator struct {
	ID            StaffID
	MonthlySalary decimal.Decimal
}

// OtherStaff is paid hours worked times an hourly rate.
type OtherStaff struct {
	ID         StaffID
	RoleName   string
	HourlyRate decimal.Decimal
}

func (d Doctor) StaffID() StaffID        { return d.ID }
func (d Doctor) Role() Role              { return RoleDoctor }
func (Doctor) isStaff()                  {}
func (a Administrator) StaffID() StaffID { return a.ID }
func (a Administrator) Role() Role       { return RoleAdministrator }
func (Administrator) isStaff()           {}
func (o OtherStaff) StaffID() StaffID    { return o.ID }
func (o OtherStaff) Role() Role          { return RoleOther }
func (OtherStaff) isStaff()              {}

// StaffRecord is a staff row as the store returns it.
type StaffRecord struct {
	ID             StaffID
	FirstName      string
	LastName       string
	RoleName       string
	BaseSalary     decimal.Decimal
	CommissionRate decimal.NullDecimal
	Active         bool
}

func (r StaffRecord) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Member converts the record into its pay model. Inactive staff and rates
// outside [0, 1] are rejected.
func (r StaffRecord) Member(defaultRate decimal.Decimal) (Staff, error) {
	if !r.Active {
		return nil, &StaffError{StaffID: r.ID, Reason: "staff member is inactive"}
	}
	switch ParseRole(r.RoleName) {
	case RoleDoctor:
		rate := defaultRate
		if r.CommissionRate.Valid {
			rate = r.CommissionRate.Decimal
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, &StaffError{StaffID: r.ID, Reason: fmt.Sprintf("commission rate %s outside [0, 1]", rate)}
		}
		return Doctor{ID: r.ID, CommissionRate: rate}, nil
	case RoleAdministrator:
		return Administrator{ID: r.ID, MonthlySalary: r.BaseSalary}, nil
	default:
		return OtherStaff{ID: r.ID, RoleName: r.RoleName, HourlyRate: r.BaseSalary}, nil
	}
}

// Actor is whoever performs a mutation, taken from the request's token.
type Actor struct {
	ID   StaffID
	Role string
}

// IsAdmin reports whether the actor may manage other staff members' records.
func (a Actor) IsAdmin() bool {
	return a.Role == "admin" || a.Role == string(RoleAdministrator)
}

// =============================================================================
// INCOME
// =============================================================================

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// IncomeRecord is a patient payment. Immutable once written, except deletion.
type IncomeRecord struct {
	ID            IncomeID
	PatientID     PatientID
	DoctorID      StaffID
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	ServiceDate   time.Time
	Note          *string
	CreatedAt     time.Time
}

// =============================================================================
// SALARY PAYMENTS
// =============================================================================

type PaymentKind string

const (
	KindRegular    PaymentKind = "regular"
	KindCommission PaymentKind = "commission"
)

// CommissionNotePrefix starts the note written on commission payments.
const CommissionNotePrefix = "Commission from income #"

func CommissionNote(id IncomeID) string {
	return fmt.Sprintf("%s%d", CommissionNotePrefix, id)
}

type SalaryPayment struct {
	ID          PaymentID
	StaffID     StaffID
	Amount      decimal.Decimal
	PaymentDate time.Time
	Note        *string
	Kind        PaymentKind
	IncomeID    *IncomeID // set only for KindCommission
	CreatedAt   time.Time
}

// =============================================================================
// TIMESHEETS
// =============================================================================

type Timesheet struct {
	ID        TimesheetID
	StaffID   StaffID
	WorkDate  time.Time
	StartTime Clock
	EndTime   Clock
	Hours     decimal.Decimal
	Note      *string
	CreatedAt time.Time
}

// DayHours is the total of a staff member's shifts on one date.
type DayHours struct {
	Date  time.Time
	Hours decimal.Decimal
}

// =============================================================================
// AUDIT ENTRIES
// =============================================================================

type WithdrawalStatus string

const (
	StatusOK                     WithdrawalStatus = "ok"
	StatusNoEarnings             WithdrawalStatus = "no_earnings"
	StatusSalaryAlreadyWithdrawn WithdrawalStatus = "salary_already_withdrawn"
	StatusInsufficientBalance    WithdrawalStatus = "insufficient_balance"
	StatusDeleted                WithdrawalStatus = "deleted"
)

// WithdrawalAuditEntry records one withdrawal evaluation.
// SalaryPaymentID is nil when the request was denied or the payment deleted.
type WithdrawalAuditEntry struct {
	ID              int64
	StaffID         StaffID
	SalaryPaymentID *PaymentID
	PaymentDate     time.Time
	RequestedAmount decimal.Decimal
	ProcessedAmount decimal.Decimal
	Status          WithdrawalStatus
	ErrorCode       *string
	RequestedBy     *StaffID
	CreatedAt       time.Time
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
)

// TimesheetAuditEntry holds JSON snapshots of the row before and after a
// mutation. OldData is nil on create, NewData is nil on delete.
type TimesheetAuditEntry struct {
	ID          int64
	TimesheetID TimesheetID
	StaffID     StaffID
	Action      AuditAction
	OldData     []byte
	NewData     []byte
	ChangedBy   *StaffID
	ChangedAt   time.Time
}
