/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Request amounts decode into decimal.Decimal (number or string both
  accepted). Responses carry plain JSON numbers rounded to cents.

VALIDATION:
  Validation is done by the payroll engine, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/report"
	"github.com/policlinic/backoffice/store/sqlstore"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STAFF & PATIENTS
// =============================================================================

type StaffDTO struct {
	ID             int64    `json:"id"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Role           string   `json:"role"`
	BaseSalary     float64  `json:"base_salary"`
	CommissionRate *float64 `json:"commission_rate"`
	IsActive       bool     `json:"is_active"`
}

type CreateStaffRequest struct {
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	Role           string           `json:"role"`
	BaseSalary     decimal.Decimal  `json:"base_salary"`
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

// CommissionRateRequest sets a doctor's rate; null restores the default.
type CommissionRateRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

type PatientDTO struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type CreatePatientRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
}

// =============================================================================
// INCOME
// =============================================================================

type CreateIncomeRequest struct {
	PatientID     int64           `json:"patient_id"`
	DoctorID      int64           `json:"doctor_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	ServiceDate   string          `json:"service_date"`
	Note          *string         `json:"note"`
}

type IncomeDTO struct {
	ID            int64   `json:"id"`
	PatientID     int64   `json:"patient_id"`
	PatientName   string  `json:"patient_name,omitempty"`
	DoctorID      int64   `json:"doctor_id"`
	DoctorName    string  `json:"doctor_name,omitempty"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	ServiceDate   string  `json:"service_date"`
	Note          *string `json:"note"`
}

type CreateIncomeResponse struct {
	Income     IncomeDTO   `json:"income"`
	Commission *PaymentDTO `json:"commission"`
}

type IncomeTotalDTO struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	Total    float64            `json:"total"`
	ByMethod map[string]float64 `json:"by_method"`
}

type DayAmountDTO struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

type MonthAmountDTO struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

type DoctorFiguresDTO struct {
	Income                  float64 `json:"income"`
	Commission              float64 `json:"commission"`
	Visits                  int64   `json:"visits"`
	Patients                int64   `json:"patients"`
	AvgCommissionPerPatient float64 `json:"avg_commission_per_patient"`
}

type DoctorOverviewDTO struct {
	Doctor         StaffDTO         `json:"doctor"`
	CommissionRate float64          `json:"commission_rate"`
	Lifetime       DoctorFiguresDTO `json:"lifetime"`
	Today          DoctorFiguresDTO `json:"today"`
}

// =============================================================================
// EXPENSES
// =============================================================================

type CreateExpenseRequest struct {
	CategoryID  int64           `json:"category_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate string          `json:"expense_date"`
	Description *string         `json:"description"`
	Vendor      *string         `json:"vendor"`
}

type ExpenseDTO struct {
	ID          int64   `json:"id"`
	CategoryID  int64   `json:"category_id"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	ExpenseDate string  `json:"expense_date"`
	Description *string `json:"description"`
	Vendor      *string `json:"vendor"`
}

type MonthlyOutcomeDTO struct {
	Month        string  `json:"month"`
	OutcomeTotal float64 `json:"outcome_total"`
	SalaryTotal  float64 `json:"salary_total"`
	TotalOutcome float64 `json:"total_outcome"`
}

// =============================================================================
// TIMESHEETS
// =============================================================================

type CreateTimesheetRequest struct {
	StaffID   int64   `json:"staff_id"`
	WorkDate  string  `json:"work_date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Note      *string `json:"note"`
}

// UpdateTimesheetRequest keeps every absent field as stored.
type UpdateTimesheetRequest struct {
	WorkDate  *string `json:"work_date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Note      *string `json:"note"`
}

type TimesheetDTO struct {
	ID        int64   `json:"id"`
	StaffID   int64   `json:"staff_id"`
	WorkDate  string  `json:"work_date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Hours     float64 `json:"hours"`
	Note      *string `json:"note"`
}

// =============================================================================
// SALARIES
// =============================================================================

type WithdrawRequest struct {
	StaffID     int64           `json:"staff_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Note        *string         `json:"note"`
}

type WithdrawalDTO struct {
	ID              int64   `json:"id"`
	Status          string  `json:"status"`
	ProcessedAmount float64 `json:"processed_amount"`
	AvailableBefore float64 `json:"available_before"`
	AvailableAfter  float64 `json:"available_after"`
	TotalEarnings   float64 `json:"total_earnings"`
	AlreadyPaid     float64 `json:"already_paid"`
	CycleStart      string  `json:"cycle_start"`
	CycleEnd        string  `json:"cycle_end"`
}

type PaymentDTO struct {
	ID          int64   `json:"id"`
	StaffID     int64   `json:"staff_id"`
	StaffName   string  `json:"staff_name,omitempty"`
	Role        string  `json:"role,omitempty"`
	Amount      float64 `json:"amount"`
	PaymentDate string  `json:"payment_date"`
	Note        *string `json:"note"`
	Kind        string  `json:"kind"`
	IncomeID    *int64  `json:"income_id,omitempty"`
}

type SuggestionDTO struct {
	StaffID         int64   `json:"staff_id"`
	Role            string  `json:"role"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	TotalEarnings   float64 `json:"total_earnings"`
	AlreadyPaid     float64 `json:"already_paid"`
	SuggestedAmount float64 `json:"suggested_amount"`
}

type WithdrawalAuditDTO struct {
	ID              int64   `json:"id"`
	StaffID         int64   `json:"staff_id"`
	SalaryPaymentID *int64  `json:"salary_payment_id"`
	PaymentDate     string  `json:"payment_date"`
	RequestedAmount float64 `json:"requested_amount"`
	ProcessedAmount float64 `json:"processed_amount"`
	Status          string  `json:"status"`
	ErrorCode       *string `json:"error_code"`
	RequestedBy     *int64  `json:"requested_by"`
	CreatedAt       string  `json:"created_at"`
}

type StatementDayDTO struct {
	Date          string  `json:"date"`
	Hours         float64 `json:"hours"`
	RegularHours  float64 `json:"regular_hours"`
	OvertimeHours float64 `json:"overtime_hours"`
}

type StatementDTO struct {
	StaffID       int64             `json:"staff_id"`
	Role          string            `json:"role"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	Rate          float64           `json:"rate"`
	TotalHours    float64           `json:"total_hours"`
	RegularHours  float64           `json:"regular_hours"`
	OvertimeHours float64           `json:"overtime_hours"`
	PerDay        []StatementDayDTO `json:"per_day"`
	RegularPay    float64           `json:"regular_pay"`
	OvertimePay   float64           `json:"overtime_pay"`
	TotalPay      float64           `json:"total_pay"`
	TotalPaid     float64           `json:"total_paid"`
	Remaining     float64           `json:"remaining"`
	Payments      []PaymentDTO      `json:"payments"`
}

// =============================================================================
// CLINIC
// =============================================================================

type DayPnLDTO struct {
	Date    string  `json:"date"`
	Income  float64 `json:"income"`
	Outcome float64 `json:"outcome"`
	PnL     float64 `json:"pnl"`
}

type DashboardDTO struct {
	From               string      `json:"from"`
	To                 string      `json:"to"`
	DailyPnL           []DayPnLDTO `json:"daily_pnl"`
	TotalIncome        float64     `json:"total_income"`
	TotalOutcome       float64     `json:"total_outcome"`
	AvgDoctorEarnings  float64     `json:"avg_doctor_earnings"`
	ActiveDoctorsCount int         `json:"active_doctors_count"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response. Code is a stable
// machine-readable reason such as "invalid_staff" or "insufficient_balance".
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 {
	return payroll.RoundMoney(d).InexactFloat64()
}

func fmtDate(t time.Time) string {
	return t.Format(payroll.DateLayout)
}

func toStaffDTO(r payroll.StaffRecord) StaffDTO {
	dto := StaffDTO{
		ID:         int64(r.ID),
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Role:       r.RoleName,
		BaseSalary: money(r.BaseSalary),
		IsActive:   r.Active,
	}
	if r.CommissionRate.Valid {
		rate := r.CommissionRate.Decimal.InexactFloat64()
		dto.CommissionRate = &rate
	}
	return dto
}

func toPatientDTO(p sqlstore.Patient) PatientDTO {
	return PatientDTO{ID: int64(p.ID), FirstName: p.FirstName, LastName: p.LastName, Phone: p.Phone, Email: p.Email}
}

func toIncomeDTO(r payroll.IncomeRecord) IncomeDTO {
	return IncomeDTO{
		ID:            int64(r.ID),
		PatientID:     int64(r.PatientID),
		DoctorID:      int64(r.DoctorID),
		Amount:        money(r.Amount),
		PaymentMethod: string(r.PaymentMethod),
		ServiceDate:   fmtDate(r.ServiceDate),
		Note:          r.Note,
	}
}

func toPaymentDTO(p payroll.SalaryPayment) PaymentDTO {
	dto := PaymentDTO{
		ID:          int64(p.ID),
		StaffID:     int64(p.StaffID),
		Amount:      money(p.Amount),
		PaymentDate: fmtDate(p.PaymentDate),
		Note:        p.Note,
		Kind:        string(p.Kind),
	}
	if p.IncomeID != nil {
		id := int64(*p.IncomeID)
		dto.IncomeID = &id
	}
	return dto
}

func toTimesheetDTO(ts payroll.Timesheet) TimesheetDTO {
	return TimesheetDTO{
		ID:        int64(ts.ID),
		StaffID:   int64(ts.StaffID),
		WorkDate:  fmtDate(ts.WorkDate),
		StartTime: ts.StartTime.String(),
		EndTime:   ts.EndTime.String(),
		Hours:     money(ts.Hours),
		Note:      ts.Note,
	}
}

func toExpenseDTO(e sqlstore.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          e.ID,
		CategoryID:  e.CategoryID,
		Category:    e.Category,
		Amount:      money(e.Amount),
		ExpenseDate: fmtDate(e.ExpenseDate),
		Description: e.Description,
		Vendor:      e.Vendor,
	}
}

func toWithdrawalAuditDTO(e payroll.WithdrawalAuditEntry) WithdrawalAuditDTO {
	dto := WithdrawalAuditDTO{
		ID:              e.ID,
		StaffID:         int64(e.StaffID),
		PaymentDate:     fmtDate(e.PaymentDate),
		RequestedAmount: money(e.RequestedAmount),
		ProcessedAmount: money(e.ProcessedAmount),
		Status:          string(e.Status),
		ErrorCode:       e.ErrorCode,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
	if e.SalaryPaymentID != nil {
		id := int64(*e.SalaryPaymentID)
		dto.SalaryPaymentID = &id
	}
	if e.RequestedBy != nil {
		id := int64(*e.RequestedBy)
		dto.RequestedBy = &id
	}
	return dto
}

func toStatementDTO(st payroll.Statement) StatementDTO {
	dto := StatementDTO{
		StaffID:       int64(st.StaffID),
		Role:          string(st.Role),
		From:          fmtDate(st.Cycle.Start),
		To:            fmtDate(st.Cycle.End),
		Rate:          money(st.Rate),
		TotalHours:    money(st.TotalHours),
		RegularHours:  money(st.RegularHours),
		OvertimeHours: money(st.OvertimeHours),
		PerDay:        make([]StatementDayDTO, len(st.Days)),
		RegularPay:    money(st.RegularPay),
		OvertimePay:   money(st.OvertimePay),
		TotalPay:      money(st.TotalPay),
		TotalPaid:     money(st.TotalPaid),
		Remaining:     money(st.Remaining),
		Payments:      make([]PaymentDTO, len(st.Payments)),
	}
	for i, d := range st.Days {
		dto.PerDay[i] = StatementDayDTO{
			Date:          fmtDate(d.Date),
			Hours:         money(d.Hours),
			RegularHours:  money(d.Regular),
			OvertimeHours: money(d.Overtime),
		}
	}
	for i, p := range st.Payments {
		dto.Payments[i] = toPaymentDTO(p)
	}
	return dto
}

func toDoctorFiguresDTO(f report.DoctorFigures) DoctorFiguresDTO {
	return DoctorFiguresDTO{
		Income:                  money(f.Income),
		Commission:              money(f.Commission),
		Visits:                  f.Visits,
		Patients:                f.Patients,
		AvgCommissionPerPatient: money(f.AvgCommissionPerPatient),
	}
}

func toDayAmountDTOs(rows []report.DayAmount) []DayAmountDTO {
	out := make([]DayAmountDTO, len(rows))
	for i, r := range rows {
		out[i] = DayAmountDTO{Date: fmtDate(r.Day), Amount: money(r.Amount)}
	}
	return out
}

func toMonthAmountDTOs(rows []report.MonthAmount) []MonthAmountDTO {
	out := make([]MonthAmountDTO, len(rows))
	for i, r := range rows {
		out[i] = MonthAmountDTO{Month: r.Month, Amount: money(r.Amount)}
	}
	return out
}
