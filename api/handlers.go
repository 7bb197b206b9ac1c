/*
handlers.go - HTTP API handlers for the clinic back office

PURPOSE:
  Exposes the payroll engine, reports and reference data via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  payroll and report packages.

ENDPOINTS (all under /api, bearer token required except health):
  Staff:
    GET    /staff                       List staff (?include_inactive=true)
    POST   /staff                       Create staff member
    DELETE /staff/{id}                  Deactivate
    POST   /staff/{id}/restore          Reactivate
    POST   /staff/{id}/commission       Set or clear a doctor's rate

  Income:
    GET    /income/patients             List patients
    POST   /income/patients             Create patient
    GET    /income/records              List income (?from&to&doctor_id&method)
    POST   /income/records              Record income, posts commission
    DELETE /income/records/{id}         Delete income and its commission
    GET    /income/summary/{daily,monthly,total}
    GET    /income/doctor/{id}/overview Lifetime and today figures

  Outcome:
    GET    /outcome/categories, /outcome/records
    POST   /outcome/records             Record expense
    DELETE /outcome/records/{id}
    GET    /outcome/summary/monthly     Expenses and salaries per month
    GET    /outcome/timesheets          (?staff_id&from&to)
    POST   /outcome/timesheets
    PUT    /outcome/timesheets/{id}
    DELETE /outcome/timesheets/{id}
    GET    /outcome/salary/suggested    (?staff_id&from&to)
    GET    /outcome/salaries            (?from&to&kind)
    POST   /outcome/salaries            Withdraw
    DELETE /outcome/salaries/{id}
    GET    /outcome/salaries/audit      (?staff_id)
    GET    /outcome/staff/self/dashboard

  Clinic:
    GET    /clinic/dashboard            Daily P&L (?from&to)

ERROR HANDLING:
  Errors are returned as ErrorResponse with a stable code:
  - 400: Validation errors and withdrawal denials
  - 401: Missing or invalid token
  - 403: Role or ownership check failed
  - 404: Resource not found
  - 500: Internal errors

  A denied withdrawal is committed (its audit row must persist) and then
  answered with 400 and the denial status as the error.

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer tokens and role checks
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/policlinic/backoffice/logger"
	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/report"
	"github.com/policlinic/backoffice/store/sqlstore"
	"github.com/shopspring/decimal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlstore.Store
	Engine  *payroll.Engine
	Reports *report.Service

	now func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. now defaults to time.Now.
func NewHandler(store *sqlstore.Store, engine *payroll.Engine, reports *report.Service, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{Store: store, Engine: engine, Reports: reports, now: now}
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Store.ListStaff(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]StaffDTO, len(staff))
	for i, s := range staff {
		dtos[i] = toStaffDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.FirstName, req.LastName = strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.FirstName == "" || req.LastName == "" || req.Role == "" {
		h.fail(w, r, fmt.Errorf("%w: first_name, last_name and role are required", payroll.ErrInvalidStaff))
		return
	}
	if req.BaseSalary.IsNegative() {
		h.fail(w, r, fmt.Errorf("%w: base_salary must not be negative", payroll.ErrInvalidAmount))
		return
	}

	rec := payroll.StaffRecord{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		RoleName:   req.Role,
		BaseSalary: payroll.RoundMoney(req.BaseSalary),
		Active:     true,
	}
	if req.CommissionRate != nil {
		rate := *req.CommissionRate
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			h.fail(w, r, fmt.Errorf("%w: commission_rate must be within [0, 1]", payroll.ErrInvalidStaff))
			return
		}
		rec.CommissionRate = decimal.NewNullDecimal(rate)
	}

	err := h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		var err error
		rec.ID, err = tx.InsertStaff(r.Context(), rec)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaffDTO(rec))
}

// DeactivateStaff soft-deletes a staff member. History stays intact.
func (h *Handler) DeactivateStaff(w http.ResponseWriter, r *http.Request) {
	h.setStaffActive(w, r, false)
}

func (h *Handler) RestoreStaff(w http.ResponseWriter, r *http.Request) {
	h.setStaffActive(w, r, true)
}

func (h *Handler) setStaffActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid staff id", err)
		return
	}
	err = h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		return tx.SetStaffActive(r.Context(), payroll.StaffID(id), active)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SetCommissionRate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid staff id", err)
		return
	}
	var req CommissionRateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	var rate decimal.NullDecimal
	if req.CommissionRate != nil {
		rate = decimal.NewNullDecimal(*req.CommissionRate)
	}
	err = h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		return tx.SetCommissionRate(r.Context(), payroll.StaffID(id), rate)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Store.ListPatients(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		dtos[i] = toPatientDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p := sqlstore.Patient{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     req.Phone,
		Email:     req.Email,
	}
	if p.FirstName == "" || p.LastName == "" {
		h.fail(w, r, fmt.Errorf("%w: first_name and last_name are required", payroll.ErrInvalidPatient))
		return
	}
	err := h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		var err error
		p.ID, err = tx.InsertPatient(r.Context(), p)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientDTO(p))
}

// =============================================================================
// INCOME HANDLERS
// =============================================================================

func (h *Handler) ListIncome(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := sqlstore.IncomeFilter{Cycle: cycle, Method: payroll.PaymentMethod(q.Get("method"))}
	if v := q.Get("doctor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: doctor_id %q", payroll.ErrInvalidDoctor, v))
			return
		}
		filter.DoctorID = payroll.StaffID(id)
	}

	items, err := h.Store.ListIncome(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]IncomeDTO, len(items))
	for i, it := range items {
		dtos[i] = toIncomeDTO(it.IncomeRecord)
		dtos[i].PatientName = it.PatientName
		dtos[i].DoctorName = it.DoctorName
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateIncome records a patient payment and its doctor's commission in one
// transaction.
func (h *Handler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	var req CreateIncomeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	serviceDate, err := optionalDate(req.ServiceDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	in := payroll.IncomeInput{
		PatientID:     payroll.PatientID(req.PatientID),
		DoctorID:      payroll.StaffID(req.DoctorID),
		Amount:        req.Amount,
		PaymentMethod: payroll.PaymentMethod(req.PaymentMethod),
		ServiceDate:   serviceDate,
		Note:          req.Note,
	}
	var (
		rec        payroll.IncomeRecord
		commission *payroll.SalaryPayment
	)
	err = h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		if in.PatientID > 0 {
			if _, err := tx.FindPatient(r.Context(), in.PatientID); err != nil {
				if payroll.IsNotFound(err) {
					return fmt.Errorf("%w: patient %d does not exist", payroll.ErrInvalidPatient, in.PatientID)
				}
				return err
			}
		}
		var err error
		rec, commission, err = h.Engine.RecordIncome(r.Context(), tx, in)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := CreateIncomeResponse{Income: toIncomeDTO(rec)}
	if commission != nil {
		dto := toPaymentDTO(*commission)
		resp.Commission = &dto
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid income id", err)
		return
	}
	err = h.Store.WithTx(r.Context(), func(tx payroll.Store) error {
		return h.Engine.DeleteIncome(r.Context(), tx, payroll.IncomeID(id))
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) DailyIncome(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.Reports.DailyIncome(r.Context(), cycle, payroll.PaymentMethod(r.URL.Query().Get("method")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayAmountDTOs(rows))
}

func (h *Handler) MonthlyIncome(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.MonthlyIncome(r.Context(), payroll.PaymentMethod(r.URL.Query().Get("method")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthAmountDTOs(rows))
}

func (h *Handler) IncomeTotal(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	total, err := h.Reports.IncomeTotal(r.Context(), cycle, payroll.PaymentMethod(r.URL.Query().Get("method")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := IncomeTotalDTO{
		From:     fmtDate(cycle.Start),
		To:       fmtDate(cycle.End),
		Total:    money(total.Total),
		ByMethod: make(map[string]float64, len(total.ByMethod)),
	}
	for m, v := range total.ByMethod {
		dto.ByMethod[string(m)] = money(v)
	}
	writeJSON(w, http.StatusOK, dto)
}

// DoctorOverview is open to admins and to the doctor themselves.
func (h *Handler) DoctorOverview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid doctor id", err)
		return
	}
	actor, _ := actorFrom(r.Context())
	if !canManage(actor, payroll.StaffID(id)) {
		h.fail(w, r, errForbidden)
		return
	}
	o, err := h.Reports.DoctorOverview(r.Context(), payroll.StaffID(id), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DoctorOverviewDTO{
		Doctor:         toStaffDTO(o.Doctor),
		CommissionRate: o.CommissionRate.InexactFloat64(),
		Lifetime:       toDoctorFiguresDTO(o.Lifetime),
		Today:          toDoctorFiguresDTO(o.Today),
	})
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cats == nil {
		cats = []sqlstore.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expenses, err := h.Store.ListExpenses(r.Context(), cycle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	expenseDate, err := optionalDate(req.ExpenseDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if expenseDate.IsZero() {
		expenseDate = payroll.DateOf(h.now())
	}

	e := sqlstore.Expense{
		CategoryID:  req.CategoryID,
		Category:    req.Category,
		Amount:      req.Amount,
		ExpenseDate: expenseDate,
		Description: req.Description,
		Vendor:      req.Vendor,
	}
	err = h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		var err error
		e.ID, err = tx.InsertExpense(r.Context(), e)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e.Amount = payroll.RoundMoney(e.Amount)
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expense id", err)
		return
	}
	err = h.Store.WithAdminTx(r.Context(), func(tx *sqlstore.Tx) error {
		return tx.DeleteExpense(r.Context(), id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) MonthlyOutcome(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.MonthlyOutcome(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]MonthlyOutcomeDTO, len(rows))
	for i, m := range rows {
		dtos[i] = MonthlyOutcomeDTO{
			Month:        m.Month,
			OutcomeTotal: money(m.Expenses),
			SalaryTotal:  money(m.Salaries),
			TotalOutcome: money(m.Total),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TIMESHEET HANDLERS - admin or the staff member themselves
// =============================================================================

func (h *Handler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("staff_id")
	if v == "" {
		writeJSON(w, http.StatusOK, []TimesheetDTO{})
		return
	}
	staffID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: staff_id %q", payroll.ErrInvalidStaff, v))
		return
	}
	actor, _ := actorFrom(r.Context())
	if !canManage(actor, payroll.StaffID(staffID)) {
		h.fail(w, r, errForbidden)
		return
	}
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sheets, err := h.Store.ListTimesheets(r.Context(), payroll.StaffID(staffID), cycle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]TimesheetDTO, len(sheets))
	for i, ts := range sheets {
		dtos[i] = toTimesheetDTO(ts)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTimesheet(w http.ResponseWriter, r *http.Request) {
	var req CreateTimesheetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.StaffID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: staff_id is required", payroll.ErrInvalidStaff))
		return
	}
	actor, _ := actorFrom(r.Context())
	if !canManage(actor, payroll.StaffID(req.StaffID)) {
		h.fail(w, r, errForbidden)
		return
	}
	workDate, err := optionalDate(req.WorkDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if workDate.IsZero() {
		workDate = payroll.DateOf(h.now())
	}

	var ts payroll.Timesheet
	err = h.Store.WithTx(r.Context(), func(tx payroll.Store) error {
		var err error
		ts, err = h.Engine.CreateTimesheet(r.Context(), tx, payroll.TimesheetInput{
			StaffID:   payroll.StaffID(req.StaffID),
			WorkDate:  workDate,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Note:      req.Note,
		}, &actor)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimesheetDTO(ts))
}

func (h *Handler) UpdateTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timesheet id", err)
		return
	}
	var req UpdateTimesheetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	patch := payroll.TimesheetPatch{StartTime: req.StartTime, EndTime: req.EndTime, Note: req.Note}
	if req.WorkDate != nil && *req.WorkDate != "" {
		d, err := payroll.ParseDate(*req.WorkDate)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		patch.WorkDate = &d
	}

	actor, _ := actorFrom(r.Context())
	var ts payroll.Timesheet
	err = h.Store.WithTx(r.Context(), func(tx payroll.Store) error {
		current, err := tx.GetTimesheet(r.Context(), payroll.TimesheetID(id))
		if err != nil {
			return err
		}
		if !canManage(actor, current.StaffID) {
			return errForbidden
		}
		ts, err = h.Engine.UpdateTimesheet(r.Context(), tx, payroll.TimesheetID(id), patch, &actor)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTO(ts))
}

func (h *Handler) DeleteTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timesheet id", err)
		return
	}
	actor, _ := actorFrom(r.Context())
	err = h.Store.WithTx(r.Context(), func(tx payroll.Store) error {
		current, err := tx.GetTimesheet(r.Context(), payroll.TimesheetID(id))
		if err != nil {
			return err
		}
		if !canManage(actor, current.StaffID) {
			return errForbidden
		}
		_, err = h.Engine.DeleteTimesheet(r.Context(), tx, payroll.TimesheetID(id), &actor)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SALARY HANDLERS
// =============================================================================

func (h *Handler) SuggestedSalary(w http.ResponseWriter, r *http.Request) {
	staffID, err := queryStaffID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.Engine.Suggest(r.Context(), h.Store, staffID, cycle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionDTO{
		StaffID:         int64(s.StaffID),
		Role:            string(s.Role),
		From:            fmtDate(s.Cycle.Start),
		To:              fmtDate(s.Cycle.End),
		TotalEarnings:   money(s.TotalEarnings),
		AlreadyPaid:     money(s.AlreadyPaid),
		SuggestedAmount: money(s.Suggested),
	})
}

func (h *Handler) ListSalaries(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kind := payroll.PaymentKind(r.URL.Query().Get("kind"))
	if kind != "" && kind != payroll.KindRegular && kind != payroll.KindCommission {
		writeError(w, http.StatusBadRequest, "Invalid payment kind", fmt.Errorf("kind %q", kind))
		return
	}
	items, err := h.Store.ListAllPayments(r.Context(), cycle, kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PaymentDTO, len(items))
	for i, it := range items {
		dtos[i] = toPaymentDTO(it.SalaryPayment)
		dtos[i].StaffName = it.StaffName
		dtos[i].Role = it.Role
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Withdraw pays out a salary withdrawal. Denials commit their audit row and
// answer 400 with the denial status as error and code.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.StaffID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: staff_id is required", payroll.ErrInvalidStaff))
		return
	}
	paymentDate, err := optionalDate(req.PaymentDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	actor, _ := actorFrom(r.Context())
	var res payroll.WithdrawalResult
	err = h.Store.WithTx(r.Context(), func(tx payroll.Store) error {
		var err error
		res, err = h.Engine.Withdraw(r.Context(), tx, payroll.WithdrawalRequest{
			StaffID:     payroll.StaffID(req.StaffID),
			Amount:      req.Amount,
			PaymentDate: paymentDate,
			Note:        req.Note,
			Actor:       &actor,
		})
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dto := WithdrawalDTO{
		Status:          string(res.Status),
		ProcessedAmount: money(res.ProcessedAmount),
		AvailableBefore: money(res.AvailableBefore),
		AvailableAfter:  money(res.AvailableAfter),
		TotalEarnings:   money(res.TotalEarnings),
		AlreadyPaid:     money(res.AlreadyPaid),
		CycleStart:      fmtDate(res.Cycle.Start),
		CycleEnd:        fmtDate(res.Cycle.End),
	}
	if !res.Allowed {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: string(res.Status), Code: string(res.Status), Details: dto})
		return
	}
	dto.ID = int64(res.Payment.ID)
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) DeleteSalary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid salary payment id", err)
		return
	}
	err = h.Store.WithTx(r.Context(), func(tx payroll.Store) error {
		return h.Engine.DeletePayment(r.Context(), tx, payroll.PaymentID(id))
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) WithdrawalAudits(w http.ResponseWriter, r *http.Request) {
	staffID, err := queryStaffID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.Store.WithdrawalAudits(r.Context(), staffID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]WithdrawalAuditDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toWithdrawalAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SelfStatement is the caller's own pay statement. Doctors have none.
func (h *Handler) SelfStatement(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if payroll.ParseRole(actor.Role) == payroll.RoleDoctor {
		h.fail(w, r, errForbidden)
		return
	}
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.Engine.Statement(r.Context(), h.Store, actor.ID, cycle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// =============================================================================
// CLINIC HANDLERS
// =============================================================================

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	cycle, err := h.cycle(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.Reports.Dashboard(r.Context(), cycle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := DashboardDTO{
		From:               fmtDate(d.Cycle.Start),
		To:                 fmtDate(d.Cycle.End),
		DailyPnL:           make([]DayPnLDTO, len(d.DailyPnL)),
		TotalIncome:        money(d.TotalIncome),
		TotalOutcome:       money(d.TotalOutcome),
		AvgDoctorEarnings:  money(d.AvgDoctorEarnings),
		ActiveDoctorsCount: d.ActiveDoctorsCount,
	}
	for i, p := range d.DailyPnL {
		dto.DailyPnL[i] = DayPnLDTO{Date: fmtDate(p.Day), Income: money(p.Income), Outcome: money(p.Outcome), PnL: money(p.PnL)}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: errorCode(err)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps err onto a status code. Internal errors are logged and their
// details withheld.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case payroll.IsClientError(err), errors.Is(err, sqlstore.ErrInvalidExpense):
		writeError(w, http.StatusBadRequest, errorCode(err), err)
	default:
		logger.ErrorLog(r.Context(), err, "request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
	}
}

// errorCode names the reason behind err for clients.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errForbidden):
		return "forbidden"
	case errors.Is(err, payroll.ErrNotFound):
		return "not_found"
	case errors.Is(err, payroll.ErrInvalidDoctor):
		return "invalid_doctor"
	case errors.Is(err, payroll.ErrInvalidStaff):
		return "invalid_staff"
	case errors.Is(err, payroll.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, payroll.ErrInvalidTimes):
		return "invalid_times"
	case errors.Is(err, payroll.ErrInvalidPaymentMethod):
		return "invalid_payment_method"
	case errors.Is(err, payroll.ErrInvalidPatient):
		return "invalid_patient"
	case errors.Is(err, payroll.ErrInvalidCycle):
		return "invalid_date"
	case errors.Is(err, payroll.ErrCommissionPayment):
		return "commission_payment"
	case errors.Is(err, sqlstore.ErrInvalidExpense):
		return "invalid_expense"
	}
	return ""
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id %q is not a positive integer", raw)
	}
	return id, nil
}

func queryStaffID(r *http.Request) (payroll.StaffID, error) {
	raw := r.URL.Query().Get("staff_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: staff_id %q", payroll.ErrInvalidStaff, raw)
	}
	return payroll.StaffID(id), nil
}

// cycle reads ?from=&to=, defaulting to first-of-month through today.
func (h *Handler) cycle(r *http.Request) (payroll.Cycle, error) {
	q := r.URL.Query()
	return payroll.ParseCycle(q.Get("from"), q.Get("to"), h.now())
}

// optionalDate parses YYYY-MM-DD; "" yields the zero time.
func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return payroll.ParseDate(s)
}
