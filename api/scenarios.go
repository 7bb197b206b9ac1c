/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	clinic data for demos. Each scenario creates staff, patients, income,
	timesheets, expenses and withdrawals through the same engine calls the
	API uses, so commissions and audit rows come out exactly as in production.

AVAILABLE SCENARIOS:

	demo-clinic:  Two doctors, an administrator, hourly staff and a month of activity
	month-end:    Withdrawal denials, overtime and a fully paid administrator

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create staff and patients
 3. Record income (commission payments are posted by the engine)
 4. Log timesheets and expenses
 5. Withdraw salaries, some of which are denied and audited

All dates fall in the current cycle: first of the month through today.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo-clinic"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handlers the seeded data is served by
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/policlinic/backoffice/logger"
	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/store/sqlstore"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-clinic",
		Name:        "Demo Clinic",
		Description: "Two doctors, an administrator, a nurse and a receptionist with a month of income, shifts and expenses",
	},
	{
		ID:          "month-end",
		Name:        "Month End",
		Description: "Administrator already paid, nurse with overtime, new doctor without income; includes denied withdrawals",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context, *seeder) error
	switch req.ScenarioID {
	case "demo-clinic":
		load = loadDemoClinic
	case "month-end":
		load = loadMonthEnd
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	err := h.Store.WithAdminTx(ctx, func(tx *sqlstore.Tx) error {
		return load(ctx, h.newSeeder(tx))
	})
	if err != nil {
		logger.ErrorLog(ctx, err, "load scenario")
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	logger.InfoLog(ctx, "loaded scenario %s", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	logger.WarnLog(r.Context(), "database reset, all data cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SEEDER - thin helpers over one admin transaction
// =============================================================================

type seeder struct {
	tx     *sqlstore.Tx
	engine *payroll.Engine
	today  time.Time
	start  time.Time
}

func (h *Handler) newSeeder(tx *sqlstore.Tx) *seeder {
	today := payroll.DateOf(h.now())
	return &seeder{tx: tx, engine: h.Engine, today: today, start: payroll.CycleFor(today).Start}
}

// day is the n-th day of the current cycle, never later than today.
func (s *seeder) day(n int) time.Time {
	d := s.start.AddDate(0, 0, n-1)
	if d.After(s.today) {
		return s.today
	}
	return d
}

func (s *seeder) staff(ctx context.Context, first, last, role, salary string, rate *string) (payroll.StaffID, error) {
	rec := payroll.StaffRecord{
		FirstName:  first,
		LastName:   last,
		RoleName:   role,
		BaseSalary: decimal.RequireFromString(salary),
		Active:     true,
	}
	if rate != nil {
		rec.CommissionRate = decimal.NewNullDecimal(decimal.RequireFromString(*rate))
	}
	return s.tx.InsertStaff(ctx, rec)
}

func (s *seeder) patients(ctx context.Context, names ...[2]string) ([]payroll.PatientID, error) {
	ids := make([]payroll.PatientID, 0, len(names))
	for _, n := range names {
		id, err := s.tx.InsertPatient(ctx, sqlstore.Patient{FirstName: n[0], LastName: n[1]})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *seeder) income(ctx context.Context, patient payroll.PatientID, doctor payroll.StaffID, amount string, method payroll.PaymentMethod, day int) error {
	_, _, err := s.engine.RecordIncome(ctx, s.tx, payroll.IncomeInput{
		PatientID:     patient,
		DoctorID:      doctor,
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: method,
		ServiceDate:   s.day(day),
	})
	return err
}

func (s *seeder) shift(ctx context.Context, staff payroll.StaffID, day int, start, end string) error {
	_, err := s.engine.CreateTimesheet(ctx, s.tx, payroll.TimesheetInput{
		StaffID:   staff,
		WorkDate:  s.day(day),
		StartTime: start,
		EndTime:   end,
	}, nil)
	return err
}

func (s *seeder) expense(ctx context.Context, category, amount, vendor string, day int) error {
	_, err := s.tx.InsertExpense(ctx, sqlstore.Expense{
		Category:    category,
		Amount:      decimal.RequireFromString(amount),
		ExpenseDate: s.day(day),
		Vendor:      &vendor,
	})
	return err
}

// withdraw ignores the decision; denials are part of the demo.
func (s *seeder) withdraw(ctx context.Context, staff payroll.StaffID, amount string) error {
	_, err := s.engine.Withdraw(ctx, s.tx, payroll.WithdrawalRequest{
		StaffID:     staff,
		Amount:      decimal.RequireFromString(amount),
		PaymentDate: s.today,
	})
	return err
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadDemoClinic(ctx context.Context, s *seeder) error {
	rate := "0.35"
	kovac, err := s.staff(ctx, "Ana", "Kovač", "doctor", "0", &rate)
	if err != nil {
		return err
	}
	horvat, err := s.staff(ctx, "Marko", "Horvat", "doctor", "0", nil)
	if err != nil {
		return err
	}
	admin, err := s.staff(ctx, "Ivana", "Babić", "administrator", "2400", nil)
	if err != nil {
		return err
	}
	nurse, err := s.staff(ctx, "Petra", "Novak", "nurse", "12.50", nil)
	if err != nil {
		return err
	}
	reception, err := s.staff(ctx, "Luka", "Marić", "receptionist", "10", nil)
	if err != nil {
		return err
	}

	pts, err := s.patients(ctx,
		[2]string{"Josip", "Jurić"},
		[2]string{"Maja", "Knežević"},
		[2]string{"Tomislav", "Vuković"},
		[2]string{"Lucija", "Pavić"},
		[2]string{"Nikola", "Perić"},
		[2]string{"Ema", "Tomić"},
	)
	if err != nil {
		return err
	}

	visits := []struct {
		patient int
		doctor  payroll.StaffID
		amount  string
		method  payroll.PaymentMethod
		day     int
	}{
		{0, kovac, "120", payroll.PaymentCard, 1},
		{1, kovac, "80", payroll.PaymentCash, 2},
		{2, horvat, "150", payroll.PaymentCard, 2},
		{3, horvat, "60", payroll.PaymentCash, 3},
		{4, kovac, "200", payroll.PaymentCard, 5},
		{5, horvat, "95.50", payroll.PaymentCard, 6},
		{0, horvat, "45", payroll.PaymentCash, 8},
		{2, kovac, "130", payroll.PaymentCard, 9},
	}
	for _, v := range visits {
		if err := s.income(ctx, pts[v.patient], v.doctor, v.amount, v.method, v.day); err != nil {
			return err
		}
	}

	for _, day := range []int{1, 2, 3, 5, 6, 8, 9} {
		if err := s.shift(ctx, nurse, day, "08:00", "16:30"); err != nil {
			return err
		}
		if err := s.shift(ctx, reception, day, "09:00", "15:00"); err != nil {
			return err
		}
	}

	expenses := []struct {
		category, amount, vendor string
		day                      int
	}{
		{"Rent", "1500", "City Property", 1},
		{"Medical supplies", "340.75", "MedSupply d.o.o.", 3},
		{"Utilities", "210.20", "Power Co", 7},
	}
	for _, e := range expenses {
		if err := s.expense(ctx, e.category, e.amount, e.vendor, e.day); err != nil {
			return err
		}
	}

	if err := s.withdraw(ctx, admin, "1000"); err != nil {
		return err
	}
	return s.withdraw(ctx, nurse, "200")
}

func loadMonthEnd(ctx context.Context, s *seeder) error {
	admin, err := s.staff(ctx, "Ivana", "Babić", "administrator", "2400", nil)
	if err != nil {
		return err
	}
	nurse, err := s.staff(ctx, "Petra", "Novak", "nurse", "14", nil)
	if err != nil {
		return err
	}
	rookie, err := s.staff(ctx, "Filip", "Grgić", "doctor", "0", nil)
	if err != nil {
		return err
	}

	// Ten-hour shifts: two hours of overtime each.
	for _, day := range []int{1, 2, 3, 4} {
		if err := s.shift(ctx, nurse, day, "07:00", "17:00"); err != nil {
			return err
		}
	}
	if err := s.expense(ctx, "Rent", "1500", "City Property", 1); err != nil {
		return err
	}

	// Full salary, then a second attempt denied as already withdrawn.
	if err := s.withdraw(ctx, admin, "2400"); err != nil {
		return err
	}
	if err := s.withdraw(ctx, admin, "100"); err != nil {
		return err
	}
	// At most 40h at 14 have been earned, so 600 is denied.
	if err := s.withdraw(ctx, nurse, "600"); err != nil {
		return err
	}
	if err := s.withdraw(ctx, nurse, "300"); err != nil {
		return err
	}
	// No income yet: denied with no_earnings.
	return s.withdraw(ctx, rookie, "50")
}
