// Package store provides an in-memory payroll.Store.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps. WithTx holds the lock for the whole
// unit of work, which also stands in for row locks.
type Memory struct {
	mu    sync.Mutex
	state *state

	// failures makes the named operation return the error, for rollback tests
	failures map[string]error
}

type state struct {
	staff      map[payroll.StaffID]payroll.StaffRecord
	income     map[payroll.IncomeID]payroll.IncomeRecord
	payments   map[payroll.PaymentID]payroll.SalaryPayment
	timesheets map[payroll.TimesheetID]payroll.Timesheet
	wAudits    []payroll.WithdrawalAuditEntry
	tAudits    []payroll.TimesheetAuditEntry
	nextID     int64
}

func NewMemory() *Memory {
	return &Memory{
		state: &state{
			staff:      make(map[payroll.StaffID]payroll.StaffRecord),
			income:     make(map[payroll.IncomeID]payroll.IncomeRecord),
			payments:   make(map[payroll.PaymentID]payroll.SalaryPayment),
			timesheets: make(map[payroll.TimesheetID]payroll.Timesheet),
		},
		failures: make(map[string]error),
	}
}

// AddStaff inserts a staff row outside any transaction and returns its id.
func (m *Memory) AddStaff(rec payroll.StaffRecord) payroll.StaffID {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = payroll.StaffID(m.state.id())
	m.state.staff[rec.ID] = rec
	return rec.ID
}

// FailOn makes the named Store method fail with err until cleared with nil.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{st: m.state, failures: m.failures}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// =============================================================================
// INSPECTION - Copies of the committed state
// =============================================================================

func (m *Memory) Payments() []payroll.SalaryPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payroll.SalaryPayment, 0, len(m.state.payments))
	for _, p := range m.state.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Income() []payroll.IncomeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payroll.IncomeRecord, 0, len(m.state.income))
	for _, r := range m.state.income {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) WithdrawalAudits() []payroll.WithdrawalAuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payroll.WithdrawalAuditEntry(nil), m.state.wAudits...)
}

func (m *Memory) TimesheetAudits() []payroll.TimesheetAuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payroll.TimesheetAuditEntry(nil), m.state.tAudits...)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) clone() *state {
	c := &state{
		staff:      make(map[payroll.StaffID]payroll.StaffRecord, len(s.staff)),
		income:     make(map[payroll.IncomeID]payroll.IncomeRecord, len(s.income)),
		payments:   make(map[payroll.PaymentID]payroll.SalaryPayment, len(s.payments)),
		timesheets: make(map[payroll.TimesheetID]payroll.Timesheet, len(s.timesheets)),
		wAudits:    append([]payroll.WithdrawalAuditEntry(nil), s.wAudits...),
		tAudits:    append([]payroll.TimesheetAuditEntry(nil), s.tAudits...),
		nextID:     s.nextID,
	}
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.income {
		c.income[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.timesheets {
		c.timesheets[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONAL VIEW - payroll.Store over the locked state
// =============================================================================

type txView struct {
	st       *state
	failures map[string]error
}

func (tv *txView) fail(op string) error {
	return tv.failures[op]
}

func notFound(kind string, id int64) error {
	return &payroll.NotFoundError{Kind: kind, ID: id}
}

func (tv *txView) FindStaff(_ context.Context, id payroll.StaffID) (payroll.StaffRecord, error) {
	if err := tv.fail("FindStaff"); err != nil {
		return payroll.StaffRecord{}, err
	}
	rec, ok := tv.st.staff[id]
	if !ok {
		return payroll.StaffRecord{}, notFound("staff", int64(id))
	}
	return rec, nil
}

func (tv *txView) LockStaff(ctx context.Context, id payroll.StaffID) (payroll.StaffRecord, error) {
	if err := tv.fail("LockStaff"); err != nil {
		return payroll.StaffRecord{}, err
	}
	return tv.FindStaff(ctx, id)
}

func (tv *txView) InsertIncome(_ context.Context, rec payroll.IncomeRecord) (payroll.IncomeID, error) {
	if err := tv.fail("InsertIncome"); err != nil {
		return 0, err
	}
	rec.ID = payroll.IncomeID(tv.st.id())
	tv.st.income[rec.ID] = rec
	return rec.ID, nil
}

func (tv *txView) GetIncome(_ context.Context, id payroll.IncomeID) (payroll.IncomeRecord, error) {
	rec, ok := tv.st.income[id]
	if !ok {
		return payroll.IncomeRecord{}, notFound("income record", int64(id))
	}
	return rec, nil
}

func (tv *txView) DeleteIncome(_ context.Context, id payroll.IncomeID) error {
	if err := tv.fail("DeleteIncome"); err != nil {
		return err
	}
	if _, ok := tv.st.income[id]; !ok {
		return notFound("income record", int64(id))
	}
	for _, p := range tv.st.payments {
		if p.IncomeID != nil && *p.IncomeID == id {
			return errors.New("income record still referenced by a salary payment")
		}
	}
	delete(tv.st.income, id)
	return nil
}

func (tv *txView) SumIncome(_ context.Context, doctorID payroll.StaffID, cycle payroll.Cycle) (decimal.Decimal, error) {
	if err := tv.fail("SumIncome"); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range tv.st.income {
		if r.DoctorID == doctorID && cycle.Contains(r.ServiceDate) {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (tv *txView) InsertSalaryPayment(_ context.Context, p payroll.SalaryPayment) (payroll.PaymentID, error) {
	if err := tv.fail("InsertSalaryPayment"); err != nil {
		return 0, err
	}
	if p.Amount.IsNegative() {
		return 0, errors.New("salary payment amount must not be negative")
	}
	p.ID = payroll.PaymentID(tv.st.id())
	tv.st.payments[p.ID] = p
	return p.ID, nil
}

func (tv *txView) GetSalaryPayment(_ context.Context, id payroll.PaymentID) (payroll.SalaryPayment, error) {
	p, ok := tv.st.payments[id]
	if !ok {
		return payroll.SalaryPayment{}, notFound("salary payment", int64(id))
	}
	return p, nil
}

func (tv *txView) CommissionPayment(_ context.Context, incomeID payroll.IncomeID) (payroll.SalaryPayment, error) {
	for _, p := range tv.st.payments {
		if p.Kind == payroll.KindCommission && p.IncomeID != nil && *p.IncomeID == incomeID {
			return p, nil
		}
	}
	return payroll.SalaryPayment{}, notFound("commission for income", int64(incomeID))
}

func (tv *txView) DeleteSalaryPayment(_ context.Context, id payroll.PaymentID) error {
	if err := tv.fail("DeleteSalaryPayment"); err != nil {
		return err
	}
	if _, ok := tv.st.payments[id]; !ok {
		return notFound("salary payment", int64(id))
	}
	delete(tv.st.payments, id)
	return nil
}

func (tv *txView) SumRegularPayments(_ context.Context, staffID payroll.StaffID, cycle payroll.Cycle) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range tv.st.payments {
		if p.StaffID == staffID && p.Kind == payroll.KindRegular && cycle.Contains(p.PaymentDate) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (tv *txView) ListPayments(_ context.Context, staffID payroll.StaffID, cycle payroll.Cycle) ([]payroll.SalaryPayment, error) {
	var out []payroll.SalaryPayment
	for _, p := range tv.st.payments {
		if p.StaffID == staffID && cycle.Contains(p.PaymentDate) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].PaymentDate.Before(out[j].PaymentDate)
	})
	return out, nil
}

func (tv *txView) InsertTimesheet(_ context.Context, ts payroll.Timesheet) (payroll.TimesheetID, error) {
	if err := tv.fail("InsertTimesheet"); err != nil {
		return 0, err
	}
	ts.ID = payroll.TimesheetID(tv.st.id())
	tv.st.timesheets[ts.ID] = ts
	return ts.ID, nil
}

func (tv *txView) GetTimesheet(_ context.Context, id payroll.TimesheetID) (payroll.Timesheet, error) {
	ts, ok := tv.st.timesheets[id]
	if !ok {
		return payroll.Timesheet{}, notFound("timesheet", int64(id))
	}
	return ts, nil
}

func (tv *txView) UpdateTimesheet(_ context.Context, ts payroll.Timesheet) error {
	if err := tv.fail("UpdateTimesheet"); err != nil {
		return err
	}
	if _, ok := tv.st.timesheets[ts.ID]; !ok {
		return notFound("timesheet", int64(ts.ID))
	}
	tv.st.timesheets[ts.ID] = ts
	return nil
}

func (tv *txView) DeleteTimesheet(_ context.Context, id payroll.TimesheetID) error {
	if _, ok := tv.st.timesheets[id]; !ok {
		return notFound("timesheet", int64(id))
	}
	delete(tv.st.timesheets, id)
	return nil
}

func (tv *txView) ListTimesheets(_ context.Context, staffID payroll.StaffID, cycle payroll.Cycle) ([]payroll.Timesheet, error) {
	if err := tv.fail("ListTimesheets"); err != nil {
		return nil, err
	}
	var out []payroll.Timesheet
	for _, ts := range tv.st.timesheets {
		if ts.StaffID == staffID && cycle.Contains(ts.WorkDate) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].WorkDate.Before(out[j].WorkDate)
	})
	return out, nil
}

func (tv *txView) SumHours(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) (decimal.Decimal, error) {
	if err := tv.fail("SumHours"); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, ts := range tv.st.timesheets {
		if ts.StaffID == staffID && cycle.Contains(ts.WorkDate) {
			total = total.Add(ts.Hours)
		}
	}
	return total, nil
}

func (tv *txView) DailyHours(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) ([]payroll.DayHours, error) {
	sheets, err := tv.ListTimesheets(ctx, staffID, cycle)
	if err != nil {
		return nil, err
	}
	var out []payroll.DayHours
	for _, ts := range sheets {
		if n := len(out); n > 0 && out[n-1].Date.Equal(ts.WorkDate) {
			out[n-1].Hours = out[n-1].Hours.Add(ts.Hours)
			continue
		}
		out = append(out, payroll.DayHours{Date: ts.WorkDate, Hours: ts.Hours})
	}
	return out, nil
}

func (tv *txView) InsertWithdrawalAudit(_ context.Context, e payroll.WithdrawalAuditEntry) (int64, error) {
	if err := tv.fail("InsertWithdrawalAudit"); err != nil {
		return 0, err
	}
	e.ID = tv.st.id()
	tv.st.wAudits = append(tv.st.wAudits, e)
	return e.ID, nil
}

func (tv *txView) MarkWithdrawalAuditDeleted(_ context.Context, paymentID payroll.PaymentID) (int64, error) {
	var n int64
	for i, e := range tv.st.wAudits {
		if e.SalaryPaymentID == nil || *e.SalaryPaymentID != paymentID {
			continue
		}
		e.SalaryPaymentID = nil
		e.Status = payroll.StatusDeleted
		if e.ErrorCode == nil {
			code := string(payroll.StatusDeleted)
			e.ErrorCode = &code
		}
		tv.st.wAudits[i] = e
		n++
	}
	return n, nil
}

func (tv *txView) WithdrawalAudits(_ context.Context, staffID payroll.StaffID) ([]payroll.WithdrawalAuditEntry, error) {
	var out []payroll.WithdrawalAuditEntry
	for _, e := range tv.st.wAudits {
		if e.StaffID == staffID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) InsertTimesheetAudit(_ context.Context, e payroll.TimesheetAuditEntry) (int64, error) {
	if err := tv.fail("InsertTimesheetAudit"); err != nil {
		return 0, err
	}
	e.ID = tv.st.id()
	tv.st.tAudits = append(tv.st.tAudits, e)
	return e.ID, nil
}

func (tv *txView) TimesheetAudits(_ context.Context, timesheetID payroll.TimesheetID) ([]payroll.TimesheetAuditEntry, error) {
	var out []payroll.TimesheetAuditEntry
	for _, e := range tv.st.tAudits {
		if e.TimesheetID == timesheetID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ payroll.Store = (*txView)(nil)
var _ payroll.TxStore = (*Memory)(nil)
