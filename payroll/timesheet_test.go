package payroll_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/policlinic/backoffice/payroll/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var manager = &payroll.Actor{ID: 1, Role: "admin"}

func createShift(t *testing.T, e *payroll.Engine, m *store.Memory, staff payroll.StaffID, day time.Time, start, end string) payroll.Timesheet {
	t.Helper()
	var ts payroll.Timesheet
	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		var err error
		ts, err = e.CreateTimesheet(context.Background(), s, payroll.TimesheetInput{
			StaffID: staff, WorkDate: day, StartTime: start, EndTime: end,
		}, manager)
		return err
	})
	require.NoError(t, err)
	return ts
}

func snapshot(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestCreateTimesheet_ComputesHoursAndAudits(t *testing.T) {
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")

	ts := createShift(t, engine, m, nurse, march10, "09:00", "17:30")

	assert.True(t, dec("8.5").Equal(ts.Hours))
	audits := m.TimesheetAudits()
	require.Len(t, audits, 1)
	assert.Equal(t, payroll.ActionCreate, audits[0].Action)
	assert.Equal(t, ts.ID, audits[0].TimesheetID)
	assert.Nil(t, audits[0].OldData)
	require.NotNil(t, audits[0].ChangedBy)
	assert.Equal(t, manager.ID, *audits[0].ChangedBy)

	newData := snapshot(t, audits[0].NewData)
	assert.Equal(t, "2025-03-10", newData["work_date"])
	assert.Equal(t, "09:00", newData["start_time"])
	assert.Equal(t, "17:30", newData["end_time"])
	assert.Equal(t, "8.5", newData["hours"])
}

func TestCreateTimesheet_Rejected(t *testing.T) {
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	gone := m.AddStaff(payroll.StaffRecord{RoleName: "nurse", Active: false})

	create := func(in payroll.TimesheetInput) error {
		return m.WithTx(context.Background(), func(s payroll.Store) error {
			_, err := engine.CreateTimesheet(context.Background(), s, in, manager)
			return err
		})
	}

	assert.ErrorIs(t, create(payroll.TimesheetInput{StaffID: nurse, WorkDate: march10, StartTime: "17:00", EndTime: "09:00"}), payroll.ErrInvalidTimes)
	assert.ErrorIs(t, create(payroll.TimesheetInput{StaffID: nurse, WorkDate: march10, StartTime: "09:00", EndTime: "09:00"}), payroll.ErrInvalidTimes)
	assert.ErrorIs(t, create(payroll.TimesheetInput{StaffID: nurse, WorkDate: march10, StartTime: "nine", EndTime: "17:00"}), payroll.ErrInvalidTimes)
	assert.ErrorIs(t, create(payroll.TimesheetInput{StaffID: gone, WorkDate: march10, StartTime: "09:00", EndTime: "17:00"}), payroll.ErrInvalidStaff)
	assert.ErrorIs(t, create(payroll.TimesheetInput{StaffID: 404, WorkDate: march10, StartTime: "09:00", EndTime: "17:00"}), payroll.ErrInvalidStaff)

	assert.Empty(t, m.TimesheetAudits())
}

func TestUpdateTimesheet_PatchKeepsMissingFields(t *testing.T) {
	// GIVEN: A 09:00-17:00 shift with a note
	// WHEN: Only the end time changes
	// THEN: Start, date and note are kept, hours recomputed, both snapshots audited
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")

	var ts payroll.Timesheet
	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		var err error
		ts, err = engine.CreateTimesheet(context.Background(), s, payroll.TimesheetInput{
			StaffID: nurse, WorkDate: march10, StartTime: "09:00", EndTime: "17:00", Note: strPtr("front desk"),
		}, manager)
		return err
	})
	require.NoError(t, err)

	var updated payroll.Timesheet
	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		updated, err = engine.UpdateTimesheet(context.Background(), s, ts.ID, payroll.TimesheetPatch{EndTime: strPtr("19:15")}, manager)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "09:00", updated.StartTime.String())
	assert.Equal(t, "19:15", updated.EndTime.String())
	assert.Equal(t, march10, updated.WorkDate)
	require.NotNil(t, updated.Note)
	assert.Equal(t, "front desk", *updated.Note)
	assert.True(t, dec("10.25").Equal(updated.Hours))

	audits := m.TimesheetAudits()
	require.Len(t, audits, 2)
	assert.Equal(t, payroll.ActionUpdate, audits[1].Action)
	assert.Equal(t, "17:00", snapshot(t, audits[1].OldData)["end_time"])
	assert.Equal(t, "19:15", snapshot(t, audits[1].NewData)["end_time"])
}

func TestUpdateTimesheet_InvalidMergeRejected(t *testing.T) {
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	ts := createShift(t, engine, m, nurse, march10, "09:00", "12:00")

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		_, err := engine.UpdateTimesheet(context.Background(), s, ts.ID, payroll.TimesheetPatch{StartTime: strPtr("13:00")}, manager)
		return err
	})
	assert.ErrorIs(t, err, payroll.ErrInvalidTimes)
	assert.Len(t, m.TimesheetAudits(), 1)
}

func TestDeleteTimesheet_AuditsLastState(t *testing.T) {
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	ts := createShift(t, engine, m, nurse, march10, "09:00", "12:00")

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		_, err := engine.DeleteTimesheet(context.Background(), s, ts.ID, manager)
		return err
	})
	require.NoError(t, err)

	audits := m.TimesheetAudits()
	require.Len(t, audits, 2)
	assert.Equal(t, payroll.ActionDelete, audits[1].Action)
	assert.Nil(t, audits[1].NewData)
	assert.Equal(t, "12:00", snapshot(t, audits[1].OldData)["end_time"])

	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		_, err := engine.DeleteTimesheet(context.Background(), s, ts.ID, manager)
		return err
	})
	assert.True(t, payroll.IsNotFound(err))
}

func TestTimesheet_AuditFailureRollsBackMutation(t *testing.T) {
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	m.FailOn("InsertTimesheetAudit", errors.New("audit table locked"))

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		_, err := engine.CreateTimesheet(context.Background(), s, payroll.TimesheetInput{
			StaffID: nurse, WorkDate: march10, StartTime: "09:00", EndTime: "17:00",
		}, manager)
		return err
	})
	require.Error(t, err)

	var hours = dec("1")
	m.FailOn("InsertTimesheetAudit", nil)
	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		hours, err = s.SumHours(context.Background(), nurse, payroll.CycleFor(march15))
		return err
	})
	require.NoError(t, err)
	assert.True(t, hours.IsZero())
}

// =============================================================================
// STATEMENTS
// =============================================================================

func TestStatement_SplitsOvertime(t *testing.T) {
	// GIVEN: Nurse at 10/h with a 10h day and a 6h day
	// THEN: 14 regular hours, 2 overtime hours at 15/h
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	createShift(t, engine, m, nurse, march10, "08:00", "18:00")
	createShift(t, engine, m, nurse, march1, "09:00", "12:00")
	createShift(t, engine, m, nurse, march1, "13:00", "16:00")
	_, err := withdraw(t, engine, m, nurse, "50", march15)
	require.NoError(t, err)

	var st payroll.Statement
	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		st, err = engine.Statement(context.Background(), s, nurse, payroll.CycleFor(march15))
		return err
	})
	require.NoError(t, err)

	require.Len(t, st.Days, 2)
	assert.Equal(t, march1, st.Days[0].Date)
	assert.True(t, dec("6").Equal(st.Days[0].Hours))
	assert.True(t, dec("2").Equal(st.Days[1].Overtime))
	assert.True(t, dec("14").Equal(st.RegularHours))
	assert.True(t, dec("140").Equal(st.RegularPay))
	assert.True(t, dec("30").Equal(st.OvertimePay))
	assert.True(t, dec("170").Equal(st.TotalPay))
	assert.True(t, dec("50").Equal(st.TotalPaid))
	assert.True(t, dec("120").Equal(st.Remaining))
}

func TestStatement_StoreFailureSurfaces(t *testing.T) {
	engine, m := newTestEngine(t)
	nurse := addNurse(m, "10")
	createShift(t, engine, m, nurse, march10, "08:00", "18:00")
	m.FailOn("ListTimesheets", errors.New("connection reset"))

	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		_, err := engine.Statement(context.Background(), s, nurse, payroll.CycleFor(march15))
		return err
	})
	require.Error(t, err)
	assert.False(t, payroll.IsClientError(err))
}

func TestStatement_AdministratorFlatAndDoctorRefused(t *testing.T) {
	engine, m := newTestEngine(t)
	admin := addAdmin(m, "2500")
	doctor := addDoctor(m, nil)

	var st payroll.Statement
	err := m.WithTx(context.Background(), func(s payroll.Store) error {
		var err error
		st, err = engine.Statement(context.Background(), s, admin, payroll.CycleFor(march15))
		return err
	})
	require.NoError(t, err)
	assert.True(t, dec("2500").Equal(st.TotalPay))

	err = m.WithTx(context.Background(), func(s payroll.Store) error {
		_, err := engine.Statement(context.Background(), s, doctor, payroll.CycleFor(march15))
		return err
	})
	assert.ErrorIs(t, err, payroll.ErrInvalidStaff)
}
