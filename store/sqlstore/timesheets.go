package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIMESHEETS
// =============================================================================

type timesheetRow struct {
	ID        int64           `db:"id"`
	StaffID   int64           `db:"staff_id"`
	WorkDate  time.Time       `db:"work_date"`
	StartTime string          `db:"start_time"`
	EndTime   string          `db:"end_time"`
	Hours     decimal.Decimal `db:"hours"`
	Note      *string         `db:"note"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r timesheetRow) timesheet() (payroll.Timesheet, error) {
	start, err := payroll.ParseClock(r.StartTime)
	if err != nil {
		return payroll.Timesheet{}, fmt.Errorf("timesheet %d: %w", r.ID, err)
	}
	end, err := payroll.ParseClock(r.EndTime)
	if err != nil {
		return payroll.Timesheet{}, fmt.Errorf("timesheet %d: %w", r.ID, err)
	}
	return payroll.Timesheet{
		ID:        payroll.TimesheetID(r.ID),
		StaffID:   payroll.StaffID(r.StaffID),
		WorkDate:  payroll.DateOf(r.WorkDate),
		StartTime: start,
		EndTime:   end,
		Hours:     r.Hours,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
	}, nil
}

const timesheetColumns = `id, staff_id, work_date, start_time, end_time, hours, note, created_at`

func (q *queries) InsertTimesheet(ctx context.Context, ts payroll.Timesheet) (payroll.TimesheetID, error) {
	id, err := q.insert(ctx, `
		INSERT INTO timesheets (staff_id, work_date, start_time, end_time, hours, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(ts.StaffID), date(ts.WorkDate), ts.StartTime.String(), ts.EndTime.String(), ts.Hours, ts.Note, ts.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return payroll.TimesheetID(id), nil
}

func (q *queries) GetTimesheet(ctx context.Context, id payroll.TimesheetID) (payroll.Timesheet, error) {
	var row timesheetRow
	if err := q.get(ctx, &row, `SELECT `+timesheetColumns+` FROM timesheets WHERE id = ?`, int64(id)); err != nil {
		return payroll.Timesheet{}, notFoundOr(err, "timesheet", int64(id))
	}
	return row.timesheet()
}

func (q *queries) UpdateTimesheet(ctx context.Context, ts payroll.Timesheet) error {
	n, err := q.exec(ctx, `
		UPDATE timesheets SET work_date = ?, start_time = ?, end_time = ?, hours = ?, note = ?
		WHERE id = ?`,
		date(ts.WorkDate), ts.StartTime.String(), ts.EndTime.String(), ts.Hours, ts.Note, int64(ts.ID),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return &payroll.NotFoundError{Kind: "timesheet", ID: int64(ts.ID)}
	}
	return nil
}

func (q *queries) DeleteTimesheet(ctx context.Context, id payroll.TimesheetID) error {
	return q.deleteOne(ctx, "timesheets", "timesheet", int64(id))
}

func (q *queries) ListTimesheets(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) ([]payroll.Timesheet, error) {
	var rows []timesheetRow
	err := q.sel(ctx, &rows, `
		SELECT `+timesheetColumns+` FROM timesheets
		WHERE staff_id = ? AND work_date BETWEEN ? AND ?
		ORDER BY work_date, start_time`,
		int64(staffID), date(cycle.Start), date(cycle.End),
	)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.Timesheet, 0, len(rows))
	for _, r := range rows {
		ts, err := r.timesheet()
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

func (q *queries) SumHours(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.get(ctx, &total, `
		SELECT COALESCE(SUM(hours), 0) FROM timesheets
		WHERE staff_id = ? AND work_date BETWEEN ? AND ?`,
		int64(staffID), date(cycle.Start), date(cycle.End),
	)
	return total, err
}

func (q *queries) DailyHours(ctx context.Context, staffID payroll.StaffID, cycle payroll.Cycle) ([]payroll.DayHours, error) {
	var rows []struct {
		Day   time.Time       `db:"work_date"`
		Hours decimal.Decimal `db:"hours"`
	}
	err := q.sel(ctx, &rows, `
		SELECT work_date, SUM(hours) AS hours FROM timesheets
		WHERE staff_id = ? AND work_date BETWEEN ? AND ?
		GROUP BY work_date
		ORDER BY work_date`,
		int64(staffID), date(cycle.Start), date(cycle.End),
	)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.DayHours, len(rows))
	for i, r := range rows {
		out[i] = payroll.DayHours{Date: payroll.DateOf(r.Day), Hours: payroll.RoundMoney(r.Hours)}
	}
	return out, nil
}
