package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/policlinic/backoffice/logger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIMESHEETS - Audited create/update/delete of worked shifts
// =============================================================================

type TimesheetInput struct {
	StaffID   StaffID
	WorkDate  time.Time
	StartTime string
	EndTime   string
	Note      *string
}

// TimesheetPatch changes only the fields that are set.
type TimesheetPatch struct {
	WorkDate  *time.Time
	StartTime *string
	EndTime   *string
	Note      *string
}

// CreateTimesheet records a shift for an active staff member.
func (e *Engine) CreateTimesheet(ctx context.Context, s Store, in TimesheetInput, actor *Actor) (Timesheet, error) {
	start, end, hours, err := parseShift(in.StartTime, in.EndTime)
	if err != nil {
		return Timesheet{}, err
	}
	if in.WorkDate.IsZero() {
		return Timesheet{}, fmt.Errorf("%w: work date required", ErrInvalidTimes)
	}

	rec, err := s.FindStaff(ctx, in.StaffID)
	if err != nil {
		return Timesheet{}, staffLookupError(in.StaffID, err)
	}
	if !rec.Active {
		return Timesheet{}, &StaffError{StaffID: in.StaffID, Reason: "staff member is inactive"}
	}

	ts := Timesheet{
		StaffID:   in.StaffID,
		WorkDate:  DateOf(in.WorkDate),
		StartTime: start,
		EndTime:   end,
		Hours:     hours,
		Note:      in.Note,
		CreatedAt: e.now().UTC(),
	}
	if ts.ID, err = s.InsertTimesheet(ctx, ts); err != nil {
		return Timesheet{}, fmt.Errorf("insert timesheet: %w", err)
	}
	if err := e.audit.Timesheet(ctx, s, ActionCreate, nil, &ts, actor); err != nil {
		return Timesheet{}, err
	}

	logger.FromContext(ctx).Info().
		Int64("timesheet_id", int64(ts.ID)).
		Int64("staff_id", int64(ts.StaffID)).
		Str("hours", ts.Hours.String()).
		Msg("timesheet created")
	return ts, nil
}

// UpdateTimesheet applies a patch and recomputes hours from the merged times.
func (e *Engine) UpdateTimesheet(ctx context.Context, s Store, id TimesheetID, patch TimesheetPatch, actor *Actor) (Timesheet, error) {
	before, err := s.GetTimesheet(ctx, id)
	if err != nil {
		return Timesheet{}, err
	}

	after := before
	if patch.WorkDate != nil {
		after.WorkDate = DateOf(*patch.WorkDate)
	}
	if patch.Note != nil {
		after.Note = patch.Note
	}
	startText, endText := before.StartTime.String(), before.EndTime.String()
	if patch.StartTime != nil {
		startText = *patch.StartTime
	}
	if patch.EndTime != nil {
		endText = *patch.EndTime
	}
	if after.StartTime, after.EndTime, after.Hours, err = parseShift(startText, endText); err != nil {
		return Timesheet{}, err
	}

	if err := s.UpdateTimesheet(ctx, after); err != nil {
		return Timesheet{}, fmt.Errorf("update timesheet %d: %w", id, err)
	}
	if err := e.audit.Timesheet(ctx, s, ActionUpdate, &before, &after, actor); err != nil {
		return Timesheet{}, err
	}
	return after, nil
}

// DeleteTimesheet removes a shift, keeping its last state in the audit log.
func (e *Engine) DeleteTimesheet(ctx context.Context, s Store, id TimesheetID, actor *Actor) (Timesheet, error) {
	before, err := s.GetTimesheet(ctx, id)
	if err != nil {
		return Timesheet{}, err
	}
	if err := s.DeleteTimesheet(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Timesheet{}, err
		}
		return Timesheet{}, fmt.Errorf("delete timesheet %d: %w", id, err)
	}
	if err := e.audit.Timesheet(ctx, s, ActionDelete, &before, nil, actor); err != nil {
		return Timesheet{}, err
	}
	return before, nil
}

func parseShift(startText, endText string) (Clock, Clock, decimal.Decimal, error) {
	start, err := ParseClock(startText)
	if err != nil {
		return 0, 0, decimal.Zero, err
	}
	end, err := ParseClock(endText)
	if err != nil {
		return 0, 0, decimal.Zero, err
	}
	hours, err := ComputeHours(start, end)
	if err != nil {
		return 0, 0, decimal.Zero, err
	}
	return start, end, hours, nil
}
