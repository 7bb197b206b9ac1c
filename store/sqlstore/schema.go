package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// schema is shared by both dialects; {{...}} markers are replaced with the
// dialect's column types.
const schema = `
	CREATE TABLE IF NOT EXISTS staff (
		id {{pk}},
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		role TEXT NOT NULL,
		base_salary NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (base_salary >= 0),
		commission_rate NUMERIC(5,4) CHECK (commission_rate >= 0 AND commission_rate <= 1),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS patients (
		id {{pk}},
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS income_records (
		id {{pk}},
		patient_id {{ref}} NOT NULL REFERENCES patients(id),
		doctor_id {{ref}} NOT NULL REFERENCES staff(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'card')),
		service_date DATE NOT NULL,
		note TEXT,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_income_doctor_date
		ON income_records(doctor_id, service_date);
	CREATE INDEX IF NOT EXISTS idx_income_service_date
		ON income_records(service_date);

	CREATE TABLE IF NOT EXISTS salary_payments (
		id {{pk}},
		staff_id {{ref}} NOT NULL REFERENCES staff(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		payment_date DATE NOT NULL,
		note TEXT,
		payment_kind TEXT NOT NULL DEFAULT 'regular' CHECK (payment_kind IN ('regular', 'commission')),
		income_id {{ref}} REFERENCES income_records(id),
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_salary_payments_staff_date
		ON salary_payments(staff_id, payment_date);

	-- At most one commission per income record
	CREATE UNIQUE INDEX IF NOT EXISTS idx_salary_payments_income
		ON salary_payments(income_id) WHERE income_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS timesheets (
		id {{pk}},
		staff_id {{ref}} NOT NULL REFERENCES staff(id),
		work_date DATE NOT NULL,
		start_time {{time}} NOT NULL,
		end_time {{time}} NOT NULL,
		hours NUMERIC(6,2) NOT NULL CHECK (hours >= 0),
		note TEXT,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timesheets_staff_date
		ON timesheets(staff_id, work_date);

	CREATE TABLE IF NOT EXISTS salary_withdrawal_audit (
		id {{pk}},
		staff_id {{ref}} NOT NULL REFERENCES staff(id),
		salary_payment_id {{ref}} REFERENCES salary_payments(id),
		payment_date DATE NOT NULL,
		requested_amount NUMERIC(12,2) NOT NULL,
		processed_amount NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL,
		error_code TEXT,
		requested_by {{ref}},
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawal_audit_staff
		ON salary_withdrawal_audit(staff_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawal_audit_payment
		ON salary_withdrawal_audit(salary_payment_id);

	-- timesheet_id has no foreign key: rows outlive deleted timesheets
	CREATE TABLE IF NOT EXISTS timesheet_audit (
		id {{pk}},
		timesheet_id {{ref}} NOT NULL,
		staff_id {{ref}} NOT NULL,
		action TEXT NOT NULL CHECK (action IN ('create', 'update', 'delete')),
		old_data {{json}},
		new_data {{json}},
		changed_by {{ref}},
		changed_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timesheet_audit_timesheet
		ON timesheet_audit(timesheet_id);

	CREATE TABLE IF NOT EXISTS outcome_categories (
		id {{pk}},
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS outcome_records (
		id {{pk}},
		category_id {{ref}} NOT NULL REFERENCES outcome_categories(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		expense_date DATE NOT NULL,
		description TEXT,
		vendor TEXT,
		created_at {{timestamp}} NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outcome_records_date
		ON outcome_records(expense_date);
	`

var dialectTypes = map[Dialect]*strings.Replacer{
	DialectSQLite: strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ref}}", "INTEGER",
		"{{timestamp}}", "TIMESTAMP",
		"{{time}}", "TEXT",
		"{{json}}", "TEXT",
	),
	DialectPostgres: strings.NewReplacer(
		"{{pk}}", "BIGSERIAL PRIMARY KEY",
		"{{ref}}", "BIGINT",
		"{{timestamp}}", "TIMESTAMPTZ",
		"{{time}}", "TIME",
		"{{json}}", "JSONB",
	),
}

// Rows written before payment_kind existed were recognised by their note.
// Backfill them once so queries can rely on the column alone.
var backfill = map[Dialect][]string{
	DialectSQLite: {
		`UPDATE salary_payments SET payment_kind = 'commission'
			WHERE payment_kind = 'regular' AND note GLOB 'Commission from income #[0-9]*'`,
		`UPDATE salary_payments SET income_id = CAST(SUBSTR(note, 25) AS INTEGER)
			WHERE payment_kind = 'commission' AND income_id IS NULL
			  AND CAST(SUBSTR(note, 25) AS INTEGER) IN (SELECT id FROM income_records)`,
	},
	DialectPostgres: {
		`UPDATE salary_payments SET payment_kind = 'commission'
			WHERE payment_kind = 'regular' AND note ~ '^Commission from income #[0-9]+$'`,
		`UPDATE salary_payments sp SET income_id = CAST(SUBSTRING(sp.note FROM 25) AS BIGINT)
			WHERE sp.payment_kind = 'commission' AND sp.income_id IS NULL
			  AND sp.note ~ '^Commission from income #[0-9]+$'
			  AND EXISTS (SELECT 1 FROM income_records ir WHERE ir.id = CAST(SUBSTRING(sp.note FROM 25) AS BIGINT))`,
	},
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	ddl := dialectTypes[s.dialect].Replace(schema)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, stmt := range backfill[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("backfill commission payments: %w", err)
		}
	}
	return nil
}

// resetOrder lists tables children first so foreign keys hold while deleting.
var resetOrder = []string{
	"timesheet_audit",
	"salary_withdrawal_audit",
	"salary_payments",
	"income_records",
	"timesheets",
	"outcome_records",
	"outcome_categories",
	"patients",
	"staff",
}

// Reset deletes every row. Development and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(q *queries) error {
		for _, table := range resetOrder {
			if _, err := q.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}
