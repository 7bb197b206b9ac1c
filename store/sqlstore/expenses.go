package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/policlinic/backoffice/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// OPERATING EXPENSES
// =============================================================================

// ErrInvalidExpense is returned for expenses without a positive amount, a
// date or a category.
var ErrInvalidExpense = errors.New("invalid expense")

type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Expense struct {
	ID          int64           `db:"id"`
	CategoryID  int64           `db:"category_id"`
	Category    string          `db:"category"`
	Amount      decimal.Decimal `db:"amount"`
	ExpenseDate time.Time       `db:"expense_date"`
	Description *string         `db:"description"`
	Vendor      *string         `db:"vendor"`
	CreatedAt   time.Time       `db:"created_at"`
}

// EnsureCategory returns the id of the named category, creating it on first use.
func (q *queries) EnsureCategory(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty category name", ErrInvalidExpense)
	}
	var id int64
	err := q.get(ctx, &id, `SELECT id FROM outcome_categories WHERE name = ?`, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return q.insert(ctx, `INSERT INTO outcome_categories (name) VALUES (?)`, name)
}

func (q *queries) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := q.sel(ctx, &out, `SELECT id, name FROM outcome_categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// InsertExpense records an expense; amounts are rounded to cents and must be positive.
func (q *queries) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	amount := payroll.RoundMoney(e.Amount)
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidExpense, e.Amount)
	}
	if e.ExpenseDate.IsZero() {
		return 0, fmt.Errorf("%w: date is required", ErrInvalidExpense)
	}
	if e.CategoryID == 0 {
		id, err := q.EnsureCategory(ctx, e.Category)
		if err != nil {
			return 0, err
		}
		e.CategoryID = id
	}
	return q.insert(ctx, `
		INSERT INTO outcome_records (category_id, amount, expense_date, description, vendor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.CategoryID, amount, date(e.ExpenseDate), e.Description, e.Vendor, time.Now().UTC(),
	)
}

func (q *queries) DeleteExpense(ctx context.Context, id int64) error {
	return q.deleteOne(ctx, "outcome_records", "expense", id)
}

// ListExpenses returns the cycle's expenses, newest first.
func (q *queries) ListExpenses(ctx context.Context, cycle payroll.Cycle) ([]Expense, error) {
	var out []Expense
	err := q.sel(ctx, &out, `
		SELECT o.id, o.category_id, c.name AS category, o.amount, o.expense_date,
		       o.description, o.vendor, o.created_at
		FROM outcome_records o
		JOIN outcome_categories c ON c.id = o.category_id
		WHERE o.expense_date BETWEEN ? AND ?
		ORDER BY o.expense_date DESC, o.id DESC`,
		date(cycle.Start), date(cycle.End),
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	for i := range out {
		out[i].ExpenseDate = payroll.DateOf(out[i].ExpenseDate)
	}
	return out, nil
}
