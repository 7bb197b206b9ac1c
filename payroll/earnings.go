/*
earnings.go - Role-specific earnings

PURPOSE:
  Answers one question for a staff member and a cycle: how much has been
  earned in it.

PAY MODELS:
  Doctor:        Σ income amount over the cycle × commission rate
  Administrator: base salary, flat per cycle regardless of its length
  OtherStaff:    Σ hours worked × hourly rate, rounded to cents

SEE ALSO:
  - ledger.go: Already-paid totals
  - policy.go: Consumes earnings and paid totals
  - types.go: Staff variant
*/
package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Config carries engine-wide settings resolved at startup.
type Config struct {
	// DefaultCommissionRate applies to doctors without their own rate.
	DefaultCommissionRate decimal.Decimal
}

func DefaultConfig() Config {
	return Config{DefaultCommissionRate: decimal.NewFromFloat(0.3)}
}

// Calculator computes earnings and paid totals. It holds no state beyond
// configuration; every call reads through the Store it is given.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Member loads a staff member and converts it into its pay model.
func (c *Calculator) Member(ctx context.Context, s Store, id StaffID) (Staff, error) {
	rec, err := s.FindStaff(ctx, id)
	if err != nil {
		return nil, staffLookupError(id, err)
	}
	return rec.Member(c.cfg.DefaultCommissionRate)
}

// Earnings returns what the staff member earned in the cycle.
func (c *Calculator) Earnings(ctx context.Context, s Store, staff Staff, cycle Cycle) (decimal.Decimal, error) {
	switch m := staff.(type) {
	case Doctor:
		// The store only sums; multiplying in SQL would run in floating
		// point on SQLite.
		income, err := s.SumIncome(ctx, m.ID, cycle)
		if err != nil {
			return decimal.Zero, fmt.Errorf("sum income for staff %d: %w", m.ID, err)
		}
		return RoundMoney(RoundMoney(income).Mul(m.CommissionRate)), nil
	case Administrator:
		return RoundMoney(m.MonthlySalary), nil
	case OtherStaff:
		hours, err := s.SumHours(ctx, m.ID, cycle)
		if err != nil {
			return decimal.Zero, fmt.Errorf("sum hours for staff %d: %w", m.ID, err)
		}
		return RoundMoney(hours.Mul(m.HourlyRate)), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported staff type %T", staff)
	}
}

// EarningsFor is Earnings for a staff id. Unknown or inactive staff yield
// ErrInvalidStaff.
func (c *Calculator) EarningsFor(ctx context.Context, s Store, id StaffID, cycle Cycle) (decimal.Decimal, error) {
	staff, err := c.Member(ctx, s, id)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Earnings(ctx, s, staff, cycle)
}

func staffLookupError(id StaffID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &StaffError{StaffID: id, Reason: "staff member not found"}
	}
	return fmt.Errorf("load staff %d: %w", id, err)
}
