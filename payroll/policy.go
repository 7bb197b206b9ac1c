package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// WITHDRAWAL POLICY - Pure decision over earnings, paid and requested
// =============================================================================

// Decision is the outcome of evaluating one withdrawal request.
type Decision struct {
	Allowed         bool
	Status          WithdrawalStatus
	AvailableBefore decimal.Decimal
	ProcessedAmount decimal.Decimal
	AvailableAfter  decimal.Decimal
}

// ErrorCode is the status for denials and empty for accepted requests.
func (d Decision) ErrorCode() *string {
	if d.Allowed {
		return nil
	}
	code := string(d.Status)
	return &code
}

// Evaluate decides a withdrawal of requested against the cycle's total
// earnings and what has already been paid. Checks run in a fixed order:
//
//  1. nothing earned           -> no_earnings
//  2. nothing left to withdraw -> salary_already_withdrawn
//  3. request exceeds balance  -> insufficient_balance
//  4. otherwise                -> ok, processed = requested
func Evaluate(totalEarnings, alreadyPaid, requested decimal.Decimal) Decision {
	available := NonNegative(totalEarnings.Sub(alreadyPaid))
	d := Decision{
		AvailableBefore: available,
		ProcessedAmount: decimal.Zero,
		AvailableAfter:  available,
	}

	switch {
	case !totalEarnings.IsPositive():
		d.Status = StatusNoEarnings
	case !available.IsPositive():
		d.Status = StatusSalaryAlreadyWithdrawn
	case requested.GreaterThan(available):
		d.Status = StatusInsufficientBalance
	default:
		d.Allowed = true
		d.Status = StatusOK
		d.ProcessedAmount = requested
		d.AvailableAfter = NonNegative(available.Sub(requested))
	}
	return d
}
