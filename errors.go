package kitty

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidExpense is matched by every *InvalidExpenseError.
	ErrInvalidExpense = errors.New("invalid expense")
	// ErrUnbalanced is matched by every *UnbalancedError.
	ErrUnbalanced = errors.New("unbalanced settlement input")
	// ErrRateUnavailable is returned by a RateSource that has no rate for the
	// requested day and currency pair.
	ErrRateUnavailable = errors.New("rate unavailable")
)

// InvalidExpenseError is returned when an expense is structurally wrong, for
// instance when its shares do not add up to its amount.
type InvalidExpenseError struct {
	ExpenseID string
	Reason    string
}

func (e *InvalidExpenseError) Error() string {
	return fmt.Sprintf("invalid expense %q: %s", e.ExpenseID, e.Reason)
}

func (e *InvalidExpenseError) Unwrap() error { return ErrInvalidExpense }

func invalid(id string, format string, args ...any) error {
	return &InvalidExpenseError{ExpenseID: id, Reason: fmt.Sprintf(format, args...)}
}

// UnbalancedError is returned when balances do not sum to zero.
type UnbalancedError struct {
	Sum decimal.Decimal // exact, it may not fit in an int64
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("balances sum to %v instead of zero", e.Sum)
}

func (e *UnbalancedError) Unwrap() error { return ErrUnbalanced }
