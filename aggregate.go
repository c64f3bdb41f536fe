package kitty

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Aggregate reduces expenses into one net balance per participant, expressed
// in minor units of the reference currency.
//
// Foreign currency expenses are converted with the rate returned by rates on
// the expense date. An expense whose rate cannot be obtained is left out and
// reported as a ConversionWarning, it does not affect the other balances.
//
// Any structurally invalid expense (unknown currency, shares not adding up to
// the amount, ...) aborts the whole aggregation with an *InvalidExpenseError.
func Aggregate(ctx context.Context, expenses []Expense, reference string, rates RateSource) (Balances, []ConversionWarning, error) {
	if err := ValidateExpenses(expenses, reference); err != nil {
		return nil, nil, err
	}

	balances := make(Balances)
	var warnings []ConversionWarning
	for _, e := range expenses {
		credit, debits, warning, err := amounts(ctx, e, reference, rates)
		if err != nil {
			return nil, warnings, err
		}
		if warning != nil {
			warnings = append(warnings, *warning)
			continue
		}
		if err := post(balances, e, credit, debits); err != nil {
			return nil, warnings, err
		}
	}

	if sum := balances.Total(); !sum.IsZero() {
		return nil, warnings, fmt.Errorf("conservation check failed after conversion: %w", &UnbalancedError{Sum: sum})
	}
	return balances, warnings, nil
}

// amounts returns the payer credit and share debits of e in reference. An
// expense that cannot be converted returns a warning instead.
func amounts(ctx context.Context, e Expense, reference string, rates RateSource) (credit int64, debits []int64, warning *ConversionWarning, err error) {
	if e.Currency == reference {
		debits = make([]int64, len(e.Shares))
		for i, s := range e.Shares {
			debits[i] = s.Amount
		}
		return e.Amount, debits, nil, nil
	}

	rate, err := lookup(ctx, rates, e, reference)
	if err != nil {
		reason := ReasonRateUnavailable
		if errors.Is(err, errInvalidRate) {
			reason = ReasonInvalidRate
		}
		return 0, nil, &ConversionWarning{ExpenseID: e.ID, Reason: reason, Err: err}, nil
	}
	if credit, debits, err = convertExpense(e, rate, reference); err != nil {
		return 0, nil, nil, invalid(e.ID, "converting into %s at %v: %v", reference, rate, err)
	}
	return credit, debits, nil, nil
}

// Totals is what every participant paid and owes, in the reference currency.
type Totals struct {
	Paid map[ParticipantID]int64
	Owed map[ParticipantID]int64
}

// Tally sums the amounts paid and owed by every participant, converted into
// reference exactly like Aggregate does; for each participant the balance is
// Paid - Owed. Expenses Aggregate would leave out are left out too.
func Tally(ctx context.Context, expenses []Expense, reference string, rates RateSource) (Totals, error) {
	t := Totals{Paid: make(map[ParticipantID]int64), Owed: make(map[ParticipantID]int64)}
	if err := ValidateExpenses(expenses, reference); err != nil {
		return t, err
	}
	for _, e := range expenses {
		credit, debits, warning, err := amounts(ctx, e, reference, rates)
		if err != nil {
			return t, err
		}
		if warning != nil {
			continue
		}
		if t.Paid[e.PaidBy], err = add(t.Paid[e.PaidBy], credit); err != nil {
			return t, invalid(e.ID, "paid by %s: %v", e.PaidBy, err)
		}
		for i, s := range e.Shares {
			if t.Owed[s.Participant], err = add(t.Owed[s.Participant], debits[i]); err != nil {
				return t, invalid(e.ID, "owed by %s: %v", s.Participant, err)
			}
		}
	}
	return t, nil
}

// ValidateExpenses checks the reference currency and every expense, including
// id uniqueness, the way Aggregate does before looking up any rate.
func ValidateExpenses(expenses []Expense, reference string) error {
	if err := ValidateCurrency(reference); err != nil {
		return fmt.Errorf("invalid reference currency: %w", err)
	}
	seen := make(map[string]struct{}, len(expenses))
	for _, e := range expenses {
		if _, dup := seen[e.ID]; dup {
			return invalid(e.ID, "duplicate expense id")
		}
		seen[e.ID] = struct{}{}
		if err := e.Validate(reference); err != nil {
			return err
		}
	}
	return nil
}

// post credits the payer and debits every share of e, failing if a balance
// goes out of the int64 range.
func post(balances Balances, e Expense, credit int64, debits []int64) (err error) {
	next := make(map[ParticipantID]int64, len(debits)+1)
	get := func(id ParticipantID) int64 {
		if v, ok := next[id]; ok {
			return v
		}
		return balances[id]
	}
	if next[e.PaidBy], err = add(get(e.PaidBy), credit); err != nil {
		return invalid(e.ID, "balance of %s: %v", e.PaidBy, err)
	}
	for i, s := range e.Shares {
		if next[s.Participant], err = add(get(s.Participant), -debits[i]); err != nil {
			return invalid(e.ID, "balance of %s: %v", s.Participant, err)
		}
	}
	for id, v := range next {
		balances[id] = v
	}
	return nil
}

// Validate checks the structure of the expense. reference is the currency it
// will be aggregated into.
func (e Expense) Validate(reference string) error {
	if e.ID == "" {
		return invalid(e.ID, "missing id")
	}
	if err := ValidateCurrency(e.Currency); err != nil {
		return invalid(e.ID, "%v", err)
	}
	if e.PaidBy == "" {
		return invalid(e.ID, "missing payer")
	}
	if e.Amount < 0 {
		return invalid(e.ID, "negative amount %d", e.Amount)
	}
	if len(e.Shares) == 0 {
		return invalid(e.ID, "no shares")
	}
	var sum int64
	for _, s := range e.Shares {
		if s.Participant == "" {
			return invalid(e.ID, "share without participant")
		}
		if s.Amount < 0 {
			return invalid(e.ID, "negative share %d for %s", s.Amount, s.Participant)
		}
		var err error
		if sum, err = add(sum, s.Amount); err != nil {
			return invalid(e.ID, "shares sum: %v", err)
		}
	}
	if sum != e.Amount {
		return invalid(e.ID, "shares sum to %d, want %d", sum, e.Amount)
	}
	if e.Currency != reference && e.Date.IsZero() {
		return invalid(e.ID, "missing date required to convert %s into %s", e.Currency, reference)
	}
	return nil
}

var errInvalidRate = errors.New("rate must be positive")

func lookup(ctx context.Context, rates RateSource, e Expense, reference string) (decimal.Decimal, error) {
	if rates == nil {
		return decimal.Zero, fmt.Errorf("no rate source for %s%s: %w", e.Currency, reference, ErrRateUnavailable)
	}
	rate, err := rates.Rate(ctx, e.Date, e.Currency, reference)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s%s on %s is %v: %w", e.Currency, reference, e.Date, rate, errInvalidRate)
	}
	return rate, nil
}

// convertExpense converts the expense total and every share into the reference
// currency, rounding each amount once.
//
// Independently rounded shares may not add up to the rounded total. The
// residual is then spread one minor unit at a time over the shares that were
// rounded the furthest in the other direction, which keeps every share within
// one minor unit of its exact value.
func convertExpense(e Expense, rate decimal.Decimal, reference string) (credit int64, debits []int64, err error) {
	if credit, err = Convert(e.Amount, rate, e.Currency, reference); err != nil {
		return 0, nil, err
	}

	debits = make([]int64, len(e.Shares))
	errs := make([]decimal.Decimal, len(e.Shares)) // rounded - exact
	var sum int64
	for i, s := range e.Shares {
		exact := exactConversion(s.Amount, rate, e.Currency, reference)
		rounded := exact.RoundBank(0)
		if debits[i], err = toAmount(rounded); err != nil {
			return 0, nil, err
		}
		errs[i] = rounded.Sub(exact)
		if sum, err = add(sum, debits[i]); err != nil {
			return 0, nil, err
		}
	}

	// shares are non-negative and so are their sum and credit
	residual := credit - sum
	if residual == 0 {
		return credit, debits, nil
	}
	order := make([]int, len(debits))
	for i := range order {
		order[i] = i
	}
	step := int64(1)
	if residual < 0 {
		step, residual = -1, -residual
	}
	sort.SliceStable(order, func(i, j int) bool {
		// rounded down the most first when units are missing, up the most first otherwise
		if step > 0 {
			return errs[order[i]].LessThan(errs[order[j]])
		}
		return errs[order[i]].GreaterThan(errs[order[j]])
	})
	for k := int64(0); k < residual; k++ {
		debits[order[k%int64(len(order))]] += step
	}
	return credit, debits, nil
}
