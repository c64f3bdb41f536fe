package kitty

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/etnz/kitty/date"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// expense is a test helper to build an expense on 2025-07-01.
func expense(id, currency string, payer ParticipantID, shares ...Share) Expense {
	var amount int64
	for _, s := range shares {
		amount += s.Amount
	}
	return Expense{ID: id, Date: date.MustParse("2025-07-01"), Amount: amount, Currency: currency, PaidBy: payer, Shares: shares}
}

func share(p ParticipantID, amount int64) Share { return Share{Participant: p, Amount: amount} }

// fixedRate returns a source with a single rate for every day.
func fixedRate(rate string) RateSource {
	r := decimal.RequireFromString(rate)
	return RateFunc(func(context.Context, date.Date, string, string) (decimal.Decimal, error) { return r, nil })
}

func TestAggregate_EvenSplit(t *testing.T) {
	expenses := []Expense{
		expense("e1", "EUR", "A", share("A", 300), share("B", 300), share("C", 300)),
	}
	got, warnings, err := Aggregate(context.Background(), expenses, "EUR", nil)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Aggregate() warnings = %v, want none", warnings)
	}
	want := Balances{"A": 600, "B": -300, "C": -300}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_UnevenSplit(t *testing.T) {
	expenses := []Expense{
		expense("e1", "EUR", "A", share("A", 34), share("B", 33), share("C", 33)),
		expense("e2", "EUR", "B", share("C", 50), share("A", 50)),
	}
	got, _, err := Aggregate(context.Background(), expenses, "EUR", nil)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	want := Balances{"A": 66 - 50, "B": -33 + 100, "C": -33 - 50}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
	if got.Sum() != 0 {
		t.Errorf("Sum() = %d, want 0", got.Sum())
	}
}

func TestAggregate_InvalidExpense(t *testing.T) {
	valid := expense("ok", "EUR", "A", share("A", 50), share("B", 50))
	testCases := []struct {
		name    string
		expense Expense
	}{
		{"shares sum to 99", Expense{ID: "x", Amount: 100, Currency: "EUR", PaidBy: "A", Shares: []Share{share("A", 33), share("B", 33), share("C", 33)}}},
		{"shares sum to 101", Expense{ID: "x", Amount: 100, Currency: "EUR", PaidBy: "A", Shares: []Share{share("A", 35), share("B", 33), share("C", 33)}}},
		{"unknown currency", expense("x", "XYZ", "A", share("A", 10))},
		{"missing currency", expense("x", "", "A", share("A", 10))},
		{"missing payer", expense("x", "EUR", "", share("A", 10))},
		{"no shares", Expense{ID: "x", Amount: 0, Currency: "EUR", PaidBy: "A"}},
		{"share without participant", expense("x", "EUR", "A", share("", 10))},
		{"missing id", expense("", "EUR", "A", share("A", 10))},
		{"negative amount", expense("x", "EUR", "A", share("A", -10))},
		{"negative share", expense("x", "EUR", "A", share("A", 20), share("B", -10))},
		{"shares sum overflows", Expense{ID: "x", Amount: 0, Currency: "EUR", PaidBy: "A", Shares: []Share{share("B", math.MaxInt64), share("C", math.MaxInt64), share("D", 2)}}},
		{"duplicate id", expense("ok", "EUR", "B", share("A", 10))},
		{"foreign without date", Expense{ID: "x", Amount: 10, Currency: "USD", PaidBy: "A", Shares: []Share{share("A", 10)}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := Aggregate(context.Background(), []Expense{valid, tc.expense}, "EUR", fixedRate("1.1"))
			if !errors.Is(err, ErrInvalidExpense) {
				t.Fatalf("Aggregate() error = %v, want ErrInvalidExpense", err)
			}
			var ie *InvalidExpenseError
			if !errors.As(err, &ie) || ie.ExpenseID != tc.expense.ID {
				t.Errorf("Aggregate() error = %#v, want expense id %q", err, tc.expense.ID)
			}
			if got != nil {
				t.Errorf("Aggregate() = %v, want no partial balances", got)
			}
		})
	}
}

func TestAggregate_InvalidReference(t *testing.T) {
	if _, _, err := Aggregate(context.Background(), nil, "EURO", nil); err == nil {
		t.Error("Aggregate() with unknown reference currency expected an error")
	}
}

func TestAggregate_RateUnavailable(t *testing.T) {
	unavailable := RateFunc(func(_ context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
		return decimal.Zero, fmt.Errorf("%s%s on %s: %w", base, target, on, ErrRateUnavailable)
	})
	expenses := []Expense{
		expense("e1", "EUR", "A", share("A", 300), share("B", 300), share("C", 300)),
		expense("e2", "USD", "B", share("B", 300), share("C", 300)),
	}
	got, warnings, err := Aggregate(context.Background(), expenses, "EUR", unavailable)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	want := Balances{"A": 600, "B": -300, "C": -300}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
	if len(warnings) != 1 || warnings[0].ExpenseID != "e2" || warnings[0].Reason != ReasonRateUnavailable {
		t.Fatalf("Aggregate() warnings = %v, want one rate-unavailable for e2", warnings)
	}
	if !errors.Is(warnings[0].Err, ErrRateUnavailable) {
		t.Errorf("warning error = %v, want ErrRateUnavailable", warnings[0].Err)
	}
}

func TestAggregate_LookupFailures(t *testing.T) {
	testCases := []struct {
		name       string
		source     RateSource
		wantReason string
	}{
		{"no source", nil, ReasonRateUnavailable},
		{"network error", RateFunc(func(context.Context, date.Date, string, string) (decimal.Decimal, error) {
			return decimal.Zero, errors.New("connection refused")
		}), ReasonRateUnavailable},
		{"zero rate", fixedRate("0"), ReasonInvalidRate},
		{"negative rate", fixedRate("-1.2"), ReasonInvalidRate},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expenses := []Expense{expense("e1", "USD", "A", share("B", 100))}
			got, warnings, err := Aggregate(context.Background(), expenses, "EUR", tc.source)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if len(got) != 0 {
				t.Errorf("Aggregate() = %v, want empty balances", got)
			}
			if len(warnings) != 1 || warnings[0].Reason != tc.wantReason {
				t.Errorf("Aggregate() warnings = %v, want reason %q", warnings, tc.wantReason)
			}
		})
	}
}

func TestAggregate_Conversion(t *testing.T) {
	testCases := []struct {
		name    string
		expense Expense
		rate    string
		want    Balances
	}{
		{
			name:    "residual taken from the share rounded up the most",
			expense: expense("e1", "USD", "A", share("A", 34), share("B", 33), share("C", 33)),
			rate:    "0.9", // 30.6, 29.7, 29.7 -> 31, 30, 30 -> 30, 30, 30
			want:    Balances{"A": 90 - 30, "B": -30, "C": -30},
		},
		{
			name:    "ties broken by share position",
			expense: expense("e1", "USD", "A", share("B", 1), share("C", 1), share("D", 1)),
			rate:    "1.6", // 1.6, 1.6, 1.6 -> 2, 2, 2 but 4.8 -> 5
			want:    Balances{"A": 5, "B": -1, "C": -2, "D": -2},
		},
		{
			name:    "residual given to the share rounded down the most",
			expense: expense("e1", "USD", "A", share("C", 1), share("B", 2), share("D", 1)),
			rate:    "1.2", // 1.2, 2.4, 1.2 -> 1, 2, 1 but 4.8 -> 5
			want:    Balances{"A": 5, "B": -3, "C": -1, "D": -1},
		},
		{
			name:    "currencies with different minor units",
			expense: expense("e1", "JPY", "A", share("A", 500), share("B", 500)),
			rate:    "0.0062", // 1000 JPY = 6.20 EUR
			want:    Balances{"A": 310, "B": -310},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, warnings, err := Aggregate(context.Background(), []Expense{tc.expense}, "EUR", fixedRate(tc.rate))
			if err != nil || len(warnings) > 0 {
				t.Fatalf("Aggregate() error = %v, warnings = %v", err, warnings)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTally(t *testing.T) {
	rates := RateFunc(func(_ context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
		if base != "USD" {
			return decimal.Zero, fmt.Errorf("%s%s on %s: %w", base, target, on, ErrRateUnavailable)
		}
		return decimal.RequireFromString("0.9"), nil
	})
	expenses := []Expense{
		expense("e1", "EUR", "A", share("A", 300), share("B", 300), share("C", 300)),
		expense("e2", "USD", "B", share("C", 100)),
		expense("e3", "JPY", "C", share("A", 500)),
	}
	got, err := Tally(context.Background(), expenses, "EUR", rates)
	if err != nil {
		t.Fatalf("Tally() error = %v", err)
	}
	want := Totals{
		Paid: map[ParticipantID]int64{"A": 900, "B": 90},
		Owed: map[ParticipantID]int64{"A": 300, "B": 300, "C": 390},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tally() mismatch (-want +got):\n%s", diff)
	}

	balances, _, err := Aggregate(context.Background(), expenses, "EUR", rates)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	for id, b := range balances {
		if p := got.Paid[id] - got.Owed[id]; p != b {
			t.Errorf("paid - owed of %s = %d, want balance %d", id, p, b)
		}
	}
}

func TestTally_Invalid(t *testing.T) {
	expenses := []Expense{
		expense("e1", "EUR", "A", share("A", 300)),
		expense("e1", "EUR", "B", share("B", 300)),
	}
	var ie *InvalidExpenseError
	if _, err := Tally(context.Background(), expenses, "EUR", nil); !errors.As(err, &ie) {
		t.Errorf("Tally() error = %v, want an *InvalidExpenseError", err)
	}
}

func TestConvert_BankersRounding(t *testing.T) {
	half := decimal.RequireFromString("0.5")
	testCases := []struct {
		amount int64
		want   int64
	}{
		{5, 2},   // 2.5
		{7, 4},   // 3.5
		{9, 4},   // 4.5
		{-5, -2}, // -2.5
		{3, 2},   // 1.5
	}
	for _, tc := range testCases {
		if got, err := Convert(tc.amount, half, "USD", "EUR"); err != nil || got != tc.want {
			t.Errorf("Convert(%d, 0.5) = %d, %v, want %d", tc.amount, got, err, tc.want)
		}
	}
	if got, err := Convert(math.MaxInt64, decimal.NewFromInt(2), "USD", "EUR"); err == nil {
		t.Errorf("Convert(MaxInt64, 2) = %d, want an overflow error", got)
	}
}

func TestAggregate_Overflow(t *testing.T) {
	testCases := []struct {
		name     string
		expenses []Expense
		rate     string
		wantID   string
	}{
		{
			name: "payer balance",
			expenses: []Expense{
				expense("e1", "EUR", "A", share("B", math.MaxInt64)),
				expense("e2", "EUR", "A", share("C", 1)),
			},
			wantID: "e2",
		},
		{
			name: "share balance",
			expenses: []Expense{
				expense("e1", "EUR", "A", share("B", math.MaxInt64)),
				expense("e2", "EUR", "C", share("B", 2)),
			},
			wantID: "e2",
		},
		{
			name:     "converted amount",
			expenses: []Expense{expense("e1", "USD", "A", share("B", math.MaxInt64))},
			rate:     "2",
			wantID:   "e1",
		},
		{
			name:     "converted share",
			expenses: []Expense{expense("e1", "JPY", "A", share("B", math.MaxInt64/2), share("C", math.MaxInt64/2))},
			rate:     "1",
			wantID:   "e1",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var rates RateSource
			if tc.rate != "" {
				rates = fixedRate(tc.rate)
			}
			got, _, err := Aggregate(context.Background(), tc.expenses, "EUR", rates)
			var ie *InvalidExpenseError
			if !errors.As(err, &ie) || ie.ExpenseID != tc.wantID {
				t.Fatalf("Aggregate() = %v, %v, want an invalid expense %s", got, err, tc.wantID)
			}
			if got != nil {
				t.Errorf("Aggregate() = %v, want no partial balances", got)
			}
		})
	}
}

// TestAggregate_Properties checks on random expenses that balances always sum
// to zero and that every converted share is within one minor unit of its
// exact value.
func TestAggregate_Properties(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 11))
	people := []ParticipantID{"ann", "bob", "cid", "dan", "eve"}
	currencies := []string{"EUR", "USD", "JPY", "GBP"}

	for run := 0; run < 200; run++ {
		var expenses []Expense
		for i := 0; i < 1+rnd.IntN(8); i++ {
			var shares []Share
			for _, p := range people {
				if rnd.IntN(3) > 0 {
					shares = append(shares, share(p, rnd.Int64N(100000)))
				}
			}
			if len(shares) == 0 {
				shares = append(shares, share("ann", 1))
			}
			e := expense(fmt.Sprintf("e%d", i), currencies[rnd.IntN(len(currencies))], people[rnd.IntN(len(people))], shares...)
			expenses = append(expenses, e)

			rate := decimal.New(1+rnd.Int64N(3_000_000), -6)
			if e.Currency == "EUR" {
				continue
			}
			credit, debits, err := convertExpense(e, rate, "EUR")
			if err != nil {
				t.Fatalf("convertExpense(%v, %v) error = %v", e, rate, err)
			}
			var sum int64
			for j, s := range e.Shares {
				exact := exactConversion(s.Amount, rate, e.Currency, "EUR")
				if diff := decimal.NewFromInt(debits[j]).Sub(exact).Abs(); diff.GreaterThan(decimal.NewFromInt(1)) {
					t.Fatalf("share %d of %v at %v converted to %d, exact %v", j, e, rate, debits[j], exact)
				}
				sum += debits[j]
			}
			if sum != credit {
				t.Fatalf("converted shares of %v sum to %d, want %d", e, sum, credit)
			}
		}

		got, warnings, err := Aggregate(context.Background(), expenses, "EUR", fixedRate("1.234567"))
		if err != nil || len(warnings) > 0 {
			t.Fatalf("Aggregate() error = %v, warnings = %v", err, warnings)
		}
		if got.Sum() != 0 {
			t.Fatalf("Aggregate() balances %v sum to %d", got, got.Sum())
		}
	}
}

func TestValidateExpenses(t *testing.T) {
	ok := []Expense{
		expense("e1", "USD", "A", share("A", 10)),
		expense("e2", "EUR", "B", share("A", 5), share("B", 5)),
	}
	if err := ValidateExpenses(ok, "EUR"); err != nil {
		t.Errorf("ValidateExpenses() error = %v", err)
	}
	if err := ValidateExpenses(ok, "EURO"); err == nil || errors.Is(err, ErrInvalidExpense) {
		t.Errorf("ValidateExpenses() with a bad reference error = %v, want a currency error", err)
	}
	dup := append(ok, expense("e1", "EUR", "A", share("A", 1)))
	if err := ValidateExpenses(dup, "EUR"); !errors.Is(err, ErrInvalidExpense) {
		t.Errorf("ValidateExpenses() with a duplicate id error = %v, want ErrInvalidExpense", err)
	}
}
