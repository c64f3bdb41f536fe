package kitty

import (
	"sort"

	"github.com/etnz/kitty/date"
	"github.com/shopspring/decimal"
)

// ParticipantID identifies a member of the group.
type ParticipantID string

// Participant is a member of the group.
type Participant struct {
	ID   ParticipantID `json:"id"`
	Name string        `json:"name"`
}

// Share is the part of an expense owed by one participant, in the expense's
// currency minor units.
type Share struct {
	Participant ParticipantID `json:"participant"`
	Amount      int64         `json:"amount"`
}

// Expense is a single payment made by one participant on behalf of others.
//
// Amount is in minor units of Currency and must equal the sum of Shares.
type Expense struct {
	ID       string        `json:"id"`
	Date     date.Date     `json:"date"`
	Title    string        `json:"title,omitempty"`
	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
	PaidBy   ParticipantID `json:"paidBy"`
	Shares   []Share       `json:"shares"`
}

// Balances maps each participant to its net balance in minor units of the
// reference currency. Positive means the participant is owed money.
type Balances map[ParticipantID]int64

// Sum returns the sum of all balances. It is zero for consistent balances.
//
// Sum wraps around for balances close to the int64 limits, use Total to
// check consistency.
func (b Balances) Sum() int64 {
	var sum int64
	for _, v := range b {
		sum += v
	}
	return sum
}

// Total returns the exact sum of all balances.
func (b Balances) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range b {
		total = total.Add(decimal.NewFromInt(v))
	}
	return total
}

// Participants returns the participants in b sorted by id.
func (b Balances) Participants() []ParticipantID {
	ids := make([]ParticipantID, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Apply returns a copy of b where every transfer has been executed: the payer
// balance goes up and the receiver balance goes down.
func (b Balances) Apply(transfers []Transfer) Balances {
	n := make(Balances, len(b))
	for id, v := range b {
		n[id] = v
	}
	for _, t := range transfers {
		n[t.From] += t.Amount
		n[t.To] -= t.Amount
	}
	return n
}

// Transfer is a payment to be made from one participant to another to settle
// the group. Amount is always positive.
type Transfer struct {
	From   ParticipantID `json:"from"`
	To     ParticipantID `json:"to"`
	Amount int64         `json:"amount"`
}

// Reasons for a ConversionWarning.
const (
	ReasonRateUnavailable = "rate-unavailable"
	ReasonInvalidRate     = "invalid-rate"
)

// ConversionWarning reports an expense left out of the balances because it
// could not be converted to the reference currency.
type ConversionWarning struct {
	ExpenseID string `json:"expenseId"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

func (w ConversionWarning) String() string {
	if w.Err != nil {
		return w.ExpenseID + ": " + w.Reason + ": " + w.Err.Error()
	}
	return w.ExpenseID + ": " + w.Reason
}
