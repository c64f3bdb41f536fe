package kitty

import "sort"

// position is what a participant still has to pay or receive, as a positive
// amount. It is unsigned so that the debt of a math.MinInt64 balance fits.
type position struct {
	id     ParticipantID
	amount uint64
}

// sortPositions orders by amount descending then by id ascending.
func sortPositions(p []position) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].amount != p[j].amount {
			return p[i].amount > p[j].amount
		}
		return p[i].id < p[j].id
	})
}

// Simplify returns the transfers that settle balances.
//
// It repeatedly matches the largest creditor with the largest debtor, so it
// emits at most one transfer less than there are non-zero balances. This
// greedy heuristic is not guaranteed to be the minimum number of transfers in
// every case, but it is exact and deterministic: ties are broken by
// participant id so equal balances always give the same plan.
//
// Balances that do not sum to zero cannot be settled and return an
// *UnbalancedError.
func Simplify(balances Balances) ([]Transfer, error) {
	if sum := balances.Total(); !sum.IsZero() {
		return nil, &UnbalancedError{Sum: sum}
	}

	var creditors, debtors []position
	for id, v := range balances {
		switch {
		case v > 0:
			creditors = append(creditors, position{id, uint64(v)})
		case v < 0:
			debtors = append(debtors, position{id, uint64(-v)})
		}
	}
	sortPositions(creditors)
	sortPositions(debtors)

	var transfers []Transfer
	for len(creditors) > 0 && len(debtors) > 0 {
		c, d := &creditors[0], &debtors[0]
		amount := min(c.amount, d.amount)
		// amount is at most a creditor balance, so it fits in an int64
		transfers = append(transfers, Transfer{From: d.id, To: c.id, Amount: int64(amount)})
		c.amount -= amount
		d.amount -= amount

		if c.amount == 0 {
			creditors = creditors[1:]
		} else {
			sortPositions(creditors)
		}
		if d.amount == 0 {
			debtors = debtors[1:]
		} else {
			sortPositions(debtors)
		}
	}
	return transfers, nil
}
