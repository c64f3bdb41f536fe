// Package kitty computes who owes what in a group of people sharing expenses.
//
// It is built around two stateless computations:
//   - Aggregate reduces a list of expenses, each split among some participants
//     in arbitrary proportions and possibly in a foreign currency, into one net
//     balance per participant expressed in a single reference currency.
//   - Simplify turns those balances into a short, deterministic list of
//     transfers that settles everybody exactly.
//
// All amounts are integers in the minor unit of their currency (cents for EUR,
// yen for JPY) so that no floating point drift can creep in. Exchange rates
// are consumed through the RateSource interface; the package never performs
// network I/O by itself. Fetching, caching and prefetching rates are the job
// of the caller, helped by Prefetch, CachedSource and the frankfurter, jsonrate
// and rediscache packages.
//
// This package serves as the foundational logic for the `kt` command-line tool
// and the HTTP API in package api.
package kitty
