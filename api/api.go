// Package api exposes the settlement computation over HTTP as JSON.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/etnz/kitty"
	"github.com/etnz/kitty/date"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

const (
	maxBody       = 4 << 20 // request body limit in bytes
	prefetchLimit = 8       // concurrent rate lookups per request
)

type server struct {
	rates kitty.RateSource
}

// NewRouter returns the API routes. rates converts foreign expenses, it can
// be nil if every expense is in the requested currency.
//
//	POST /v1/settlement                       balances and transfers of a group
//	GET  /v1/rates/{date}/{base}/{target}     a single exchange rate
func NewRouter(rates kitty.RateSource) http.Handler {
	s := &server{rates: rates}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/settlement", s.settlement)
		r.Get("/rates/{date}/{base}/{target}", s.rate)
	})
	return r
}

type settlementRequest struct {
	Currency     string              `json:"currency"`
	Participants []kitty.Participant `json:"participants"`
	Expenses     []kitty.Expense     `json:"expenses"`
}

type warning struct {
	ExpenseID string `json:"expenseId"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

type settlementResponse struct {
	Currency  string           `json:"currency"`
	Balances  kitty.Balances   `json:"balances"`
	Transfers []kitty.Transfer `json:"transfers"`
	Warnings  []warning        `json:"warnings"`
}

func (s *server) settlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if err := kitty.ValidateCurrency(req.Currency); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// rates are only fetched for a valid request
	if err := kitty.ValidateExpenses(req.Expenses, req.Currency); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var rates kitty.RateSource
	if s.rates != nil {
		table, err := kitty.Prefetch(r.Context(), s.rates, req.Expenses, req.Currency, prefetchLimit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		rates = table
	}

	balances, warnings, err := kitty.Aggregate(r.Context(), req.Expenses, req.Currency, rates)
	if errors.Is(err, kitty.ErrInvalidExpense) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, p := range req.Participants {
		if _, ok := balances[p.ID]; !ok {
			balances[p.ID] = 0
		}
	}
	transfers, err := kitty.Simplify(balances)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := settlementResponse{
		Currency:  req.Currency,
		Balances:  balances,
		Transfers: transfers,
		Warnings:  []warning{},
	}
	if resp.Transfers == nil {
		resp.Transfers = []kitty.Transfer{}
	}
	for _, wa := range warnings {
		x := warning{ExpenseID: wa.ExpenseID, Reason: wa.Reason}
		if wa.Err != nil {
			x.Detail = wa.Err.Error()
		}
		resp.Warnings = append(resp.Warnings, x)
	}
	writeJSON(w, http.StatusOK, resp)
}

type rateResponse struct {
	Date   date.Date       `json:"date"`
	Base   string          `json:"base"`
	Target string          `json:"target"`
	Rate   decimal.Decimal `json:"rate"`
}

func (s *server) rate(w http.ResponseWriter, r *http.Request) {
	on, err := date.Parse(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	base, target := chi.URLParam(r, "base"), chi.URLParam(r, "target")
	for _, c := range []string{base, target} {
		if err := kitty.ValidateCurrency(c); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if s.rates == nil {
		writeError(w, http.StatusNotFound, "no rate source configured")
		return
	}

	rate, err := s.rates.Rate(r.Context(), on, base, target)
	switch {
	case errors.Is(err, kitty.ErrRateUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{Date: on, Base: base, Target: target, Rate: rate})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
