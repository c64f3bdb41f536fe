// Package renderer formats balances and settlement plans as markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"github.com/etnz/kitty"
)

//go:embed templates/*.md
var templatesFS embed.FS

var templates, _ = fs.Sub(templatesFS, "templates")

// BalanceRow is a participant line of the balances table.
type BalanceRow struct {
	ID      kitty.ParticipantID
	Name    string
	Paid    string
	Owed    string
	Balance string
}

// TransferRow is a line of the transfers table.
type TransferRow struct {
	From, To string
	Amount   string
}

// Settlement holds the formatted content of a settlement report.
type Settlement struct {
	Title     string
	Currency  string
	Balances  []BalanceRow
	Transfers []TransferRow
	Warnings  []string
}

// RenderOptions holds configuration for rendering a settlement report.
type RenderOptions struct {
	SkipTransfers bool // Only render the balances.
}

// NewSettlement formats the result of kitty.Aggregate and kitty.Simplify.
//
// Balances are listed in the order of participants, then come participants
// with a balance but no declaration, sorted by id. totals comes from
// kitty.Tally over the same expenses and rates.
func NewSettlement(title, currency string, participants []kitty.Participant, totals kitty.Totals, balances kitty.Balances, transfers []kitty.Transfer, warnings []kitty.ConversionWarning) *Settlement {
	s := &Settlement{Title: title, Currency: currency}

	names := make(map[kitty.ParticipantID]string, len(participants))
	order := make([]kitty.ParticipantID, 0, len(participants))
	for _, p := range participants {
		names[p.ID] = p.Name
		order = append(order, p.ID)
	}
	var extra []kitty.ParticipantID
	for _, id := range balances.Participants() {
		if _, ok := names[id]; !ok {
			names[id] = string(id)
			extra = append(extra, id)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	order = append(order, extra...)

	for _, id := range order {
		s.Balances = append(s.Balances, BalanceRow{
			ID:      id,
			Name:    names[id],
			Paid:    kitty.Format(totals.Paid[id], currency),
			Owed:    kitty.Format(totals.Owed[id], currency),
			Balance: signed(balances[id], currency),
		})
	}
	for _, t := range transfers {
		s.Transfers = append(s.Transfers, TransferRow{
			From:   names[t.From],
			To:     names[t.To],
			Amount: kitty.Format(t.Amount, currency),
		})
	}
	for _, w := range warnings {
		s.Warnings = append(s.Warnings, fmt.Sprintf("expense %s skipped: %s", w.ExpenseID, w.Reason))
	}
	return s
}

// signed formats amount with an explicit sign, "-" for zero.
func signed(amount int64, currency string) string {
	switch {
	case amount == 0:
		return "-"
	case amount > 0:
		return "+" + kitty.Format(amount, currency)
	default:
		return kitty.Format(amount, currency)
	}
}

// RenderSettlement renders the settlement report to a markdown string.
func RenderSettlement(s *Settlement, opts RenderOptions) string {
	partials := map[string]string{
		"settlement_balances":  "settlement_balances.md",
		"settlement_transfers": "settlement_transfers.md",
		"settlement_warnings":  "settlement_warnings.md",
	}
	// An empty file name results in an empty template.
	if opts.SkipTransfers {
		partials["settlement_transfers"] = ""
	}
	return renderTemplate("settlement", "settlement.md", partials, s)
}

// renderTemplate renders a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		if file != "" {
			var readErr error
			content, readErr = fs.ReadFile(templates, file)
			if readErr != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, readErr)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
