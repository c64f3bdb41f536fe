package kitty

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Group is the content of a group file: its members and their expenses.
type Group struct {
	Participants []Participant
	Expenses     []Expense
}

// Names returns the display name of every participant by id.
func (g *Group) Names() map[ParticipantID]string {
	names := make(map[ParticipantID]string, len(g.Participants))
	for _, p := range g.Participants {
		names[p.ID] = p.Name
	}
	return names
}

// groupLine is a line of a group file. Exactly one field is set.
type groupLine struct {
	Participant *Participant `json:"participant,omitempty"`
	Expense     *Expense     `json:"expense,omitempty"`
}

// DecodeGroup reads a group from a stream of JSONL data.
//
// Each line holds either a participant or an expense:
//
//	{"participant":{"id":"alice","name":"Alice"}}
//	{"expense":{"id":"e1","date":"2025-07-01","amount":900,"currency":"EUR","paidBy":"alice","shares":[...]}}
//
// Decoding is strict: unknown fields, fractional amounts, invalid dates and
// references to undeclared participants are rejected. Whether shares add up
// is checked by Aggregate.
func DecodeGroup(r io.Reader) (*Group, error) {
	g := new(Group)
	declared := make(map[ParticipantID]struct{})
	scanner := bufio.NewScanner(r)
	i := 0
	for scanner.Scan() {
		i++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		var gl groupLine
		if err := dec.Decode(&gl); err != nil {
			return nil, fmt.Errorf("format error on line %d %q: %w", i, string(line), err)
		}

		switch {
		case gl.Participant != nil && gl.Expense != nil:
			return nil, fmt.Errorf("format error on line %d: both participant and expense", i)
		case gl.Participant != nil:
			p := *gl.Participant
			if p.ID == "" {
				return nil, fmt.Errorf("format error on line %d: participant id is missing", i)
			}
			if _, dup := declared[p.ID]; dup {
				return nil, fmt.Errorf("format error on line %d: participant %q is already declared", i, p.ID)
			}
			declared[p.ID] = struct{}{}
			g.Participants = append(g.Participants, p)
		case gl.Expense != nil:
			e := *gl.Expense
			if err := checkMembers(declared, e); err != nil {
				return nil, fmt.Errorf("format error on line %d: %w", i, err)
			}
			g.Expenses = append(g.Expenses, e)
		default:
			return nil, fmt.Errorf("format error on line %d: neither participant nor expense", i)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkMembers checks that e only references declared participants.
func checkMembers(declared map[ParticipantID]struct{}, e Expense) error {
	if _, ok := declared[e.PaidBy]; !ok {
		return fmt.Errorf("expense %q is paid by undeclared participant %q", e.ID, e.PaidBy)
	}
	for _, s := range e.Shares {
		if _, ok := declared[s.Participant]; !ok {
			return fmt.Errorf("expense %q has a share for undeclared participant %q", e.ID, s.Participant)
		}
	}
	return nil
}

// EncodeGroup writes g as JSONL, participants first, in a format DecodeGroup
// reads back.
func EncodeGroup(w io.Writer, g *Group) error {
	enc := json.NewEncoder(w)
	for _, p := range g.Participants {
		if err := enc.Encode(groupLine{Participant: &p}); err != nil {
			return err
		}
	}
	for _, e := range g.Expenses {
		if err := enc.Encode(groupLine{Expense: &e}); err != nil {
			return err
		}
	}
	return nil
}
