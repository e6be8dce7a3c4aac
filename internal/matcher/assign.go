package matcher

import (
	"github.com/shopspring/decimal"

	"household-ledger/internal/models"
)

// ScoredCandidate is one pool row that qualified for a primary row
type ScoredCandidate struct {
	Transaction *models.StoredTransaction
	Score       int
	AmountDiff  decimal.Decimal
	DayDiff     int
}

// Proposal lists every qualifying candidate of one primary row, in pool order
type Proposal struct {
	Primary    *models.StoredTransaction
	Candidates []ScoredCandidate
}

// Outcome is the disposition of one proposal after assignment
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSingle
	OutcomeAmbiguous
)

// Assignment is the result of assigning one proposal
type Assignment struct {
	Primary    *models.StoredTransaction
	Outcome    Outcome
	Candidates []ScoredCandidate
}

// Chosen returns the single accepted candidate, or nil
func (a Assignment) Chosen() *ScoredCandidate {
	if a.Outcome != OutcomeSingle || len(a.Candidates) == 0 {
		return nil
	}
	return &a.Candidates[0]
}

// Assigner decides which candidates each primary row keeps. Proposals are
// assigned in order; scoring has already happened.
type Assigner interface {
	Assign(proposals []Proposal) []Assignment
}

// FirstFitAssigner accepts the first candidate of every proposal and
// reserves nothing, so several primaries may share one candidate.
type FirstFitAssigner struct{}

// Assign implements Assigner
func (FirstFitAssigner) Assign(proposals []Proposal) []Assignment {
	out := make([]Assignment, 0, len(proposals))
	for _, p := range proposals {
		a := Assignment{Primary: p.Primary, Outcome: OutcomeNone}
		if len(p.Candidates) > 0 {
			a.Outcome = OutcomeSingle
			a.Candidates = p.Candidates[:1]
		}
		out = append(out, a)
	}
	return out
}

// UniqueAssigner walks proposals greedily. A primary with exactly one
// unreserved candidate takes and reserves it; with several it is ambiguous
// and reserves none of them.
type UniqueAssigner struct{}

// Assign implements Assigner
func (UniqueAssigner) Assign(proposals []Proposal) []Assignment {
	reserved := make(map[string]bool)
	out := make([]Assignment, 0, len(proposals))

	for _, p := range proposals {
		var open []ScoredCandidate
		for _, c := range p.Candidates {
			if !reserved[c.Transaction.ID] {
				open = append(open, c)
			}
		}

		a := Assignment{Primary: p.Primary, Candidates: open}
		switch len(open) {
		case 0:
			a.Outcome = OutcomeNone
		case 1:
			a.Outcome = OutcomeSingle
			reserved[open[0].Transaction.ID] = true
		default:
			a.Outcome = OutcomeAmbiguous
		}
		out = append(out, a)
	}
	return out
}

// Reserved returns the ids of every candidate accepted as a single match
func Reserved(assignments []Assignment) map[string]bool {
	ids := make(map[string]bool)
	for _, a := range assignments {
		if c := a.Chosen(); c != nil {
			ids[c.Transaction.ID] = true
		}
	}
	return ids
}
