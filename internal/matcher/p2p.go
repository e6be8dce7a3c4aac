package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"household-ledger/internal/models"
	"household-ledger/pkg/logger"
)

// ReconciliationMatch pairs a card charge with app payments (phase 1)
type ReconciliationMatch struct {
	Primary    *models.StoredTransaction   `json:"primary"`
	Candidates []*models.StoredTransaction `json:"candidates"`
	Confidence int                         `json:"confidence"`
	MatchType  MatchType                   `json:"match_type"`
	Reason     string                      `json:"reason"`
}

// WithdrawalMatch pairs an app withdrawal with bank deposits (phase 2)
type WithdrawalMatch struct {
	Withdrawal *models.StoredTransaction   `json:"withdrawal"`
	Candidates []*models.StoredTransaction `json:"candidates"`
	Confidence int                         `json:"confidence"`
	MatchType  MatchType                   `json:"match_type"`
	Reason     string                      `json:"reason"`
}

// Summary tallies one reconciliation run per phase
type Summary struct {
	TotalTransactions int `json:"total_transactions"`
	CardTransactions  int `json:"card_transactions"`
	AppTransactions   int `json:"app_transactions"`
	ExactMatches      int `json:"exact_matches"`
	FuzzyMatches      int `json:"fuzzy_matches"`
	AmbiguousMatches  int `json:"ambiguous_matches"`
	UnmatchedCards    int `json:"unmatched_cards"`
	WithdrawalMatches int `json:"withdrawal_matches"`
	BalancePaid       int `json:"balance_paid"`
	Reimbursements    int `json:"reimbursements"`
}

// Result is the review queue of one reconciliation run. No-match entries
// are counted in the summary but never listed.
type Result struct {
	Matches           []*ReconciliationMatch      `json:"matches"`
	WithdrawalMatches []*WithdrawalMatch          `json:"withdrawal_matches"`
	BalancePaid       []*models.StoredTransaction `json:"balance_paid"`
	Reimbursements    []*models.StoredTransaction `json:"reimbursements"`
	Summary           Summary                     `json:"summary"`
}

// EmptyResult returns a result with empty lists and an all-zero summary
func EmptyResult() *Result {
	return &Result{
		Matches:           []*ReconciliationMatch{},
		WithdrawalMatches: []*WithdrawalMatch{},
		BalancePaid:       []*models.StoredTransaction{},
		Reimbursements:    []*models.StoredTransaction{},
	}
}

// Engine is the four-phase P2P reconciliation engine. It is read-only: it
// proposes matches and never changes the snapshot.
type Engine struct {
	config   *P2PConfig
	assigner Assigner
	logger   logger.Logger
}

// NewEngine creates a reconciliation engine with greedy unique assignment
func NewEngine(config *P2PConfig) *Engine {
	if config == nil {
		config = DefaultP2PConfig()
	}
	return &Engine{
		config:   config,
		assigner: UniqueAssigner{},
		logger:   logger.GetGlobalLogger().WithComponent("p2p_engine"),
	}
}

// WithAssigner replaces the assignment step used by phases 1 and 2
func (e *Engine) WithAssigner(a Assigner) *Engine {
	e.assigner = a
	return e
}

// Config returns the engine configuration
func (e *Engine) Config() *P2PConfig {
	return e.config
}

// Reconcile runs all four phases over a snapshot of unreconciled rows of
// one household. The snapshot is not modified.
func (e *Engine) Reconcile(snapshot []*models.StoredTransaction) *Result {
	result := EmptyResult()
	rows := sortSnapshot(snapshot)

	var cards, apps, withdrawals []*models.StoredTransaction
	for _, tx := range rows {
		if !tx.IsAppSourced() {
			cards = append(cards, tx)
			continue
		}
		if tx.EffectiveDirection() == models.P2PWithdrawal {
			withdrawals = append(withdrawals, tx)
			continue
		}
		apps = append(apps, tx)
	}

	result.Summary.TotalTransactions = len(rows)
	result.Summary.CardTransactions = len(cards)
	result.Summary.AppTransactions = len(apps) + len(withdrawals)

	reserved := e.matchOutgoing(cards, apps, result)
	e.matchWithdrawals(withdrawals, cards, result)
	e.collectBalancePaid(apps, reserved, result)
	e.collectReimbursements(apps, result)

	e.logger.WithFields(logger.Fields{
		"transactions":   result.Summary.TotalTransactions,
		"matches":        len(result.Matches),
		"withdrawals":    len(result.WithdrawalMatches),
		"balance_paid":   len(result.BalancePaid),
		"reimbursements": len(result.Reimbursements),
	}).Info("Reconciliation run completed")

	return result
}

// matchOutgoing is phase 1. It returns the app rows reserved by single matches.
func (e *Engine) matchOutgoing(cards, apps []*models.StoredTransaction, result *Result) map[string]bool {
	var pool []*models.StoredTransaction
	for _, tx := range apps {
		if tx.EffectiveDirection() != models.P2PReceived && tx.ReconciliationStatus.IsUnreconciled() {
			pool = append(pool, tx)
		}
	}
	index := NewTransactionIndex(pool)

	var proposals []Proposal
	// Card-side income rows are refunds or deposits; deposits belong to phase 2.
	for _, card := range cards {
		if card.Type != models.TransactionTypeExpense || !card.ReconciliationStatus.IsUnreconciled() {
			continue
		}
		if !isP2PMerchant(card, e.config.OutgoingKeywords) {
			continue
		}
		proposals = append(proposals, e.propose(card, index, e.config.OutgoingDays))
	}

	assignments := e.assigner.Assign(proposals)
	for _, a := range assignments {
		matchType, confidence, reason := e.disposition(a, "app payment")
		e.tally(&result.Summary, matchType)
		if matchType == MatchNone {
			continue
		}
		result.Matches = append(result.Matches, &ReconciliationMatch{
			Primary:    a.Primary,
			Candidates: transactions(a.Candidates),
			Confidence: confidence,
			MatchType:  matchType,
			Reason:     reason,
		})
	}
	return Reserved(assignments)
}

// matchWithdrawals is phase 2. Deposits form their own pool, independent
// of the app rows reserved in phase 1.
func (e *Engine) matchWithdrawals(withdrawals, cards []*models.StoredTransaction, result *Result) {
	if len(withdrawals) == 0 {
		return
	}

	var deposits []*models.StoredTransaction
	for _, tx := range cards {
		if tx.Type == models.TransactionTypeIncome && tx.ReconciliationStatus.IsUnreconciled() &&
			isP2PMerchant(tx, e.config.DepositKeywords) {
			deposits = append(deposits, tx)
		}
	}
	index := NewTransactionIndex(deposits)

	// The window bounds deposit minus withdrawal, so candidates are looked
	// up with the window mirrored around the withdrawal date.
	mirrored := DayWindow{Min: -e.config.WithdrawalDays.Max, Max: -e.config.WithdrawalDays.Min}

	var proposals []Proposal
	for _, w := range withdrawals {
		if !w.ReconciliationStatus.IsUnreconciled() {
			continue
		}
		proposals = append(proposals, e.propose(w, index, mirrored))
	}

	for _, a := range e.assigner.Assign(proposals) {
		matchType, confidence, reason := e.disposition(a, "bank deposit")
		if matchType == MatchNone {
			continue
		}
		result.Summary.WithdrawalMatches++
		result.WithdrawalMatches = append(result.WithdrawalMatches, &WithdrawalMatch{
			Withdrawal: a.Primary,
			Candidates: transactions(a.Candidates),
			Confidence: confidence,
			MatchType:  matchType,
			Reason:     reason,
		})
	}
}

// collectBalancePaid is phase 3: sent app payments no card charge claimed
func (e *Engine) collectBalancePaid(apps []*models.StoredTransaction, reserved map[string]bool, result *Result) {
	for _, tx := range apps {
		if tx.EffectiveDirection() != models.P2PSent || reserved[tx.ID] {
			continue
		}
		switch tx.ReconciliationStatus {
		case models.ReconciliationMatched, models.ReconciliationBalancePaid:
			continue
		}
		result.BalancePaid = append(result.BalancePaid, tx)
	}
	result.Summary.BalancePaid = len(result.BalancePaid)
}

// collectReimbursements is phase 4: money received through an app
func (e *Engine) collectReimbursements(apps []*models.StoredTransaction, result *Result) {
	for _, tx := range apps {
		if tx.EffectiveDirection() == models.P2PReceived && tx.ReconciliationStatus != models.ReconciliationReimbursement {
			result.Reimbursements = append(result.Reimbursements, tx)
		}
	}
	result.Summary.Reimbursements = len(result.Reimbursements)
}

// propose scores every pool row within tolerance of the primary row
func (e *Engine) propose(primary *models.StoredTransaction, index *TransactionIndex, window DayWindow) Proposal {
	p := Proposal{Primary: primary}
	for _, c := range index.GetCandidates(primary.Date, primary.Amount, e.config.AmountTolerance, window) {
		if c.ID == primary.ID {
			continue
		}
		amountDiff := primary.Amount.Abs().Sub(c.Amount.Abs()).Abs()
		days := models.DayDiff(primary.Date, c.Date)
		p.Candidates = append(p.Candidates, ScoredCandidate{
			Transaction: c,
			Score:       e.Score(amountDiff, days),
			AmountDiff:  amountDiff,
			DayDiff:     days,
		})
	}
	return p
}

// Score computes the confidence of a single pairing
func (e *Engine) Score(amountDiff decimal.Decimal, days int) int {
	w := e.config.Weights
	score := w.Base

	if amountDiff.Abs().LessThan(e.config.ExactAmountEpsilon) {
		score += w.ExactAmount
	} else {
		score += w.AmountWithinTolerance
	}

	if days < 0 {
		days = -days
	}
	switch {
	case days == 0:
		score += w.SameDay
	case days <= w.NearDaysMax:
		score += w.NearDays
	default:
		score += w.FarDays
	}

	if score > 100 {
		score = 100
	}
	return score
}

// disposition maps an assignment onto a match type, confidence and reason
func (e *Engine) disposition(a Assignment, noun string) (MatchType, int, string) {
	switch a.Outcome {
	case OutcomeSingle:
		c := a.Chosen()
		matchType := MatchFuzzy
		if c.Score >= e.config.ExactThreshold {
			matchType = MatchExact
		}
		return matchType, c.Score, fmt.Sprintf("one %s, amount difference %s, %s",
			noun, c.AmountDiff.StringFixed(2), describeDays(c.DayDiff))
	case OutcomeAmbiguous:
		ids := make([]string, 0, len(a.Candidates))
		for _, c := range a.Candidates {
			ids = append(ids, c.Transaction.ID)
		}
		return MatchAmbiguous, e.config.AmbiguousConfidence,
			fmt.Sprintf("%d %ss qualify (%s); choose one", len(a.Candidates), noun, strings.Join(ids, ", "))
	default:
		return MatchNone, 0, ""
	}
}

func (e *Engine) tally(s *Summary, mt MatchType) {
	switch mt {
	case MatchExact:
		s.ExactMatches++
	case MatchFuzzy:
		s.FuzzyMatches++
	case MatchAmbiguous:
		s.AmbiguousMatches++
	default:
		s.UnmatchedCards++
	}
}

func describeDays(days int) string {
	switch {
	case days == 0:
		return "same day"
	case days > 0:
		return fmt.Sprintf("%d day(s) later", days)
	default:
		return fmt.Sprintf("%d day(s) earlier", -days)
	}
}

func transactions(candidates []ScoredCandidate) []*models.StoredTransaction {
	out := make([]*models.StoredTransaction, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Transaction)
	}
	return out
}
