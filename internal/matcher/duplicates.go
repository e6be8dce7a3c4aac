package matcher

import (
	"fmt"
	"strconv"

	"household-ledger/internal/models"
	"household-ledger/pkg/logger"
)

// DuplicateMatch flags one new candidate as a likely copy of a stored row
type DuplicateMatch struct {
	// Index is the position of the candidate in the checked batch
	Index      int                       `json:"index"`
	Candidate  *models.ParsedTransaction `json:"candidate"`
	Existing   *models.StoredTransaction `json:"existing"`
	Confidence int                       `json:"confidence"`
	Reason     string                    `json:"reason"`
}

// DuplicateChecker flags new candidates that repeat existing transactions
type DuplicateChecker struct {
	config   *DuplicateConfig
	assigner Assigner
	logger   logger.Logger
}

// NewDuplicateChecker creates a checker. Matching is first found per new
// row, without reserving existing rows.
func NewDuplicateChecker(config *DuplicateConfig) *DuplicateChecker {
	if config == nil {
		config = DefaultDuplicateConfig()
	}
	return &DuplicateChecker{
		config:   config,
		assigner: FirstFitAssigner{},
		logger:   logger.GetGlobalLogger().WithComponent("duplicate_checker"),
	}
}

// Config returns the checker configuration
func (dc *DuplicateChecker) Config() *DuplicateConfig {
	return dc.config
}

// Check compares each candidate with the existing rows and returns the
// flagged candidates in batch order. Existing rows should already be
// limited to the household and the date window around the batch.
func (dc *DuplicateChecker) Check(candidates []*models.ParsedTransaction, existing []*models.StoredTransaction) []*DuplicateMatch {
	if len(candidates) == 0 || len(existing) == 0 {
		return nil
	}

	index := NewTransactionIndex(sortSnapshot(existing))
	window := DayWindow{Min: -dc.config.MaxDateDiffDays, Max: dc.config.MaxDateDiffDays}

	proposals := make([]Proposal, 0, len(candidates))
	for i, c := range candidates {
		primary := &models.StoredTransaction{ParsedTransaction: *c, ID: strconv.Itoa(i)}

		var scored []ScoredCandidate
		for _, ex := range index.GetCandidates(c.Date, c.Amount, dc.config.AmountTolerance, window) {
			scored = append(scored, dc.score(primary, ex))
		}
		proposals = append(proposals, Proposal{Primary: primary, Candidates: scored})
	}

	var matches []*DuplicateMatch
	for i, a := range dc.assigner.Assign(proposals) {
		chosen := a.Chosen()
		if chosen == nil {
			continue
		}
		matches = append(matches, &DuplicateMatch{
			Index:      i,
			Candidate:  candidates[i],
			Existing:   chosen.Transaction,
			Confidence: chosen.Score,
			Reason: fmt.Sprintf("%d day(s) apart, amount difference %s",
				chosen.DayDiff, chosen.AmountDiff.StringFixed(2)),
		})
	}

	dc.logger.WithFields(logger.Fields{
		"candidates": len(candidates),
		"existing":   len(existing),
		"duplicates": len(matches),
	}).Debug("Duplicate check completed")

	return matches
}

func (dc *DuplicateChecker) score(primary, existing *models.StoredTransaction) ScoredCandidate {
	cfg := dc.config
	amountDiff := primary.Amount.Abs().Sub(existing.Amount.Abs()).Abs()
	days := models.AbsDayDiff(primary.Date, existing.Date)

	score := cfg.BaseConfidence
	if days == 0 {
		score += cfg.SameDayBonus
	}
	if amountDiff.LessThan(cfg.ExactAmountEpsilon) {
		score += cfg.ExactAmountBonus
	}
	if isP2PMerchant(primary, cfg.P2PKeywords) || isP2PMerchant(existing, cfg.P2PKeywords) {
		score += cfg.P2PBonus
	}
	if score > cfg.MaxConfidence {
		score = cfg.MaxConfidence
	}

	return ScoredCandidate{Transaction: existing, Score: score, AmountDiff: amountDiff, DayDiff: days}
}

// isP2PMerchant checks the raw and normalized merchant texts
func isP2PMerchant(tx *models.StoredTransaction, keywords []string) bool {
	return containsKeyword(tx.MerchantRaw, keywords) || containsKeyword(tx.MerchantNormalized, keywords)
}
