package matcher

import (
	"fmt"
	"math"
	"sort"
	"time"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// maxPool caps the members considered for one grouped proposal. The closest
// in date are kept.
const maxPool = 32

// combinationsPerCandidate bounds the member sets collected for one target at
// this many per MaxCandidates, before scoring trims them to MaxCandidates.
const combinationsPerCandidate = 4

// ResolvedEntry is a bank entry together with the entity it was resolved to
type ResolvedEntry struct {
	Entry             models.BankEntry
	EntityID          string
	NeedsConfirmation bool
}

// Proposal is a candidate match. Difference is BankTotal - LedgerTotal, the
// balance the match would have.
type Proposal struct {
	Kind              models.MatchKind      `json:"kind"`
	EntityID          string                `json:"entity_id"`
	BankEntries       []models.BankEntry    `json:"bank_entries"`
	LedgerRecords     []models.LedgerRecord `json:"ledger_records"`
	BankTotal         decimal.Decimal       `json:"bank_total"`
	LedgerTotal       decimal.Decimal       `json:"ledger_total"`
	Difference        decimal.Decimal       `json:"difference"`
	Score             float64               `json:"score"`
	Quality           Quality               `json:"quality"`
	NeedsConfirmation bool                  `json:"needs_confirmation"`
	Reasons           []string              `json:"reasons"`
}

// BankEntryIDs returns the ids of the bank entries in order
func (p *Proposal) BankEntryIDs() []string {
	ids := make([]string, len(p.BankEntries))
	for i, e := range p.BankEntries {
		ids[i] = e.ID
	}
	return ids
}

// LedgerRecordIDs returns the ids of the ledger records in order
func (p *Proposal) LedgerRecordIDs() []string {
	ids := make([]string, len(p.LedgerRecords))
	for i, r := range p.LedgerRecords {
		ids[i] = r.ID
	}
	return ids
}

// Members returns the number of bank entries and records in the proposal
func (p *Proposal) Members() int {
	return len(p.BankEntries) + len(p.LedgerRecords)
}

// ProposalSet is the outcome of proposing matches for a statement
type ProposalSet struct {
	Proposals        []Proposal            `json:"proposals"`
	UnmatchedEntries []models.BankEntry    `json:"unmatched_entries"`
	UnmatchedRecords []models.LedgerRecord `json:"unmatched_records"`
	Summary          Summary               `json:"summary"`
}

// Summary provides aggregate statistics about a proposal set
type Summary struct {
	Entries               int             `json:"entries"`
	Records               int             `json:"records"`
	Proposed              int             `json:"proposed"`
	OneToOne              int             `json:"one_to_one"`
	OneToMany             int             `json:"one_to_many"`
	ManyToOne             int             `json:"many_to_one"`
	NeedsConfirmation     int             `json:"needs_confirmation"`
	ProposedAmount        decimal.Decimal `json:"proposed_amount"`
	UnmatchedEntryAmount  decimal.Decimal `json:"unmatched_entry_amount"`
	UnmatchedRecordAmount decimal.Decimal `json:"unmatched_record_amount"`
}

// Engine scores candidate groupings of bank entries and ledger records
type Engine struct {
	config *Config
	logger logger.Logger
}

// NewEngine creates an engine. A nil config means DefaultConfig.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Engine{
		config: config.Clone(),
		logger: logger.WithComponent("matcher"),
	}, nil
}

// Config returns a copy of the current configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// UpdateConfig replaces the configuration
func (e *Engine) UpdateConfig(config *Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e.config = config.Clone()
	return nil
}

// ForEntry lists the one-to-one and one-to-many proposals for a resolved bank
// entry among the records of its entity, best first
func (e *Engine) ForEntry(entry ResolvedEntry, index *RecordIndex) []Proposal {
	if !e.eligible(entry) {
		return nil
	}

	var out []Proposal
	for _, r := range index.Candidates(entry.Entry, entry.EntityID, e.config) {
		out = append(out, e.score(models.MatchOneToOne, entry.EntityID,
			[]ResolvedEntry{entry}, []models.LedgerRecord{r}))
	}

	if e.config.MaxGroupSize > 1 {
		pool := e.recordPool(entry.Entry, index.ByEntity(entry.EntityID))
		amounts := make([]decimal.Decimal, len(pool))
		for i, r := range pool {
			amounts[i] = r.Amount
		}
		for _, combo := range e.combinations(amounts, entry.Entry.Amount) {
			records := make([]models.LedgerRecord, len(combo))
			for i, idx := range combo {
				records[i] = pool[idx]
			}
			out = append(out, e.score(models.MatchOneToMany, entry.EntityID, []ResolvedEntry{entry}, records))
		}
	}

	return e.rank(out)
}

// ForRecord lists the one-to-one and many-to-one proposals for a ledger
// record among bank entries resolved to the record's entity, best first
func (e *Engine) ForRecord(record models.LedgerRecord, entries []ResolvedEntry) []Proposal {
	if !record.Amount.IsPositive() {
		return nil
	}

	var pool []ResolvedEntry
	for _, entry := range entries {
		if entry.EntityID != record.EntityID || !e.eligible(entry) {
			continue
		}
		if !e.config.WithinDateTolerance(entry.Entry.Date, record.Date) {
			continue
		}
		pool = append(pool, entry)
	}
	pool = closestEntries(pool, record.Date)

	var out []Proposal
	tolerance := e.config.AmountTolerance(record.Amount)
	for _, entry := range pool {
		if entry.Entry.Amount.Sub(record.Amount).Abs().LessThanOrEqual(tolerance) {
			out = append(out, e.score(models.MatchOneToOne, record.EntityID,
				[]ResolvedEntry{entry}, []models.LedgerRecord{record}))
		}
	}

	if e.config.MaxGroupSize > 1 {
		amounts := make([]decimal.Decimal, len(pool))
		for i, entry := range pool {
			amounts[i] = entry.Entry.Amount
		}
		for _, combo := range e.combinations(amounts, record.Amount) {
			members := make([]ResolvedEntry, len(combo))
			for i, idx := range combo {
				members[i] = pool[idx]
			}
			out = append(out, e.score(models.MatchManyToOne, record.EntityID, members, []models.LedgerRecord{record}))
		}
	}

	return e.rank(out)
}

// Propose picks the best non-overlapping proposals for a statement. Entries
// settling records on their own are considered first, then records paid by
// several entries.
func (e *Engine) Propose(entries []ResolvedEntry, records []models.LedgerRecord) *ProposalSet {
	start := time.Now()
	index := NewRecordIndex(records)

	usedEntries := make(map[string]bool)
	usedRecords := make(map[string]bool)
	var accepted []Proposal

	var candidates []Proposal
	for _, entry := range entries {
		candidates = append(candidates, e.ForEntry(entry, index)...)
	}
	accepted = append(accepted, pickDisjoint(candidates, usedEntries, usedRecords)...)

	if e.config.MaxGroupSize > 1 {
		var open []ResolvedEntry
		for _, entry := range entries {
			if !usedEntries[entry.Entry.ID] {
				open = append(open, entry)
			}
		}

		candidates = candidates[:0]
		for _, r := range records {
			if !usedRecords[r.ID] {
				candidates = append(candidates, e.ForRecord(r, open)...)
			}
		}
		accepted = append(accepted, pickDisjoint(candidates, usedEntries, usedRecords)...)
	}

	// present proposals in statement order
	position := make(map[string]int, len(entries))
	for i, entry := range entries {
		position[entry.Entry.ID] = i
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return position[accepted[i].BankEntries[0].ID] < position[accepted[j].BankEntries[0].ID]
	})

	set := &ProposalSet{Proposals: accepted}
	for _, entry := range entries {
		if !usedEntries[entry.Entry.ID] {
			set.UnmatchedEntries = append(set.UnmatchedEntries, entry.Entry)
		}
	}
	for _, r := range records {
		if !usedRecords[r.ID] {
			set.UnmatchedRecords = append(set.UnmatchedRecords, r)
		}
	}
	set.Summary = summarize(set, len(entries), len(records))

	e.logger.WithFields(logger.Fields{
		"entries":   len(entries),
		"records":   len(records),
		"proposed":  set.Summary.Proposed,
		"index":     index.Stats(),
		"duration":  time.Since(start).String(),
		"min_score": e.config.MinScore,
	}).Info("Match proposals computed")
	return set
}

func (e *Engine) eligible(entry ResolvedEntry) bool {
	if entry.EntityID == "" || !entry.Entry.Amount.IsPositive() {
		return false
	}
	return !e.config.CreditsOnly || entry.Entry.IsCredit()
}

// recordPool returns the positive records within date tolerance of entry that
// are no larger than it. Past maxPool only the closest in date are kept.
// Input order is preserved.
func (e *Engine) recordPool(entry models.BankEntry, records []models.LedgerRecord) []models.LedgerRecord {
	limit := entry.Amount.Add(e.config.AmountTolerance(entry.Amount))

	var pool []models.LedgerRecord
	var gaps []int
	for _, r := range records {
		if r.Amount.IsPositive() && r.Amount.LessThanOrEqual(limit) && e.config.WithinDateTolerance(entry.Date, r.Date) {
			pool = append(pool, r)
			gaps = append(gaps, dayGap(entry.Date, r.Date))
		}
	}

	keep := closest(gaps)
	out := make([]models.LedgerRecord, len(keep))
	for i, idx := range keep {
		out[i] = pool[idx]
	}
	return out
}

func closestEntries(pool []ResolvedEntry, date time.Time) []ResolvedEntry {
	gaps := make([]int, len(pool))
	for i, entry := range pool {
		gaps[i] = dayGap(date, entry.Entry.Date)
	}

	keep := closest(gaps)
	out := make([]ResolvedEntry, len(keep))
	for i, idx := range keep {
		out[i] = pool[idx]
	}
	return out
}

// closest returns the positions of the maxPool smallest gaps, ascending
func closest(gaps []int) []int {
	positions := make([]int, len(gaps))
	for i := range positions {
		positions[i] = i
	}
	if len(positions) <= maxPool {
		return positions
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return gaps[positions[i]] < gaps[positions[j]]
	})
	positions = positions[:maxPool]
	sort.Ints(positions)
	return positions
}

// combinations returns the index sets of 2 to MaxGroupSize positive amounts
// whose sum is within tolerance of target. Each set lists indices ascending.
func (e *Engine) combinations(amounts []decimal.Decimal, target decimal.Decimal) [][]int {
	tolerance := e.config.AmountTolerance(target)
	low, high := target.Sub(tolerance), target.Add(tolerance)

	order := make([]int, len(amounts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return amounts[order[i]].LessThan(amounts[order[j]])
	})

	limit := e.config.MaxCandidates * combinationsPerCandidate
	var out [][]int
	var walk func(start int, picked []int, sum decimal.Decimal)
	walk = func(start int, picked []int, sum decimal.Decimal) {
		if len(out) >= limit {
			return
		}
		if len(picked) >= 2 && sum.GreaterThanOrEqual(low) {
			combo := append([]int(nil), picked...)
			sort.Ints(combo)
			out = append(out, combo)
		}
		if len(picked) == e.config.MaxGroupSize {
			return
		}
		for k := start; k < len(order); k++ {
			next := sum.Add(amounts[order[k]])
			if next.GreaterThan(high) {
				break
			}
			walk(k+1, append(picked, order[k]), next)
		}
	}
	walk(0, nil, decimal.Zero)
	return out
}

// score builds a proposal and rates it on amount and date closeness
func (e *Engine) score(kind models.MatchKind, entityID string, entries []ResolvedEntry, records []models.LedgerRecord) Proposal {
	p := Proposal{
		Kind:          kind,
		EntityID:      entityID,
		BankEntries:   make([]models.BankEntry, len(entries)),
		LedgerRecords: records,
		BankTotal:     decimal.Zero,
		LedgerTotal:   decimal.Zero,
	}
	for i, entry := range entries {
		p.BankEntries[i] = entry.Entry
		p.BankTotal = p.BankTotal.Add(entry.Entry.Amount)
		if entry.NeedsConfirmation {
			p.NeedsConfirmation = true
		}
	}
	for _, r := range records {
		p.LedgerTotal = p.LedgerTotal.Add(r.Amount)
	}
	p.Difference = p.BankTotal.Sub(p.LedgerTotal)

	amountScore := e.amountScore(p.BankTotal, p.LedgerTotal)

	var dateScores []float64
	unknownDates := false
	for _, entry := range entries {
		for _, r := range records {
			if entry.Entry.Date.IsZero() || r.Date.IsZero() {
				unknownDates = true
			}
			dateScores = append(dateScores, e.dateScore(entry.Entry.Date, r.Date))
		}
	}
	dateScore := mean(dateScores)

	p.Score = math.Round((amountScore*e.config.Weights.Amount+dateScore*e.config.Weights.Date)*1000) / 1000
	p.Quality = e.quality(p.Score, amountScore, dateScore)
	p.Reasons = reasons(kind, len(entries), len(records), amountScore, dateScore, unknownDates)
	return p
}

func (e *Engine) amountScore(bank, ledger decimal.Decimal) float64 {
	if bank.Equal(ledger) {
		return 1.0
	}

	tolerance := e.config.AmountTolerance(ledger)
	if tolerance.IsZero() {
		return 0.0
	}

	difference := bank.Sub(ledger).Abs()
	if difference.GreaterThan(tolerance) {
		return 0.0
	}
	return math.Max(0.0, 1.0-difference.Div(tolerance).InexactFloat64())
}

// dateScore decays linearly over the tolerance window. An unknown date
// scores half.
func (e *Engine) dateScore(entryDate, recordDate time.Time) float64 {
	if entryDate.IsZero() || recordDate.IsZero() {
		return 0.5
	}

	gap := dayGap(entryDate, recordDate)
	if e.config.DateToleranceDays == 0 {
		if gap == 0 {
			return 1.0
		}
		return 0.0
	}
	if !e.config.WithinDateTolerance(entryDate, recordDate) {
		return 0.0
	}
	if e.config.IgnoreWeekends {
		gap = businessDaysBetween(dateOnly(entryDate), dateOnly(recordDate))
	}
	return math.Max(0.0, 1.0-float64(gap)/float64(e.config.DateToleranceDays))
}

func (e *Engine) quality(score, amountScore, dateScore float64) Quality {
	switch {
	case amountScore == 1.0 && dateScore >= 0.9:
		return QualityExact
	case score >= 0.85:
		return QualityClose
	case score >= e.config.MinScore:
		return QualityPossible
	default:
		return QualityNone
	}
}

// rank drops proposals below MinScore and orders the rest by score, then by
// fewer members, keeping discovery order on ties
func (e *Engine) rank(proposals []Proposal) []Proposal {
	out := proposals[:0]
	for _, p := range proposals {
		if p.Score >= e.config.MinScore {
			out = append(out, p)
		}
	}
	sortProposals(out)
	if len(out) > e.config.MaxCandidates {
		out = out[:e.config.MaxCandidates]
	}
	return out
}

func sortProposals(proposals []Proposal) {
	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].Score != proposals[j].Score {
			return proposals[i].Score > proposals[j].Score
		}
		return proposals[i].Members() < proposals[j].Members()
	})
}

// pickDisjoint accepts proposals best first, skipping any that reuse a bank
// entry or record already taken
func pickDisjoint(candidates []Proposal, usedEntries, usedRecords map[string]bool) []Proposal {
	sortProposals(candidates)

	var out []Proposal
	for _, p := range candidates {
		taken := false
		for _, id := range p.BankEntryIDs() {
			taken = taken || usedEntries[id]
		}
		for _, id := range p.LedgerRecordIDs() {
			taken = taken || usedRecords[id]
		}
		if taken {
			continue
		}

		for _, id := range p.BankEntryIDs() {
			usedEntries[id] = true
		}
		for _, id := range p.LedgerRecordIDs() {
			usedRecords[id] = true
		}
		out = append(out, p)
	}
	return out
}

func summarize(set *ProposalSet, entries, records int) Summary {
	s := Summary{
		Entries:               entries,
		Records:               records,
		Proposed:              len(set.Proposals),
		ProposedAmount:        decimal.Zero,
		UnmatchedEntryAmount:  decimal.Zero,
		UnmatchedRecordAmount: decimal.Zero,
	}
	for _, p := range set.Proposals {
		switch p.Kind {
		case models.MatchOneToOne:
			s.OneToOne++
		case models.MatchOneToMany:
			s.OneToMany++
		case models.MatchManyToOne:
			s.ManyToOne++
		}
		if p.NeedsConfirmation {
			s.NeedsConfirmation++
		}
		s.ProposedAmount = s.ProposedAmount.Add(p.BankTotal)
	}
	for _, entry := range set.UnmatchedEntries {
		s.UnmatchedEntryAmount = s.UnmatchedEntryAmount.Add(entry.Amount)
	}
	for _, r := range set.UnmatchedRecords {
		s.UnmatchedRecordAmount = s.UnmatchedRecordAmount.Add(r.Amount)
	}
	return s
}

// reasons generates human-readable reasons for a proposal
func reasons(kind models.MatchKind, entries, records int, amountScore, dateScore float64, unknownDates bool) []string {
	var out []string

	switch {
	case amountScore == 1.0:
		out = append(out, "Exact amount match")
	case amountScore > 0.8:
		out = append(out, "Close amount match")
	case amountScore > 0.0:
		out = append(out, "Amount within tolerance")
	}

	switch {
	case unknownDates:
		out = append(out, "Date unknown")
	case dateScore == 1.0:
		out = append(out, "Same date")
	case dateScore > 0.8:
		out = append(out, "Close date match")
	case dateScore > 0.0:
		out = append(out, "Date within tolerance")
	}

	switch kind {
	case models.MatchOneToMany:
		out = append(out, fmt.Sprintf("One payment covers %d records", records))
	case models.MatchManyToOne:
		out = append(out, fmt.Sprintf("Paid in %d instalments", entries))
	}
	return out
}

func dayGap(a, b time.Time) int {
	if a.IsZero() || b.IsZero() {
		return math.MaxInt32
	}
	return daysBetween(dateOnly(a), dateOnly(b))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
