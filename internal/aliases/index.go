package aliases

import (
	"context"
	"strings"
	"sync"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// MatchType says which lookup stage produced a MatchResult
type MatchType int

const (
	// MatchAlias is an exact hit on a registered alias
	MatchAlias MatchType = iota

	// MatchExact is an exact hit on a canonical display name
	MatchExact

	// MatchFuzzy is the best similarity score at or above the threshold
	MatchFuzzy
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchAlias:
		return "alias"
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// MarshalText renders the match type by name in JSON output
func (mt MatchType) MarshalText() ([]byte, error) {
	return []byte(mt.String()), nil
}

// MatchResult is a resolved candidate entity for a raw name
type MatchResult struct {
	EntityID    string    `json:"entity_id"`
	EntityName  string    `json:"entity_name"`
	MatchedText string    `json:"matched_text"`
	MatchType   MatchType `json:"match_type"`
	Confidence  float64   `json:"confidence"`
}

// EntityRef names a canonical entity
type EntityRef struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
}

// Conflict is one alias text claimed by more than one entity
type Conflict struct {
	Alias    string      `json:"alias"`
	Entities []EntityRef `json:"entities"`
}

// indexState is the alias list plus the lookup maps derived from it.
// A state is never modified after construction; mutations build a new one.
type indexState struct {
	aliases  []models.CounterpartyAlias
	byAlias  map[string]int
	byEntity map[string][]int
	names    []EntityRef
	byName   map[string]int
}

func buildState(list []models.CounterpartyAlias) *indexState {
	st := &indexState{
		aliases:  list,
		byAlias:  make(map[string]int, len(list)),
		byEntity: make(map[string][]int),
		byName:   make(map[string]int),
	}

	for i := range list {
		a := &list[i]
		if _, seen := st.byAlias[a.Key()]; !seen {
			st.byAlias[a.Key()] = i
		}
		st.byEntity[a.EntityID] = append(st.byEntity[a.EntityID], i)

		nameKey := models.NormalizeAlias(a.EntityName)
		if nameKey == "" {
			continue
		}
		if _, seen := st.byName[nameKey]; !seen {
			st.byName[nameKey] = len(st.names)
			st.names = append(st.names, EntityRef{EntityID: a.EntityID, EntityName: a.EntityName})
		}
	}

	return st
}

// Index owns the alias collection. Reads take a shared lock; mutations hold
// the exclusive lock across the store write and swap in the rebuilt state
// only once the write has succeeded.
type Index struct {
	mu     sync.RWMutex
	state  *indexState
	store  storage.AliasStore
	config *IndexConfig
	logger logger.Logger
}

// NewIndex loads the alias collection from store and builds the lookups
func NewIndex(ctx context.Context, store storage.AliasStore, config *IndexConfig) (*Index, error) {
	if config == nil {
		config = DefaultIndexConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
			"matching.similarity_threshold", config.SimilarityThreshold, err)
	}

	list, err := store.LoadAliases(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageRead, "failed to load aliases")
	}

	ix := &Index{
		state:  buildState(append([]models.CounterpartyAlias(nil), list...)),
		store:  store,
		config: config,
		logger: logger.WithComponent("alias_index"),
	}

	ix.logger.WithFields(logger.Fields{
		"aliases":  len(list),
		"entities": len(ix.state.byEntity),
	}).Debug("Alias index loaded")

	return ix, nil
}

// Threshold returns the configured default similarity threshold
func (ix *Index) Threshold() float64 {
	return ix.config.SimilarityThreshold
}

// Len returns the number of registered aliases
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.state.aliases)
}

// RegisterAlias records alias as an alternate name of the entity.
//
// The alias is compared case-insensitively after trimming. Re-registering an
// alias the entity already owns fails with a duplicate_alias error; an alias
// owned by another entity fails with alias_conflict. Neither touches state.
func (ix *Index) RegisterAlias(ctx context.Context, entityID, entityName, alias, actor string) (*models.CounterpartyAlias, error) {
	entityID = strings.TrimSpace(entityID)
	entityName = strings.TrimSpace(entityName)
	alias = strings.TrimSpace(alias)

	if entityID == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "entity_id", entityID, nil)
	}
	if entityName == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "entity_name", entityName, nil)
	}
	if alias == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "alias", alias, nil)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	log := ix.logger.WithFields(logger.Fields{"entity_id": entityID, "alias": alias, "actor": actor})

	st := ix.state
	if i, ok := st.byAlias[models.NormalizeAlias(alias)]; ok {
		owner := st.aliases[i]
		if owner.EntityID == entityID {
			log.Debug("Alias already registered for entity")
			return nil, errors.DuplicateAliasError(entityID, alias)
		}
		log.WithField("owner_entity_id", owner.EntityID).Warn("Alias conflict rejected")
		return nil, errors.AliasConflictError(alias, entityID, owner.EntityID, owner.EntityName)
	}

	record := models.CounterpartyAlias{
		EntityID:   entityID,
		EntityName: entityName,
		Alias:      alias,
		CreatedAt:  ix.config.now(),
		CreatedBy:  actor,
	}

	next := make([]models.CounterpartyAlias, len(st.aliases), len(st.aliases)+1)
	copy(next, st.aliases)
	next = append(next, record)

	if err := ix.store.SaveAliases(ctx, next); err != nil {
		log.WithError(err).Error("Failed to persist alias")
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageWrite, "failed to save aliases")
	}
	ix.state = buildState(next)

	log.Info("Alias registered")
	return &record, nil
}

// BatchItem is one alias registration request
type BatchItem struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Alias      string `json:"alias"`
}

// BatchItemError ties a failure to its position in the batch input
type BatchItemError struct {
	Index int                     `json:"index"`
	Item  BatchItem               `json:"item"`
	Err   *errors.ReconcilerError `json:"error"`
}

// BatchResult reports the outcome of RegisterAliasesBatch.
// Total always equals Succeeded + Failed and the input length.
type BatchResult struct {
	Total      int                        `json:"total"`
	Succeeded  int                        `json:"succeeded"`
	Failed     int                        `json:"failed"`
	Registered []models.CounterpartyAlias `json:"registered"`
	Errors     []BatchItemError           `json:"errors,omitempty"`
}

// Summary groups the per-item failures by category and code
func (r *BatchResult) Summary() *errors.ErrorSummary {
	errs := make([]*errors.ReconcilerError, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e.Err)
	}
	return errors.NewErrorSummary(errs)
}

// RegisterAliasesBatch registers each item in input order. A failing item is
// recorded and the batch moves on.
func (ix *Index) RegisterAliasesBatch(ctx context.Context, items []BatchItem, actor string) *BatchResult {
	result := &BatchResult{Total: len(items)}

	for i, item := range items {
		registered, err := ix.RegisterAlias(ctx, item.EntityID, item.EntityName, item.Alias, actor)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BatchItemError{
				Index: i,
				Item:  item,
				Err:   errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "alias registration failed"),
			})
			continue
		}
		result.Succeeded++
		result.Registered = append(result.Registered, *registered)
	}

	ix.logger.WithFields(logger.Fields{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"actor":     actor,
	}).Info("Alias batch processed")

	return result
}

// RemoveAlias deletes the alias owned by entityID. It reports false when the
// pair is not registered.
func (ix *Index) RemoveAlias(ctx context.Context, entityID, alias string) (bool, error) {
	entityID = strings.TrimSpace(entityID)
	key := models.NormalizeAlias(alias)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	st := ix.state
	pos := -1
	for _, i := range st.byEntity[entityID] {
		if st.aliases[i].Key() == key {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false, nil
	}

	next := make([]models.CounterpartyAlias, 0, len(st.aliases)-1)
	next = append(next, st.aliases[:pos]...)
	next = append(next, st.aliases[pos+1:]...)

	if err := ix.store.SaveAliases(ctx, next); err != nil {
		return false, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageWrite, "failed to save aliases")
	}
	ix.state = buildState(next)

	ix.logger.WithFields(logger.Fields{"entity_id": entityID, "alias": alias}).Info("Alias removed")
	return true, nil
}

// ListAliasesForEntity returns the entity's aliases in registration order
func (ix *Index) ListAliasesForEntity(entityID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	st := ix.state
	positions := st.byEntity[strings.TrimSpace(entityID)]
	out := make([]string, 0, len(positions))
	for _, i := range positions {
		out = append(out, st.aliases[i].Alias)
	}
	return out
}

// EntityName returns the display name recorded with the entity's first alias
func (ix *Index) EntityName(entityID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	positions := ix.state.byEntity[strings.TrimSpace(entityID)]
	if len(positions) == 0 {
		return "", false
	}
	return ix.state.aliases[positions[0]].EntityName, true
}

// ListAliases returns every alias record in registration order
func (ix *Index) ListAliases() []models.CounterpartyAlias {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]models.CounterpartyAlias(nil), ix.state.aliases...)
}

// Resolve looks rawName up against aliases, then display names, then by
// similarity. It returns nil when nothing clears the threshold.
//
// The fuzzy scan visits aliases in registration order, then display names
// in the order their entity first appeared; on equal scores the earlier
// candidate is kept.
func (ix *Index) Resolve(rawName string, threshold float64) (*MatchResult, error) {
	if threshold < 0 || threshold > 1 {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "threshold", threshold, nil)
	}

	key := models.NormalizeAlias(rawName)
	if key == "" {
		return nil, nil
	}

	ix.mu.RLock()
	st := ix.state
	ix.mu.RUnlock()

	if i, ok := st.byAlias[key]; ok {
		a := st.aliases[i]
		return &MatchResult{
			EntityID:    a.EntityID,
			EntityName:  a.EntityName,
			MatchedText: a.Alias,
			MatchType:   MatchAlias,
			Confidence:  1.0,
		}, nil
	}

	if i, ok := st.byName[key]; ok {
		n := st.names[i]
		return &MatchResult{
			EntityID:    n.EntityID,
			EntityName:  n.EntityName,
			MatchedText: n.EntityName,
			MatchType:   MatchExact,
			Confidence:  1.0,
		}, nil
	}

	var best *MatchResult
	consider := func(text string, ref EntityRef) {
		score := Similarity(key, text)
		if score < threshold {
			return
		}
		if best == nil || score > best.Confidence {
			best = &MatchResult{
				EntityID:    ref.EntityID,
				EntityName:  ref.EntityName,
				MatchedText: text,
				MatchType:   MatchFuzzy,
				Confidence:  score,
			}
		}
	}

	for _, a := range st.aliases {
		consider(a.Alias, EntityRef{EntityID: a.EntityID, EntityName: a.EntityName})
	}
	for _, n := range st.names {
		consider(n.EntityName, n)
	}

	if best != nil {
		ix.logger.WithFields(logger.Fields{
			"raw_name":   rawName,
			"entity_id":  best.EntityID,
			"confidence": best.Confidence,
		}).Debug("Fuzzy resolution")
	}
	return best, nil
}

// DetectConflicts reports alias texts that more than one entity claims.
// RegisterAlias never produces these, so a non-empty result points at
// records written around the index.
func (ix *Index) DetectConflicts() []Conflict {
	ix.mu.RLock()
	st := ix.state
	ix.mu.RUnlock()

	var order []string
	groups := make(map[string]*Conflict)
	seen := make(map[string]map[string]bool)

	for _, a := range st.aliases {
		key := a.Key()
		c, ok := groups[key]
		if !ok {
			c = &Conflict{Alias: a.Alias}
			groups[key] = c
			seen[key] = make(map[string]bool)
			order = append(order, key)
		}
		if !seen[key][a.EntityID] {
			seen[key][a.EntityID] = true
			c.Entities = append(c.Entities, EntityRef{EntityID: a.EntityID, EntityName: a.EntityName})
		}
	}

	var conflicts []Conflict
	for _, key := range order {
		if c := groups[key]; len(c.Entities) > 1 {
			conflicts = append(conflicts, *c)
		}
	}

	if len(conflicts) > 0 {
		ix.logger.WithField("conflicts", len(conflicts)).Warn("Alias conflicts detected")
	}
	return conflicts
}

// SuggestAliases picks the candidate names similar enough to canonicalName
// to be worth registering as aliases. Names equal to canonicalName or already
// registered are skipped, as are repeats. Results keep input order.
func (ix *Index) SuggestAliases(canonicalName string, candidates []string, threshold float64) ([]string, error) {
	if threshold < 0 || threshold > 1 {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "threshold", threshold, nil)
	}

	canonical := models.NormalizeAlias(canonicalName)

	ix.mu.RLock()
	st := ix.state
	ix.mu.RUnlock()

	var suggestions []string
	suggested := make(map[string]bool)
	for _, candidate := range candidates {
		key := models.NormalizeAlias(candidate)
		if key == "" || key == canonical || suggested[key] {
			continue
		}
		if _, registered := st.byAlias[key]; registered {
			continue
		}
		if Similarity(canonical, key) >= threshold {
			suggested[key] = true
			suggestions = append(suggestions, strings.TrimSpace(candidate))
		}
	}
	return suggestions, nil
}

// ExportAliases flattens the alias list for tabular reporting
func (ix *Index) ExportAliases() []models.AliasExportRow {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rows := make([]models.AliasExportRow, 0, len(ix.state.aliases))
	for _, a := range ix.state.aliases {
		rows = append(rows, models.AliasExportRow{
			EntityID:           a.EntityID,
			EntityName:         a.EntityName,
			Alias:              a.Alias,
			CreatedAtFormatted: a.CreatedAt.Format(models.ExportTimeLayout),
			CreatedBy:          a.CreatedBy,
		})
	}
	return rows
}
