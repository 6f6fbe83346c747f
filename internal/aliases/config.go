// Package aliases maps the free-text counterparty names found on bank
// statements to canonical business entities.
//
// Lookup happens in three stages:
//  1. exact case-insensitive match against registered aliases
//  2. exact case-insensitive match against canonical display names
//  3. fuzzy similarity scan over both tables, best score above a threshold
//
// The alias list is the only source of truth. The by-alias and by-entity
// lookup maps are rebuilt from it on every mutation and swapped in together.
//
// Example usage:
//
//	index, err := aliases.NewIndex(ctx, store, aliases.DefaultIndexConfig())
//	_, err = index.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
//	result, err := index.Resolve("客户A有限责任公司", 0.7)
package aliases

import (
	"fmt"
	"time"
)

// DefaultSimilarityThreshold is the fuzzy score a candidate must reach when
// the caller does not pass its own threshold
const DefaultSimilarityThreshold = 0.7

// IndexConfig holds the tunables of an Index
type IndexConfig struct {
	// SimilarityThreshold is used by callers that resolve without an explicit
	// threshold, e.g. SuggestAliases from the CLI.
	SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"similarity_threshold"`

	// Clock stamps CreatedAt on new aliases. Nil means time.Now.
	Clock func() time.Time `json:"-" mapstructure:"-"`
}

// DefaultIndexConfig returns the configuration used when none is given
func DefaultIndexConfig() *IndexConfig {
	return &IndexConfig{
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Validate checks if the configuration is usable
func (c *IndexConfig) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be between 0.0 and 1.0: %f", c.SimilarityThreshold)
	}
	return nil
}

func (c *IndexConfig) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}
