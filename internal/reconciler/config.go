package reconciler

import (
	"fmt"
	"time"

	"counterparty-reconciliation/internal/aliases"
	"counterparty-reconciliation/internal/matcher"
)

// Config holds the matching policy of the service
type Config struct {
	// SimilarityThreshold is the minimum fuzzy score for a candidate entity
	SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"similarity_threshold"`

	// AutoApplyConfidence is the confidence at or above which a resolution
	// may be applied without a human
	AutoApplyConfidence float64 `json:"auto_apply_confidence" mapstructure:"auto_apply_confidence"`

	// ConfirmFuzzy forces confirmation of every fuzzy resolution
	ConfirmFuzzy bool `json:"confirm_fuzzy" mapstructure:"confirm_fuzzy"`

	// Proposals tunes the engine suggesting matches. Nil means
	// matcher.DefaultConfig.
	Proposals *matcher.Config `json:"proposals" mapstructure:"proposals"`

	// Clock and NewID are injected into the index, ledger and calculator.
	// Nil means wall-clock time and random UUIDs.
	Clock func() time.Time `json:"-" mapstructure:"-"`
	NewID func() string    `json:"-" mapstructure:"-"`
}

// DefaultConfig returns the default matching policy
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold: aliases.DefaultSimilarityThreshold,
		AutoApplyConfidence: 0.95,
		ConfirmFuzzy:        true,
		Proposals:           matcher.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be between 0.0 and 1.0, got %f", c.SimilarityThreshold)
	}
	if c.AutoApplyConfidence < 0 || c.AutoApplyConfidence > 1 {
		return fmt.Errorf("auto-apply confidence must be between 0.0 and 1.0, got %f", c.AutoApplyConfidence)
	}
	if c.Proposals != nil {
		if err := c.Proposals.Validate(); err != nil {
			return fmt.Errorf("proposals: %w", err)
		}
	}
	return nil
}

func (c *Config) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}
