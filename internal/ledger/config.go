package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Config holds the injectable collaborators of a Ledger
type Config struct {
	// Clock stamps matches and history entries. Nil means time.Now.
	Clock func() time.Time

	// NewID generates match and history ids. Nil means random UUIDs.
	NewID func() string
}

// DefaultConfig returns a configuration using wall-clock time and UUIDs
func DefaultConfig() *Config {
	return &Config{
		Clock: time.Now,
		NewID: uuid.NewString,
	}
}

func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	if c.Clock != nil {
		out.Clock = c.Clock
	}
	if c.NewID != nil {
		out.NewID = c.NewID
	}
	return out
}
