package runtime

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultTimeout is used when neither the request nor the Config set one.
const DefaultTimeout = 5 * time.Second

// Config holds the configuration for a Coordinator.
type Config struct {
	// Registry provides the adapters.
	// Required.
	Registry *Registry

	// DefaultTimeout applies when a request has no timeout.
	// Defaults to DefaultTimeout.
	DefaultTimeout time.Duration

	// MaxTimeout caps request timeouts. Zero means no cap.
	MaxTimeout time.Duration

	// RejectWhenBusy rejects a run with ErrBusy instead of queueing it behind
	// the one in flight.
	RejectWhenBusy bool

	// Logger is an optional logger. Defaults to slog.Default().
	Logger Logger
}

// Validate checks that all required fields are set.
// Returns ErrConfiguration if any required field is missing or invalid.
func (c *Config) Validate() error {
	var problems []string

	if c.Registry == nil {
		problems = append(problems, "missing required fields: Registry")
	}
	if c.DefaultTimeout < 0 {
		problems = append(problems, "DefaultTimeout must not be negative")
	}
	if c.MaxTimeout < 0 {
		problems = append(problems, "MaxTimeout must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func (c *Config) applyDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) timeoutFor(requested time.Duration) time.Duration {
	t := requested
	if t <= 0 {
		t = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && t > c.MaxTimeout {
		t = c.MaxTimeout
	}
	return t
}
