package authflow

import (
	"errors"
	"fmt"
)

// Config controls controller behavior. Obtain defaults with [DefaultConfig]
// and apply through [Builder.WithConfig].
type Config struct {
	Input   InputConfig
	Signup  SignupConfig
	Events  EventsConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
INPUT CONFIG
====================================
*/

// InputConfig controls local input normalisation.
type InputConfig struct {
	// TrimSpace strips surrounding whitespace from names, emails, codes and
	// new passwords before validation. Sign-up and sign-in passwords are
	// never trimmed.
	TrimSpace bool
}

/*
====================================
SIGNUP CONFIG
====================================
*/

type SignupConfig struct {
	// AutoSignIn signs in with the buffered credentials once a confirmation
	// completes the account.
	AutoSignIn bool
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls the controller's provider event subscription.
type EventsConfig struct {
	// Kinds that trigger a session reconcile.
	Kinds []EventKind
	// Buffer is the number of pending reconcile requests kept while one is
	// running. Further events coalesce into the pending ones.
	Buffer int
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended controller configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Input: InputConfig{
			TrimSpace: true,
		},
		Signup: SignupConfig{
			AutoSignIn: true,
		},
		Events: EventsConfig{
			Kinds:  []EventKind{EventSignedIn, EventSignedOut, EventAttributesUpdated},
			Buffer: 1,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Events.Kinds != nil {
		out.Events.Kinds = append([]EventKind(nil), cfg.Events.Kinds...)
	}
	return out
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	// Events
	if len(c.Events.Kinds) == 0 {
		return errors.New("Events Kinds must not be empty")
	}
	for _, kind := range c.Events.Kinds {
		if !kind.valid() {
			return fmt.Errorf("Events Kinds contains unsupported kind %s", kind)
		}
	}
	if c.Events.Buffer < 1 {
		return errors.New("Events Buffer must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
