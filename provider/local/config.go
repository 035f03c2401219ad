package local

import (
	"errors"
	"strings"
	"time"
)

// Config controls the reference provider.
type Config struct {
	/* ==== STORAGE ==== */

	Prefix   string
	DeviceID string

	/* ==== ACCOUNTS ==== */

	MinPasswordLength int
	// RequireConfirmation makes SignUp return an incomplete result and send a
	// code. When false accounts are confirmed immediately.
	RequireConfirmation bool
	// AutoSessionOnConfirm establishes a session during ConfirmSignUp.
	AutoSessionOnConfirm bool

	/* ==== CODES ==== */

	CodeDigits      int
	CodeTTL         time.Duration
	MaxCodeAttempts int
	// RequireResetCode makes ResetPassword send a code. When false the reset
	// is reported as done without one.
	RequireResetCode bool

	/* ==== THROTTLING ==== */

	MaxSignInFailures int
	SignInWindow      time.Duration

	/* ==== EVENTS ==== */

	EventBuffer int
}

func DefaultConfig() Config {
	return Config{
		Prefix:              "authflow",
		DeviceID:            "default",
		MinPasswordLength:   8,
		RequireConfirmation: true,
		CodeDigits:          6,
		CodeTTL:             15 * time.Minute,
		MaxCodeAttempts:     5,
		RequireResetCode:    true,
		MaxSignInFailures:   5,
		SignInWindow:        15 * time.Minute,
		EventBuffer:         64,
	}
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Prefix) == "" {
		return errors.New("local: Prefix must not be empty")
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return errors.New("local: DeviceID must not be empty")
	}
	if strings.ContainsAny(c.Prefix+c.DeviceID, ": ") {
		return errors.New("local: Prefix and DeviceID must not contain ':' or spaces")
	}
	if c.MinPasswordLength < 1 {
		return errors.New("local: MinPasswordLength must be >= 1")
	}
	if c.CodeDigits < 6 || c.CodeDigits > 10 {
		return errors.New("local: CodeDigits must be within [6, 10]")
	}
	if c.CodeTTL <= 0 {
		return errors.New("local: CodeTTL must be > 0")
	}
	if c.MaxCodeAttempts < 1 {
		return errors.New("local: MaxCodeAttempts must be >= 1")
	}
	if c.MaxSignInFailures > 0 && c.SignInWindow <= 0 {
		return errors.New("local: SignInWindow must be > 0 when sign-in throttling is enabled")
	}
	if c.EventBuffer < 1 {
		return errors.New("local: EventBuffer must be >= 1")
	}
	return nil
}
