package flows

import (
	"context"
	"errors"
	"strings"
)

// Field names reported by input validation.
const (
	FieldName            = "name"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldCode            = "code"
	FieldNewPassword     = "newPassword"
)

// AuditFunc emits one audit event for the flow instance the deps were built for.
type AuditFunc func(ctx context.Context, eventType string, success bool, username string, err error, metadata func() map[string]string)

// InputDeps controls local input normalisation and builds validation errors.
type InputDeps struct {
	TrimSpace bool
	Invalid   func(field, reason string) error
}

// SignInOutcome is the flow-local view of a provider sign-in result.
type SignInOutcome struct {
	Authenticated bool
	Token         string
}

// ProviderErrors maps raw provider errors onto host-level error values.
type ProviderErrors struct {
	// Normalize wraps any provider error into the host's provider error type.
	Normalize func(error) error
	// IsAlreadyAuthenticated reports whether err means a session already exists.
	IsAlreadyAuthenticated func(error) bool
	// NextStepRequired is returned when the provider accepted credentials but
	// did not establish a session.
	NextStepRequired error
	// SessionMissing is returned when a successful sign-in is not followed by a
	// readable session.
	SessionMissing error
}

func (in InputDeps) clean(value string) string {
	if in.TrimSpace {
		return strings.TrimSpace(value)
	}
	return value
}

func (in InputDeps) require(field, value string) error {
	if value == "" {
		return in.Invalid(field, "must not be empty")
	}
	return nil
}

func normalizeInput(in *InputDeps) {
	if in.Invalid == nil {
		in.Invalid = func(field, reason string) error {
			return &fieldError{field: field, reason: reason}
		}
	}
}

func normalizeProviderErrors(pe *ProviderErrors) {
	if pe.Normalize == nil {
		pe.Normalize = func(err error) error { return err }
	}
	if pe.IsAlreadyAuthenticated == nil {
		pe.IsAlreadyAuthenticated = func(error) bool { return false }
	}
	if pe.NextStepRequired == nil {
		pe.NextStepRequired = errNextStepRequired
	}
	if pe.SessionMissing == nil {
		pe.SessionMissing = errSessionMissing
	}
}

var (
	errNextStepRequired = errors.New("flows: provider requires another sign-in step")
	errSessionMissing   = errors.New("flows: no session after successful sign-in")
)

func noopMetric(int) {}

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return e.field + ": " + e.reason
}
