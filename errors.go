package authflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every local precondition failure.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState matches operations attempted in the wrong flow step.
	ErrInvalidState = errors.New("operation not allowed in current step")
	// ErrBusy is returned when another operation on the same flow is in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrIdp matches every identity provider rejection.
	ErrIdp = errors.New("identity provider error")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("controller already started")
)

// ValidationError reports a local precondition failure. It never follows a
// provider call.
type ValidationError struct {
	Field  string
	Reason string

	state bool
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "authflow: " + e.Reason
	}
	return fmt.Sprintf("authflow: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return e.state && target == ErrInvalidState
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidStep(op string, step fmt.Stringer) error {
	return &ValidationError{
		Reason: fmt.Sprintf("%s not allowed in step %s", op, step),
		state:  true,
	}
}

// IdpErrorKind classifies provider rejections.
type IdpErrorKind string

const (
	IdpAlreadyAuthenticated IdpErrorKind = "already_authenticated"
	IdpInvalidCode          IdpErrorKind = "invalid_code"
	IdpUserNotFound         IdpErrorKind = "user_not_found"
	IdpRateLimited          IdpErrorKind = "rate_limited"
	IdpUnknown              IdpErrorKind = "unknown"

	IdpNotAuthorized    IdpErrorKind = "not_authorized"
	IdpUserExists       IdpErrorKind = "user_exists"
	IdpNotConfirmed     IdpErrorKind = "not_confirmed"
	IdpInvalidPassword  IdpErrorKind = "invalid_password"
	IdpCodeExpired      IdpErrorKind = "code_expired"
	IdpNextStepRequired IdpErrorKind = "next_step_required"
)

// IdpError is a provider rejection, surfaced to callers verbatim.
type IdpError struct {
	Kind    IdpErrorKind
	Message string
	Err     error
}

// NewIdpError builds a provider error of the given kind.
func NewIdpError(kind IdpErrorKind, message string) *IdpError {
	return &IdpError{Kind: kind, Message: message}
}

func (e *IdpError) Error() string {
	if e.Message == "" {
		return "identity provider: " + string(e.Kind)
	}
	return fmt.Sprintf("identity provider: %s: %s", e.Kind, e.Message)
}

func (e *IdpError) Unwrap() error { return e.Err }

func (e *IdpError) Is(target error) bool { return target == ErrIdp }

// IsKind reports whether err is a provider error of the given kind.
func IsKind(err error, kind IdpErrorKind) bool {
	var idpErr *IdpError
	return errors.As(err, &idpErr) && idpErr.Kind == kind
}

// KindOf returns the provider error kind of err, or "" when err is not a
// provider error.
func KindOf(err error) IdpErrorKind {
	var idpErr *IdpError
	if errors.As(err, &idpErr) {
		return idpErr.Kind
	}
	return ""
}

// normalizeIdpError wraps anything that is not already an *IdpError as
// IdpUnknown so every provider failure is reported with a kind.
func normalizeIdpError(err error) error {
	if err == nil {
		return nil
	}
	var idpErr *IdpError
	if errors.As(err, &idpErr) {
		return err
	}
	return &IdpError{Kind: IdpUnknown, Message: err.Error(), Err: err}
}

var (
	errNextStepRequired = NewIdpError(IdpNextStepRequired, "sign-in requires an additional step")
	errSessionMissing   = NewIdpError(IdpNotAuthorized, "no session after sign-in")
)

// PostConfirmSignInError is returned by ConfirmSignUp when the account was
// confirmed but the automatic sign-in failed. Callers should route the user to
// manual login instead of treating the confirmation as failed.
type PostConfirmSignInError struct {
	Err error
}

func (e *PostConfirmSignInError) Error() string {
	return "authflow: account confirmed but sign-in failed: " + e.Err.Error()
}

func (e *PostConfirmSignInError) Unwrap() error { return e.Err }
