package authflow

import (
	"fmt"
	"time"
)

// VerdictKind tags a SessionVerdict.
type VerdictKind uint8

const (
	// VerdictUnknown means the session has not been determined yet.
	VerdictUnknown VerdictKind = iota
	VerdictUnauthenticated
	VerdictAuthenticated
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictUnknown:
		return "unknown"
	case VerdictUnauthenticated:
		return "unauthenticated"
	case VerdictAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("VerdictKind(%d)", uint8(k))
	}
}

// SessionVerdict is the controller's authoritative view of the session. The
// zero value is Unknown.
type SessionVerdict struct {
	kind  VerdictKind
	token string
}

func Unknown() SessionVerdict { return SessionVerdict{kind: VerdictUnknown} }

func Unauthenticated() SessionVerdict { return SessionVerdict{kind: VerdictUnauthenticated} }

func Authenticated(token string) SessionVerdict {
	return SessionVerdict{kind: VerdictAuthenticated, token: token}
}

func (v SessionVerdict) Kind() VerdictKind { return v.kind }

// Token returns the session token. It is empty unless the verdict is
// Authenticated.
func (v SessionVerdict) Token() string { return v.token }

func (v SessionVerdict) IsUnknown() bool { return v.kind == VerdictUnknown }

// Protected reports whether protected content may be rendered.
func (v SessionVerdict) Protected() bool { return v.kind == VerdictAuthenticated }

func (v SessionVerdict) String() string { return v.kind.String() }

// SignupStep is the step of a sign-up flow.
type SignupStep uint8

const (
	SignupIdle SignupStep = iota
	SignupAwaitingConfirmation
	SignupConfirmed
)

func (s SignupStep) String() string {
	switch s {
	case SignupIdle:
		return "idle"
	case SignupAwaitingConfirmation:
		return "awaiting_confirmation"
	case SignupConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("SignupStep(%d)", uint8(s))
	}
}

// SignupState is the observable state of a SignupFlow. The pending password is
// never part of it.
type SignupState struct {
	Step  SignupStep
	Email string

	// AdditionalStepRequired is set when the provider confirmed the account
	// but reported further steps before sign-in is possible.
	AdditionalStepRequired bool
	// ReadyToSignIn is set when the account is complete but no session was
	// established by the flow.
	ReadyToSignIn bool
}

// ResetStep is the step of a password reset flow.
type ResetStep uint8

const (
	ResetRequesting ResetStep = iota
	ResetAwaitingCode
	ResetDone
)

func (s ResetStep) String() string {
	switch s {
	case ResetRequesting:
		return "requesting"
	case ResetAwaitingCode:
		return "awaiting_code"
	case ResetDone:
		return "done"
	default:
		return fmt.Sprintf("ResetStep(%d)", uint8(s))
	}
}

type ResetState struct {
	Step  ResetStep
	Email string
}

// Draft is the transient credentials buffer of one flow instance.
type Draft struct {
	Name     string
	Email    string
	Password string
	Code     string
}

// IsZero reports whether the draft holds no data.
func (d Draft) IsZero() bool { return d == Draft{} }

// EventKind identifies a provider session event.
type EventKind uint8

const (
	EventSignedIn EventKind = iota + 1
	EventSignedOut
	EventAttributesUpdated
	// EventSessionExpired is delivered by providers whose sessions lapse.
	EventSessionExpired
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventAttributesUpdated:
		return "attributes_updated"
	case EventSessionExpired:
		return "session_expired"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

func (k EventKind) valid() bool {
	return k >= EventSignedIn && k <= EventSessionExpired
}

// Event is a session-changed notification from the provider.
type Event struct {
	Kind     EventKind
	Username string
	At       time.Time
}

// EventHandler receives provider events. Providers must not assume the
// handler is slow-safe; the controller's handler never blocks.
type EventHandler func(Event)
