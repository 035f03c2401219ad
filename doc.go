// Package authflow provides a client-side authentication flow controller: a
// state machine that drives sign-up, OTP confirmation, sign-in, sign-out and
// password reset against an external identity provider, and keeps one
// authoritative [SessionVerdict] in step with the provider's session events.
//
// Controller, SignupFlow and ResetFlow methods are safe to call from multiple
// goroutines after [Builder.Build]. Each flow instance admits one mutating
// operation at a time; a concurrent call fails fast with [ErrBusy].
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Controller], [Builder], [Config],
// the [IdentityProvider] contract and value types (SessionVerdict, SignupState,
// ResetState, MetricsSnapshot). Flow orchestration, the busy gate, state
// broadcasting and audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Retry a provider call on its own. Retries are user-initiated.
//   - Cancel a provider call when the caller's context ends. The call
//     completes and its result is applied; only the wait is abandoned.
//   - Persist credentials. Drafts live in memory for one flow instance.
//   - Import any sub-package that re-imports authflow (no import cycles).
package authflow
