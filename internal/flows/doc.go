// Package flows contains pure-function orchestrators for every Controller
// operation.
//
// Each flow function (RunBeginSignUp, RunConfirmSignUp, RunSignIn, ...) accepts
// a typed dependency struct, validates input, issues identity provider calls in
// the required order and classifies the results. It returns an outcome value;
// applying that outcome to flow state is the caller's job.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity provider, metrics and audit
// emission. They do NOT own flow state, the busy gate or the session verdict;
// ownership stays with the Controller.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authflow (to avoid import cycles).
//   - Retry a provider call. Retries are always user-initiated.
package flows
