package flows

import "context"

// SignInRequest is the raw login form.
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResult is the outcome of RunSignIn.
type SignInResult struct {
	// SignedOut reports whether the prior session was cleared. When it is
	// false the sign-in itself was never attempted.
	SignedOut bool
	Token     string
}

type SessionMetrics struct {
	SignInSuccess      int
	SignInFailure      int
	SignOutSuccess     int
	SignOutFailure     int
	ValidationFailures int
}

type SessionEvents struct {
	SignIn  string
	SignOut string
}

// SessionDeps captures sign-in and sign-out flow dependencies.
type SessionDeps struct {
	Input  InputDeps
	Errors ProviderErrors

	SignOut    func(ctx context.Context) error
	SignIn     func(ctx context.Context, username, password string) (SignInOutcome, error)
	FetchToken func(ctx context.Context) (string, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics SessionMetrics
	Events  SessionEvents
}

// RunSignIn clears any existing session and then signs in.
//
// The sign-out before sign-in is a deliberate product rule: a failed sign-in
// must never leave an earlier session visible as authenticated. Revisit with
// product before dropping it.
func RunSignIn(ctx context.Context, req SignInRequest, deps SessionDeps) (SignInResult, error) {
	normalizeSessionDeps(&deps)

	email := deps.Input.clean(req.Email)
	password := req.Password
	if err := deps.Input.require(FieldEmail, email); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return SignInResult{}, err
	}
	if err := deps.Input.require(FieldPassword, password); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return SignInResult{}, err
	}

	if err := deps.SignOut(ctx); err != nil {
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.SignOutFailure)
		deps.EmitAudit(ctx, deps.Events.SignOut, false, email, mapped, func() map[string]string {
			return map[string]string{
				"reason": "pre_sign_in",
			}
		})
		return SignInResult{}, mapped
	}

	out := SignInResult{SignedOut: true}
	res, err := deps.SignIn(ctx, email, password)
	if err != nil {
		return out, signInFailed(ctx, email, deps.Errors.Normalize(err), deps)
	}
	if !res.Authenticated {
		return out, signInFailed(ctx, email, deps.Errors.NextStepRequired, deps)
	}

	token := res.Token
	if token == "" {
		token, err = deps.FetchToken(ctx)
		if err != nil {
			return out, signInFailed(ctx, email, deps.Errors.Normalize(err), deps)
		}
		if token == "" {
			return out, signInFailed(ctx, email, deps.Errors.SessionMissing, deps)
		}
	}

	out.Token = token
	deps.MetricInc(deps.Metrics.SignInSuccess)
	deps.EmitAudit(ctx, deps.Events.SignIn, true, email, nil, nil)
	return out, nil
}

func signInFailed(ctx context.Context, email string, err error, deps SessionDeps) error {
	deps.MetricInc(deps.Metrics.SignInFailure)
	deps.EmitAudit(ctx, deps.Events.SignIn, false, email, err, nil)
	return err
}

// RunSignOut signs the current device out. Providers treat sign-out without a
// session as success.
func RunSignOut(ctx context.Context, deps SessionDeps) error {
	normalizeSessionDeps(&deps)

	if err := deps.SignOut(ctx); err != nil {
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.SignOutFailure)
		deps.EmitAudit(ctx, deps.Events.SignOut, false, "", mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.SignOutSuccess)
	deps.EmitAudit(ctx, deps.Events.SignOut, true, "", nil, nil)
	return nil
}

// RunFetchSession returns the current session token, or "" when no session
// exists.
func RunFetchSession(ctx context.Context, deps SessionDeps) (string, error) {
	normalizeSessionDeps(&deps)

	token, err := deps.FetchToken(ctx)
	if err != nil {
		return "", deps.Errors.Normalize(err)
	}
	return token, nil
}

func normalizeSessionDeps(deps *SessionDeps) {
	normalizeInput(&deps.Input)
	normalizeProviderErrors(&deps.Errors)
	if deps.FetchToken == nil {
		deps.FetchToken = func(context.Context) (string, error) { return "", nil }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
