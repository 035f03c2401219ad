package flows

import "context"

// SignUpRequest is the raw sign-up form.
type SignUpRequest struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignUpOutcome is the validated form plus the provider's completion flag.
type SignUpOutcome struct {
	Name     string
	Email    string
	Password string
	Complete bool
}

// ConfirmSignUpRequest carries the buffered credentials of a pending sign-up
// together with the submitted code. Password must be read from the draft
// before the draft is cleared.
type ConfirmSignUpRequest struct {
	Email    string
	Password string
	Code     string
}

// ConfirmSignUpOutcome describes which branch a successful confirmation took.
type ConfirmSignUpOutcome struct {
	// Complete is false when the provider requires further steps.
	Complete bool
	// AutoSignIn reports whether an automatic sign-in was attempted.
	AutoSignIn bool
	// SignedIn is true when the automatic sign-in established a session.
	SignedIn bool
	// AlreadyAuthenticated is true when the provider had already established
	// a session during confirmation.
	AlreadyAuthenticated bool
	// Token is the session token returned by the automatic sign-in, if any.
	Token string
}

type SignupMetrics struct {
	SignUpSuccess      int
	SignUpFailure      int
	ConfirmSuccess     int
	ConfirmFailure     int
	AutoSignInSuccess  int
	AutoSignInFailure  int
	ValidationFailures int
}

type SignupEvents struct {
	SignUp     string
	Confirm    string
	AutoSignIn string
}

// SignupDeps captures sign-up and confirmation flow dependencies.
type SignupDeps struct {
	Input      InputDeps
	Errors     ProviderErrors
	AutoSignIn bool

	SignUp        func(ctx context.Context, username, password string, attributes map[string]string) (bool, error)
	ConfirmSignUp func(ctx context.Context, username, code string) (bool, error)
	SignIn        func(ctx context.Context, username, password string) (SignInOutcome, error)

	// WrapPostConfirm marks a sign-in failure that happened after a
	// successful confirmation.
	WrapPostConfirm func(error) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics SignupMetrics
	Events  SignupEvents
}

// RunBeginSignUp validates the sign-up form and registers the account.
func RunBeginSignUp(ctx context.Context, req SignUpRequest, deps SignupDeps) (SignUpOutcome, error) {
	normalizeSignupDeps(&deps)

	out := SignUpOutcome{
		Name:     deps.Input.clean(req.Name),
		Email:    deps.Input.clean(req.Email),
		Password: req.Password,
	}

	if err := validateSignUp(out, req.ConfirmPassword, deps.Input); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return SignUpOutcome{}, err
	}

	attributes := map[string]string{
		"email": out.Email,
		"name":  out.Name,
	}
	complete, err := deps.SignUp(ctx, out.Email, out.Password, attributes)
	if err != nil {
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.SignUpFailure)
		deps.EmitAudit(ctx, deps.Events.SignUp, false, out.Email, mapped, nil)
		return SignUpOutcome{}, mapped
	}

	out.Complete = complete
	deps.MetricInc(deps.Metrics.SignUpSuccess)
	deps.EmitAudit(ctx, deps.Events.SignUp, true, out.Email, nil, func() map[string]string {
		return map[string]string{
			"complete": boolString(complete),
		}
	})
	return out, nil
}

func validateSignUp(out SignUpOutcome, confirmPassword string, in InputDeps) error {
	if err := in.require(FieldName, out.Name); err != nil {
		return err
	}
	if err := in.require(FieldEmail, out.Email); err != nil {
		return err
	}
	if err := in.require(FieldPassword, out.Password); err != nil {
		return err
	}
	if err := in.require(FieldConfirmPassword, confirmPassword); err != nil {
		return err
	}
	if out.Password != confirmPassword {
		return in.Invalid(FieldConfirmPassword, "does not match password")
	}
	return nil
}

// RunConfirmSignUp submits the confirmation code and, when the provider
// reports completion, signs in with the buffered credentials.
//
// A provider failure on ConfirmSignUp is returned with a zero outcome. Once
// confirmation succeeded the returned outcome is always meaningful, even
// when err is a post-confirmation sign-in failure.
func RunConfirmSignUp(ctx context.Context, req ConfirmSignUpRequest, deps SignupDeps) (ConfirmSignUpOutcome, error) {
	normalizeSignupDeps(&deps)

	code := deps.Input.clean(req.Code)
	if err := deps.Input.require(FieldCode, code); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return ConfirmSignUpOutcome{}, err
	}

	complete, err := deps.ConfirmSignUp(ctx, req.Email, code)
	if err != nil {
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, req.Email, mapped, nil)
		return ConfirmSignUpOutcome{}, mapped
	}

	deps.MetricInc(deps.Metrics.ConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, req.Email, nil, func() map[string]string {
		return map[string]string{
			"complete": boolString(complete),
		}
	})

	out := ConfirmSignUpOutcome{Complete: complete}
	if !complete || !deps.AutoSignIn {
		return out, nil
	}

	// No sign-out first: a session the provider established during
	// confirmation must surface as AlreadyAuthenticated.
	out.AutoSignIn = true
	res, err := deps.SignIn(ctx, req.Email, req.Password)
	switch {
	case err != nil && deps.Errors.IsAlreadyAuthenticated(err):
		out.AlreadyAuthenticated = true
	case err != nil:
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.AutoSignInFailure)
		deps.EmitAudit(ctx, deps.Events.AutoSignIn, false, req.Email, mapped, nil)
		return out, deps.WrapPostConfirm(mapped)
	case !res.Authenticated:
		deps.MetricInc(deps.Metrics.AutoSignInFailure)
		deps.EmitAudit(ctx, deps.Events.AutoSignIn, false, req.Email, deps.Errors.NextStepRequired, nil)
		return out, deps.WrapPostConfirm(deps.Errors.NextStepRequired)
	default:
		out.SignedIn = true
		out.Token = res.Token
	}

	deps.MetricInc(deps.Metrics.AutoSignInSuccess)
	deps.EmitAudit(ctx, deps.Events.AutoSignIn, true, req.Email, nil, func() map[string]string {
		return map[string]string{
			"already_authenticated": boolString(out.AlreadyAuthenticated),
		}
	})
	return out, nil
}

func normalizeSignupDeps(deps *SignupDeps) {
	normalizeInput(&deps.Input)
	normalizeProviderErrors(&deps.Errors)
	if deps.WrapPostConfirm == nil {
		deps.WrapPostConfirm = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
