package flows

import "context"

// ResetOutcome is the result of requesting a password reset.
type ResetOutcome struct {
	Email        string
	CodeRequired bool
}

// ConfirmResetRequest carries the buffered email and the submitted form.
type ConfirmResetRequest struct {
	Email       string
	Code        string
	NewPassword string
}

type ResetMetrics struct {
	ResetRequestSuccess int
	ResetRequestFailure int
	ResetConfirmSuccess int
	ResetConfirmFailure int
	ValidationFailures  int
}

type ResetEvents struct {
	ResetRequest string
	ResetConfirm string
}

// ResetDeps captures password reset flow dependencies.
type ResetDeps struct {
	Input  InputDeps
	Errors ProviderErrors

	ResetPassword        func(ctx context.Context, username string) (bool, error)
	ConfirmResetPassword func(ctx context.Context, username, code, newPassword string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics ResetMetrics
	Events  ResetEvents
}

func RunBeginPasswordReset(ctx context.Context, email string, deps ResetDeps) (ResetOutcome, error) {
	normalizeResetDeps(&deps)

	email = deps.Input.clean(email)
	if err := deps.Input.require(FieldEmail, email); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return ResetOutcome{}, err
	}

	codeRequired, err := deps.ResetPassword(ctx, email)
	if err != nil {
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.ResetRequestFailure)
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, email, mapped, nil)
		return ResetOutcome{}, mapped
	}

	deps.MetricInc(deps.Metrics.ResetRequestSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetRequest, true, email, nil, func() map[string]string {
		return map[string]string{
			"code_required": boolString(codeRequired),
		}
	})
	return ResetOutcome{Email: email, CodeRequired: codeRequired}, nil
}

func RunConfirmPasswordReset(ctx context.Context, req ConfirmResetRequest, deps ResetDeps) error {
	normalizeResetDeps(&deps)

	code := deps.Input.clean(req.Code)
	newPassword := deps.Input.clean(req.NewPassword)
	if err := deps.Input.require(FieldCode, code); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return err
	}
	if err := deps.Input.require(FieldNewPassword, newPassword); err != nil {
		deps.MetricInc(deps.Metrics.ValidationFailures)
		return err
	}

	if err := deps.ConfirmResetPassword(ctx, req.Email, code, newPassword); err != nil {
		mapped := deps.Errors.Normalize(err)
		deps.MetricInc(deps.Metrics.ResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, req.Email, mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.ResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetConfirm, true, req.Email, nil, nil)
	return nil
}

func normalizeResetDeps(deps *ResetDeps) {
	normalizeInput(&deps.Input)
	normalizeProviderErrors(&deps.Errors)
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
