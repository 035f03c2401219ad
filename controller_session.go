package authflow

import (
	"context"

	"github.com/MrEthical07/authflow/internal/flows"
)

// SignIn signs out any existing session and then signs in with email and
// password.
//
// The sign-out first is a deliberate product choice: a failed sign-in must
// never leave an earlier session visible as authenticated. If that sign-out
// fails the sign-in is not attempted and the verdict is unchanged. A
// provider rejection of the sign-in itself sets the verdict to
// Unauthenticated.
func (c *Controller) SignIn(ctx context.Context, email, password string) (SessionVerdict, error) {
	ticket, err := c.enter(ctx, &c.sessionGate, flowSession, "", "sign_in")
	if err != nil {
		return c.Verdict(), err
	}

	return await(ctx, ticket, func(pctx context.Context) (SessionVerdict, error) {
		res, err := flows.RunSignIn(pctx, flows.SignInRequest{Email: email, Password: password}, c.sessionDeps())
		c.logOutcome(pctx, flowSession, "", "sign_in", err)
		switch {
		case err == nil:
			v := Authenticated(res.Token)
			c.setVerdict(v)
			return v, nil
		case res.SignedOut:
			c.setVerdict(Unauthenticated())
			return Unauthenticated(), err
		default:
			return c.Verdict(), err
		}
	})
}

// SignOut ends the current session. Signing out without a session succeeds.
func (c *Controller) SignOut(ctx context.Context) error {
	ticket, err := c.enter(ctx, &c.sessionGate, flowSession, "", "sign_out")
	if err != nil {
		return err
	}

	_, err = await(ctx, ticket, func(pctx context.Context) (struct{}, error) {
		err := flows.RunSignOut(pctx, c.sessionDeps())
		c.logOutcome(pctx, flowSession, "", "sign_out", err)
		if err == nil {
			c.setVerdict(Unauthenticated())
		}
		return struct{}{}, err
	})
	return err
}

func (c *Controller) sessionDeps() flows.SessionDeps {
	return flows.SessionDeps{
		Input:  c.inputDeps(),
		Errors: providerErrors(),

		SignOut: c.provider.SignOut,
		SignIn: func(ctx context.Context, username, password string) (flows.SignInOutcome, error) {
			res, err := c.provider.SignIn(ctx, username, password)
			return flows.SignInOutcome{Authenticated: res.Authenticated, Token: res.Token}, err
		},
		FetchToken: func(ctx context.Context) (string, error) {
			s, err := c.provider.FetchSession(ctx)
			return s.Token, err
		},

		MetricInc: c.metricInc,
		EmitAudit: c.auditFunc(flowSession, ""),

		Metrics: flows.SessionMetrics{
			SignInSuccess:      int(MetricSignInSuccess),
			SignInFailure:      int(MetricSignInFailure),
			SignOutSuccess:     int(MetricSignOutSuccess),
			SignOutFailure:     int(MetricSignOutFailure),
			ValidationFailures: int(MetricValidationFailure),
		},
		Events: flows.SessionEvents{
			SignIn:  auditEventSignIn,
			SignOut: auditEventSignOut,
		},
	}
}
