package authflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/gate"
	"github.com/MrEthical07/authflow/internal/watch"
	"github.com/google/uuid"
)

// SignupFlow is one sign-up screen's state machine:
//
//	Idle --BeginSignUp(incomplete)--> AwaitingConfirmation --ConfirmSignUp--> Confirmed
//	Idle --BeginSignUp(complete)--> Confirmed
//
// Only ConfirmSignUp (or Reset) leaves AwaitingConfirmation.
type SignupFlow struct {
	c  *Controller
	id uuid.UUID

	gate gate.Gate

	mu    sync.Mutex
	draft Draft
	state *watch.Value[SignupState]
}

// NewSignupFlow creates a flow in SignupIdle. Create one per screen entry.
func (c *Controller) NewSignupFlow() *SignupFlow {
	f := &SignupFlow{
		c:     c,
		id:    uuid.New(),
		state: watch.New(SignupState{Step: SignupIdle}),
	}
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "flow created",
		slog.String("flow", flowSignup),
		slog.String("flow_id", f.id.String()),
	)
	return f
}

func (f *SignupFlow) ID() uuid.UUID { return f.id }

func (f *SignupFlow) State() SignupState { return f.state.Load() }

// Watch returns a channel with the current state and every later change.
func (f *SignupFlow) Watch() (<-chan SignupState, func()) { return f.state.Subscribe() }

// Draft returns a copy of the buffered credentials.
func (f *SignupFlow) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Reset returns the flow to SignupIdle and clears the draft, as when the
// user navigates away. Results of operations still in flight are not applied
// afterwards; the provider calls themselves are not cancelled and the flow
// stays busy until they finish.
func (f *SignupFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate.Invalidate()
	f.draft = Draft{}
	f.state.Store(SignupState{Step: SignupIdle})
}

// Close closes every watcher channel.
func (f *SignupFlow) Close() { f.state.Close() }

// BeginSignUp registers a new account. Name and email must be non-empty and
// the two passwords must match; otherwise a *ValidationError is returned and
// the provider is not called.
func (f *SignupFlow) BeginSignUp(ctx context.Context, name, email, password, confirmPassword string) (SignupState, error) {
	const op = "begin_sign_up"
	ticket, err := f.c.enter(ctx, &f.gate, flowSignup, f.id.String(), op)
	if err != nil {
		return f.State(), err
	}

	if st := f.State(); st.Step != SignupIdle {
		ticket.Leave()
		return st, f.rejectStep(ctx, op, st.Step)
	}

	req := flows.SignUpRequest{
		Name:            name,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	}
	return await(ctx, ticket, func(pctx context.Context) (SignupState, error) {
		out, err := flows.RunBeginSignUp(pctx, req, f.c.signupDeps(f.id.String()))
		f.c.logOutcome(pctx, flowSignup, f.id.String(), op, err)
		if err != nil {
			return f.State(), err
		}

		return f.commit(pctx, ticket, func(d *Draft) SignupState {
			if out.Complete {
				*d = Draft{}
				return SignupState{Step: SignupConfirmed, Email: out.Email, ReadyToSignIn: true}
			}
			*d = Draft{Name: out.Name, Email: out.Email, Password: out.Password}
			return SignupState{Step: SignupAwaitingConfirmation, Email: out.Email}
		}), nil
	})
}

// ConfirmSignUp submits the confirmation code. It is only allowed in
// SignupAwaitingConfirmation.
//
// When the confirmation completes the account and Config.Signup.AutoSignIn
// is set, the flow signs in with the buffered credentials. A provider that
// already established a session counts as success. Any other sign-in
// failure leaves the flow Confirmed and returns *PostConfirmSignInError.
// The draft is cleared once the flow leaves AwaitingConfirmation.
func (f *SignupFlow) ConfirmSignUp(ctx context.Context, code string) (SignupState, error) {
	const op = "confirm_sign_up"
	ticket, err := f.c.enter(ctx, &f.gate, flowSignup, f.id.String(), op)
	if err != nil {
		return f.State(), err
	}

	// The pending password is read here, before anything can clear it.
	f.mu.Lock()
	st := f.state.Load()
	draft := f.draft
	f.mu.Unlock()

	if st.Step != SignupAwaitingConfirmation {
		ticket.Leave()
		return st, f.rejectStep(ctx, op, st.Step)
	}

	req := flows.ConfirmSignUpRequest{
		Email:    st.Email,
		Password: draft.Password,
		Code:     code,
	}
	return await(ctx, ticket, func(pctx context.Context) (SignupState, error) {
		out, err := flows.RunConfirmSignUp(pctx, req, f.c.signupDeps(f.id.String()))
		f.c.logOutcome(pctx, flowSignup, f.id.String(), op, err)

		var postConfirm *PostConfirmSignInError
		if err != nil && !errors.As(err, &postConfirm) {
			return f.State(), err
		}

		next := SignupState{Step: SignupConfirmed, Email: st.Email}
		switch {
		case !out.Complete:
			next.AdditionalStepRequired = true
		case !out.AutoSignIn, postConfirm != nil:
			next.ReadyToSignIn = true
		}

		state := f.commit(pctx, ticket, func(d *Draft) SignupState {
			*d = Draft{}
			return next
		})

		// The session is process-wide, so it is updated even when the
		// screen has gone away.
		switch {
		case out.SignedIn && out.Token != "":
			f.c.setVerdict(Authenticated(out.Token))
		case out.SignedIn, out.AlreadyAuthenticated:
			f.c.reconcileFresh(pctx)
		}

		return state, err
	})
}

// commit applies fn to the draft and publishes the returned state, unless
// the flow was reset after ticket was issued.
func (f *SignupFlow) commit(ctx context.Context, ticket gate.Ticket, fn func(*Draft) SignupState) SignupState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !ticket.Current() {
		f.c.metrics.Inc(MetricStaleResultDropped)
		f.c.logger.LogAttrs(ctx, slog.LevelDebug, "result dropped after reset",
			slog.String("flow", flowSignup),
			slog.String("flow_id", f.id.String()),
		)
		return f.state.Load()
	}

	next := fn(&f.draft)
	f.state.Store(next)
	return next
}

func (f *SignupFlow) rejectStep(ctx context.Context, op string, step SignupStep) error {
	err := invalidStep(op, step)
	f.c.metrics.Inc(MetricValidationFailure)
	f.c.logOutcome(ctx, flowSignup, f.id.String(), op, err)
	return err
}

func (c *Controller) signupDeps(flowID string) flows.SignupDeps {
	return flows.SignupDeps{
		Input:      c.inputDeps(),
		Errors:     providerErrors(),
		AutoSignIn: c.config.Signup.AutoSignIn,

		SignUp: func(ctx context.Context, username, password string, attributes map[string]string) (bool, error) {
			res, err := c.provider.SignUp(ctx, username, password, attributes)
			return res.Complete, err
		},
		ConfirmSignUp: func(ctx context.Context, username, code string) (bool, error) {
			res, err := c.provider.ConfirmSignUp(ctx, username, code)
			return res.Complete, err
		},
		SignIn: func(ctx context.Context, username, password string) (flows.SignInOutcome, error) {
			res, err := c.provider.SignIn(ctx, username, password)
			return flows.SignInOutcome{Authenticated: res.Authenticated, Token: res.Token}, err
		},
		WrapPostConfirm: func(err error) error {
			return &PostConfirmSignInError{Err: err}
		},

		MetricInc: c.metricInc,
		EmitAudit: c.auditFunc(flowSignup, flowID),

		Metrics: flows.SignupMetrics{
			SignUpSuccess:      int(MetricSignUpSuccess),
			SignUpFailure:      int(MetricSignUpFailure),
			ConfirmSuccess:     int(MetricConfirmSignUpSuccess),
			ConfirmFailure:     int(MetricConfirmSignUpFailure),
			AutoSignInSuccess:  int(MetricAutoSignInSuccess),
			AutoSignInFailure:  int(MetricAutoSignInFailure),
			ValidationFailures: int(MetricValidationFailure),
		},
		Events: flows.SignupEvents{
			SignUp:     auditEventSignUp,
			Confirm:    auditEventConfirmSignUp,
			AutoSignIn: auditEventAutoSignIn,
		},
	}
}
