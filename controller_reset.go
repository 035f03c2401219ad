package authflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/gate"
	"github.com/MrEthical07/authflow/internal/watch"
	"github.com/google/uuid"
)

// ResetFlow is one forgot-password screen's state machine:
//
//	Requesting --BeginPasswordReset(code required)--> AwaitingCode --ConfirmPasswordReset--> Done
//	Requesting --BeginPasswordReset(done)--> Done
type ResetFlow struct {
	c  *Controller
	id uuid.UUID

	gate gate.Gate

	mu    sync.Mutex
	draft Draft
	state *watch.Value[ResetState]
}

// NewResetFlow creates a flow in ResetRequesting.
func (c *Controller) NewResetFlow() *ResetFlow {
	f := &ResetFlow{
		c:     c,
		id:    uuid.New(),
		state: watch.New(ResetState{Step: ResetRequesting}),
	}
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "flow created",
		slog.String("flow", flowReset),
		slog.String("flow_id", f.id.String()),
	)
	return f
}

func (f *ResetFlow) ID() uuid.UUID { return f.id }

func (f *ResetFlow) State() ResetState { return f.state.Load() }

func (f *ResetFlow) Watch() (<-chan ResetState, func()) { return f.state.Subscribe() }

func (f *ResetFlow) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Reset returns the flow to ResetRequesting and clears the draft. See
// [SignupFlow.Reset].
func (f *ResetFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate.Invalidate()
	f.draft = Draft{}
	f.state.Store(ResetState{Step: ResetRequesting})
}

func (f *ResetFlow) Close() { f.state.Close() }

// BeginPasswordReset asks the provider to start a reset for email.
func (f *ResetFlow) BeginPasswordReset(ctx context.Context, email string) (ResetState, error) {
	const op = "begin_password_reset"
	ticket, err := f.c.enter(ctx, &f.gate, flowReset, f.id.String(), op)
	if err != nil {
		return f.State(), err
	}

	if st := f.State(); st.Step != ResetRequesting {
		ticket.Leave()
		return st, f.rejectStep(ctx, op, st.Step)
	}

	return await(ctx, ticket, func(pctx context.Context) (ResetState, error) {
		out, err := flows.RunBeginPasswordReset(pctx, email, f.c.resetDeps(f.id.String()))
		f.c.logOutcome(pctx, flowReset, f.id.String(), op, err)
		if err != nil {
			return f.State(), err
		}

		return f.commit(pctx, ticket, func(d *Draft) ResetState {
			if !out.CodeRequired {
				*d = Draft{}
				return ResetState{Step: ResetDone, Email: out.Email}
			}
			*d = Draft{Email: out.Email}
			return ResetState{Step: ResetAwaitingCode, Email: out.Email}
		}), nil
	})
}

// ConfirmPasswordReset sets newPassword using the emailed code. It is only
// allowed in ResetAwaitingCode.
func (f *ResetFlow) ConfirmPasswordReset(ctx context.Context, code, newPassword string) (ResetState, error) {
	const op = "confirm_password_reset"
	ticket, err := f.c.enter(ctx, &f.gate, flowReset, f.id.String(), op)
	if err != nil {
		return f.State(), err
	}

	st := f.State()
	if st.Step != ResetAwaitingCode {
		ticket.Leave()
		return st, f.rejectStep(ctx, op, st.Step)
	}

	req := flows.ConfirmResetRequest{
		Email:       st.Email,
		Code:        code,
		NewPassword: newPassword,
	}
	return await(ctx, ticket, func(pctx context.Context) (ResetState, error) {
		err := flows.RunConfirmPasswordReset(pctx, req, f.c.resetDeps(f.id.String()))
		f.c.logOutcome(pctx, flowReset, f.id.String(), op, err)
		if err != nil {
			return f.State(), err
		}

		return f.commit(pctx, ticket, func(d *Draft) ResetState {
			*d = Draft{}
			return ResetState{Step: ResetDone}
		}), nil
	})
}

func (f *ResetFlow) commit(ctx context.Context, ticket gate.Ticket, fn func(*Draft) ResetState) ResetState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !ticket.Current() {
		f.c.metrics.Inc(MetricStaleResultDropped)
		f.c.logger.LogAttrs(ctx, slog.LevelDebug, "result dropped after reset",
			slog.String("flow", flowReset),
			slog.String("flow_id", f.id.String()),
		)
		return f.state.Load()
	}

	next := fn(&f.draft)
	f.state.Store(next)
	return next
}

func (f *ResetFlow) rejectStep(ctx context.Context, op string, step ResetStep) error {
	err := invalidStep(op, step)
	f.c.metrics.Inc(MetricValidationFailure)
	f.c.logOutcome(ctx, flowReset, f.id.String(), op, err)
	return err
}

func (c *Controller) resetDeps(flowID string) flows.ResetDeps {
	return flows.ResetDeps{
		Input:  c.inputDeps(),
		Errors: providerErrors(),

		ResetPassword: func(ctx context.Context, username string) (bool, error) {
			res, err := c.provider.ResetPassword(ctx, username)
			return res.CodeRequired, err
		},
		ConfirmResetPassword: c.provider.ConfirmResetPassword,

		MetricInc: c.metricInc,
		EmitAudit: c.auditFunc(flowReset, flowID),

		Metrics: flows.ResetMetrics{
			ResetRequestSuccess: int(MetricPasswordResetRequest),
			ResetRequestFailure: int(MetricPasswordResetRequestFailure),
			ResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			ResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			ValidationFailures:  int(MetricValidationFailure),
		},
		Events: flows.ResetEvents{
			ResetRequest: auditEventPasswordResetRequest,
			ResetConfirm: auditEventPasswordResetConfirm,
		},
	}
}
