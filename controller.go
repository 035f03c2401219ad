package authflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/gate"
	"github.com/MrEthical07/authflow/internal/watch"
	"golang.org/x/sync/singleflight"
)

// Controller owns the session verdict and the single provider event
// subscription, and creates the per-screen SignupFlow and ResetFlow
// instances. Build one with [New].
type Controller struct {
	config   Config
	provider IdentityProvider
	logger   *slog.Logger
	metrics  *Metrics
	audit    *internalaudit.Dispatcher

	sessionGate gate.Gate

	verdict   *watch.Value[SessionVerdict]
	verdictMu sync.Mutex
	// epoch advances whenever a sign-in or sign-out decides the verdict.
	// A reconcile that started in an older epoch is discarded.
	epoch      uint64
	reconciles singleflight.Group
	eventSeq   atomic.Uint64

	kinds  map[EventKind]struct{}
	events chan EventKind
	stop   chan struct{}
	done   chan struct{}

	mu          sync.Mutex
	started     bool
	unsubscribe func()
	closed      atomic.Bool
	closeOnce   sync.Once
}

type reconcileResult struct {
	verdict  SessionVerdict
	eventSeq uint64
}

// Start subscribes to provider events and performs the startup reconcile.
// It may be called once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.unsubscribe = c.provider.Subscribe(c.onProviderEvent, c.config.Events.Kinds...)
	go c.listen()
	c.mu.Unlock()

	verdict := c.ReconcileSession(ctx)
	c.logger.LogAttrs(ctx, slog.LevelInfo, "controller started", slog.String("verdict", verdict.String()))
	return nil
}

// Close removes the provider subscription, stops the event listener and
// flushes pending audit events. Verdict watchers are closed. Close is
// idempotent.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		started := c.started
		unsubscribe := c.unsubscribe
		c.unsubscribe = nil
		c.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		close(c.stop)
		if started {
			<-c.done
		}

		c.audit.Close()
		c.verdict.Close()
		c.logger.Info("controller closed")
	})
}

// Verdict returns the cached session verdict.
func (c *Controller) Verdict() SessionVerdict {
	return c.verdict.Load()
}

// WatchVerdict returns a channel that receives the current verdict and every
// later change. Slow readers only see the newest verdict. Call cancel when
// done.
func (c *Controller) WatchVerdict() (<-chan SessionVerdict, func()) {
	return c.verdict.Subscribe()
}

// ReconcileSession queries the provider for the current session and caches
// the result. Concurrent callers share one query. The result is never
// Unknown: a failed query yields Unauthenticated. When ctx ends first the
// caller gets Unauthenticated while the shared query completes and still
// updates the cache.
func (c *Controller) ReconcileSession(ctx context.Context) SessionVerdict {
	res, err := c.reconcile(ctx)
	if err != nil {
		return Unauthenticated()
	}
	return res.verdict
}

func (c *Controller) reconcile(ctx context.Context) (reconcileResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return reconcileResult{}, err
	}

	pctx := context.WithoutCancel(ctx)
	ch := c.reconciles.DoChan("session", func() (any, error) {
		return c.fetchVerdict(pctx), nil
	})

	select {
	case r := <-ch:
		if r.Shared {
			c.metrics.Inc(MetricReconcileShared)
		}
		return r.Val.(reconcileResult), nil
	case <-ctx.Done():
		return reconcileResult{}, ctx.Err()
	}
}

func (c *Controller) fetchVerdict(ctx context.Context) reconcileResult {
	start := time.Now()
	epoch := c.currentEpoch()
	seq := c.eventSeq.Load()
	c.metrics.Inc(MetricReconcile)

	token, err := flows.RunFetchSession(ctx, c.sessionDeps())
	verdict := Unauthenticated()
	switch {
	case err != nil:
		c.metrics.Inc(MetricReconcileFailure)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "session reconcile failed, treating as signed out",
			slog.String("kind", string(KindOf(err))),
			slog.String("error", err.Error()),
		)
	case token != "":
		verdict = Authenticated(token)
	}
	c.metrics.Observe(MetricReconcileLatency, time.Since(start))

	applied, current := c.storeVerdictAt(epoch, verdict)
	if !applied {
		c.metrics.Inc(MetricReconcileDiscarded)
		c.logger.LogAttrs(ctx, slog.LevelDebug, "reconcile overtaken by newer verdict",
			slog.String("fetched", verdict.String()),
			slog.String("current", current.String()),
		)
	}

	c.emitAudit(ctx, flowSession, "", auditEventReconcile, err == nil, "", err, func() map[string]string {
		return map[string]string{
			"verdict": current.String(),
			"applied": boolLabel(applied),
		}
	})

	return reconcileResult{verdict: current, eventSeq: seq}
}

func (c *Controller) currentEpoch() uint64 {
	c.verdictMu.Lock()
	defer c.verdictMu.Unlock()
	return c.epoch
}

// setVerdict records a verdict decided by a sign-in or sign-out.
func (c *Controller) setVerdict(v SessionVerdict) {
	c.verdictMu.Lock()
	defer c.verdictMu.Unlock()
	c.epoch++
	c.verdict.Store(v)
}

// storeVerdictAt stores v only if no sign-in or sign-out completed since
// epoch was read. It returns the verdict in effect afterwards.
func (c *Controller) storeVerdictAt(epoch uint64, v SessionVerdict) (bool, SessionVerdict) {
	c.verdictMu.Lock()
	defer c.verdictMu.Unlock()
	if c.epoch != epoch {
		return false, c.verdict.Load()
	}
	c.verdict.Store(v)
	return true, v
}

// onProviderEvent runs on the provider's delivery goroutine and must not
// block.
func (c *Controller) onProviderEvent(ev Event) {
	if _, ok := c.kinds[ev.Kind]; !ok {
		return
	}
	c.metrics.Inc(MetricProviderEvent)
	c.eventSeq.Add(1)

	select {
	case c.events <- ev.Kind:
	default:
		// A reconcile is already pending and will observe this change.
	}
}

func (c *Controller) listen() {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return
		case kind := <-c.events:
			c.logger.LogAttrs(context.Background(), slog.LevelDebug, "provider event", slog.String("kind", kind.String()))
			c.reconcileAfterEvent()
		}
	}
}

// reconcileAfterEvent makes sure the verdict reflects a query that started
// after the latest event. Joining a query that was already in flight when
// the event arrived is not enough.
func (c *Controller) reconcileAfterEvent() {
	c.reconcileSince(context.Background(), c.eventSeq.Load())
}

// reconcileFresh is ReconcileSession for callers that just changed the
// provider session themselves: a query already in flight may predate the
// change, so the result must come from one started after this call.
func (c *Controller) reconcileFresh(ctx context.Context) SessionVerdict {
	return c.reconcileSince(ctx, c.eventSeq.Add(1))
}

// reconcileSince repeats the shared query until one that started at or after
// sequence want has completed.
func (c *Controller) reconcileSince(ctx context.Context, want uint64) SessionVerdict {
	for {
		res, err := c.reconcile(ctx)
		if err != nil {
			return Unauthenticated()
		}
		if res.eventSeq >= want {
			return res.verdict
		}
		select {
		case <-c.stop:
			return res.verdict
		default:
		}
	}
}

func (c *Controller) onAuditDrop(event internalaudit.Event) {
	c.metrics.Inc(MetricAuditDropped)
	c.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit event dropped", slog.String("event_type", event.EventType))
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (c *Controller) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// enter admits one operation through g or reports why it cannot run.
func (c *Controller) enter(ctx context.Context, g *gate.Gate, flow, flowID, op string) (gate.Ticket, error) {
	if c.closed.Load() {
		return gate.Ticket{}, ErrClosed
	}
	t, ok := g.TryEnter()
	if !ok {
		c.metrics.Inc(MetricBusyRejected)
		c.logOutcome(ctx, flow, flowID, op, ErrBusy)
		return gate.Ticket{}, ErrBusy
	}
	return t, nil
}

// await runs op detached from ctx cancellation and waits for it or for ctx.
// op always runs to completion and its effects are applied; the ticket is
// released when op returns.
func await[T any](ctx context.Context, ticket gate.Ticket, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		ticket.Leave()
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	pctx := context.WithoutCancel(ctx)
	go func() {
		defer ticket.Leave()
		v, err := op(pctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Controller) inputDeps() flows.InputDeps {
	return flows.InputDeps{
		TrimSpace: c.config.Input.TrimSpace,
		Invalid:   invalidField,
	}
}

func providerErrors() flows.ProviderErrors {
	return flows.ProviderErrors{
		Normalize: normalizeIdpError,
		IsAlreadyAuthenticated: func(err error) bool {
			return IsKind(err, IdpAlreadyAuthenticated)
		},
		NextStepRequired: errNextStepRequired,
		SessionMissing:   errSessionMissing,
	}
}

func (c *Controller) metricInc(id int) {
	c.metrics.Inc(MetricID(id))
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
