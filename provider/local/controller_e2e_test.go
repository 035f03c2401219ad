package local_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/provider/local"
)

type harness struct {
	provider *local.Provider
	sender   *local.MemorySender
	flow     *authflow.Controller
}

func newHarness(t *testing.T, cfg local.Config) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewHasher(password.FastConfig())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := local.NewMemorySender()
	p, err := local.New(rdb, newTokens(t), cfg,
		local.WithHasher(hasher),
		local.WithCodeSender(sender),
		local.WithLogger(logger),
	)
	require.NoError(t, err)

	c, err := authflow.New().WithProvider(p).WithLogger(logger).Build()
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	t.Cleanup(func() {
		c.Close()
		p.Close()
	})
	return &harness{provider: p, sender: sender, flow: c}
}

func (h *harness) signUp(t *testing.T, email, pw string) *authflow.SignupFlow {
	t.Helper()
	f := h.flow.NewSignupFlow()
	st, err := f.BeginSignUp(context.Background(), "Ann", email, pw, pw)
	require.NoError(t, err)
	require.Equal(t, authflow.SignupAwaitingConfirmation, st.Step)
	return f
}

func (h *harness) code(t *testing.T, email string, purpose local.CodePurpose) string {
	t.Helper()
	code, ok := h.sender.Last(email, purpose)
	require.True(t, ok)
	return code
}

func TestSignUpWithProviderSessionOnConfirm(t *testing.T) {
	cfg := testConfig()
	cfg.AutoSessionOnConfirm = true
	h := newHarness(t, cfg)
	ctx := context.Background()

	assert.Equal(t, authflow.Unauthenticated(), h.flow.Verdict())

	f := h.signUp(t, testEmail, testPassword)
	st, err := f.ConfirmSignUp(ctx, " "+h.code(t, testEmail, local.CodeSignUp)+" ")
	require.NoError(t, err)
	assert.Equal(t, authflow.SignupConfirmed, st.Step)
	assert.False(t, st.ReadyToSignIn)
	assert.True(t, f.Draft().IsZero())

	v := h.flow.Verdict()
	require.Equal(t, authflow.VerdictAuthenticated, v.Kind())
	sess, err := h.provider.FetchSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, v.Token())
}

func TestSignUpWithAutomaticSignIn(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	f := h.signUp(t, testEmail, testPassword)

	_, err := f.ConfirmSignUp(ctx, "000000x")
	require.Error(t, err)
	assert.Equal(t, authflow.SignupAwaitingConfirmation, f.State().Step)

	st, err := f.ConfirmSignUp(ctx, h.code(t, testEmail, local.CodeSignUp))
	require.NoError(t, err)
	assert.Equal(t, authflow.SignupConfirmed, st.Step)
	assert.True(t, h.flow.Verdict().Protected())
}

func TestSignInReplacesSessionAndFailsClosed(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	f := h.signUp(t, testEmail, testPassword)
	_, err := f.ConfirmSignUp(ctx, h.code(t, testEmail, local.CodeSignUp))
	require.NoError(t, err)
	require.True(t, h.flow.Verdict().Protected())

	// Signing in again succeeds because the controller signs out first.
	v, err := h.flow.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, v.Protected())

	// A failed sign-in leaves nobody signed in.
	_, err = h.flow.SignIn(ctx, testEmail, "wrong-password")
	assert.True(t, authflow.IsKind(err, authflow.IdpNotAuthorized))
	assert.Equal(t, authflow.Unauthenticated(), h.flow.Verdict())
	assert.Equal(t, authflow.Unauthenticated(), h.flow.ReconcileSession(ctx))

	v, err = h.flow.SignIn(ctx, " "+testEmail+" ", testPassword)
	require.NoError(t, err)
	require.NoError(t, h.flow.SignOut(ctx))
	assert.Equal(t, authflow.Unauthenticated(), h.flow.ReconcileSession(ctx))
	assert.NotEqual(t, v, h.flow.Verdict())
}

func TestProviderEventsDriveVerdict(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	f := h.signUp(t, testEmail, testPassword)
	_, err := f.ConfirmSignUp(ctx, h.code(t, testEmail, local.CodeSignUp))
	require.NoError(t, err)
	require.True(t, h.flow.Verdict().Protected())

	// Sign out behind the controller's back; the signed-out event triggers
	// a reconcile.
	require.NoError(t, h.provider.SignOut(ctx))
	assert.Eventually(t, func() bool {
		return h.flow.Verdict() == authflow.Unauthenticated()
	}, time.Second, 5*time.Millisecond)

	_, err = h.provider.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return h.flow.Verdict().Protected()
	}, time.Second, 5*time.Millisecond)
}

func TestPasswordResetEndToEnd(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	f := h.signUp(t, testEmail, testPassword)
	_, err := f.ConfirmSignUp(ctx, h.code(t, testEmail, local.CodeSignUp))
	require.NoError(t, err)
	require.NoError(t, h.flow.SignOut(ctx))

	reset := h.flow.NewResetFlow()
	_, err = reset.BeginPasswordReset(ctx, "nobody@x.com")
	assert.True(t, authflow.IsKind(err, authflow.IdpUserNotFound))

	st, err := reset.BeginPasswordReset(ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, authflow.ResetAwaitingCode, st.Step)

	st, err = reset.ConfirmPasswordReset(ctx, h.code(t, testEmail, local.CodeReset), "NewSecret123")
	require.NoError(t, err)
	assert.Equal(t, authflow.ResetDone, st.Step)

	_, err = h.flow.SignIn(ctx, testEmail, "NewSecret123")
	require.NoError(t, err)
	assert.True(t, h.flow.Verdict().Protected())
}
