package local_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/provider/local"
	"github.com/MrEthical07/authflow/token"
)

const (
	testEmail    = "ann@x.com"
	testPassword = "Secret123"
)

type ProviderSuite struct {
	suite.Suite
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	sender   *local.MemorySender
	provider *local.Provider
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.provider = s.newProvider(testConfig())
}

func (s *ProviderSuite) TearDownTest() {
	s.provider.Close()
	_ = s.rdb.Close()
	s.mr.Close()
}

func testConfig() local.Config {
	cfg := local.DefaultConfig()
	cfg.Prefix = "t"
	cfg.MaxSignInFailures = 3
	return cfg
}

func newTokens(t testing.TB) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.Config{
		TTL:           time.Hour,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte("test-secret-test-secret-test-secret"),
		Issuer:        "authflow-test",
	})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	return m
}

func (s *ProviderSuite) newProvider(cfg local.Config) *local.Provider {
	hasher, err := password.NewHasher(password.FastConfig())
	s.Require().NoError(err)

	s.sender = local.NewMemorySender()
	p, err := local.New(s.rdb, newTokens(s.T()), cfg,
		local.WithHasher(hasher),
		local.WithCodeSender(s.sender),
		local.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	return p
}

func (s *ProviderSuite) replaceProvider(cfg local.Config) {
	s.provider.Close()
	s.provider = s.newProvider(cfg)
}

func (s *ProviderSuite) code(purpose local.CodePurpose) string {
	code, ok := s.sender.Last(testEmail, purpose)
	s.Require().True(ok, "no %s code sent", purpose)
	return code
}

func (s *ProviderSuite) registerConfirmed() {
	ctx := context.Background()
	_, err := s.provider.SignUp(ctx, testEmail, testPassword, map[string]string{"email": testEmail, "name": "Ann"})
	s.Require().NoError(err)
	_, err = s.provider.ConfirmSignUp(ctx, testEmail, s.code(local.CodeSignUp))
	s.Require().NoError(err)
}

func (s *ProviderSuite) requireKind(err error, kind authflow.IdpErrorKind) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(kind, authflow.KindOf(err), "error: %v", err)
}

// ==============================================================================
// Sign-up and confirmation
// ==============================================================================

func (s *ProviderSuite) TestSignUpConfirmSignInLifecycle() {
	ctx := context.Background()

	res, err := s.provider.SignUp(ctx, testEmail, testPassword, map[string]string{"email": testEmail, "name": "Ann"})
	s.Require().NoError(err)
	s.False(res.Complete)

	confirm, err := s.provider.ConfirmSignUp(ctx, testEmail, s.code(local.CodeSignUp))
	s.Require().NoError(err)
	s.True(confirm.Complete)

	sess, err := s.provider.FetchSession(ctx)
	s.Require().NoError(err)
	s.False(sess.Authenticated())

	in, err := s.provider.SignIn(ctx, testEmail, testPassword)
	s.Require().NoError(err)
	s.True(in.Authenticated)
	s.NotEmpty(in.Token)

	sess, err = s.provider.FetchSession(ctx)
	s.Require().NoError(err)
	s.Equal(in.Token, sess.Token)
	s.Equal(testEmail, sess.Username)

	s.Require().NoError(s.provider.SignOut(ctx))
	s.Require().NoError(s.provider.SignOut(ctx))
	sess, err = s.provider.FetchSession(ctx)
	s.Require().NoError(err)
	s.False(sess.Authenticated())

	attrs, err := s.provider.Attributes(ctx, testEmail)
	s.Require().NoError(err)
	s.Equal(map[string]string{"email": testEmail, "name": "Ann"}, attrs)
}

func (s *ProviderSuite) TestSignUpRejections() {
	ctx := context.Background()

	s.Run("short password", func() {
		_, err := s.provider.SignUp(ctx, "short@x.com", "abc", nil)
		s.requireKind(err, authflow.IdpInvalidPassword)
	})

	s.Run("existing user, case-insensitive", func() {
		_, err := s.provider.SignUp(ctx, testEmail, testPassword, nil)
		s.Require().NoError(err)
		_, err = s.provider.SignUp(ctx, "ANN@x.com", testPassword, nil)
		s.requireKind(err, authflow.IdpUserExists)
	})
}

func (s *ProviderSuite) TestSignUpWithoutConfirmation() {
	cfg := testConfig()
	cfg.RequireConfirmation = false
	s.replaceProvider(cfg)

	res, err := s.provider.SignUp(context.Background(), testEmail, testPassword, nil)
	s.Require().NoError(err)
	s.True(res.Complete)
	_, sent := s.sender.Last(testEmail, local.CodeSignUp)
	s.False(sent)

	in, err := s.provider.SignIn(context.Background(), testEmail, testPassword)
	s.Require().NoError(err)
	s.True(in.Authenticated)
}

func (s *ProviderSuite) TestConfirmSignUpRejections() {
	ctx := context.Background()

	s.Run("unknown user", func() {
		_, err := s.provider.ConfirmSignUp(ctx, "nobody@x.com", "123456")
		s.requireKind(err, authflow.IdpUserNotFound)
	})

	_, err := s.provider.SignUp(ctx, testEmail, testPassword, nil)
	s.Require().NoError(err)
	code := s.code(local.CodeSignUp)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	s.Run("wrong code then exhausted attempts", func() {
		for i := 0; i < 4; i++ {
			_, err := s.provider.ConfirmSignUp(ctx, testEmail, wrong)
			s.requireKind(err, authflow.IdpInvalidCode)
		}
		_, err := s.provider.ConfirmSignUp(ctx, testEmail, wrong)
		s.requireKind(err, authflow.IdpCodeExpired)

		_, err = s.provider.ConfirmSignUp(ctx, testEmail, code)
		s.requireKind(err, authflow.IdpCodeExpired)
	})

	s.Run("pending user cannot sign in", func() {
		_, err := s.provider.SignIn(ctx, testEmail, testPassword)
		s.requireKind(err, authflow.IdpNotConfirmed)
	})
}

func (s *ProviderSuite) TestConfirmTwiceIsRejected() {
	s.registerConfirmed()
	_, err := s.provider.ConfirmSignUp(context.Background(), testEmail, "123456")
	s.requireKind(err, authflow.IdpNotAuthorized)
}

func (s *ProviderSuite) TestAutoSessionOnConfirm() {
	cfg := testConfig()
	cfg.AutoSessionOnConfirm = true
	s.replaceProvider(cfg)
	s.registerConfirmed()

	ctx := context.Background()
	sess, err := s.provider.FetchSession(ctx)
	s.Require().NoError(err)
	s.True(sess.Authenticated())

	_, err = s.provider.SignIn(ctx, testEmail, testPassword)
	s.requireKind(err, authflow.IdpAlreadyAuthenticated)
}

// ==============================================================================
// Sign-in
// ==============================================================================

func (s *ProviderSuite) TestSignInRejections() {
	s.registerConfirmed()
	ctx := context.Background()

	s.Run("unknown user", func() {
		_, err := s.provider.SignIn(ctx, "nobody@x.com", testPassword)
		s.requireKind(err, authflow.IdpUserNotFound)
	})

	s.Run("wrong password then throttled", func() {
		for i := 0; i < 2; i++ {
			_, err := s.provider.SignIn(ctx, testEmail, "wrong-password")
			s.requireKind(err, authflow.IdpNotAuthorized)
		}
		_, err := s.provider.SignIn(ctx, testEmail, "wrong-password")
		s.requireKind(err, authflow.IdpRateLimited)

		_, err = s.provider.SignIn(ctx, testEmail, testPassword)
		s.requireKind(err, authflow.IdpRateLimited)

		s.mr.FastForward(16 * time.Minute)
		in, err := s.provider.SignIn(ctx, testEmail, testPassword)
		s.Require().NoError(err)
		s.True(in.Authenticated)
	})

	s.Run("live session", func() {
		_, err := s.provider.SignIn(ctx, testEmail, testPassword)
		s.requireKind(err, authflow.IdpAlreadyAuthenticated)
	})
}

func (s *ProviderSuite) TestSessionExpires() {
	s.registerConfirmed()
	ctx := context.Background()

	_, err := s.provider.SignIn(ctx, testEmail, testPassword)
	s.Require().NoError(err)

	s.mr.FastForward(2 * time.Hour)
	sess, err := s.provider.FetchSession(ctx)
	s.Require().NoError(err)
	s.False(sess.Authenticated())
}

func (s *ProviderSuite) TestCorruptSessionIsDiscarded() {
	ctx := context.Background()
	s.Require().NoError(s.mr.Set("t:device:default", "not-a-token"))

	sess, err := s.provider.FetchSession(ctx)
	s.Require().NoError(err)
	s.False(sess.Authenticated())
	s.False(s.mr.Exists("t:device:default"))
}

// ==============================================================================
// Password reset
// ==============================================================================

func (s *ProviderSuite) TestPasswordReset() {
	s.registerConfirmed()
	ctx := context.Background()

	res, err := s.provider.ResetPassword(ctx, testEmail)
	s.Require().NoError(err)
	s.True(res.CodeRequired)

	err = s.provider.ConfirmResetPassword(ctx, testEmail, s.code(local.CodeReset), "short")
	s.requireKind(err, authflow.IdpInvalidPassword)

	s.Require().NoError(s.provider.ConfirmResetPassword(ctx, testEmail, s.code(local.CodeReset), "NewSecret123"))

	_, err = s.provider.SignIn(ctx, testEmail, testPassword)
	s.requireKind(err, authflow.IdpNotAuthorized)
	in, err := s.provider.SignIn(ctx, testEmail, "NewSecret123")
	s.Require().NoError(err)
	s.True(in.Authenticated)
}

func (s *ProviderSuite) TestPasswordResetRejections() {
	ctx := context.Background()

	_, err := s.provider.ResetPassword(ctx, "nobody@x.com")
	s.requireKind(err, authflow.IdpUserNotFound)

	s.registerConfirmed()
	err = s.provider.ConfirmResetPassword(ctx, testEmail, "123456", "NewSecret123")
	s.requireKind(err, authflow.IdpCodeExpired)
}

func (s *ProviderSuite) TestPasswordResetWithoutCode() {
	cfg := testConfig()
	cfg.RequireResetCode = false
	s.replaceProvider(cfg)
	s.registerConfirmed()

	res, err := s.provider.ResetPassword(context.Background(), testEmail)
	s.Require().NoError(err)
	s.False(res.CodeRequired)
}

// ==============================================================================
// Events and attributes
// ==============================================================================

func (s *ProviderSuite) TestEventsDeliveredInOrder() {
	s.registerConfirmed()
	ctx := context.Background()

	events := make(chan authflow.Event, 8)
	unsubscribe := s.provider.Subscribe(func(ev authflow.Event) { events <- ev },
		authflow.EventSignedIn, authflow.EventSignedOut)

	_, err := s.provider.SignIn(ctx, testEmail, testPassword)
	s.Require().NoError(err)
	s.Require().NoError(s.provider.UpdateAttributes(ctx, map[string]string{"name": "Annie"}))
	s.Require().NoError(s.provider.SignOut(ctx))

	for _, want := range []authflow.EventKind{authflow.EventSignedIn, authflow.EventSignedOut} {
		select {
		case ev := <-events:
			s.Equal(want, ev.Kind)
			s.Equal(testEmail, ev.Username)
		case <-time.After(time.Second):
			s.FailNow("timed out waiting for event", want.String())
		}
	}

	unsubscribe()
	unsubscribe()
	_, err = s.provider.SignIn(ctx, testEmail, testPassword)
	s.Require().NoError(err)
	select {
	case ev := <-events:
		s.Failf("unexpected event after unsubscribe", "%v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *ProviderSuite) TestUpdateAttributes() {
	ctx := context.Background()

	err := s.provider.UpdateAttributes(ctx, map[string]string{"name": "x"})
	s.requireKind(err, authflow.IdpNotAuthorized)

	s.registerConfirmed()
	got := make(chan authflow.Event, 1)
	defer s.provider.Subscribe(func(ev authflow.Event) { got <- ev }, authflow.EventAttributesUpdated)()

	_, err = s.provider.SignIn(ctx, testEmail, testPassword)
	s.Require().NoError(err)
	s.Require().NoError(s.provider.UpdateAttributes(ctx, map[string]string{"name": "Annie"}))

	select {
	case ev := <-got:
		s.Equal(authflow.EventAttributesUpdated, ev.Kind)
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for attributes event")
	}
	attrs, err := s.provider.Attributes(ctx, testEmail)
	s.Require().NoError(err)
	s.Equal("Annie", attrs["name"])
}

func (s *ProviderSuite) TestBackendFailureIsUnknown() {
	s.mr.Close()

	_, err := s.provider.FetchSession(context.Background())
	s.requireKind(err, authflow.IdpUnknown)
	_, err = s.provider.SignUp(context.Background(), testEmail, testPassword, nil)
	s.requireKind(err, authflow.IdpUnknown)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*local.Config){
		"empty prefix":    func(c *local.Config) { c.Prefix = "" },
		"colon in device": func(c *local.Config) { c.DeviceID = "a:b" },
		"short codes":     func(c *local.Config) { c.CodeDigits = 4 },
		"zero code ttl":   func(c *local.Config) { c.CodeTTL = 0 },
		"no attempts":     func(c *local.Config) { c.MaxCodeAttempts = 0 },
		"no window":       func(c *local.Config) { c.SignInWindow = 0 },
		"no buffer":       func(c *local.Config) { c.EventBuffer = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := local.DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
	if err := local.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
