package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/internal/stores"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/token"
	"github.com/redis/go-redis/v9"
)

var _ authflow.IdentityProvider = (*Provider)(nil)

// Provider is a Redis-backed identity provider for one device.
type Provider struct {
	redis   redis.UniversalClient
	config  Config
	hasher  *password.Hasher
	tokens  *token.Manager
	codes   *stores.CodeStore
	limiter *rate.Limiter
	sender  CodeSender
	hub     *hub
	logger  *slog.Logger
}

type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithCodeSender sets where codes go. The default logs them at info level.
func WithCodeSender(sender CodeSender) Option {
	return func(p *Provider) { p.sender = sender }
}

func WithHasher(h *password.Hasher) Option {
	return func(p *Provider) { p.hasher = h }
}

// New returns a Provider storing its state in client and signing sessions
// with tokens.
func New(client redis.UniversalClient, tokens *token.Manager, cfg Config, opts ...Option) (*Provider, error) {
	if client == nil {
		return nil, errors.New("local: redis client required")
	}
	if tokens == nil {
		return nil, errors.New("local: token manager required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		redis:  client,
		config: cfg,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.logger = p.logger.With(slog.String("component", "provider.local"))
	if p.hasher == nil {
		h, err := password.NewHasher(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		p.hasher = h
	}
	if p.sender == nil {
		p.sender = NewSlogSender(p.logger, slog.LevelInfo)
	}

	p.codes = stores.NewCodeStore(client, cfg.Prefix+":code")
	p.limiter = rate.New(client, rate.Config{
		Prefix:      cfg.Prefix + ":signin",
		MaxAttempts: cfg.MaxSignInFailures,
		Window:      cfg.SignInWindow,
	})
	p.hub = newHub(cfg.EventBuffer, p.logger)

	return p, nil
}

// Close stops event delivery. Queued events are delivered first.
func (p *Provider) Close() {
	p.hub.close()
}

func (p *Provider) SignUp(ctx context.Context, username, pw string, attributes map[string]string) (authflow.SignUpResult, error) {
	email := normalizeUsername(username)
	if email == "" {
		return authflow.SignUpResult{}, authflow.NewIdpError(authflow.IdpNotAuthorized, "username must not be empty")
	}
	if err := p.checkPasswordPolicy(pw); err != nil {
		return authflow.SignUpResult{}, err
	}

	hash, err := p.hasher.Hash(pw)
	if err != nil {
		return authflow.SignUpResult{}, p.internal("hash password", err)
	}

	status := statusConfirmed
	if p.config.RequireConfirmation {
		status = statusPending
	}
	u, created, err := p.createUser(ctx, email, hash, status, attributes)
	if err != nil {
		return authflow.SignUpResult{}, p.internal("create user", err)
	}
	if !created {
		return authflow.SignUpResult{}, authflow.NewIdpError(authflow.IdpUserExists, "an account with the given email already exists")
	}

	p.logger.LogAttrs(ctx, slog.LevelInfo, "user registered",
		slog.String("username", email),
		slog.String("user_id", u.ID),
		slog.String("status", status),
	)

	if !p.config.RequireConfirmation {
		return authflow.SignUpResult{Complete: true}, nil
	}
	if err := p.sendCode(ctx, stores.PurposeSignUp, CodeSignUp, email); err != nil {
		return authflow.SignUpResult{}, err
	}
	return authflow.SignUpResult{Complete: false}, nil
}

func (p *Provider) ConfirmSignUp(ctx context.Context, username, code string) (authflow.ConfirmSignUpResult, error) {
	email := normalizeUsername(username)
	u, err := p.mustLoadUser(ctx, email)
	if err != nil {
		return authflow.ConfirmSignUpResult{}, err
	}
	if u.confirmed() {
		return authflow.ConfirmSignUpResult{}, authflow.NewIdpError(authflow.IdpNotAuthorized, "user cannot be confirmed, current status is confirmed")
	}

	if err := p.consumeCode(ctx, stores.PurposeSignUp, email, code); err != nil {
		return authflow.ConfirmSignUpResult{}, err
	}
	if err := p.setUserFields(ctx, email, map[string]any{fieldStatus: statusConfirmed}); err != nil {
		return authflow.ConfirmSignUpResult{}, p.internal("confirm user", err)
	}
	u.Status = statusConfirmed
	p.logger.LogAttrs(ctx, slog.LevelInfo, "user confirmed", slog.String("username", email))

	if p.config.AutoSessionOnConfirm {
		if _, err := p.startSession(ctx, u); err != nil {
			return authflow.ConfirmSignUpResult{}, p.internal("start session", err)
		}
		p.publish(authflow.EventSignedIn, email)
	}
	return authflow.ConfirmSignUpResult{Complete: true}, nil
}

func (p *Provider) SignIn(ctx context.Context, username, pw string) (authflow.SignInResult, error) {
	email := normalizeUsername(username)

	_, existing, err := p.currentSession(ctx)
	if err != nil {
		return authflow.SignInResult{}, p.internal("read session", err)
	}
	if existing != nil {
		return authflow.SignInResult{}, authflow.NewIdpError(authflow.IdpAlreadyAuthenticated, "there is already a signed in user")
	}

	if err := p.limiter.Check(ctx, email); err != nil {
		return authflow.SignInResult{}, p.limitErr(err)
	}

	u, err := p.mustLoadUser(ctx, email)
	if err != nil {
		return authflow.SignInResult{}, err
	}

	ok, err := p.hasher.Verify(pw, u.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return authflow.SignInResult{}, p.internal("verify password", err)
	}
	if !ok {
		if err := p.limiter.Hit(ctx, email); err != nil {
			return authflow.SignInResult{}, p.limitErr(err)
		}
		return authflow.SignInResult{}, authflow.NewIdpError(authflow.IdpNotAuthorized, "incorrect username or password")
	}
	if !u.confirmed() {
		return authflow.SignInResult{}, authflow.NewIdpError(authflow.IdpNotConfirmed, "user is not confirmed")
	}

	if err := p.limiter.Reset(ctx, email); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "sign-in limiter reset failed", slog.String("error", err.Error()))
	}
	p.rehashIfNeeded(ctx, u, pw)

	raw, err := p.startSession(ctx, u)
	if err != nil {
		return authflow.SignInResult{}, p.internal("start session", err)
	}
	p.publish(authflow.EventSignedIn, email)
	return authflow.SignInResult{Authenticated: true, Token: raw}, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	_, claims, err := p.currentSession(ctx)
	if err != nil {
		return p.internal("read session", err)
	}
	ended, err := p.endSession(ctx)
	if err != nil {
		return p.internal("end session", err)
	}
	if ended && claims != nil {
		p.logger.LogAttrs(ctx, slog.LevelInfo, "session ended", slog.String("username", claims.Username))
		p.publish(authflow.EventSignedOut, claims.Username)
	}
	return nil
}

func (p *Provider) ResetPassword(ctx context.Context, username string) (authflow.ResetPasswordResult, error) {
	email := normalizeUsername(username)
	if _, err := p.mustLoadUser(ctx, email); err != nil {
		return authflow.ResetPasswordResult{}, err
	}
	if !p.config.RequireResetCode {
		return authflow.ResetPasswordResult{CodeRequired: false}, nil
	}
	if err := p.sendCode(ctx, stores.PurposeReset, CodeReset, email); err != nil {
		return authflow.ResetPasswordResult{}, err
	}
	return authflow.ResetPasswordResult{CodeRequired: true}, nil
}

func (p *Provider) ConfirmResetPassword(ctx context.Context, username, code, newPassword string) error {
	email := normalizeUsername(username)
	if _, err := p.mustLoadUser(ctx, email); err != nil {
		return err
	}
	if err := p.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return p.internal("hash password", err)
	}
	if err := p.consumeCode(ctx, stores.PurposeReset, email, code); err != nil {
		return err
	}
	if err := p.setUserFields(ctx, email, map[string]any{fieldHash: hash}); err != nil {
		return p.internal("update password", err)
	}
	if err := p.limiter.Reset(ctx, email); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "sign-in limiter reset failed", slog.String("error", err.Error()))
	}

	p.logger.LogAttrs(ctx, slog.LevelInfo, "password reset", slog.String("username", email))
	return nil
}

func (p *Provider) FetchSession(ctx context.Context) (authflow.Session, error) {
	raw, claims, err := p.currentSession(ctx)
	if err != nil {
		return authflow.Session{}, p.internal("read session", err)
	}
	if claims == nil {
		return authflow.Session{}, nil
	}
	return authflow.Session{Token: raw, Username: claims.Username}, nil
}

func (p *Provider) Subscribe(handler authflow.EventHandler, kinds ...authflow.EventKind) func() {
	return p.hub.subscribe(handler, kinds...)
}

// UpdateAttributes merges attributes into the signed-in user's profile.
func (p *Provider) UpdateAttributes(ctx context.Context, attributes map[string]string) error {
	_, claims, err := p.currentSession(ctx)
	if err != nil {
		return p.internal("read session", err)
	}
	if claims == nil {
		return authflow.NewIdpError(authflow.IdpNotAuthorized, "no signed in user")
	}
	if len(attributes) == 0 {
		return nil
	}

	values := make(map[string]any, len(attributes))
	for k, v := range attributes {
		values[attrPrefix+k] = v
	}
	if err := p.setUserFields(ctx, claims.Username, values); err != nil {
		if errors.Is(err, errNoUser) {
			return authflow.NewIdpError(authflow.IdpUserNotFound, "user does not exist")
		}
		return p.internal("update attributes", err)
	}

	p.publish(authflow.EventAttributesUpdated, claims.Username)
	return nil
}

// Attributes returns the stored attributes of username.
func (p *Provider) Attributes(ctx context.Context, username string) (map[string]string, error) {
	u, err := p.mustLoadUser(ctx, normalizeUsername(username))
	if err != nil {
		return nil, err
	}
	return u.Attributes, nil
}

func (p *Provider) checkPasswordPolicy(pw string) error {
	if len(pw) < p.config.MinPasswordLength {
		return authflow.NewIdpError(authflow.IdpInvalidPassword,
			fmt.Sprintf("password must have length greater than or equal to %d", p.config.MinPasswordLength))
	}
	if len(pw) > password.DefaultMaxPasswordBytes {
		return authflow.NewIdpError(authflow.IdpInvalidPassword, "password is too long")
	}
	return nil
}

func (p *Provider) mustLoadUser(ctx context.Context, email string) (*user, error) {
	u, err := p.loadUser(ctx, email)
	if errors.Is(err, errNoUser) {
		return nil, authflow.NewIdpError(authflow.IdpUserNotFound, "user does not exist")
	}
	if err != nil {
		return nil, p.internal("load user", err)
	}
	return u, nil
}

func (p *Provider) sendCode(ctx context.Context, purpose stores.Purpose, label CodePurpose, email string) error {
	code, err := p.codes.Issue(ctx, purpose, email, p.config.CodeDigits, p.config.CodeTTL)
	if err != nil {
		return p.internal("issue code", err)
	}
	if err := p.sender.SendCode(ctx, email, label, code); err != nil {
		return p.internal("send code", err)
	}
	return nil
}

func (p *Provider) consumeCode(ctx context.Context, purpose stores.Purpose, email, code string) error {
	_, err := p.codes.Consume(ctx, purpose, email, code, p.config.MaxCodeAttempts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCodeMismatch):
		return authflow.NewIdpError(authflow.IdpInvalidCode, "invalid verification code provided, please try again")
	case errors.Is(err, stores.ErrCodeAttemptsExceeded):
		return authflow.NewIdpError(authflow.IdpCodeExpired, "too many failed attempts, request a new code")
	case errors.Is(err, stores.ErrCodeNotFound):
		return authflow.NewIdpError(authflow.IdpCodeExpired, "invalid code provided, please request a code again")
	default:
		return p.internal("consume code", err)
	}
}

func (p *Provider) rehashIfNeeded(ctx context.Context, u *user, pw string) {
	needs, err := p.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := p.hasher.Hash(pw)
	if err != nil {
		return
	}
	if err := p.setUserFields(ctx, u.Email, map[string]any{fieldHash: hash}); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "password rehash failed", slog.String("error", err.Error()))
	}
}

func (p *Provider) limitErr(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return authflow.NewIdpError(authflow.IdpRateLimited, "password attempts exceeded")
	}
	return p.internal("sign-in limiter", err)
}

func (p *Provider) publish(kind authflow.EventKind, username string) {
	p.hub.publish(authflow.Event{Kind: kind, Username: username, At: time.Now()})
}

// internal reports a backend failure. The caller sees IdpUnknown.
func (p *Provider) internal(op string, err error) error {
	p.logger.LogAttrs(context.Background(), slog.LevelError, "provider backend failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return &authflow.IdpError{Kind: authflow.IdpUnknown, Message: op + " failed", Err: err}
}
