package authflow

import "context"

//go:generate mockgen -source=provider.go -destination=internal/mocks/identity_provider.go -package=mocks

// IdentityProvider is the external identity service the controller drives.
// Implementations must be safe for concurrent use. Rejections should be
// returned as *IdpError; any other error is reported as IdpUnknown.
type IdentityProvider interface {
	SignUp(ctx context.Context, username, password string, attributes map[string]string) (SignUpResult, error)
	ConfirmSignUp(ctx context.Context, username, code string) (ConfirmSignUpResult, error)
	SignIn(ctx context.Context, username, password string) (SignInResult, error)
	// SignOut must succeed when no session exists.
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, username string) (ResetPasswordResult, error)
	ConfirmResetPassword(ctx context.Context, username, code, newPassword string) error
	// FetchSession returns a zero Session when nobody is signed in.
	FetchSession(ctx context.Context) (Session, error)
	// Subscribe registers handler for the given kinds (all kinds when none
	// are given) and returns a function that removes it.
	Subscribe(handler EventHandler, kinds ...EventKind) (unsubscribe func())
}

// SignUpResult reports whether registration is complete or needs confirmation.
type SignUpResult struct {
	Complete bool
}

type ConfirmSignUpResult struct {
	Complete bool
}

// SignInResult reports whether a session was established. Token is optional;
// when it is empty the controller reads it with FetchSession.
type SignInResult struct {
	Authenticated bool
	Token         string
}

type ResetPasswordResult struct {
	CodeRequired bool
}

// Session is the provider's current session. Token is empty when nobody is
// signed in.
type Session struct {
	Token    string
	Username string
}

func (s Session) Authenticated() bool { return s.Token != "" }
