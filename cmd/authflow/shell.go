package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/provider/local"
	"github.com/MrEthical07/authflow/token"
	"github.com/peterh/liner"
)

// lineReader is the subset of *liner.State the shell reads input through.
type lineReader interface {
	Prompt(prompt string) (string, error)
	PasswordPrompt(prompt string) (string, error)
	AppendHistory(item string)
}

const helpText = `commands:
  signup <email> <name>   register an account
  confirm <code>          confirm the pending sign-up
  login <email>           sign in
  logout                  sign out
  profile                 show the signed in account
  rename <name>           change the display name
  forgot <email>          request a password reset code
  reset <code>            set a new password with a reset code
  status                  show session and flow state
  back                    abandon the current sign-up and reset flows
  help                    show this text
  quit                    exit`

// shell plays the screens of the app: one sign-up flow and one reset flow,
// recreated by "back".
type shell struct {
	ctrl     *authflow.Controller
	provider *local.Provider
	tokens   *token.Manager
	in       lineReader
	out      io.Writer

	signup *authflow.SignupFlow
	reset  *authflow.ResetFlow
}

func newShell(ctrl *authflow.Controller, provider *local.Provider, tokens *token.Manager, in lineReader, out io.Writer) *shell {
	return &shell{
		ctrl:     ctrl,
		provider: provider,
		tokens:   tokens,
		in:       in,
		out:      out,
		signup:   ctrl.NewSignupFlow(),
		reset:    ctrl.NewResetFlow(),
	}
}

func (s *shell) close() {
	s.signup.Close()
	s.reset.Close()
}

func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, `type "help" for commands`)
	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := s.in.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.in.AppendHistory(input)

		if quit := s.exec(ctx, input); quit {
			return nil
		}
	}
}

func (s *shell) prompt() string {
	return fmt.Sprintf("[%s] > ", s.ctrl.Verdict())
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(s.out, helpText)
		return false
	}

	verdict := s.ctrl.Verdict()
	if verdict.IsUnknown() {
		fmt.Fprintln(s.out, "still checking the session, try again")
		return false
	}

	switch cmd {
	case "status":
		s.status(verdict)
	case "signup":
		if len(args) < 2 {
			s.usage("signup <email> <name>")
			return false
		}
		s.beginSignUp(ctx, args[0], strings.Join(args[1:], " "))
	case "confirm":
		if len(args) != 1 {
			s.usage("confirm <code>")
			return false
		}
		s.confirmSignUp(ctx, args[0])
	case "login":
		if len(args) != 1 {
			s.usage("login <email>")
			return false
		}
		s.signIn(ctx, args[0])
	case "logout":
		if !s.protected(verdict) {
			return false
		}
		if err := s.ctrl.SignOut(ctx); err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintln(s.out, "signed out")
	case "profile":
		if !s.protected(verdict) {
			return false
		}
		s.profile(ctx, verdict)
	case "rename":
		if !s.protected(verdict) {
			return false
		}
		if len(args) == 0 {
			s.usage("rename <name>")
			return false
		}
		name := strings.Join(args, " ")
		if err := s.provider.UpdateAttributes(ctx, map[string]string{"name": name}); err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintf(s.out, "name changed to %s\n", name)
	case "forgot":
		if len(args) != 1 {
			s.usage("forgot <email>")
			return false
		}
		s.beginReset(ctx, args[0])
	case "reset":
		if len(args) != 1 {
			s.usage("reset <code>")
			return false
		}
		s.confirmReset(ctx, args[0])
	case "back":
		s.signup.Reset()
		s.reset.Reset()
		fmt.Fprintln(s.out, "flows reset")
	default:
		fmt.Fprintf(s.out, "unknown command %q, type \"help\"\n", cmd)
	}
	return false
}

func (s *shell) beginSignUp(ctx context.Context, email, name string) {
	pw, err := s.in.PasswordPrompt("password: ")
	if err != nil {
		s.fail(err)
		return
	}
	confirm, err := s.in.PasswordPrompt("confirm password: ")
	if err != nil {
		s.fail(err)
		return
	}

	state, err := s.signup.BeginSignUp(ctx, name, email, pw, confirm)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "a confirmation code was sent to %s\n", state.Email)
}

func (s *shell) confirmSignUp(ctx context.Context, code string) {
	state, err := s.signup.ConfirmSignUp(ctx, code)
	var postConfirm *authflow.PostConfirmSignInError
	switch {
	case errors.As(err, &postConfirm):
		fmt.Fprintln(s.out, "account confirmed, but signing in failed: use login")
	case err != nil:
		s.fail(err)
	case state.AdditionalStepRequired:
		fmt.Fprintln(s.out, "account confirmed, further steps are required before you can sign in")
	case state.ReadyToSignIn:
		fmt.Fprintln(s.out, "account confirmed, sign in with login")
	default:
		fmt.Fprintln(s.out, "account confirmed, you are signed in")
	}
}

func (s *shell) signIn(ctx context.Context, email string) {
	pw, err := s.in.PasswordPrompt("password: ")
	if err != nil {
		s.fail(err)
		return
	}
	if _, err := s.ctrl.SignIn(ctx, email, pw); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintln(s.out, "signed in")
}

func (s *shell) profile(ctx context.Context, verdict authflow.SessionVerdict) {
	claims, err := s.tokens.Parse(verdict.Token())
	if err != nil {
		s.fail(err)
		return
	}
	attrs, err := s.provider.Attributes(ctx, claims.Username)
	if err != nil {
		s.fail(err)
		return
	}

	fmt.Fprintf(s.out, "user %s (session %s, expires %s)\n",
		claims.Username, claims.SessionID, claims.ExpiresAt.Time.Format("15:04:05"))
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(s.out, "  %s: %s\n", k, attrs[k])
	}
}

func (s *shell) beginReset(ctx context.Context, email string) {
	state, err := s.reset.BeginPasswordReset(ctx, email)
	if err != nil {
		s.fail(err)
		return
	}
	if state.Step == authflow.ResetDone {
		fmt.Fprintln(s.out, "password reset complete")
		return
	}
	fmt.Fprintf(s.out, "a reset code was sent to %s\n", state.Email)
}

func (s *shell) confirmReset(ctx context.Context, code string) {
	pw, err := s.in.PasswordPrompt("new password: ")
	if err != nil {
		s.fail(err)
		return
	}
	if _, err := s.reset.ConfirmPasswordReset(ctx, code, pw); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintln(s.out, "password changed, sign in with login")
}

func (s *shell) status(verdict authflow.SessionVerdict) {
	fmt.Fprintf(s.out, "session: %s\n", verdict)
	su := s.signup.State()
	fmt.Fprintf(s.out, "sign-up: %s", su.Step)
	if su.Email != "" {
		fmt.Fprintf(s.out, " (%s)", su.Email)
	}
	fmt.Fprintln(s.out)
	rs := s.reset.State()
	fmt.Fprintf(s.out, "reset:   %s", rs.Step)
	if rs.Email != "" {
		fmt.Fprintf(s.out, " (%s)", rs.Email)
	}
	fmt.Fprintln(s.out)
}

// protected gates commands that need a session.
func (s *shell) protected(verdict authflow.SessionVerdict) bool {
	if verdict.Protected() {
		return true
	}
	fmt.Fprintln(s.out, "sign in first")
	return false
}

func (s *shell) usage(text string) {
	fmt.Fprintln(s.out, "usage:", text)
}

func (s *shell) fail(err error) {
	fmt.Fprintln(s.out, "error:", describe(err))
}

// describe turns controller errors into the message shown to the user.
func describe(err error) string {
	var validation *authflow.ValidationError
	var idp *authflow.IdpError
	switch {
	case errors.Is(err, authflow.ErrBusy):
		return "another request is still running"
	case errors.As(err, &validation):
		if validation.Field == "" {
			return validation.Reason
		}
		return validation.Field + ": " + validation.Reason
	case errors.As(err, &idp):
		if idp.Message != "" {
			return idp.Message
		}
		return strings.ReplaceAll(string(idp.Kind), "_", " ")
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}
