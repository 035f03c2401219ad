package flows

import (
	"context"
	"errors"
	"testing"
)

func TestPasswordResetFlow(t *testing.T) {
	var calls []string
	deps := ResetDeps{
		Input: InputDeps{TrimSpace: true},
		ResetPassword: func(_ context.Context, username string) (bool, error) {
			calls = append(calls, "reset:"+username)
			return true, nil
		},
		ConfirmResetPassword: func(_ context.Context, username, code, newPassword string) error {
			calls = append(calls, "confirm:"+username+":"+code+":"+newPassword)
			return nil
		},
	}

	out, err := RunBeginPasswordReset(context.Background(), " ann@x.com ", deps)
	if err != nil {
		t.Fatalf("RunBeginPasswordReset: %v", err)
	}
	if out.Email != "ann@x.com" || !out.CodeRequired {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	err = RunConfirmPasswordReset(context.Background(), ConfirmResetRequest{Email: out.Email, Code: " 000111 ", NewPassword: "NewSecret1 "}, deps)
	if err != nil {
		t.Fatalf("RunConfirmPasswordReset: %v", err)
	}
	if len(calls) != 2 || calls[1] != "confirm:ann@x.com:000111:NewSecret1" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestPasswordResetValidationAndErrors(t *testing.T) {
	called := false
	deps := ResetDeps{
		Input: InputDeps{TrimSpace: true},
		ResetPassword: func(context.Context, string) (bool, error) {
			called = true
			return false, errRejected
		},
		ConfirmResetPassword: func(context.Context, string, string, string) error {
			called = true
			return errRejected
		},
	}

	if _, err := RunBeginPasswordReset(context.Background(), "  ", deps); err == nil || called {
		t.Fatalf("expected validation error without calls, got %v called=%v", err, called)
	}
	if err := RunConfirmPasswordReset(context.Background(), ConfirmResetRequest{Email: "a", Code: "1"}, deps); err == nil || called {
		t.Fatalf("expected validation error without calls, got %v called=%v", err, called)
	}
	if _, err := RunBeginPasswordReset(context.Background(), "a@x.com", deps); !errors.Is(err, errRejected) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if err := RunConfirmPasswordReset(context.Background(), ConfirmResetRequest{Email: "a", Code: "1", NewPassword: "x"}, deps); !errors.Is(err, errRejected) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
