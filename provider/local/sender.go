package local

import (
	"context"
	"log/slog"
	"sync"
)

// CodePurpose names why a code was sent.
type CodePurpose string

const (
	CodeSignUp CodePurpose = "signup"
	CodeReset  CodePurpose = "reset"
)

// CodeSender delivers one-time codes to users.
type CodeSender interface {
	SendCode(ctx context.Context, username string, purpose CodePurpose, code string) error
}

// SlogSender writes codes to a logger. It stands in for mail delivery in
// development.
type SlogSender struct {
	logger *slog.Logger
	level  slog.Level
}

func NewSlogSender(logger *slog.Logger, level slog.Level) *SlogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSender{logger: logger, level: level}
}

func (s *SlogSender) SendCode(ctx context.Context, username string, purpose CodePurpose, code string) error {
	s.logger.LogAttrs(ctx, s.level, "verification code issued",
		slog.String("username", username),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
	)
	return nil
}

// MemorySender keeps the last code per user and purpose.
type MemorySender struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewMemorySender() *MemorySender {
	return &MemorySender{codes: make(map[string]string)}
}

func (s *MemorySender) SendCode(_ context.Context, username string, purpose CodePurpose, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[string(purpose)+"|"+username] = code
	return nil
}

// Last returns the most recent code sent to username for purpose.
func (s *MemorySender) Last(username string, purpose CodePurpose) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[string(purpose)+"|"+username]
	return code, ok
}
