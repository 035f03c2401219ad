package authflow

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
)

// AuditEvent is one audit record emitted by a flow operation.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the controller's dispatcher. Emit is
// called from a single goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs every audit event at level.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	return internalaudit.NewSlogSink(logger, level)
}
