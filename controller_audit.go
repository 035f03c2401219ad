package authflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/flows"
)

const (
	auditEventSignUp               = "sign_up"
	auditEventConfirmSignUp        = "confirm_sign_up"
	auditEventAutoSignIn           = "auto_sign_in"
	auditEventSignIn               = "sign_in"
	auditEventSignOut              = "sign_out"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventReconcile            = "session_reconcile"
)

const (
	flowSignup  = "signup"
	flowReset   = "reset"
	flowSession = "session"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrValidation   AuditErrorCode = "validation"
	auditErrInvalidState AuditErrorCode = "invalid_state"
	auditErrBusy         AuditErrorCode = "busy"
	auditErrCanceled     AuditErrorCode = "canceled"
	auditErrInternal     AuditErrorCode = "internal_error"
)

// auditFunc binds audit emission to one flow instance.
func (c *Controller) auditFunc(flow, flowID string) flows.AuditFunc {
	return func(ctx context.Context, eventType string, success bool, username string, err error, metadata func() map[string]string) {
		c.emitAudit(ctx, flow, flowID, eventType, success, username, err, metadata)
	}
}

func (c *Controller) emitAudit(
	ctx context.Context,
	flow string,
	flowID string,
	eventType string,
	success bool,
	username string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		FlowID:    flowID,
		Flow:      flow,
		Username:  username,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidState):
		return auditErrInvalidState
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrBusy):
		return auditErrBusy
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	}
	if kind := KindOf(err); kind != "" {
		return AuditErrorCode(kind)
	}
	return auditErrInternal
}

// logOutcome logs a finished operation. Local rejections stay at debug,
// provider rejections at info, and unclassified failures at warn.
func (c *Controller) logOutcome(ctx context.Context, flow, flowID, op string, err error) {
	attrs := []slog.Attr{
		slog.String("flow", flow),
		slog.String("op", op),
	}
	if flowID != "" {
		attrs = append(attrs, slog.String("flow_id", flowID))
	}

	if err == nil {
		c.logger.LogAttrs(ctx, slog.LevelDebug, "operation completed", attrs...)
		return
	}

	attrs = append(attrs, slog.String("error", err.Error()))
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBusy):
		c.logger.LogAttrs(ctx, slog.LevelDebug, "operation rejected", attrs...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.logger.LogAttrs(ctx, slog.LevelDebug, "caller stopped waiting", attrs...)
	case IsKind(err, IdpUnknown):
		attrs = append(attrs, slog.String("kind", string(IdpUnknown)))
		c.logger.LogAttrs(ctx, slog.LevelWarn, "identity provider failure", attrs...)
	case errors.Is(err, ErrIdp):
		attrs = append(attrs, slog.String("kind", string(KindOf(err))))
		c.logger.LogAttrs(ctx, slog.LevelInfo, "identity provider rejected operation", attrs...)
	default:
		c.logger.LogAttrs(ctx, slog.LevelWarn, "operation failed", attrs...)
	}
}
