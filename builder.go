package authflow

import (
	"errors"
	"log/slog"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/watch"
)

// Builder assembles a Controller. A Builder is single use.
type Builder struct {
	config    Config
	provider  IdentityProvider
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider. Required.
func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink sets the audit sink. Audit events are only dispatched when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Without one the controller logs
// nothing.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Controller. Call
// [Controller.Start] before relying on the verdict.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Controller{
		config:   cfg,
		provider: b.provider,
		logger:   logger.With(slog.String("component", "authflow")),
		metrics:  NewMetrics(cfg.Metrics),
		verdict:  watch.New(Unknown()),
		kinds:    make(map[EventKind]struct{}, len(cfg.Events.Kinds)),
		events:   make(chan EventKind, cfg.Events.Buffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, kind := range cfg.Events.Kinds {
		c.kinds[kind] = struct{}{}
	}

	c.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     c.onAuditDrop,
	}, b.auditSink)

	b.built = true

	return c, nil
}
