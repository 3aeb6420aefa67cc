package goSession

import "errors"

// Builder defines a public type used by goSession APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config   Config
	store    Store
	registry *Registry

	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a builder seeded with [DefaultConfig]. The builder is
// single-use: Build can be called once.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the builder's configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore describes the withstore operation and its observable behavior.
//
// WithStore sets the persistence collaborator. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRegistry describes the withregistry operation and its observable behavior.
//
// WithRegistry sets the authenticator registry. Required.
func (b *Builder) WithRegistry(registry *Registry) *Builder {
	b.registry = registry
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink sets the sink receiving audit events when auditing is
// enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled toggles the in-process metrics collector.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, constructs the session in the
// unauthenticated state, and subscribes the store reconciliation handler
// exactly once. The session stays subscribed for the process lifetime.
func (b *Builder) Build() (*Session, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("session store required")
	}
	if b.registry == nil {
		return nil, errors.New("authenticator registry required")
	}

	session := &Session{
		config:   cfg,
		registry: b.registry,
		store:    b.store,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
	}
	session.state.Store(&sessionState{content: Content{}})

	// bindToStoreEvents: the one place the store update handler is wired.
	session.storeSub = b.store.SubscribeUpdated(session.handleStoreUpdated)

	b.built = true

	return session, nil
}
