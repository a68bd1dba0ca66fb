package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/jwt"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/tokenstore"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
)

// Builder assembles an Engine. A Builder builds at most one Engine.
type Builder struct {
	config Config

	platforms *platform.Registry
	transport Transport
	tokens    TokenStore
	cache     SessionCache
	store     *session.Store
	inspector *jwt.Inspector
	devices   DeviceRegistrar
	sink      TrackingSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder starting from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithPlatforms sets the platforms the Engine can log in to. Required.
func (b *Builder) WithPlatforms(r *platform.Registry) *Builder {
	b.platforms = r
	return b
}

// WithTransport replaces the default HTTP transport built from Config.Transport.
func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// WithTokenStore sets where the bearer token is persisted. When ts also implements
// SessionCache it is used as the session cache unless one is set explicitly.
func (b *Builder) WithTokenStore(ts TokenStore) *Builder {
	b.tokens = ts
	return b
}

func (b *Builder) WithSessionCache(c SessionCache) *Builder {
	b.cache = c
	return b
}

// WithStore shares an existing state container, typically one the UI subscribes to.
func (b *Builder) WithStore(s *session.Store) *Builder {
	b.store = s
	return b
}

// WithInspector sets the JWT inspector used to read token expiry.
func (b *Builder) WithInspector(i *jwt.Inspector) *Builder {
	b.inspector = i
	return b
}

func (b *Builder) WithDeviceRegistrar(r DeviceRegistrar) *Builder {
	b.devices = r
	return b
}

// WithTrackingSink sets the analytics sink. Events flow only when Tracking.Enabled.
func (b *Builder) WithTrackingSink(sink TrackingSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
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

// withClock is used by tests.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if b.platforms == nil || b.platforms.Len() == 0 {
		return nil, errors.New("platform registry required")
	}

	engine := &Engine{
		config:    cfg,
		platforms: b.platforms,
		transport: b.transport,
		tokens:    b.tokens,
		cache:     b.cache,
		store:     b.store,
		inspector: b.inspector,
		devices:   b.devices,
		logger:    b.logger,
		now:       b.now,
	}

	if engine.transport == nil {
		client, err := transport.New(transport.Options{
			Timeout:   cfg.Transport.Timeout,
			RateLimit: cfg.Transport.RateLimit,
			Burst:     cfg.Transport.Burst,
			UserAgent: cfg.Transport.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		engine.transport = client
	}

	// -------- PERSISTENCE --------
	if engine.tokens == nil {
		mem := tokenstore.New(tokenstore.NewMemoryBackend())
		engine.tokens = mem
		if engine.cache == nil {
			engine.cache = mem
		}
	}
	if engine.cache == nil {
		if c, ok := engine.tokens.(SessionCache); ok {
			engine.cache = c
		}
	}
	if engine.cache == nil {
		engine.cache = tokenstore.New(tokenstore.NewMemoryBackend())
	}

	if engine.inspector == nil {
		ins, err := jwt.NewInspector(jwt.Config{})
		if err != nil {
			return nil, err
		}
		engine.inspector = ins
	}
	if engine.store == nil {
		engine.store = session.NewStore(session.AuthState{})
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	engine.tracking = newTrackingDispatcher(cfg.Tracking, b.sink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
