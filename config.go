package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// Config tunes an Engine. Build validates it; zero values are not usable, start
// from DefaultConfig.
type Config struct {
	Persistence PersistenceConfig
	Tracking    TrackingConfig
	Metrics     MetricsConfig
	Transport   TransportConfig
	Enrichment  EnrichmentConfig
	Tokens      TokenConfig
	Activation  ActivationConfig
}

/*
====================================
PERSISTENCE CONFIG
====================================
*/

// PersistenceConfig decides which logins outlive the process. Remembered logins and
// token restores are always kept.
type PersistenceConfig struct {
	// PersistWAYF keeps sessions opened on federated (WAYF) platforms even without
	// remember-me, since those users cannot type a password again.
	PersistWAYF bool
}

// TrackingConfig controls the analytics dispatcher.
type TrackingConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls engine counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig configures the default HTTP transport. It is ignored when a
// Transport is supplied to the Builder.
type TransportConfig struct {
	Timeout time.Duration
	// RateLimit is in requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	UserAgent string
}

// EnrichmentConfig controls the public profile fetch after a full login.
type EnrichmentConfig struct {
	FetchProfile bool
	// ProfileRequired fails the login when the profile cannot be read.
	ProfileRequired bool
}

// TokenConfig controls stored token handling.
type TokenConfig struct {
	// RefreshLeeway treats a token expiring within this window as expired on restore.
	RefreshLeeway time.Duration
}

// ActivationConfig holds activation defaults.
type ActivationConfig struct {
	// DefaultTheme is sent when the platform has no web theme.
	DefaultTheme string
	// PhoneRegion is the region used to read numbers typed without a country code.
	PhoneRegion string
}

// DefaultConfig returns the configuration used when the Builder is given none.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Persistence: PersistenceConfig{
			PersistWAYF: true,
		},
		Tracking: TrackingConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Transport: TransportConfig{
			Timeout:   30 * time.Second,
			RateLimit: 10,
			Burst:     20,
			UserAgent: "emf-auth",
		},
		Enrichment: EnrichmentConfig{
			FetchProfile:    true,
			ProfileRequired: false,
		},
		Tokens: TokenConfig{
			RefreshLeeway: 30 * time.Second,
		},
		Activation: ActivationConfig{
			DefaultTheme: "theme-open-ent",
			PhoneRegion:  DefaultPhoneRegion,
		},
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Tracking
	if c.Tracking.Enabled && c.Tracking.BufferSize <= 0 {
		return errors.New("Tracking BufferSize must be > 0 when tracking is enabled")
	}

	// Transport
	if c.Transport.Timeout <= 0 {
		return errors.New("Transport Timeout must be > 0")
	}
	if c.Transport.RateLimit < 0 {
		return errors.New("Transport RateLimit must be >= 0")
	}
	if c.Transport.Burst < 0 {
		return errors.New("Transport Burst must be >= 0")
	}
	if c.Transport.RateLimit > 0 && c.Transport.Burst == 0 {
		return errors.New("Transport Burst must be > 0 when RateLimit is set")
	}
	if strings.TrimSpace(c.Transport.UserAgent) != c.Transport.UserAgent {
		return errors.New("Transport UserAgent must not have surrounding spaces")
	}

	// Enrichment
	if c.Enrichment.ProfileRequired && !c.Enrichment.FetchProfile {
		return errors.New("Enrichment ProfileRequired needs FetchProfile")
	}

	// Tokens
	if c.Tokens.RefreshLeeway < 0 {
		return errors.New("Tokens RefreshLeeway must be >= 0")
	}
	if c.Tokens.RefreshLeeway > 10*time.Minute {
		return errors.New("Tokens RefreshLeeway must be <= 10m")
	}

	// Activation
	if c.Activation.DefaultTheme == "" {
		return errors.New("Activation DefaultTheme must not be empty")
	}
	if phonenumbers.GetCountryCodeForRegion(c.Activation.PhoneRegion) == 0 {
		return errors.New("Activation PhoneRegion is not a known region")
	}

	return nil
}
