// Package platform describes the backend instances an application can authenticate
// against and loads them from static configuration.
//
// # Architecture boundaries
//
// A [Platform] is a read-only value shared by every other package. It is created once by
// [Load] or [NewRegistry] and then only referenced by pointer. This package performs no
// network I/O.
package platform

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidPlatform is returned when a platform definition is incomplete.
	ErrInvalidPlatform = errors.New("invalid platform")
	// ErrDuplicatePlatform is returned when two platforms share the same name.
	ErrDuplicatePlatform = errors.New("duplicate platform name")
	// ErrUnknownPlatform is returned by lookups for names absent from a registry.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Legal URL keys commonly published by platforms.
const (
	LegalCGU                    = "cgu"
	LegalPersonalDataProtection = "personalDataProtection"
	LegalCookies                = "cookies"
	LegalAccessibility          = "accessibility"
)

// OAuth holds the client credentials used for the password and refresh grants.
type OAuth struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Platform identifies one backend instance.
type Platform struct {
	Name        string            `yaml:"name"`
	DisplayName string            `yaml:"display_name"`
	URL         string            `yaml:"url"`
	WAYF        bool              `yaml:"wayf"`
	WebTheme    string            `yaml:"web_theme"`
	LegalURLs   map[string]string `yaml:"legal_urls"`
	OAuth       OAuth             `yaml:"oauth"`
	Hidden      bool              `yaml:"hidden"`
}

// Validate reports whether the platform can be used for authentication.
func (p *Platform) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil platform", ErrInvalidPlatform)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlatform)
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s: bad url %q", ErrInvalidPlatform, p.Name, p.URL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: %s: unsupported scheme %q", ErrInvalidPlatform, p.Name, u.Scheme)
	}
	if strings.TrimSpace(p.OAuth.ClientID) == "" {
		return fmt.Errorf("%w: %s: missing oauth client id", ErrInvalidPlatform, p.Name)
	}
	return nil
}

// Endpoint joins path onto the platform base URL.
func (p *Platform) Endpoint(path string) string {
	base := strings.TrimRight(p.URL, "/")
	return base + "/" + strings.TrimLeft(path, "/")
}

// TokenURL is the OAuth2 token endpoint of the platform.
func (p *Platform) TokenURL() string {
	return p.Endpoint("auth/oauth2/token")
}

// LegalURL returns the absolute URL for a legal document key, or "" when the platform
// does not publish it. Relative entries are resolved against the platform URL.
func (p *Platform) LegalURL(key string) string {
	raw, ok := p.LegalURLs[key]
	if !ok || raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return p.Endpoint(raw)
}

// Theme returns the platform web theme, falling back to def when none is configured.
func (p *Platform) Theme(def string) string {
	if p == nil || strings.TrimSpace(p.WebTheme) == "" {
		return def
	}
	return p.WebTheme
}
