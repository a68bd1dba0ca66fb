package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names the algorithm used to verify tokens.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrNotJWT is returned for tokens that are not three dot-separated segments.
	ErrNotJWT = errors.New("token is not a jwt")
	// ErrInvalidToken is returned when a token fails parsing or verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Config controls verification. With no keys configured the Inspector only decodes
// claims without checking signatures.
type Config struct {
	SigningMethod SigningMethod
	// Key is the HS256 secret or the ed25519 public key (raw or PEM).
	Key        []byte
	VerifyKeys map[string][]byte
	Issuer     string
	Leeway     time.Duration
}

// Claims are the fields the session core cares about.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Verified  bool
}

// Expired reports whether the claims are past expiry at now. Tokens without an
// expiry never expire.
func (c Claims) Expired(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt.Add(leeway))
}

// Inspector decodes and optionally verifies bearer tokens.
type Inspector struct {
	config Config
}

// NewInspector validates cfg and returns an Inspector.
func NewInspector(cfg Config) (*Inspector, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if !cfg.verifying() {
		return &Inspector{config: cfg}, nil
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Key) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("hs256 requires a key")
		}
	case MethodEd25519, "":
		cfg.SigningMethod = MethodEd25519
		if len(cfg.Key) > 0 {
			if _, err := parseEdPublicKey(cfg.Key); err != nil {
				return nil, err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Inspector{config: cfg}, nil
}

func (c Config) verifying() bool {
	return len(c.Key) > 0 || len(c.VerifyKeys) > 0
}

// Inspect decodes token. Signature and time claims are checked only when the
// Inspector was configured with keys.
func (i *Inspector) Inspect(token string) (Claims, error) {
	if strings.Count(token, ".") != 2 {
		return Claims{}, ErrNotJWT
	}

	var rc jwt.RegisteredClaims
	verified := false
	if i != nil && i.config.verifying() {
		if _, err := i.parser().ParseWithClaims(token, &rc, i.keyFunc); err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		verified = true
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	c := Claims{
		Subject:  rc.Subject,
		Issuer:   rc.Issuer,
		Audience: []string(rc.Audience),
		Verified: verified,
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	return c, nil
}

// ExpiresAt returns the token expiry, or the zero time for opaque or undecodable tokens.
func (i *Inspector) ExpiresAt(token string) time.Time {
	c, err := i.Inspect(token)
	if err != nil {
		return time.Time{}
	}
	return c.ExpiresAt
}

func (i *Inspector) parser() *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	return jwt.NewParser(options...)
}

func (i *Inspector) keyFunc(t *jwt.Token) (interface{}, error) {
	if len(i.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := i.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return i.verifyKey(key)
	}
	return i.verifyKey(i.config.Key)
}

func (i *Inspector) method() jwt.SigningMethod {
	if i.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (i *Inspector) verifyKey(key []byte) (interface{}, error) {
	if i.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
