// Package tokenstore persists the bearer credential, the last selected platform and the
// cached session record.
//
// # Architecture boundaries
//
// [Store] is a thin typed layer over a [Backend] key-value store. Backends ship for
// process memory, Redis and an encrypted local file. The package never decides when to
// persist; callers do.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned by Load operations when nothing is stored under the key.
var ErrNotFound = errors.New("tokenstore: not found")

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("tokenstore: corrupt value")

const (
	keyToken    = "token"
	keyPlatform = "platform"
	keySession  = "session"
)

// Backend is a minimal key-value store. Get returns ErrNotFound for absent keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	Platform  string           `json:"platform"`
	User      session.UserInfo `json:"user"`
	Scenario  session.Scenario `json:"scenario,omitempty"`
	ExpiresAt time.Time        `json:"expiresAt,omitempty"`
	SavedAt   time.Time        `json:"savedAt"`
}

type storedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Store implements token storage and session caching over a Backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

// New returns a Store over b.
func New(b Backend) *Store {
	return &Store{backend: b, now: time.Now}
}

// Save persists tok. A nil token clears the stored one.
func (s *Store) Save(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(storedToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return s.backend.Set(ctx, keyToken, data, 0)
}

// Load returns the stored token or ErrNotFound.
func (s *Store) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.backend.Get(ctx, keyToken)
	if err != nil {
		return nil, err
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil || st.AccessToken == "" {
		return nil, ErrCorrupt
	}
	return &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    st.TokenType,
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}, nil
}

// Clear removes the stored token and the cached session.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, keyToken, keySession)
}

// CachePlatform remembers the last selected platform.
func (s *Store) CachePlatform(ctx context.Context, name string) error {
	if name == "" {
		return s.backend.Delete(ctx, keyPlatform)
	}
	return s.backend.Set(ctx, keyPlatform, []byte(name), 0)
}

// LoadPlatform returns the last selected platform name or ErrNotFound.
func (s *Store) LoadPlatform(ctx context.Context) (string, error) {
	data, err := s.backend.Get(ctx, keyPlatform)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CacheSession stores a record of sess. A nil session removes the record.
func (s *Store) CacheSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return s.backend.Delete(ctx, keySession)
	}
	rec := SessionRecord{
		User:      sess.User,
		Scenario:  sess.Scenario,
		ExpiresAt: sess.ExpiresAt,
		SavedAt:   s.now().UTC(),
	}
	if sess.Platform != nil {
		rec.Platform = sess.Platform.Name
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.backend.Set(ctx, keySession, data, 0)
}

// LoadSession returns the cached session record or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context) (*SessionRecord, error) {
	data, err := s.backend.Get(ctx, keySession)
	if err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrCorrupt
	}
	return &rec, nil
}
