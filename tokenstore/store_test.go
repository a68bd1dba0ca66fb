package tokenstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

var fastKDF = KDFConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1}

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, "test", "device-1"), mr
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	rb, _ := newRedisBackend(t)
	fb, err := NewFileBackend(filepath.Join(t.TempDir(), "store.bin"), "correct horse battery", fastKDF)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"redis":  rb,
		"file":   fb,
	}
}

func TestStoreTokenLifecycle(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b)

			if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on empty store, got %v", err)
			}

			expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
			tok := &oauth2.Token{AccessToken: "at-1", RefreshToken: "rt-1", TokenType: "Bearer", Expiry: expiry}
			if err := s.Save(ctx, tok); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.AccessToken != "at-1" || got.RefreshToken != "rt-1" || !got.Expiry.Equal(expiry) {
				t.Fatalf("unexpected token %+v", got)
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after clear, got %v", err)
			}
		})
	}
}

func TestStoreSessionCache(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b)

			if err := s.CachePlatform(ctx, "recette"); err != nil {
				t.Fatalf("CachePlatform failed: %v", err)
			}
			sess := &session.Session{
				Platform: &platform.Platform{Name: "recette"},
				User:     session.UserInfo{ID: "u-1", Login: "alice"},
				Scenario: session.MustVerifyEmail,
			}
			if err := s.CacheSession(ctx, sess); err != nil {
				t.Fatalf("CacheSession failed: %v", err)
			}

			rec, err := s.LoadSession(ctx)
			if err != nil {
				t.Fatalf("LoadSession failed: %v", err)
			}
			if rec.Platform != "recette" || rec.User.Login != "alice" || rec.Scenario != session.MustVerifyEmail {
				t.Fatalf("unexpected record %+v", rec)
			}

			if err := s.CacheSession(ctx, nil); err != nil {
				t.Fatalf("CacheSession(nil) failed: %v", err)
			}
			if _, err := s.LoadSession(ctx); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected session record removed, got %v", err)
			}
			name, err := s.LoadPlatform(ctx)
			if err != nil || name != "recette" {
				t.Fatalf("expected platform kept, got %q, %v", name, err)
			}
		})
	}
}

func TestRedisBackendKeysAreNamespaced(t *testing.T) {
	b, mr := newRedisBackend(t)
	s := New(b)
	if err := s.Save(context.Background(), &oauth2.Token{AccessToken: "at"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !mr.Exists("test:device-1:token") {
		t.Fatalf("expected namespaced key, have %v", mr.Keys())
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	b, mr := newRedisBackend(t)
	mr.Close()
	_, err := New(b).Load(context.Background())
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestMemoryBackendTTL(t *testing.T) {
	b := NewMemoryBackend()
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }

	ctx := context.Background()
	if err := b.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := b.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be gone, got %v", err)
	}
}

func TestFileBackendReopenAndWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bin")
	ctx := context.Background()

	fb, err := NewFileBackend(path, "correct horse battery", fastKDF)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	if err := New(fb).Save(ctx, &oauth2.Token{AccessToken: "persisted"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if bytes.Contains(raw, []byte("persisted")) {
		t.Fatal("token stored in clear text")
	}

	reopened, err := NewFileBackend(path, "correct horse battery", fastKDF)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	tok, err := New(reopened).Load(ctx)
	if err != nil || tok.AccessToken != "persisted" {
		t.Fatalf("expected persisted token after reopen, got %+v, %v", tok, err)
	}

	if _, err := NewFileBackend(path, "wrong passphrase!", fastKDF); !errors.Is(err, ErrBadPassphrase) {
		t.Fatalf("expected ErrBadPassphrase, got %v", err)
	}
}

func TestFileBackendRejectsShortPassphrase(t *testing.T) {
	if _, err := NewFileBackend(filepath.Join(t.TempDir(), "x"), "short", fastKDF); err == nil {
		t.Fatal("expected short passphrase to be rejected")
	}
}
