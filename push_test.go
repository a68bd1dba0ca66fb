package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
	"golang.org/x/oauth2"
)

type pushRecorder struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func (r *pushRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests = append(r.requests, req.Clone(context.Background()))
	status := r.status
	r.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (r *pushRecorder) seen() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Request(nil), r.requests...)
}

func newPushFixture(t *testing.T, source PushTokenSource) (*TimelineRegistrar, *pushRecorder, *platform.Platform) {
	t.Helper()
	rec := &pushRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	client, err := transport.New(transport.Options{})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	p := &platform.Platform{Name: "demo", URL: srv.URL, OAuth: platform.OAuth{ClientID: "app"}}
	return NewTimelineRegistrar(client, source), rec, p
}

func TestTimelineRegistrarRegister(t *testing.T) {
	reg, rec, p := newPushFixture(t, func(context.Context) (string, error) { return "fcm:abc", nil })
	tok := &oauth2.Token{AccessToken: "at-1", TokenType: "Bearer"}

	if err := reg.Register(context.Background(), p, tok); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Unregister(context.Background(), p, tok); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	reqs := rec.seen()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Method != http.MethodPut || reqs[1].Method != http.MethodDelete {
		t.Fatalf("unexpected methods %s %s", reqs[0].Method, reqs[1].Method)
	}
	if reqs[0].URL.Path != "/"+PathPushToken || reqs[0].URL.Query().Get("fcmToken") != "fcm:abc" {
		t.Fatalf("unexpected url %s", reqs[0].URL)
	}
	if reqs[0].Header.Get("Authorization") != "Bearer at-1" {
		t.Fatalf("missing bearer header, got %q", reqs[0].Header.Get("Authorization"))
	}
}

func TestTimelineRegistrarNoPushToken(t *testing.T) {
	reg, rec, p := newPushFixture(t, func(context.Context) (string, error) { return "", nil })

	if err := reg.Register(context.Background(), p, &oauth2.Token{AccessToken: "at-1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(rec.seen()) != 0 {
		t.Fatal("no request expected without a push token")
	}
}

func TestTimelineRegistrarErrors(t *testing.T) {
	boom := errors.New("keychain locked")
	reg, _, p := newPushFixture(t, func(context.Context) (string, error) { return "", boom })
	if err := reg.Register(context.Background(), p, &oauth2.Token{AccessToken: "at-1"}); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}

	reg, rec, p := newPushFixture(t, func(context.Context) (string, error) { return "fcm:abc", nil })
	rec.status = http.StatusForbidden
	err := reg.Register(context.Background(), p, &oauth2.Token{AccessToken: "at-1"})
	var se *transport.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("expected status error, got %v", err)
	}

	if err := reg.Register(context.Background(), p, nil); !errors.Is(err, transport.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}

	var unset *TimelineRegistrar
	if err := unset.Register(context.Background(), p, nil); err == nil {
		t.Fatal("expected error from an unconfigured registrar")
	}
}
