package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/tokenstore"
	"golang.org/x/oauth2"
)

// fakeUser is one account known to fakePlatform.
type fakeUser struct {
	ID       string
	Password string
	Mobile   string
	Email    string

	ForceChangePassword bool
	NeedRevalidateTerms bool
	NeedRevalidateMail  bool
	NeedRevalidatePhone bool
	MobileState         string
	MailState           string

	// TokenError replaces the grant response for this login.
	TokenError string
}

// fakePlatform is an httptest backend speaking the platform endpoints.
type fakePlatform struct {
	t   *testing.T
	srv *httptest.Server

	mu              sync.Mutex
	users           map[string]*fakeUser
	activationCodes map[string]string
	resetCodes      map[string]string
	access          map[string]string
	refresh         map[string]string
	issued          int
	expiresIn       int

	context        session.AuthContext
	profileStatus  int
	userinfoStatus int
	resetBody      string
	activationBody string
	forgotStatus   int

	calls     map[string]int
	forms     map[string]map[string]string
	authz     map[string]string
	jsonBody  map[string]map[string]string
	pushCalls []string
	// pushCookies holds the session cookie sent with each push call.
	pushCookies []string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	fp := &fakePlatform{
		t:               t,
		users:           map[string]*fakeUser{},
		activationCodes: map[string]string{},
		resetCodes:      map[string]string{},
		access:          map[string]string{},
		refresh:         map[string]string{},
		expiresIn:       3600,
		context: session.AuthContext{
			CGU:           true,
			PasswordRegex: "^.{8,}$",
		},
		profileStatus:  http.StatusOK,
		userinfoStatus: http.StatusOK,
		forgotStatus:   http.StatusOK,
		calls:          map[string]int{},
		forms:          map[string]map[string]string{},
		authz:          map[string]string{},
		jsonBody:       map[string]map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth2/token", fp.handleToken)
	mux.HandleFunc("/auth/oauth2/userinfo", fp.handleUserInfo)
	mux.HandleFunc("/auth/user/requirements", fp.handleRequirements)
	mux.HandleFunc("/directory/user/mobilestate", fp.handleState(func(u *fakeUser) (string, string) { return u.MobileState, u.Mobile }))
	mux.HandleFunc("/directory/user/mailstate", fp.handleState(func(u *fakeUser) (string, string) { return u.MailState, u.Email }))
	mux.HandleFunc("/userbook/api/person", fp.handleProfile)
	mux.HandleFunc("/auth/context", fp.handleContext)
	mux.HandleFunc("/auth/activation/match", fp.handleMatch("activationCode", fp.activationCodes))
	mux.HandleFunc("/auth/reset/match", fp.handleMatch("resetCode", fp.resetCodes))
	mux.HandleFunc("/auth/activation", fp.handleActivation)
	mux.HandleFunc("/auth/reset", fp.handleReset)
	mux.HandleFunc("/auth/forgot-id", fp.handleForgot)
	mux.HandleFunc("/auth/forgot-password", fp.handleForgot)
	mux.HandleFunc("/timeline/pushNotif/fcmToken", fp.handlePush)

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakePlatform) platform(name string) platform.Platform {
	return platform.Platform{
		Name:  name,
		URL:   fp.srv.URL,
		OAuth: platform.OAuth{ClientID: "app", ClientSecret: "secret", Scopes: []string{"userinfo"}},
	}
}

func (fp *fakePlatform) addUser(login string, u fakeUser) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	copied := u
	fp.users[login] = &copied
}

func (fp *fakePlatform) updateUser(login string, fn func(*fakeUser)) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fn(fp.users[login])
}

// issue returns a live token for login without going through the grant.
func (fp *fakePlatform) issue(login string, expiry time.Time) *oauth2.Token {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	at, rt := fp.nextTokensLocked(login)
	return &oauth2.Token{AccessToken: at, RefreshToken: rt, TokenType: "Bearer", Expiry: expiry}
}

func (fp *fakePlatform) nextTokensLocked(login string) (string, string) {
	fp.issued++
	at := fmt.Sprintf("at-%d", fp.issued)
	rt := fmt.Sprintf("rt-%d", fp.issued)
	fp.access[at] = login
	fp.refresh[rt] = login
	return at, rt
}

func (fp *fakePlatform) count(path string) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.calls[path]
}

func (fp *fakePlatform) form(path string) map[string]string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.forms[path]
}

func (fp *fakePlatform) authHeader(path string) string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.authz[path]
}

func (fp *fakePlatform) set(fn func(fp *fakePlatform)) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fn(fp)
}

func (fp *fakePlatform) record(r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.calls[r.URL.Path]++
	fp.authz[r.URL.Path] = r.Header.Get("Authorization")
}

func (fp *fakePlatform) recordForm(r *http.Request) map[string]string {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		fp.t.Errorf("parse form %s: %v", r.URL.Path, err)
	}
	out := map[string]string{}
	if r.MultipartForm != nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
	}
	fp.mu.Lock()
	fp.forms[r.URL.Path] = out
	fp.mu.Unlock()
	return out
}

// bearer resolves the account behind the request token.
func (fp *fakePlatform) bearer(r *http.Request) (*fakeUser, string, bool) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fp.mu.Lock()
	defer fp.mu.Unlock()
	login, ok := fp.access[tok]
	if !ok {
		return nil, "", false
	}
	u, ok := fp.users[login]
	if !ok {
		return nil, "", false
	}
	copied := *u
	return &copied, login, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fp *fakePlatform) handleToken(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	var login string
	switch r.PostForm.Get("grant_type") {
	case "password":
		login = r.PostForm.Get("username")
		u, ok := fp.users[login]
		if ok && u.TokenError != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": u.TokenError})
			return
		}
		if !ok || u.Password != r.PostForm.Get("password") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "auth.invalid.credentials"})
			return
		}
	case "refresh_token":
		var ok bool
		login, ok = fp.refresh[r.PostForm.Get("refresh_token")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	at, rt := fp.nextTokensLocked(login)
	http.SetCookie(w, &http.Cookie{Name: "oneSessionId", Value: at, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  at,
		"refresh_token": rt,
		"token_type":    "Bearer",
		"expires_in":    fp.expiresIn,
	})
}

func (fp *fakePlatform) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	u, login, ok := fp.bearer(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fp.mu.Lock()
	status := fp.userinfoStatus
	fp.mu.Unlock()
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":              u.ID,
		"login":               login,
		"username":            "Jane Doe",
		"firstName":           "Jane",
		"lastName":            "Doe",
		"type":                []string{"Teacher"},
		"structures":          []string{"s1"},
		"structureNames":      []string{"Lycée Victor Hugo"},
		"mobile":              u.Mobile,
		"email":               u.Email,
		"forceChangePassword": u.ForceChangePassword,
		"needRevalidateTerms": u.NeedRevalidateTerms,
	})
}

func (fp *fakePlatform) handleRequirements(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	u, _, ok := fp.bearer(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"needRevalidateEmail":  u.NeedRevalidateMail,
		"needRevalidateMobile": u.NeedRevalidatePhone,
	})
}

func (fp *fakePlatform) handleState(pick func(*fakeUser) (string, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp.record(r)
		u, _, ok := fp.bearer(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		state, value := pick(u)
		body := map[string]string{"state": state}
		if state == "valid" {
			body["valid"] = value
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (fp *fakePlatform) handleProfile(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	if _, _, ok := fp.bearer(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fp.mu.Lock()
	status := fp.profileStatus
	fp.mu.Unlock()
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": []map[string]any{{
			"photo": "/userbook/avatar/u1",
			"mood":  "happy",
			"motto": "carpe diem",
			"hobbies": []map[string]string{
				{"category": "music", "values": "jazz"},
				{"category": "sport", "values": ""},
			},
		}},
	})
}

func (fp *fakePlatform) handleContext(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	fp.mu.Lock()
	c := fp.context
	fp.mu.Unlock()
	writeJSON(w, http.StatusOK, c)
}

func (fp *fakePlatform) handleMatch(field string, codes map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp.record(r)
		form := fp.recordForm(r)
		fp.mu.Lock()
		code, ok := codes[form["login"]]
		fp.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"match": ok && code == form[field]})
	}
}

func (fp *fakePlatform) handleActivation(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	form := fp.recordForm(r)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.activationBody != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fp.activationBody))
		return
	}
	code, ok := fp.activationCodes[form["login"]]
	if !ok || code != form["activationCode"] {
		writeJSON(w, http.StatusOK, map[string]any{"error": map[string]string{"message": "activation.invalid.code"}})
		return
	}
	delete(fp.activationCodes, form["login"])
	fp.users[form["login"]] = &fakeUser{ID: "u-" + form["login"], Password: form["password"], Email: form["mail"], Mobile: form["phone"]}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (fp *fakePlatform) handleReset(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	fp.recordForm(r)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.resetBody != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fp.resetBody))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (fp *fakePlatform) handleForgot(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fp.t.Errorf("decode forgot body: %v", err)
	}
	fp.mu.Lock()
	fp.jsonBody[r.URL.Path] = body
	status := fp.forgotStatus
	fp.mu.Unlock()
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "no.match"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mobile": "06****78"})
}

func (fp *fakePlatform) handlePush(w http.ResponseWriter, r *http.Request) {
	fp.record(r)
	fp.mu.Lock()
	fp.pushCalls = append(fp.pushCalls, r.Method+" "+r.URL.Query().Get("fcmToken"))
	cookie := ""
	if c, err := r.Cookie("oneSessionId"); err == nil {
		cookie = c.Value
	}
	fp.pushCookies = append(fp.pushCookies, cookie)
	fp.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func testRegistry(t *testing.T, url string) *platform.Registry {
	t.Helper()
	reg, err := platform.NewRegistry(platform.Platform{
		Name:  "demo",
		URL:   url,
		OAuth: platform.OAuth{ClientID: "app", ClientSecret: "secret"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

// testHarness bundles an Engine wired to a fakePlatform.
type testHarness struct {
	fp     *fakePlatform
	engine *Engine
	tokens *tokenstore.Store
	p      *platform.Platform
}

type harnessOption func(*Builder)

func newHarness(t *testing.T, opts ...harnessOption) *testHarness {
	t.Helper()
	fp := newFakePlatform(t)
	p := fp.platform("demo")
	wayf := fp.platform("wayf")
	wayf.WAYF = true

	reg, err := platform.NewRegistry(p, wayf)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	tokens := tokenstore.New(tokenstore.NewMemoryBackend())

	b := New().WithPlatforms(reg).WithTokenStore(tokens)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{fp: fp, engine: engine, tokens: tokens, p: mustPlatform(t, engine, "demo")}
}

func mustPlatform(t *testing.T, e *Engine, name string) *platform.Platform {
	t.Helper()
	p, err := e.Platforms().Get(name)
	if err != nil {
		t.Fatalf("platform %s: %v", name, err)
	}
	return p
}

func (h *testHarness) counter(id MetricID) uint64 {
	return h.engine.MetricsSnapshot().Counters[id]
}

func (h *testHarness) storedToken(t *testing.T) *oauth2.Token {
	t.Helper()
	tok, err := h.tokens.Load(context.Background())
	if err != nil {
		return nil
	}
	return tok
}
