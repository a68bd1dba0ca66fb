// Package transport is the HTTP client used to talk to platform endpoints.
//
// # Architecture boundaries
//
// The client knows how to obtain tokens (OAuth2 password and refresh grants), send
// authenticated JSON and multipart requests, and clear its cookie jar. It does not
// interpret response bodies beyond JSON decoding; classifying failures is left to
// callers.
//
// # What this package must NOT do
//
//   - Persist tokens.
//   - Retry requests.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrNoToken is returned by authenticated calls made without a token.
var ErrNoToken = errors.New("transport: no token")

const maxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
	UserAgent string
	// HTTPClient overrides the underlying client. Its Jar is replaced.
	HTTPClient *http.Client
}

// Field is one part of a multipart form.
type Field struct {
	Name  string
	Value string
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// IsJSON reports whether the response declares a JSON content type.
func (r *Response) IsJSON() bool {
	if r == nil {
		return false
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Decode unmarshals the body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// StatusError is returned by GetJSON for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: %s %s: status %d", e.Method, e.Path, e.Status)
}

// Client sends requests to platforms. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	jar       *clearableJar
	limiter   *rate.Limiter
	userAgent string
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	jar, err := newClearableJar()
	if err != nil {
		return nil, err
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	hc.Jar = jar
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		http:      hc,
		jar:       jar,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: opts.UserAgent,
	}, nil
}

// ClearCookies drops every cookie collected so far.
func (c *Client) ClearCookies() error {
	return c.jar.clear()
}

func (c *Client) oauthConfig(p *platform.Platform) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.OAuth.ClientID,
		ClientSecret: p.OAuth.ClientSecret,
		Scopes:       p.OAuth.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// PasswordToken runs the resource-owner password grant against p.
// Grant failures come back as *oauth2.RetrieveError.
func (c *Client) PasswordToken(ctx context.Context, p *platform.Platform, username, password string) (*oauth2.Token, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.oauthConfig(p).PasswordCredentialsToken(c.oauthContext(ctx), username, password)
}

// Refresh exchanges the refresh token of tok for a new token.
func (c *Client) Refresh(ctx context.Context, p *platform.Platform, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	stale := &oauth2.Token{RefreshToken: tok.RefreshToken, TokenType: tok.TokenType}
	next, err := c.oauthConfig(p).TokenSource(c.oauthContext(ctx), stale).Token()
	if err != nil {
		return nil, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = tok.RefreshToken
	}
	return next, nil
}

// GetJSON fetches path and decodes the JSON body into out. tok may be nil for
// anonymous endpoints. Non-2xx statuses are reported as *StatusError.
func (c *Client) GetJSON(ctx context.Context, p *platform.Platform, tok *oauth2.Token, path string, query url.Values, out any) error {
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	resp, err := c.do(ctx, p, tok, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{Method: http.MethodGet, Path: path, Status: resp.Status, Body: resp.Body}
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("transport: decode %s: %w", path, err)
	}
	return nil
}

// PostJSON sends body as JSON. The response is returned whatever its status.
// tok may be nil for anonymous endpoints.
func (c *Client) PostJSON(ctx context.Context, p *platform.Platform, tok *oauth2.Token, path string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s: %w", path, err)
	}
	return c.do(ctx, p, tok, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

// PostForm sends fields as multipart/form-data. The response is returned whatever its
// status. tok may be nil for anonymous endpoints.
func (c *Client) PostForm(ctx context.Context, p *platform.Platform, tok *oauth2.Token, path string, fields []Field) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return c.do(ctx, p, tok, http.MethodPost, path, &buf, w.FormDataContentType())
}

// Do sends an authenticated request.
func (c *Client) Do(ctx context.Context, p *platform.Platform, tok *oauth2.Token, method, path string, body io.Reader, contentType string) (*Response, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrNoToken
	}
	return c.do(ctx, p, tok, method, path, body, contentType)
}

func (c *Client) do(ctx context.Context, p *platform.Platform, tok *oauth2.Token, method, path string, body io.Reader, contentType string) (*Response, error) {
	if p == nil {
		return nil, platform.ErrInvalidPlatform
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, p.Endpoint(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if tok != nil && tok.AccessToken != "" {
		tok.SetAuthHeader(req)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("transport: read %s: %w", path, err)
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: data}, nil
}

type clearableJar struct {
	mu    sync.RWMutex
	inner *cookiejar.Jar
}

func newClearableJar() (*clearableJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &clearableJar{inner: inner}, nil
}

func (j *clearableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.inner.SetCookies(u, cookies)
}

func (j *clearableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

func (j *clearableJar) clear() error {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()
	return nil
}
