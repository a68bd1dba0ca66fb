package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
	"golang.org/x/oauth2"
)

// PathPushToken is the endpoint that binds a push notification token to the account.
const PathPushToken = "timeline/pushNotif/fcmToken"

// DeviceRegistrar binds the device push token to the logged in account. Failures
// never affect a login or logout.
type DeviceRegistrar interface {
	Register(ctx context.Context, p *platform.Platform, tok *oauth2.Token) error
	Unregister(ctx context.Context, p *platform.Platform, tok *oauth2.Token) error
}

// PushTokenSource returns the push provider token of this device. An empty token
// means push is unavailable.
type PushTokenSource func(ctx context.Context) (string, error)

// RequestDoer sends one authenticated platform request. *transport.Client
// implements it; pass the client given to the Builder so the registrar shares the
// engine cookie jar.
type RequestDoer interface {
	Do(ctx context.Context, p *platform.Platform, tok *oauth2.Token, method, path string, body io.Reader, contentType string) (*transport.Response, error)
}

// TimelineRegistrar registers push tokens with the platform timeline service.
type TimelineRegistrar struct {
	client RequestDoer
	source PushTokenSource
}

// NewTimelineRegistrar returns a registrar sending tokens from source through client.
func NewTimelineRegistrar(client RequestDoer, source PushTokenSource) *TimelineRegistrar {
	return &TimelineRegistrar{client: client, source: source}
}

// Register implements DeviceRegistrar.
func (r *TimelineRegistrar) Register(ctx context.Context, p *platform.Platform, tok *oauth2.Token) error {
	return r.send(ctx, p, tok, http.MethodPut)
}

// Unregister implements DeviceRegistrar.
func (r *TimelineRegistrar) Unregister(ctx context.Context, p *platform.Platform, tok *oauth2.Token) error {
	return r.send(ctx, p, tok, http.MethodDelete)
}

func (r *TimelineRegistrar) send(ctx context.Context, p *platform.Platform, tok *oauth2.Token, method string) error {
	if r == nil || r.client == nil || r.source == nil {
		return errors.New("push registrar not configured")
	}
	pushToken, err := r.source(ctx)
	if err != nil {
		return fmt.Errorf("read push token: %w", err)
	}
	if pushToken == "" {
		return nil
	}
	path := PathPushToken + "?" + url.Values{"fcmToken": {pushToken}}.Encode()
	resp, err := r.client.Do(ctx, p, tok, method, path, nil, "")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &transport.StatusError{Method: method, Path: PathPushToken, Status: resp.Status, Body: resp.Body}
	}
	return nil
}
