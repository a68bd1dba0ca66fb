package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
)

// PostFormFunc sends an anonymous multipart form to a platform endpoint.
type PostFormFunc func(ctx context.Context, p *platform.Platform, path string, fields []transport.Field) (*transport.Response, error)

// submissionFailure reports whether resp is a failed form submission and the message
// it carries. A submission fails on a non-2xx status, or when a JSON body has a truthy
// error field or cannot be parsed.
func submissionFailure(resp *transport.Response) (string, bool) {
	msg, bodyFailed := "", false
	if resp.IsJSON() && len(resp.Body) > 0 {
		var body map[string]any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			msg, bodyFailed = "invalid response body", true
		} else {
			msg, bodyFailed = errorField(body["error"])
		}
	}
	if !resp.OK() || bodyFailed {
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.Status)
		}
		return msg, true
	}
	return "", false
}

// errorField interprets the error member of a JSON body.
func errorField(v any) (string, bool) {
	switch e := v.(type) {
	case nil:
		return "", false
	case bool:
		return "", e
	case string:
		return e, e != ""
	case float64:
		return "", e != 0
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			return m, true
		}
		return "", true
	default:
		return "", true
	}
}
