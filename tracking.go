package auth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Tracking event categories.
const (
	CategoryAuth    = "auth"
	CategoryAccount = "account"
)

// Tracking event names emitted by the Engine.
const (
	EventLoginSuccess          = "login.success"
	EventLoginPartial          = "login.partial"
	EventLoginFailure          = "login.failure"
	EventLoginRedirect         = "login.redirect"
	EventLogout                = "logout"
	EventActivationSuccess     = "activation.success"
	EventActivationFailure     = "activation.failure"
	EventPasswordChangeSuccess = "password.change.success"
	EventPasswordChangeFailure = "password.change.failure"
	EventForgot                = "forgot"
)

// TrackingEvent is one analytics record.
type TrackingEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Platform  string            `json:"platform,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TrackingSink receives tracking events. Emit runs on the dispatcher goroutine.
type TrackingSink interface {
	Emit(ctx context.Context, event TrackingEvent)
}

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, TrackingEvent) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan TrackingEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan TrackingEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event TrackingEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan TrackingEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event TrackingEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
