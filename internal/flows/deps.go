package flows

import "context"

// Deps groups flow dependency sets. The root engine builds this once and delegates
// each operation to the matching flow implementation with per-call inputs.
type Deps struct {
	Login          LoginDeps
	Activate       ActivateDeps
	ChangePassword ChangePasswordDeps
	Forgot         ForgotDeps
}

// TrackFunc emits one analytics event. metadata is evaluated only when tracking is on.
type TrackFunc func(ctx context.Context, event string, success bool, platform, userID string, err error, metadata func() map[string]string)

func noopTrack(context.Context, string, bool, string, string, error, func() map[string]string) {}
