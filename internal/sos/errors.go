package sos

import (
	"errors"
	"fmt"

	"rakshak/internal/audio"
	"rakshak/internal/backend"
	"rakshak/internal/location"
	"rakshak/internal/permissions"
	"rakshak/internal/photo"
	"rakshak/internal/voice"
	"rakshak/pkg/kvstore"
)

var (
	// ErrBusy means a transition was already in flight and the request was dropped.
	ErrBusy = errors.New("sos: transition in progress")
	// ErrNoUser means no identity is set, so there is nobody to raise an alert for.
	ErrNoUser = errors.New("sos: no user set")
	ErrClosed = errors.New("sos: controller closed")
	// ErrSessionActive means a sign-out was attempted during a session.
	ErrSessionActive = errors.New("sos: session active")
)

type Kind string

const (
	KindPermissionDenied     Kind = "permission_denied"
	KindLocationUnavailable  Kind = "location_unavailable"
	KindBackendUnavailable   Kind = "backend_unavailable"
	KindCaptureEngineFailure Kind = "capture_engine_failure"
	KindStorageFailure       Kind = "storage_failure"
)

// Error is a failure on the activate or deactivate path.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sos: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err, returning "" for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, permissions.ErrDenied):
		return KindPermissionDenied
	case errors.Is(err, location.ErrUnavailable):
		return KindLocationUnavailable
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, backend.ErrNoSessionID):
		return KindBackendUnavailable
	case errors.Is(err, audio.ErrCaptureFailed), errors.Is(err, photo.ErrCaptureFailed),
		errors.Is(err, voice.ErrNoTriggerPhrase), errors.Is(err, voice.ErrNoRecognizer):
		return KindCaptureEngineFailure
	case errors.Is(err, kvstore.ErrNotFound):
		return KindStorageFailure
	}
	return ""
}
