package models

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
)

// SessionRecord is what survives a process restart. Location and status live server-side.
type SessionRecord struct {
	SessionID string    `json:"sessionId" bson:"session_id"`
	StartedAt time.Time `json:"startedAt,omitempty" bson:"started_at,omitempty"`
}

type CreateSOSRequest struct {
	UserID   string        `json:"userId"`
	Location Coordinates   `json:"location"`
	Status   SessionStatus `json:"status"`
}

type CreateSOSResponse struct {
	Success bool `json:"success"`
	SOS     *struct {
		ID string `json:"id"`
	} `json:"sos"`
}

// StatusUpdate is the body of a record update, sent both for periodic pushes
// and for the terminal push on deactivate.
type StatusUpdate struct {
	Location Coordinates   `json:"location"`
	Status   SessionStatus `json:"status"`
}

type ArtifactKind string

const (
	ArtifactAudio ArtifactKind = "audio"
	ArtifactPhoto ArtifactKind = "photo"
)
