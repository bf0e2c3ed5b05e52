package utils

import "time"

const (
	DefaultCountryCode = "+91"

	// Capture limits
	MaxPhotoSize     = 10 * 1024 * 1024 // 10MB
	MaxAudioDuration = 120 * time.Second

	AudioContentType = "audio/wav"
	PhotoContentType = "image/jpeg"
	AudioFilename    = "recording.wav"
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrValidationFailed = "validation failed"
	ErrNoUser           = "no user signed in"
	ErrBusy             = "an SOS transition is already in progress"
	ErrSessionActive    = "cannot sign out while an SOS session is active"
)
