// Package media ships captured audio clips and photos to an upload sink.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"rakshak/internal/backend"
	"rakshak/internal/models"
	"rakshak/internal/utils"
	"rakshak/pkg/logger"
	"rakshak/pkg/storage"
)

// Artifact is one captured file tagged with the session it belongs to.
type Artifact struct {
	SessionID   string
	Kind        models.ArtifactKind
	Path        string
	Filename    string
	ContentType string
}

func (a Artifact) filename() string {
	if a.Filename != "" {
		return a.Filename
	}
	return filepath.Base(a.Path)
}

func (a Artifact) contentType() string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return utils.GetContentType(a.Path)
}

func (a Artifact) validate() error {
	if a.SessionID == "" {
		return errors.New("media: artifact without session id")
	}
	if a.Path == "" {
		return errors.New("media: artifact without path")
	}
	return nil
}

type Uploader interface {
	Upload(ctx context.Context, a Artifact) error
}

// MediaPoster is the slice of the backend client used for uploads.
type MediaPoster interface {
	UploadMedia(ctx context.Context, sessionID, field, filename, contentType, path string) error
}

// BackendUploader posts artifacts to the backend media endpoint.
type BackendUploader struct {
	poster MediaPoster
}

func NewBackendUploader(poster MediaPoster) *BackendUploader {
	return &BackendUploader{poster: poster}
}

func (u *BackendUploader) Upload(ctx context.Context, a Artifact) error {
	if err := a.validate(); err != nil {
		return err
	}
	field := "files"
	if a.Kind == models.ArtifactAudio {
		field = "audio"
	}
	return u.poster.UploadMedia(ctx, a.SessionID, field, a.filename(), a.contentType(), a.Path)
}

// StorageUploader writes artifacts to object storage under sos/<session>/<kind>/.
type StorageUploader struct {
	provider storage.StorageProvider
}

func NewStorageUploader(provider storage.StorageProvider) *StorageUploader {
	return &StorageUploader{provider: provider}
}

func SessionPrefix(sessionID string) string {
	return path.Join("sos", sessionID) + "/"
}

func (u *StorageUploader) Upload(ctx context.Context, a Artifact) error {
	if err := a.validate(); err != nil {
		return err
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("media: open %s: %w", a.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("media: stat %s: %w", a.Path, err)
	}

	key := path.Join("sos", a.SessionID, string(a.Kind),
		utils.GenerateUniqueFilename(string(a.Kind), utils.GetFileExtension(a.filename())))

	_, err = u.provider.Upload(ctx, &storage.UploadRequest{
		Key:         key,
		Reader:      f,
		ContentType: a.contentType(),
		Size:        info.Size(),
		Metadata: map[string]string{
			"sosAlertId":  a.SessionID,
			"kind":        string(a.Kind),
			"captured_at": info.ModTime().UTC().Format(time.RFC3339),
		},
	})
	return err
}

// List returns the stored artifacts of one session.
func (u *StorageUploader) List(ctx context.Context, sessionID string) ([]*storage.FileInfo, error) {
	return u.provider.ListFiles(ctx, SessionPrefix(sessionID))
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// KeepLocal leaves the captured file on disk after a successful upload.
	KeepLocal bool
}

// Retrying wraps an Uploader with bounded exponential backoff. Client errors
// are not retried. Local files are removed once delivered.
type Retrying struct {
	next   Uploader
	policy RetryPolicy
	logger *logger.Logger
}

func NewRetrying(next Uploader, policy RetryPolicy, log *logger.Logger) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{next: next, policy: policy, logger: log.WithComponent("media")}
}

func (r *Retrying) Upload(ctx context.Context, a Artifact) error {
	log := r.logger.WithSessionID(a.SessionID).WithField("kind", a.Kind)

	attempt := 0
	err := utils.RetryWithBackoff(ctx, r.policy.MaxAttempts, r.policy.InitialBackoff, r.policy.MaxBackoff,
		backend.IsRetryable,
		func() error {
			attempt++
			err := r.next.Upload(ctx, a)
			if err != nil {
				log.WithError(err).WithField("attempt", attempt).Warn("Upload attempt failed")
			}
			return err
		})
	if err != nil {
		return fmt.Errorf("media: upload %s after %d attempt(s): %w", a.Kind, attempt, err)
	}

	log.WithField("attempts", attempt).Info("Artifact uploaded")
	if !r.policy.KeepLocal {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Failed to remove uploaded artifact")
		}
	}
	return nil
}
