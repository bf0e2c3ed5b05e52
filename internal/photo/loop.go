// Package photo runs the periodic still-capture cycle of an active session.
package photo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"rakshak/internal/media"
	"rakshak/internal/models"
	"rakshak/internal/utils"
	"rakshak/pkg/logger"
)

var ErrCaptureFailed = errors.New("photo capture failed")

// Camera takes one still and returns the path of the written file.
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

type Options struct {
	MaxBytes     int64
	MaxDimension uint
	Quality      int
}

// Loop captures and uploads a photo, then sleeps the interval, until stopped.
// A slow upload delays the next capture rather than overlapping it.
type Loop struct {
	camera   Camera
	uploader media.Uploader
	opts     Options
	logger   *logger.Logger

	mu        sync.Mutex
	capturing bool
	stop      chan struct{}
	done      chan struct{}

	captures atomic.Int64
}

func NewLoop(camera Camera, uploader media.Uploader, opts Options, log *logger.Logger) *Loop {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = utils.MaxPhotoSize
	}
	if opts.MaxDimension == 0 {
		opts.MaxDimension = 1920
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}
	return &Loop{
		camera:   camera,
		uploader: uploader,
		opts:     opts,
		logger:   log.WithComponent("photo"),
	}
}

// Start launches the loop for sessionID. It is a no-op while a loop is
// running. A loop that was stopped mid-capture is allowed to finish first.
func (l *Loop) Start(ctx context.Context, sessionID string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("photo: invalid interval %v", interval)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	log := l.logger.WithSessionID(sessionID)
	if l.capturing {
		log.Warn("Photo loop already running, ignoring start")
		return nil
	}
	if l.done != nil {
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.capturing = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go l.run(context.WithoutCancel(ctx), sessionID, interval, l.stop, l.done)

	log.LogStreamEvent("photo", "started", map[string]interface{}{"interval_seconds": interval.Seconds()})
	return nil
}

// Stop ends the loop after any in-flight capture. Safe to call repeatedly.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.capturing {
		return
	}
	l.capturing = false
	close(l.stop)
	l.logger.LogStreamEvent("photo", "stopped", nil)
}

func (l *Loop) Capturing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capturing
}

// Captures counts the capture attempts made over the lifetime of the loop.
func (l *Loop) Captures() int64 {
	return l.captures.Load()
}

// Wait blocks until the current or last run has exited.
func (l *Loop) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (l *Loop) run(ctx context.Context, sessionID string, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := l.logger.WithSessionID(sessionID)

	timer := time.NewTimer(interval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := l.captureOnce(ctx, sessionID); err != nil {
			log.WithError(err).Error("Photo cycle failed")
		}

		select {
		case <-stop:
			return
		default:
		}

		timer.Reset(interval)
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

func (l *Loop) captureOnce(ctx context.Context, sessionID string) error {
	l.captures.Add(1)

	path, err := l.camera.Capture(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	if err := l.fit(path); err != nil {
		os.Remove(path)
		return err
	}

	return l.uploader.Upload(ctx, media.Artifact{
		SessionID:   sessionID,
		Kind:        models.ArtifactPhoto,
		Path:        path,
		Filename:    filepath.Base(path),
		ContentType: utils.PhotoContentType,
	})
}

// fit downscales a photo above the size cap and rejects it if that is not enough.
func (l *Loop) fit(path string) error {
	size, err := utils.FileSize(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if size <= l.opts.MaxBytes {
		return nil
	}

	l.logger.WithFields(map[string]interface{}{"path": path, "size": size}).Info("Photo over size cap, downscaling")
	if err := utils.DownscaleJPEG(path, l.opts.MaxDimension, l.opts.Quality); err != nil {
		return fmt.Errorf("photo: downscale: %w", err)
	}

	size, err = utils.FileSize(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if size > l.opts.MaxBytes {
		return fmt.Errorf("photo: %d bytes still above cap of %d", size, l.opts.MaxBytes)
	}
	return nil
}
