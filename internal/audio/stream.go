// Package audio records the microphone during an active session, bounded by a hard limit.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rakshak/internal/media"
	"rakshak/internal/models"
	"rakshak/internal/utils"
	"rakshak/pkg/logger"
)

var ErrCaptureFailed = errors.New("audio capture failed")

// Recorder drives the microphone. Stop returns the path of the recorded file.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
}

type Options struct {
	Limit time.Duration
	Tick  time.Duration
	// StopTimeout bounds the recorder shutdown triggered by the limit timer.
	StopTimeout time.Duration
}

type Stream struct {
	recorder Recorder
	uploader media.Uploader
	opts     Options
	logger   *logger.Logger

	// mu is held for the whole of a start or stop so the limit timer and an
	// explicit Stop never run the recorder shutdown concurrently.
	mu        sync.Mutex
	recording bool
	stopped   bool
	sessionID string
	gen       uint64
	limit     *time.Timer
	tickStop  chan struct{}

	elapsed atomic.Int64
	uploads sync.WaitGroup
}

func NewStream(recorder Recorder, uploader media.Uploader, opts Options, log *logger.Logger) *Stream {
	if opts.Limit <= 0 {
		opts.Limit = utils.MaxAudioDuration
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &Stream{
		recorder: recorder,
		uploader: uploader,
		opts:     opts,
		logger:   log.WithComponent("audio"),
	}
}

// Start begins recording for sessionID. A second Start before Stop is a no-op.
func (s *Stream) Start(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.WithSessionID(sessionID)
	if s.recording {
		log.Warn("Audio already recording, ignoring start")
		return nil
	}

	if err := s.recorder.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	s.recording = true
	s.stopped = false
	s.sessionID = sessionID
	s.gen++
	s.elapsed.Store(0)

	s.tickStop = make(chan struct{})
	go s.tick(s.tickStop)
	gen := s.gen
	s.limit = time.AfterFunc(s.opts.Limit, func() { s.autoStop(gen) })

	log.LogStreamEvent("audio", "started", map[string]interface{}{"limit_seconds": s.opts.Limit.Seconds()})
	return nil
}

// Stop ends the recording and uploads it in the background. It returns the
// recorded file path, or "" when nothing was recording or the engine failed.
// Safe to call any number of times; the upload fires at most once per recording.
func (s *Stream) Stop(ctx context.Context) (string, error) {
	return s.stop(ctx, "explicit", 0)
}

func (s *Stream) autoStop(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()
	if _, err := s.stop(ctx, "limit", gen); err != nil {
		s.logger.WithError(err).Error("Audio auto-stop failed")
	}
}

// stop with a non-zero gen only acts on that recording, so a late limit
// timer cannot end a newer one.
func (s *Stream) stop(ctx context.Context, reason string, gen uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.stopped || (gen != 0 && gen != s.gen) {
		return "", nil
	}
	s.stopped = true
	s.recording = false
	s.limit.Stop()
	close(s.tickStop)
	sessionID := s.sessionID

	log := s.logger.WithSessionID(sessionID).WithField("reason", reason)

	path, err := s.recorder.Stop(ctx)
	if err != nil {
		log.WithError(err).Error("Recorder failed to stop")
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if path == "" {
		log.Warn("Recorder produced no file")
		return "", nil
	}

	log.LogStreamEvent("audio", "stopped", map[string]interface{}{
		"reason":          reason,
		"elapsed_seconds": s.elapsed.Load(),
		"path":            path,
	})

	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()
		err := s.uploader.Upload(context.Background(), media.Artifact{
			SessionID:   sessionID,
			Kind:        models.ArtifactAudio,
			Path:        path,
			Filename:    utils.AudioFilename,
			ContentType: utils.AudioContentType,
		})
		if err != nil {
			log.WithError(err).Error("Audio upload failed")
		}
	}()

	return path, nil
}

func (s *Stream) tick(done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.elapsed.Add(1)
		}
	}
}

// Elapsed is the number of ticks counted for the current or last recording.
func (s *Stream) Elapsed() int64 {
	return s.elapsed.Load()
}

func (s *Stream) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Wait blocks until background uploads have finished.
func (s *Stream) Wait() {
	s.uploads.Wait()
}
