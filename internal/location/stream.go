// Package location turns a fix Provider into one-shot and continuous location streams.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rakshak/internal/models"
	"rakshak/internal/utils"
	"rakshak/pkg/logger"
)

var ErrUnavailable = errors.New("location unavailable")

const (
	DefaultTimeout = 15 * time.Second
	DefaultMaxAge  = 10 * time.Second
)

type Options struct {
	// Timeout bounds a single fix acquisition.
	Timeout time.Duration
	// MaxAge lets GetOnce reuse a cached fix younger than this.
	MaxAge time.Duration
}

type WatchOptions struct {
	MinDistanceMeters float64
	MinInterval       time.Duration
	// MaxAccuracyMeters drops fixes with a worse accuracy radius. Zero keeps all.
	MaxAccuracyMeters float64
}

// Handle identifies one watch. The zero Handle is never issued.
type Handle uint64

type Stream struct {
	provider Provider
	opts     Options
	logger   *logger.Logger

	mu     sync.Mutex
	last   *models.Location
	watch  *watch
	nextID uint64
}

type watch struct {
	id     Handle
	cancel context.CancelFunc

	// mu is held while a callback runs so deactivate waits for it.
	mu     sync.Mutex
	active bool
}

func (w *watch) deactivate() {
	w.mu.Lock()
	w.active = false
	w.mu.Unlock()
	w.cancel()
}

// call runs fn only while the watch is active.
func (w *watch) call(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		fn()
	}
}

func (w *watch) isActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func NewStream(provider Provider, opts Options, log *logger.Logger) *Stream {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAge < 0 {
		opts.MaxAge = 0
	}
	return &Stream{
		provider: provider,
		opts:     opts,
		logger:   log.WithComponent("location"),
	}
}

// GetOnce returns a single fix, or an error wrapping ErrUnavailable once the
// timeout elapses.
func (s *Stream) GetOnce(ctx context.Context) (models.Location, error) {
	if loc, ok := s.cached(); ok {
		return loc, nil
	}

	fixCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	loc, err := s.provider.Fix(fixCtx)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !utils.IsValidCoordinates(loc.Lat, loc.Lng) {
		return models.Location{}, fmt.Errorf("%w: invalid coordinates %f,%f", ErrUnavailable, loc.Lat, loc.Lng)
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	s.remember(loc)
	return loc, nil
}

// Last returns the most recent fix seen by this stream, if any.
func (s *Stream) Last() (models.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.Location{}, false
	}
	return *s.last, true
}

func (s *Stream) cached() (models.Location, bool) {
	if s.opts.MaxAge == 0 {
		return models.Location{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || time.Since(s.last.Timestamp) > s.opts.MaxAge {
		return models.Location{}, false
	}
	return *s.last, true
}

func (s *Stream) remember(loc models.Location) {
	s.mu.Lock()
	s.last = &loc
	s.mu.Unlock()
}

// Watch starts delivering fixes to onUpdate on its own goroutine and returns
// immediately. Only one watch runs per Stream: starting a new one stops the
// previous watch. onError receives acquisition failures; the watch keeps going.
func (s *Stream) Watch(onUpdate func(models.Location), onError func(error), opts WatchOptions) Handle {
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	prev := s.watch
	s.nextID++
	w := &watch{id: Handle(s.nextID), cancel: cancel, active: true}
	s.watch = w
	s.mu.Unlock()

	if prev != nil {
		prev.deactivate()
		s.logger.WithField("handle", prev.id).Warn("Replacing running location watch")
	}

	go s.runWatch(ctx, w, onUpdate, onError, opts)
	return w.id
}

// Stop ends the watch identified by h. Stopping a stale or unknown handle is a no-op.
// No callback fires after Stop returns, so callbacks must not call Stop themselves.
func (s *Stream) Stop(h Handle) {
	s.mu.Lock()
	w := s.watch
	if w == nil || w.id != h {
		s.mu.Unlock()
		return
	}
	s.watch = nil
	s.mu.Unlock()

	w.deactivate()
}

func (s *Stream) runWatch(ctx context.Context, w *watch, onUpdate func(models.Location), onError func(error), opts WatchOptions) {
	var lastSent *models.Location

	deliver := func() {
		fixCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		loc, err := s.provider.Fix(fixCtx)
		cancel()

		if !w.isActive() {
			return
		}
		if err != nil {
			if ctx.Err() != nil || onError == nil {
				return
			}
			w.call(func() { onError(fmt.Errorf("%w: %v", ErrUnavailable, err)) })
			return
		}
		if loc.Timestamp.IsZero() {
			loc.Timestamp = time.Now()
		}
		s.remember(loc)

		if opts.MaxAccuracyMeters > 0 && loc.Accuracy > opts.MaxAccuracyMeters {
			return
		}
		// The ticker already spaces polls by MinInterval.
		if lastSent != nil && utils.DistanceMeters(lastSent.Lat, lastSent.Lng, loc.Lat, loc.Lng) < opts.MinDistanceMeters {
			return
		}
		lastSent = &loc
		if onUpdate != nil {
			w.call(func() { onUpdate(loc) })
		}
	}

	deliver()

	ticker := time.NewTicker(opts.MinInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliver()
		}
	}
}
