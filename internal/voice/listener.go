// Package voice listens for the user's spoken trigger phrase.
package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"rakshak/pkg/logger"
)

var (
	ErrNoTriggerPhrase = errors.New("voice: no trigger phrase configured")
	ErrNoRecognizer    = errors.New("voice: no speech recognizer configured")
)

type EventType int

const (
	EventResult EventType = iota
	EventEnd
	EventError
)

// Event is one notification from a speech engine.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Recognizer is a speech-to-text engine. Start and Stop must not block on
// delivery to Events.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan Event
}

type State int

const (
	StateStopped State = iota
	StateListening
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateRestarting:
		return "restarting"
	default:
		return "stopped"
	}
}

type Backoffs struct {
	End          time.Duration
	Error        time.Duration
	StartFailure time.Duration
}

var DefaultBackoffs = Backoffs{
	End:          300 * time.Millisecond,
	Error:        500 * time.Millisecond,
	StartFailure: 800 * time.Millisecond,
}

// Listener keeps a Recognizer running while armed and fires a callback the
// first time a transcript contains the trigger phrase. After a detection it
// stays stopped until Init is called again.
type Listener struct {
	rec      Recognizer
	matcher  Matcher
	backoffs Backoffs
	logger   *logger.Logger

	mu         sync.Mutex
	state      State
	phrase     string
	onDetected func()
	gen        uint64
	timer      *time.Timer

	pump      sync.Once
	closeOnce sync.Once
	quit      chan struct{}
}

func NewListener(rec Recognizer, matcher Matcher, backoffs Backoffs, log *logger.Logger) *Listener {
	if backoffs.End <= 0 {
		backoffs.End = DefaultBackoffs.End
	}
	if backoffs.Error <= 0 {
		backoffs.Error = DefaultBackoffs.Error
	}
	if backoffs.StartFailure <= 0 {
		backoffs.StartFailure = DefaultBackoffs.StartFailure
	}
	return &Listener{
		rec:      rec,
		matcher:  matcher,
		backoffs: backoffs,
		logger:   log.WithComponent("voice"),
		quit:     make(chan struct{}),
	}
}

// Init arms the listener with phrase, replacing any earlier arming.
func (l *Listener) Init(ctx context.Context, phrase string, onDetected func()) error {
	if Normalize(phrase) == "" {
		return ErrNoTriggerPhrase
	}

	l.pump.Do(func() { go l.run() })

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateStopped {
		l.stopLocked()
	}
	l.phrase = phrase
	l.onDetected = onDetected
	l.gen++
	l.startLocked(context.WithoutCancel(ctx))
	return nil
}

// Stop disarms the listener. Safe to call when already stopped.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateStopped {
		return
	}
	l.stopLocked()
	l.logger.Info("Voice listener stopped")
}

// Close stops the listener and its event pump.
func (l *Listener) Close() {
	l.Stop()
	l.closeOnce.Do(func() { close(l.quit) })
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) stopLocked() {
	l.state = StateStopped
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.rec.Stop()
}

func (l *Listener) startLocked(ctx context.Context) {
	if err := l.rec.Start(ctx); err != nil {
		l.logger.WithError(err).Warn("Speech engine failed to start, retrying")
		l.restartAfterLocked(l.backoffs.StartFailure)
		return
	}
	l.state = StateListening
	l.logger.Debug("Voice listener listening")
}

func (l *Listener) restartAfterLocked(d time.Duration) {
	l.state = StateRestarting
	gen := l.gen
	l.timer = time.AfterFunc(d, func() { l.restart(gen) })
}

func (l *Listener) restart(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen || l.state != StateRestarting {
		return
	}
	l.timer = nil
	l.startLocked(context.Background())
}

func (l *Listener) run() {
	events := l.rec.Events()
	for {
		select {
		case <-l.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.handle(ev)
		}
	}
}

func (l *Listener) handle(ev Event) {
	l.mu.Lock()
	if l.state != StateListening {
		l.mu.Unlock()
		return
	}

	switch ev.Type {
	case EventResult:
		if !l.matcher.Match(ev.Text, l.phrase) {
			l.mu.Unlock()
			return
		}
		l.stopLocked()
		cb := l.onDetected
		l.onDetected = nil
		l.mu.Unlock()

		l.logger.Info("Trigger phrase detected")
		if cb != nil {
			cb()
		}
		return

	case EventEnd:
		l.restartAfterLocked(l.backoffs.End)

	case EventError:
		l.logger.WithError(ev.Err).Warn("Speech engine error, restarting")
		l.restartAfterLocked(l.backoffs.Error)
	}
	l.mu.Unlock()
}

// Disabled stands in for a listener on hosts without a speech engine.
type Disabled struct{}

func (Disabled) Init(context.Context, string, func()) error { return ErrNoRecognizer }

func (Disabled) Stop() {}
