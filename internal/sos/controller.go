// Package sos owns the SOS session lifecycle: activation, the background
// capture streams of an active session, and deactivation.
package sos

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rakshak/internal/models"
	"rakshak/internal/notify"
	"rakshak/internal/permissions"
	"rakshak/pkg/logger"
)

type Backend interface {
	CreateSOS(ctx context.Context, userID string, loc models.Location) (string, error)
	UpdateSOS(ctx context.Context, sessionID string, update models.StatusUpdate) error
	GetUserDetails(ctx context.Context, userID string) (*models.UserDetails, error)
}

type SessionStore interface {
	User(ctx context.Context) (*models.User, error)
	SetUser(ctx context.Context, user *models.User) error
	ActiveSession(ctx context.Context) (*models.SessionRecord, error)
	SaveActiveSession(ctx context.Context, rec models.SessionRecord) error
	ClearActiveSession(ctx context.Context) error
	CodeWord(ctx context.Context) (string, error)
	SetCodeWord(ctx context.Context, phrase string) error
}

type Locator interface {
	GetOnce(ctx context.Context) (models.Location, error)
	Last() (models.Location, bool)
}

type AudioStream interface {
	Start(ctx context.Context, sessionID string) error
	Stop(ctx context.Context) (string, error)
	Elapsed() int64
}

type PhotoLoop interface {
	Start(ctx context.Context, sessionID string, interval time.Duration) error
	Stop()
}

type VoiceListener interface {
	Init(ctx context.Context, phrase string, onDetected func()) error
	Stop()
}

type Notifier interface {
	Notify(ctx context.Context, alert notify.Alert) (*notify.Report, error)
}

type Deps struct {
	Backend     Backend
	Store       SessionStore
	Permissions permissions.Gateway
	Location    Locator
	Audio       AudioStream
	Photo       PhotoLoop
	Voice       VoiceListener
	Notifier    Notifier
}

type Options struct {
	PushInterval     time.Duration
	PhotoInterval    time.Duration
	VoiceSettleDelay time.Duration
	NotifyTimeout    time.Duration
	// TriggerTimeout bounds an activation started by the voice listener.
	TriggerTimeout time.Duration
}

type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
)

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State         State               `json:"state"`
	SessionID     string              `json:"session_id,omitempty"`
	UserID        string              `json:"user_id,omitempty"`
	Processing    bool                `json:"processing"`
	StartedAt     time.Time           `json:"started_at,omitempty"`
	Location      *models.Coordinates `json:"location,omitempty"`
	RecordElapsed int64               `json:"record_elapsed_seconds"`
	Restored      bool                `json:"restored,omitempty"`
}

// Controller serializes SOS transitions and owns every capture stream of
// the active session. Only the controller writes the persisted session record.
type Controller struct {
	deps   Deps
	opts   Options
	logger *logger.Logger

	processing atomic.Bool
	// txMu is held for the whole body of Init and of every transition.
	txMu sync.Mutex

	mu          sync.Mutex
	state       State
	sessionID   string
	startedAt   time.Time
	restored    bool
	user        *models.User
	lastLoc     *models.Coordinates
	push        *pushRun
	armed       bool
	closed      bool
	initialized bool
	// staleRecord is set when the persisted session outlived its deactivation.
	staleRecord bool

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int

	bg sync.WaitGroup
}

type pushRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(deps Deps, opts Options, log *logger.Logger) *Controller {
	if opts.PushInterval <= 0 {
		opts.PushInterval = 3 * time.Minute
	}
	if opts.PhotoInterval <= 0 {
		opts.PhotoInterval = 2 * time.Minute
	}
	if opts.VoiceSettleDelay < 0 {
		opts.VoiceSettleDelay = 0
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = time.Minute
	}
	if opts.TriggerTimeout <= 0 {
		opts.TriggerTimeout = 2 * time.Minute
	}
	return &Controller{
		deps:   deps,
		opts:   opts,
		logger: log.WithComponent("sos"),
		state:  StateInactive,
		subs:   make(map[int]chan Snapshot),
	}
}

// Init loads the user, resumes a session left active by a previous process
// and otherwise arms the voice listener. Calls after the first succeed
// without effect.
func (c *Controller) Init(ctx context.Context) error {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	c.mu.Lock()
	done, closed := c.initialized, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if done {
		return nil
	}

	user, err := c.deps.Store.User(ctx)
	if err != nil {
		return newError(KindStorageFailure, "init", err)
	}
	rec, err := c.deps.Store.ActiveSession(ctx)
	if err != nil {
		return newError(KindStorageFailure, "init", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.user = user
	if rec != nil {
		c.state = StateActive
		c.sessionID = rec.SessionID
		c.startedAt = rec.StartedAt
		c.restored = true
	}
	c.mu.Unlock()

	if user == nil {
		c.logger.Info("No user signed in, waiting for identity")
	}

	if rec != nil {
		c.logger.LogSessionEvent(rec.SessionID, "restored", map[string]interface{}{
			"started_at": rec.StartedAt,
		})
		c.startStreams(ctx, rec.SessionID)
	} else {
		c.armVoice(ctx)
	}

	c.publish()
	return nil
}

// Toggle activates when inactive and deactivates when active.
func (c *Controller) Toggle(ctx context.Context) (Snapshot, error) {
	return c.transition(ctx, "")
}

// Activate starts a session unless one is already active.
func (c *Controller) Activate(ctx context.Context) (Snapshot, error) {
	return c.transition(ctx, StateActive)
}

func (c *Controller) transition(ctx context.Context, want State) (Snapshot, error) {
	if !c.processing.CompareAndSwap(false, true) {
		c.logger.Debug("Transition in flight, dropping request")
		return c.Snapshot(), ErrBusy
	}
	c.txMu.Lock()
	defer func() {
		c.txMu.Unlock()
		c.processing.Store(false)
		c.publish()
	}()

	c.mu.Lock()
	closed, state, user := c.closed, c.state, c.user
	c.mu.Unlock()

	if closed {
		return c.Snapshot(), ErrClosed
	}
	if user == nil {
		return c.Snapshot(), ErrNoUser
	}
	if want != "" && want == state {
		return c.Snapshot(), nil
	}
	c.publish()

	// A dropped client connection must not leave a half-made transition.
	ctx = context.WithoutCancel(ctx)

	var err error
	if state == StateInactive {
		err = c.activate(ctx, user)
	} else {
		c.deactivate(ctx)
	}
	return c.Snapshot(), err
}

func (c *Controller) activate(ctx context.Context, user *models.User) error {
	log := c.logger.WithUserID(user.ID)

	if err := permissions.Require(ctx, c.deps.Permissions, permissions.Location); err != nil {
		log.WithError(err).Warn("Activation refused without location permission")
		return newError(KindPermissionDenied, "activate", err)
	}

	loc, err := c.deps.Location.GetOnce(ctx)
	if err != nil {
		log.WithError(err).Error("Activation aborted, no location fix")
		return newError(KindLocationUnavailable, "activate", err)
	}

	sessionID, err := c.deps.Backend.CreateSOS(ctx, user.ID, loc)
	if err != nil {
		log.WithError(err).Error("Activation aborted, backend did not create session")
		return newError(KindBackendUnavailable, "activate", err)
	}

	startedAt := time.Now().UTC()
	if err := c.deps.Store.SaveActiveSession(ctx, models.SessionRecord{SessionID: sessionID, StartedAt: startedAt}); err != nil {
		log.WithError(err).WithSessionID(sessionID).Error("Could not persist session, closing remote record")
		if uerr := c.deps.Backend.UpdateSOS(ctx, sessionID, models.StatusUpdate{
			Location: loc.Coordinates(),
			Status:   models.SessionStatusInactive,
		}); uerr != nil {
			log.WithError(uerr).WithSessionID(sessionID).Error("Compensating update failed")
		}
		return newError(KindStorageFailure, "activate", err)
	}

	coords := loc.Coordinates()
	c.mu.Lock()
	c.staleRecord = false
	c.state = StateActive
	c.sessionID = sessionID
	c.startedAt = startedAt
	c.restored = false
	c.lastLoc = &coords
	c.mu.Unlock()
	c.publish()

	c.logger.LogSessionEvent(sessionID, "activated", map[string]interface{}{
		"user_id": user.ID,
		"lat":     loc.Lat,
		"lng":     loc.Lng,
	})

	c.disarmVoice()
	c.startStreams(ctx, sessionID)

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.notifyContacts(user, sessionID, coords)
	}()
	return nil
}

func (c *Controller) deactivate(ctx context.Context) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	log := c.logger.WithSessionID(sessionID)

	// No periodic push may land after the terminal update.
	c.stopPush()

	coords, ok := c.finalLocation(ctx)
	if ok {
		if err := c.deps.Backend.UpdateSOS(ctx, sessionID, models.StatusUpdate{
			Location: coords,
			Status:   models.SessionStatusInactive,
		}); err != nil {
			log.WithError(err).Error("Final status update failed")
		}
	} else {
		log.Warn("No location known, skipping final status update")
	}

	c.stopStreams(ctx)

	c.mu.Lock()
	c.state = StateInactive
	c.sessionID = ""
	c.startedAt = time.Time{}
	c.restored = false
	c.mu.Unlock()

	c.clearPersisted(ctx, log)

	c.logger.LogSessionEvent(sessionID, "deactivated", nil)
	c.publish()
	c.resumeVoice()
}

// clearPersisted removes the session record, retrying once. A record that
// still cannot be cleared is retried on the next SetUser.
func (c *Controller) clearPersisted(ctx context.Context, log *logger.Logger) {
	err := c.deps.Store.ClearActiveSession(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to clear persisted session, retrying")
		err = c.deps.Store.ClearActiveSession(ctx)
	}

	c.mu.Lock()
	c.staleRecord = err != nil
	c.mu.Unlock()
	if err != nil {
		log.WithError(err).Error("Persisted session left behind")
	}
}

// finalLocation prefers a fresh fix and falls back to the last one known.
func (c *Controller) finalLocation(ctx context.Context) (models.Coordinates, bool) {
	loc, err := c.deps.Location.GetOnce(ctx)
	if err == nil {
		coords := loc.Coordinates()
		c.setLastLocation(coords)
		return coords, true
	}
	c.logger.WithError(err).Warn("Final location fix failed, using last known")

	if last, ok := c.deps.Location.Last(); ok {
		return last.Coordinates(), true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastLoc != nil {
		return *c.lastLoc, true
	}
	return models.Coordinates{}, false
}

func (c *Controller) startStreams(ctx context.Context, sessionID string) {
	log := c.logger.WithSessionID(sessionID)

	if ok, err := c.deps.Permissions.Request(ctx, permissions.Microphone); err != nil || !ok {
		log.Warn("Microphone not permitted, recording skipped")
	} else if err := c.deps.Audio.Start(ctx, sessionID); err != nil {
		log.WithError(err).WithField("kind", KindCaptureEngineFailure).Error("Audio capture did not start")
	}

	c.startPush(sessionID)

	if ok, err := c.deps.Permissions.Request(ctx, permissions.Camera); err != nil || !ok {
		log.Warn("Camera not permitted, photo capture skipped")
	} else if err := c.deps.Photo.Start(ctx, sessionID, c.opts.PhotoInterval); err != nil {
		log.WithError(err).WithField("kind", KindCaptureEngineFailure).Error("Photo loop did not start")
	}
}

func (c *Controller) stopStreams(ctx context.Context) {
	if _, err := c.deps.Audio.Stop(ctx); err != nil {
		c.logger.WithError(err).Error("Audio stop failed")
	}
	c.stopPush()
	c.deps.Photo.Stop()
}

func (c *Controller) startPush(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.push != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &pushRun{cancel: cancel, done: make(chan struct{})}
	c.push = run

	go func() {
		defer close(run.done)
		ticker := time.NewTicker(c.opts.PushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pushLocation(ctx, sessionID)
			}
		}
	}()
}

func (c *Controller) pushLocation(ctx context.Context, sessionID string) {
	log := c.logger.WithSessionID(sessionID)

	loc, err := c.deps.Location.GetOnce(ctx)
	if err != nil {
		log.WithError(err).Warn("Location push skipped, no fix")
		return
	}
	coords := loc.Coordinates()
	c.setLastLocation(coords)
	c.publish()

	if err := c.deps.Backend.UpdateSOS(ctx, sessionID, models.StatusUpdate{
		Location: coords,
		Status:   models.SessionStatusActive,
	}); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Location push failed")
		}
		return
	}
	log.LogStreamEvent("location", "pushed", map[string]interface{}{"lat": coords.Lat, "lng": coords.Lng})
}

func (c *Controller) stopPush() {
	c.mu.Lock()
	run := c.push
	c.push = nil
	c.mu.Unlock()

	if run != nil {
		run.cancel()
		<-run.done
	}
}

func (c *Controller) notifyContacts(user *models.User, sessionID string, loc models.Coordinates) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.NotifyTimeout)
	defer cancel()
	log := c.logger.WithSessionID(sessionID).WithUserID(user.ID)

	details, err := c.deps.Backend.GetUserDetails(ctx, user.ID)
	if err != nil {
		log.WithError(err).Error("Could not resolve trusted contacts")
		return
	}
	if details.CodeWord != "" {
		if err := c.deps.Store.SetCodeWord(ctx, details.CodeWord); err != nil {
			log.WithError(err).Warn("Failed to cache code word")
		}
	}

	phones := details.Phones()
	if len(phones) == 0 {
		log.Warn("No trusted contacts to notify")
		return
	}

	report, err := c.deps.Notifier.Notify(ctx, notify.Alert{
		Phones:    phones,
		SessionID: sessionID,
		Location:  loc,
		Message:   details.AlertMessage(),
	})
	if err != nil {
		log.WithError(err).Error("Contact notification failed")
		return
	}
	log.WithFields(map[string]interface{}{
		"delivered": report.Delivered,
		"failed":    report.Failed,
		"fallback":  report.Fallback,
	}).Info("Trusted contacts notified")
}

// armVoice starts the listener with the cached code word, if there is one.
func (c *Controller) armVoice(ctx context.Context) {
	if ok, err := c.deps.Permissions.Request(ctx, permissions.Microphone); err != nil || !ok {
		c.logger.Warn("Microphone not permitted, voice trigger disabled")
		return
	}
	phrase, err := c.deps.Store.CodeWord(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to load code word")
		return
	}
	if phrase == "" {
		c.logger.Info("No code word set, voice trigger disabled")
		return
	}
	if err := c.deps.Voice.Init(ctx, phrase, c.onTrigger); err != nil {
		c.logger.WithError(err).Error("Voice listener did not start")
		return
	}

	c.mu.Lock()
	c.armed = true
	c.mu.Unlock()
	c.logger.Info("Voice trigger armed")
}

func (c *Controller) disarmVoice() {
	c.deps.Voice.Stop()
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
}

// resumeVoice re-arms the listener after the speech engine has had time to
// release its previous session.
func (c *Controller) resumeVoice() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		if c.opts.VoiceSettleDelay > 0 {
			time.Sleep(c.opts.VoiceSettleDelay)
		}
		c.mu.Lock()
		skip := c.closed || c.state != StateInactive
		c.mu.Unlock()
		if skip {
			return
		}
		c.armVoice(context.Background())
	}()
}

func (c *Controller) onTrigger() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.armed = false
	c.bg.Add(1)
	c.mu.Unlock()

	c.logger.Info("Voice trigger fired, activating")
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.TriggerTimeout)
		defer cancel()
		if _, err := c.Activate(ctx); err != nil {
			c.logger.WithError(err).Error("Voice-triggered activation failed")
			c.resumeVoiceIfInactive()
		}
	}()
}

// resumeVoiceIfInactive re-arms after a failed voice activation so the
// device is not left deaf.
func (c *Controller) resumeVoiceIfInactive() {
	c.mu.Lock()
	inactive := c.state == StateInactive
	c.mu.Unlock()
	if inactive {
		c.resumeVoice()
	}
}

// SetUser records the signed-in identity. A nil user signs out, which is
// refused while a session is active or a transition is in flight.
func (c *Controller) SetUser(ctx context.Context, user *models.User) error {
	idle := c.txMu.TryLock()
	if idle {
		defer c.txMu.Unlock()
	}

	c.mu.Lock()
	state, stale := c.state, c.staleRecord
	c.mu.Unlock()

	if user == nil {
		if !idle {
			return ErrBusy
		}
		if state == StateActive {
			return ErrSessionActive
		}
	}

	if err := c.deps.Store.SetUser(ctx, user); err != nil {
		return newError(KindStorageFailure, "set_user", err)
	}
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	if idle && stale && state == StateInactive {
		c.clearPersisted(ctx, c.logger)
	}
	c.publish()
	return nil
}

// SetCodeWord stores a new trigger phrase and re-arms the listener with it
// when no session is active.
func (c *Controller) SetCodeWord(ctx context.Context, phrase string) error {
	if err := c.deps.Store.SetCodeWord(ctx, phrase); err != nil {
		return newError(KindStorageFailure, "set_code_word", err)
	}

	c.mu.Lock()
	inactive := c.state == StateInactive && !c.closed
	c.mu.Unlock()
	if !inactive {
		return nil
	}
	c.disarmVoice()
	c.armVoice(ctx)
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:      c.state,
		SessionID:  c.sessionID,
		StartedAt:  c.startedAt,
		Restored:   c.restored,
		Processing: c.processing.Load(),
	}
	if c.user != nil {
		snap.UserID = c.user.ID
	}
	if c.lastLoc != nil && c.state == StateActive {
		loc := *c.lastLoc
		snap.Location = &loc
	}
	c.mu.Unlock()

	if snap.State == StateActive {
		snap.RecordElapsed = c.deps.Audio.Elapsed()
	}
	return snap
}

// VoiceArmed reports whether the trigger listener is currently armed.
func (c *Controller) VoiceArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Subscribe returns a channel of snapshots published on every state change.
// Slow subscribers miss intermediate snapshots rather than blocking.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) setLastLocation(coords models.Coordinates) {
	c.mu.Lock()
	c.lastLoc = &coords
	c.mu.Unlock()
}

// Close waits for an in-flight transition, then stops every stream and
// waits for background work. The persisted session record is left in place
// so the next process resumes it.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.disarmVoice()

	// A transition already past its closed check runs to completion first.
	idle := make(chan struct{})
	go func() {
		c.txMu.Lock()
		c.txMu.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if active {
		c.stopStreams(ctx)
	}

	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.subMu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subMu.Unlock()

	c.logger.Info("SOS controller closed")
	return nil
}
