package sos_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rakshak/internal/backend"
	"rakshak/internal/location"
	"rakshak/internal/models"
	"rakshak/internal/permissions"
	"rakshak/internal/sos"
	"rakshak/internal/sos/mock"
	"rakshak/pkg/logger"
)

var (
	allPermissions = []string{"location", "microphone", "camera", "storage", "contacts", "sms"}
	testFix        = models.Location{Lat: 12.9, Lng: 77.6}
)

type fixture struct {
	backend *mock.Backend
	// wrapped replaces backend in Deps when set.
	wrapped  sos.Backend
	store    *mock.Store
	perms    *permissions.StaticGateway
	loc      *mock.Locator
	audio    *mock.Audio
	photo    *mock.Photo
	voice    *mock.Voice
	notifier *mock.Notifier
	opts     sos.Options
}

func newFixture(granted ...string) *fixture {
	if granted == nil {
		granted = allPermissions
	}
	return &fixture{
		backend: &mock.Backend{
			CreateResult: "abc123",
			DetailsResult: &models.UserDetails{
				TrustedFriends: []models.TrustedContact{{Phone: "9990001111"}},
				CodeWord:       "save me",
			},
		},
		store:    &mock.Store{UserValue: &models.User{ID: "user-1"}},
		perms:    permissions.NewStaticGateway(granted),
		loc:      &mock.Locator{FixResult: testFix},
		audio:    &mock.Audio{},
		photo:    &mock.Photo{},
		voice:    &mock.Voice{},
		notifier: &mock.Notifier{},
		opts: sos.Options{
			PushInterval:     time.Hour,
			PhotoInterval:    2 * time.Minute,
			VoiceSettleDelay: time.Millisecond,
		},
	}
}

func (f *fixture) controller(t *testing.T, locator sos.Locator) *sos.Controller {
	t.Helper()
	if locator == nil {
		locator = f.loc
	}
	var be sos.Backend = f.backend
	if f.wrapped != nil {
		be = f.wrapped
	}
	c := sos.NewController(sos.Deps{
		Backend:     be,
		Store:       f.store,
		Permissions: f.perms,
		Location:    locator,
		Audio:       f.audio,
		Photo:       f.photo,
		Voice:       f.voice,
		Notifier:    f.notifier,
	}, f.opts, logger.NewNop())
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestActivate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	notified := f.notifier.Notified()
	c := f.controller(t, nil)

	snap, err := c.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if snap.State != sos.StateActive || snap.SessionID != "abc123" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Location == nil || snap.Location.Lat != 12.9 || snap.Location.Lng != 77.6 {
		t.Errorf("snapshot location = %+v", snap.Location)
	}

	creates, _ := f.backend.Calls()
	if len(creates) != 1 || creates[0].UserID != "user-1" || creates[0].Location != testFix {
		t.Errorf("create calls = %+v", creates)
	}
	if rec := f.store.Session(); rec == nil || rec.SessionID != "abc123" {
		t.Errorf("persisted record = %+v", rec)
	}
	if starts, _ := f.audio.Counts(); len(starts) != 1 || starts[0] != "abc123" {
		t.Errorf("audio starts = %v", starts)
	}
	photoStarts, _ := f.photo.Counts()
	if len(photoStarts) != 1 || photoStarts[0].SessionID != "abc123" || photoStarts[0].Interval != 2*time.Minute {
		t.Errorf("photo starts = %+v", photoStarts)
	}
	if _, stops := f.voice.Counts(); stops == 0 {
		t.Error("voice listener not stopped on activation")
	}

	select {
	case alert := <-notified:
		if alert.SessionID != "abc123" || len(alert.Phones) != 1 || alert.Phones[0] != "9990001111" {
			t.Errorf("alert = %+v", alert)
		}
		if alert.Message != models.DefaultAlertMessage {
			t.Errorf("alert message = %q, want default", alert.Message)
		}
		if alert.Location != testFix.Coordinates() {
			t.Errorf("alert location = %+v", alert.Location)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("contacts not notified")
	}
	if got := f.store.Code(); got != "save me" {
		t.Errorf("cached code word = %q, want refreshed from backend", got)
	}
}

func TestActivateWithoutLocationPermission(t *testing.T) {
	t.Parallel()

	f := newFixture("microphone", "camera", "sms")
	c := f.controller(t, nil)

	snap, err := c.Toggle(context.Background())
	if sos.KindOf(err) != sos.KindPermissionDenied {
		t.Fatalf("Toggle() = %v, want permission_denied", err)
	}
	if !errors.Is(err, permissions.ErrDenied) {
		t.Errorf("error does not wrap ErrDenied: %v", err)
	}
	if snap.State != sos.StateInactive {
		t.Errorf("state = %v, want inactive", snap.State)
	}
	creates, updates := f.backend.Calls()
	if len(creates) != 0 || len(updates) != 0 || f.loc.FixCalls != 0 {
		t.Errorf("backend or location touched: creates=%d updates=%d fixes=%d", len(creates), len(updates), f.loc.FixCalls)
	}
	if f.store.Session() != nil {
		t.Error("session persisted after refused activation")
	}
}

func TestActivateAbortsOnCriticalFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(f *fixture)
		want  sos.Kind
	}{
		{
			name:  "location unavailable",
			setup: func(f *fixture) { f.loc.FixError = location.ErrUnavailable },
			want:  sos.KindLocationUnavailable,
		},
		{
			name:  "backend down",
			setup: func(f *fixture) { f.backend.CreateError = fmt.Errorf("%w: dial", backend.ErrUnavailable) },
			want:  sos.KindBackendUnavailable,
		},
		{
			name:  "no session id",
			setup: func(f *fixture) { f.backend.CreateError = backend.ErrNoSessionID },
			want:  sos.KindBackendUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			tt.setup(f)
			c := f.controller(t, nil)

			snap, err := c.Toggle(context.Background())
			if sos.KindOf(err) != tt.want {
				t.Fatalf("Toggle() = %v, want %s", err, tt.want)
			}
			if snap.State != sos.StateInactive {
				t.Errorf("state = %v", snap.State)
			}
			if len(f.store.SaveCalls) != 0 {
				t.Error("session persisted after failed activation")
			}
			if starts, _ := f.audio.Counts(); len(starts) != 0 {
				t.Error("audio started after failed activation")
			}
		})
	}
}

func TestActivateStorageFailureCompensates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.SaveError = errors.New("disk full")
	c := f.controller(t, nil)

	snap, err := c.Toggle(context.Background())
	if sos.KindOf(err) != sos.KindStorageFailure {
		t.Fatalf("Toggle() = %v, want storage_failure", err)
	}
	if snap.State != sos.StateInactive {
		t.Errorf("state = %v", snap.State)
	}
	_, updates := f.backend.Calls()
	if len(updates) != 1 || updates[0].SessionID != "abc123" || updates[0].Update.Status != models.SessionStatusInactive {
		t.Errorf("compensating updates = %+v", updates)
	}
	if starts, _ := f.photo.Counts(); len(starts) != 0 {
		t.Error("photo loop started after failed activation")
	}
}

func TestDeactivate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.CodeWordValue = "save me"
	c := f.controller(t, nil)
	inits := f.voice.Inits()

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.loc.FixResult = models.Location{Lat: 13.0, Lng: 77.7}

	snap, err := c.Toggle(context.Background())
	if err != nil {
		t.Fatalf("deactivate error: %v", err)
	}
	if snap.State != sos.StateInactive || snap.SessionID != "" {
		t.Errorf("snapshot = %+v", snap)
	}

	_, updates := f.backend.Calls()
	last := updates[len(updates)-1]
	if last.SessionID != "abc123" || last.Update.Status != models.SessionStatusInactive {
		t.Errorf("final update = %+v", last)
	}
	if last.Update.Location != (models.Coordinates{Lat: 13.0, Lng: 77.7}) {
		t.Errorf("final location = %+v", last.Update.Location)
	}
	if _, stops := f.audio.Counts(); stops != 1 {
		t.Errorf("audio stops = %d", stops)
	}
	if _, stops := f.photo.Counts(); stops != 1 {
		t.Errorf("photo stops = %d", stops)
	}
	if f.store.Session() != nil {
		t.Error("persisted session not cleared")
	}

	select {
	case phrase := <-inits:
		if phrase != "save me" {
			t.Errorf("listener re-armed with %q", phrase)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("voice listener not resumed")
	}
	eventually(t, "voice armed", c.VoiceArmed)
}

func TestDeactivateToleratesLocationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.ClearError = errors.New("read-only")
	c := f.controller(t, nil)

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.loc.SetFixError(location.ErrUnavailable)
	f.backend.UpdateError = errors.New("backend down")

	snap, err := c.Toggle(context.Background())
	if err != nil {
		t.Fatalf("deactivate error: %v", err)
	}
	if snap.State != sos.StateInactive {
		t.Fatalf("state = %v, deactivation must not get stuck", snap.State)
	}
	_, updates := f.backend.Calls()
	last := updates[len(updates)-1]
	if last.Update.Status != models.SessionStatusInactive || last.Update.Location != testFix.Coordinates() {
		t.Errorf("final update = %+v, want last known location", last)
	}
	if n := f.store.ClearCount(); n != 2 {
		t.Errorf("clear calls = %d, want one retry", n)
	}
	if f.store.Session() == nil {
		t.Error("record reported cleared by a failing store")
	}
}

func TestDeactivateRetriesClear(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.ClearError = errors.New("locked")
	f.store.ClearFailures = 1
	c := f.controller(t, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Toggle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.store.ClearCount(); n != 2 {
		t.Errorf("clear calls = %d, want 2", n)
	}
	if rec := f.store.Session(); rec != nil {
		t.Errorf("persisted record = %+v, want cleared on retry", rec)
	}
}

func TestSetUserClearsStaleRecord(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.ClearError = errors.New("read-only")
	c := f.controller(t, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Toggle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if f.store.Session() == nil {
		t.Fatal("record cleared by a failing store")
	}

	f.store.SetClearError(nil)
	if err := c.SetUser(context.Background(), &models.User{ID: "user-2"}); err != nil {
		t.Fatal(err)
	}
	if rec := f.store.Session(); rec != nil {
		t.Fatalf("persisted record = %+v, want cleared by SetUser", rec)
	}

	n := f.store.ClearCount()
	if err := c.SetUser(context.Background(), &models.User{ID: "user-3"}); err != nil {
		t.Fatal(err)
	}
	if got := f.store.ClearCount(); got != n {
		t.Errorf("clear calls %d -> %d after the record was gone", n, got)
	}
}

func TestToggleAlternates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(t, nil)

	want := []sos.State{sos.StateActive, sos.StateInactive, sos.StateActive, sos.StateInactive}
	for i, w := range want {
		snap, err := c.Toggle(context.Background())
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if snap.State != w {
			t.Fatalf("toggle %d state = %v, want %v", i, snap.State, w)
		}
	}
	if creates, _ := f.backend.Calls(); len(creates) != 2 {
		t.Errorf("create calls = %d, want 2", len(creates))
	}
}

func TestToggleWithoutUser(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.UserValue = nil
	c := f.controller(t, nil)

	if _, err := c.Toggle(context.Background()); !errors.Is(err, sos.ErrNoUser) {
		t.Fatalf("Toggle() = %v, want ErrNoUser", err)
	}
	if creates, _ := f.backend.Calls(); len(creates) != 0 {
		t.Error("backend called without user")
	}

	if err := c.SetUser(context.Background(), &models.User{ID: "user-2"}); err != nil {
		t.Fatal(err)
	}
	snap, err := c.Toggle(context.Background())
	if err != nil || snap.State != sos.StateActive || snap.UserID != "user-2" {
		t.Errorf("Toggle() after SetUser = %+v, %v", snap, err)
	}
}

// gatedLocator blocks the first fix until released.
type gatedLocator struct {
	*mock.Locator
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLocator) GetOnce(ctx context.Context) (models.Location, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Locator.GetOnce(ctx)
}

func TestToggleWhileProcessingIsDropped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	gl := &gatedLocator{Locator: f.loc, entered: make(chan struct{}), release: make(chan struct{})}
	c := f.controller(t, gl)

	result := make(chan error, 1)
	go func() {
		_, err := c.Toggle(context.Background())
		result <- err
	}()
	<-gl.entered

	snap, err := c.Toggle(context.Background())
	if !errors.Is(err, sos.ErrBusy) {
		t.Fatalf("second Toggle() = %v, want ErrBusy", err)
	}
	if !snap.Processing {
		t.Error("snapshot does not report processing")
	}
	if _, err := c.Activate(context.Background()); !errors.Is(err, sos.ErrBusy) {
		t.Errorf("Activate() while processing = %v, want ErrBusy", err)
	}

	close(gl.release)
	if err := <-result; err != nil {
		t.Fatalf("first Toggle() error: %v", err)
	}

	if snap, err := c.Activate(context.Background()); err != nil || snap.State != sos.StateActive {
		t.Errorf("Activate() on active session = %+v, %v", snap, err)
	}
	if creates, _ := f.backend.Calls(); len(creates) != 1 {
		t.Errorf("create calls = %d, want 1", len(creates))
	}
}

func TestInitRestoresActiveSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.SessionValue = &models.SessionRecord{SessionID: "abc123"}
	f.store.CodeWordValue = "save me"
	c := f.controller(t, nil)

	snap := c.Snapshot()
	if snap.State != sos.StateActive || snap.SessionID != "abc123" || !snap.Restored {
		t.Fatalf("snapshot = %+v", snap)
	}
	if starts, _ := f.audio.Counts(); len(starts) != 1 || starts[0] != "abc123" {
		t.Errorf("audio starts = %v, want exactly one", starts)
	}
	if starts, _ := f.photo.Counts(); len(starts) != 1 || starts[0].SessionID != "abc123" {
		t.Errorf("photo starts = %+v, want exactly one", starts)
	}
	if inits, _ := f.voice.Counts(); len(inits) != 0 {
		t.Errorf("voice armed during restored session: %v", inits)
	}
	if creates, _ := f.backend.Calls(); len(creates) != 0 {
		t.Error("restore re-created session remotely")
	}

	if snap, err := c.Toggle(context.Background()); err != nil || snap.State != sos.StateInactive {
		t.Fatalf("deactivate restored session = %+v, %v", snap, err)
	}
	_, updates := f.backend.Calls()
	if len(updates) != 1 || updates[0].SessionID != "abc123" {
		t.Errorf("updates = %+v", updates)
	}
}

func TestInitRestoresSinglePushRun(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.opts.PushInterval = 5 * time.Millisecond
	f.store.SessionValue = &models.SessionRecord{SessionID: "abc123"}
	c := f.controller(t, nil)

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("second Init() error: %v", err)
	}
	if starts, _ := f.audio.Counts(); len(starts) != 1 {
		t.Errorf("audio starts = %v after two Init calls, want one", starts)
	}
	if starts, _ := f.photo.Counts(); len(starts) != 1 {
		t.Errorf("photo starts = %+v after two Init calls, want one", starts)
	}

	eventually(t, "restored pushes", func() bool {
		_, updates := f.backend.Calls()
		return len(updates) >= 2
	})
	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, updates := f.backend.Calls()
	for i, u := range updates[:len(updates)-1] {
		if u.SessionID != "abc123" || u.Update.Status != models.SessionStatusActive {
			t.Errorf("update %d = %+v, want active push for abc123", i, u)
		}
	}
	if last := updates[len(updates)-1]; last.SessionID != "abc123" || last.Update.Status != models.SessionStatusInactive {
		t.Errorf("final update = %+v", last)
	}
}

func TestVoiceTriggerActivates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.CodeWordValue = "save me"
	c := f.controller(t, nil)

	inits, _ := f.voice.Counts()
	if len(inits) != 1 || inits[0] != "save me" {
		t.Fatalf("voice inits = %v", inits)
	}
	if !c.VoiceArmed() {
		t.Fatal("voice not armed after Init")
	}

	if !f.voice.Trigger() {
		t.Fatal("listener had no callback")
	}
	eventually(t, "voice-triggered activation", func() bool {
		return c.Snapshot().State == sos.StateActive
	})
	if c.VoiceArmed() {
		t.Error("voice still armed during session")
	}
}

func TestNoCodeWordLeavesVoiceDisarmed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(t, nil)

	if inits, _ := f.voice.Counts(); len(inits) != 0 {
		t.Errorf("voice armed without code word: %v", inits)
	}

	inits := f.voice.Inits()
	if err := c.SetCodeWord(context.Background(), "help me"); err != nil {
		t.Fatal(err)
	}
	select {
	case phrase := <-inits:
		if phrase != "help me" {
			t.Errorf("armed with %q", phrase)
		}
	case <-time.After(time.Second):
		t.Fatal("SetCodeWord did not re-arm listener")
	}
}

func TestMicrophoneDeniedSkipsAudio(t *testing.T) {
	t.Parallel()

	f := newFixture("location", "camera")
	c := f.controller(t, nil)

	snap, err := c.Toggle(context.Background())
	if err != nil || snap.State != sos.StateActive {
		t.Fatalf("Toggle() = %+v, %v", snap, err)
	}
	if starts, _ := f.audio.Counts(); len(starts) != 0 {
		t.Errorf("audio started without microphone permission")
	}
	if starts, _ := f.photo.Counts(); len(starts) != 1 {
		t.Errorf("photo starts = %d, want 1", len(starts))
	}
}

func TestStreamStartFailureKeepsSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.audio.StartError = errors.New("mic busy")
	f.photo.StartError = errors.New("camera busy")
	f.backend.DetailsError = errors.New("backend down")
	c := f.controller(t, nil)

	snap, err := c.Toggle(context.Background())
	if err != nil || snap.State != sos.StateActive {
		t.Fatalf("Toggle() = %+v, %v", snap, err)
	}
	eventually(t, "details lookup", func() bool { return f.backend.DetailsCallCount() == 1 })
	if f.notifier.CallCount() != 0 {
		t.Error("notified despite failed contact lookup")
	}
}

func TestLocationPush(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.opts.PushInterval = 5 * time.Millisecond
	c := f.controller(t, nil)

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	activePushes := func() int {
		_, updates := f.backend.Calls()
		n := 0
		for _, u := range updates {
			if u.Update.Status == models.SessionStatusActive && u.SessionID == "abc123" {
				n++
			}
		}
		return n
	}
	eventually(t, "periodic pushes", func() bool { return activePushes() >= 2 })

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := activePushes()
	time.Sleep(30 * time.Millisecond)
	if got := activePushes(); got != after {
		t.Errorf("pushes continued after deactivate: %d -> %d", after, got)
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(t, nil)
	updates, cancel := c.Subscribe()
	defer cancel()

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.State == sos.StateActive && snap.SessionID == "abc123" {
				cancel()
				cancel()
				return
			}
		case <-timeout:
			t.Fatal("no active snapshot published")
		}
	}
}

func TestCloseKeepsPersistedSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(t, nil)
	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec := f.store.Session(); rec == nil || rec.SessionID != "abc123" {
		t.Errorf("persisted session = %+v, want kept for restart", rec)
	}
	if _, stops := f.audio.Counts(); stops != 1 {
		t.Errorf("audio stops = %d", stops)
	}
	if _, err := c.Toggle(context.Background()); !errors.Is(err, sos.ErrClosed) {
		t.Errorf("Toggle() after Close = %v, want ErrClosed", err)
	}
}

// gatedBackend holds CreateSOS until released.
type gatedBackend struct {
	*mock.Backend
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) CreateSOS(ctx context.Context, userID string, loc models.Location) (string, error) {
	close(g.entered)
	<-g.release
	return g.Backend.CreateSOS(ctx, userID, loc)
}

func TestCloseWaitsForInFlightActivation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	gb := &gatedBackend{Backend: f.backend, entered: make(chan struct{}), release: make(chan struct{})}
	f.wrapped = gb
	c := f.controller(t, nil)

	toggled := make(chan error, 1)
	go func() {
		_, err := c.Toggle(context.Background())
		toggled <- err
	}()
	<-gb.entered

	closed := make(chan error, 1)
	go func() { closed <- c.Close(context.Background()) }()
	select {
	case err := <-closed:
		t.Fatalf("Close() returned during activation: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(gb.release)
	if err := <-toggled; err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if starts, stops := f.audio.Counts(); len(starts) != 1 || stops != 1 {
		t.Errorf("audio starts = %v stops = %d, want 1 and 1", starts, stops)
	}
	if starts, stops := f.photo.Counts(); len(starts) != 1 || stops != 1 {
		t.Errorf("photo starts = %d stops = %d, want 1 and 1", len(starts), stops)
	}
	if rec := f.store.Session(); rec == nil || rec.SessionID != "abc123" {
		t.Errorf("persisted session = %+v, want kept for restart", rec)
	}
}

func TestCloseTimesOutOnStuckActivation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	gb := &gatedBackend{Backend: f.backend, entered: make(chan struct{}), release: make(chan struct{})}
	f.wrapped = gb
	c := f.controller(t, nil)
	defer close(gb.release)

	go c.Toggle(context.Background())
	<-gb.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() = %v, want deadline exceeded", err)
	}
}

// heldPushBackend holds the first periodic push until its context ends and
// records it only then.
type heldPushBackend struct {
	*mock.Backend
	entered chan struct{}
	once    sync.Once
}

func (h *heldPushBackend) UpdateSOS(ctx context.Context, sessionID string, update models.StatusUpdate) error {
	if update.Status == models.SessionStatusActive {
		first := false
		h.once.Do(func() { first = true })
		if first {
			close(h.entered)
			<-ctx.Done()
			h.Backend.UpdateSOS(ctx, sessionID, update)
			return ctx.Err()
		}
	}
	return h.Backend.UpdateSOS(ctx, sessionID, update)
}

func TestDeactivateSendsFinalUpdateLast(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.opts.PushInterval = 5 * time.Millisecond
	hb := &heldPushBackend{Backend: f.backend, entered: make(chan struct{})}
	f.wrapped = hb
	c := f.controller(t, nil)

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-hb.entered
	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, updates := f.backend.Calls()
	if len(updates) != 2 {
		t.Fatalf("updates = %+v, want the held push and the final update", updates)
	}
	if last := updates[1]; last.Update.Status != models.SessionStatusInactive {
		t.Errorf("last update = %+v, want inactive", last)
	}
}

func TestSignOutGuards(t *testing.T) {
	t.Parallel()

	f := newFixture()
	gb := &gatedBackend{Backend: f.backend, entered: make(chan struct{}), release: make(chan struct{})}
	f.wrapped = gb
	c := f.controller(t, nil)

	toggled := make(chan error, 1)
	go func() {
		_, err := c.Toggle(context.Background())
		toggled <- err
	}()
	<-gb.entered
	if err := c.SetUser(context.Background(), nil); !errors.Is(err, sos.ErrBusy) {
		t.Errorf("sign-out during activation = %v, want ErrBusy", err)
	}

	close(gb.release)
	if err := <-toggled; err != nil {
		t.Fatal(err)
	}
	if err := c.SetUser(context.Background(), nil); !errors.Is(err, sos.ErrSessionActive) {
		t.Errorf("sign-out while active = %v, want ErrSessionActive", err)
	}
	if snap := c.Snapshot(); snap.UserID != "user-1" {
		t.Errorf("user = %q, want user-1 kept", snap.UserID)
	}

	if _, err := c.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SetUser(context.Background(), nil); err != nil {
		t.Errorf("sign-out while inactive = %v", err)
	}
	if snap := c.Snapshot(); snap.UserID != "" {
		t.Errorf("user = %q after sign-out", snap.UserID)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want sos.Kind
	}{
		{fmt.Errorf("x: %w", permissions.ErrDenied), sos.KindPermissionDenied},
		{location.ErrUnavailable, sos.KindLocationUnavailable},
		{&backend.StatusError{StatusCode: 500}, sos.KindBackendUnavailable},
		{&sos.Error{Kind: sos.KindStorageFailure, Op: "activate", Err: errors.New("x")}, sos.KindStorageFailure},
		{errors.New("other"), ""},
	}
	for _, tt := range tests {
		if got := sos.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
