package feed

import (
	"sync"
	"testing"

	"rakshak/internal/location"
	"rakshak/internal/models"
	"rakshak/internal/sos"
	"rakshak/pkg/logger"
	"rakshak/pkg/websocket"
)

type event struct {
	Type string
	Data interface{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []event
}

func (h *recordingHub) Broadcast(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{Type: eventType, Data: data})
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

type fakeWatcher struct {
	mu       sync.Mutex
	next     location.Handle
	running  location.Handle
	started  int
	stopped  []location.Handle
	onUpdate func(models.Location)
}

func (w *fakeWatcher) Watch(onUpdate func(models.Location), _ func(error), _ location.WatchOptions) location.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	w.running = w.next
	w.started++
	w.onUpdate = onUpdate
	return w.next
}

func (w *fakeWatcher) Stop(h location.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = append(w.stopped, h)
	if w.running == h {
		w.running = 0
	}
}

func TestBridgeWatchesOnlyWhileActive(t *testing.T) {
	t.Parallel()

	hub := &recordingHub{}
	watcher := &fakeWatcher{}
	b := NewBridge(hub, watcher, location.WatchOptions{MinDistanceMeters: 10}, logger.NewNop())

	snaps := make(chan sos.Snapshot, 4)
	snaps <- sos.Snapshot{State: sos.StateActive, SessionID: "abc123"}
	// A repeated active snapshot for the same session keeps the watch.
	snaps <- sos.Snapshot{State: sos.StateActive, SessionID: "abc123", RecordElapsed: 3}
	close(snaps)

	b.Run(snaps)

	if watcher.started != 1 {
		t.Errorf("watch started %d times, want 1", watcher.started)
	}
	if watcher.running != 0 {
		t.Error("watch still running after snapshots closed")
	}
	got := hub.types()
	if len(got) != 2 || got[0] != websocket.EventSessionState {
		t.Errorf("events = %v, want two session_state", got)
	}
}

func TestBridgeForwardsLocationAndStopsOnDeactivate(t *testing.T) {
	t.Parallel()

	hub := &recordingHub{}
	watcher := &fakeWatcher{}
	b := NewBridge(hub, watcher, location.WatchOptions{}, logger.NewNop())

	b.Run(oneShot(sos.Snapshot{State: sos.StateActive, SessionID: "abc123"}))
	if watcher.onUpdate == nil {
		t.Fatal("watch never started")
	}
	// Run closed the watch on exit; start a fresh bridge run to exercise deactivate.
	snaps := make(chan sos.Snapshot, 2)
	snaps <- sos.Snapshot{State: sos.StateActive, SessionID: "def456"}
	snaps <- sos.Snapshot{State: sos.StateInactive}
	close(snaps)
	b.Run(snaps)

	if len(watcher.stopped) != 2 || watcher.stopped[1] != 2 {
		t.Errorf("stopped = %v, want handles [1 2]", watcher.stopped)
	}

	watcher.onUpdate(models.Location{Lat: 1, Lng: 2})
	hub.mu.Lock()
	last := hub.events[len(hub.events)-1]
	hub.mu.Unlock()
	if last.Type != websocket.EventLocationUpdate {
		t.Fatalf("last event = %s, want location_update", last.Type)
	}
	upd, ok := last.Data.(LocationUpdate)
	if !ok || upd.SessionID != "def456" || upd.Location.Lat != 1 {
		t.Errorf("update = %+v", last.Data)
	}
}

func TestBridgeWithoutWatcher(t *testing.T) {
	t.Parallel()

	hub := &recordingHub{}
	b := NewBridge(hub, nil, location.WatchOptions{}, logger.NewNop())
	b.Run(oneShot(sos.Snapshot{State: sos.StateActive, SessionID: "abc123"}))

	if got := hub.types(); len(got) != 1 {
		t.Errorf("events = %v, want one session_state", got)
	}
}

func oneShot(s sos.Snapshot) <-chan sos.Snapshot {
	ch := make(chan sos.Snapshot, 1)
	ch <- s
	close(ch)
	return ch
}
