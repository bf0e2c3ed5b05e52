// Package feed forwards controller state to connected UI clients and keeps a
// live location watch running while a session is active.
package feed

import (
	"rakshak/internal/location"
	"rakshak/internal/models"
	"rakshak/internal/sos"
	"rakshak/pkg/logger"
	"rakshak/pkg/websocket"
)

type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

type Watcher interface {
	Watch(onUpdate func(models.Location), onError func(error), opts location.WatchOptions) location.Handle
	Stop(h location.Handle)
}

type LocationUpdate struct {
	SessionID string          `json:"session_id"`
	Location  models.Location `json:"location"`
}

type Bridge struct {
	hub     Broadcaster
	watcher Watcher
	opts    location.WatchOptions
	logger  *logger.Logger

	handle    location.Handle
	watchedID string
}

// NewBridge creates a bridge. watcher may be nil, in which case only session
// state is forwarded.
func NewBridge(hub Broadcaster, watcher Watcher, opts location.WatchOptions, log *logger.Logger) *Bridge {
	return &Bridge{
		hub:     hub,
		watcher: watcher,
		opts:    opts,
		logger:  log.WithComponent("feed"),
	}
}

// Run forwards snapshots until snaps is closed, then stops any running watch.
func (b *Bridge) Run(snaps <-chan sos.Snapshot) {
	defer b.stopWatch()

	for snap := range snaps {
		b.hub.Broadcast(websocket.EventSessionState, snap)

		if snap.State == sos.StateActive && snap.SessionID != "" {
			b.startWatch(snap.SessionID)
		} else {
			b.stopWatch()
		}
	}
}

func (b *Bridge) startWatch(sessionID string) {
	if b.watcher == nil || b.watchedID == sessionID {
		return
	}
	b.stopWatch()

	log := b.logger.WithSessionID(sessionID)
	b.handle = b.watcher.Watch(
		func(loc models.Location) {
			b.hub.Broadcast(websocket.EventLocationUpdate, LocationUpdate{SessionID: sessionID, Location: loc})
		},
		func(err error) {
			log.WithError(err).Warn("Live location update failed")
		},
		b.opts,
	)
	b.watchedID = sessionID
	log.Info("Live location feed started")
}

func (b *Bridge) stopWatch() {
	if b.watchedID == "" {
		return
	}
	b.watcher.Stop(b.handle)
	b.logger.WithSessionID(b.watchedID).Info("Live location feed stopped")
	b.watchedID = ""
	b.handle = 0
}
