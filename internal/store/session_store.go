// Package store keeps the device state that must survive a restart: the
// signed-in user, the active session record and the cached trigger phrase.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rakshak/internal/models"
	"rakshak/pkg/kvstore"
)

const (
	KeyUser          = "loggedInUser"
	KeyActiveSession = "activeSOS"
	KeyCodeWord      = "codeWord"
)

type SessionStore struct {
	kv kvstore.Store
}

func NewSessionStore(kv kvstore.Store) *SessionStore {
	return &SessionStore{kv: kv}
}

// User returns the signed-in user, or nil when nobody is signed in.
func (s *SessionStore) User(ctx context.Context) (*models.User, error) {
	var user models.User
	found, err := s.getJSON(ctx, KeyUser, &user)
	if err != nil || !found {
		return nil, err
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

func (s *SessionStore) SetUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return s.delete(ctx, KeyUser)
	}
	return s.setJSON(ctx, KeyUser, user)
}

// ActiveSession returns the persisted session record, or nil when no session
// was active at the last write.
func (s *SessionStore) ActiveSession(ctx context.Context) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	found, err := s.getJSON(ctx, KeyActiveSession, &rec)
	if err != nil || !found {
		return nil, err
	}
	if rec.SessionID == "" {
		return nil, nil
	}
	return &rec, nil
}

func (s *SessionStore) SaveActiveSession(ctx context.Context, rec models.SessionRecord) error {
	if rec.SessionID == "" {
		return errors.New("store: session record without id")
	}
	return s.setJSON(ctx, KeyActiveSession, rec)
}

func (s *SessionStore) ClearActiveSession(ctx context.Context) error {
	return s.delete(ctx, KeyActiveSession)
}

// CodeWord returns the cached trigger phrase, empty when none is set.
func (s *SessionStore) CodeWord(ctx context.Context) (string, error) {
	v, err := s.kv.Get(ctx, KeyCodeWord)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read %s: %w", KeyCodeWord, err)
	}
	return v, nil
}

func (s *SessionStore) SetCodeWord(ctx context.Context, phrase string) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return s.delete(ctx, KeyCodeWord)
	}
	if err := s.kv.Set(ctx, KeyCodeWord, phrase); err != nil {
		return fmt.Errorf("store: write %s: %w", KeyCodeWord, err)
	}
	return nil
}

func (s *SessionStore) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SessionStore) setJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}
