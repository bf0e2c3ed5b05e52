// Package mock provides recording in-memory implementations of the
// collaborators of [sos.Controller] for use in unit tests.
//
// Exported *Result and *Error fields control return values; exported *Calls
// fields accumulate invocation records. All types are safe for concurrent use.
package mock

import (
	"context"
	"sync"
	"time"

	"rakshak/internal/models"
	"rakshak/internal/notify"
	"rakshak/internal/sos"
)

var (
	_ sos.Backend       = (*Backend)(nil)
	_ sos.SessionStore  = (*Store)(nil)
	_ sos.Locator       = (*Locator)(nil)
	_ sos.AudioStream   = (*Audio)(nil)
	_ sos.PhotoLoop     = (*Photo)(nil)
	_ sos.VoiceListener = (*Voice)(nil)
	_ sos.Notifier      = (*Notifier)(nil)
)

type CreateCall struct {
	UserID   string
	Location models.Location
}

type UpdateCall struct {
	SessionID string
	Update    models.StatusUpdate
}

// Backend is a mock of [sos.Backend].
type Backend struct {
	mu sync.Mutex

	CreateResult  string
	CreateError   error
	UpdateError   error
	DetailsResult *models.UserDetails
	DetailsError  error

	CreateCalls  []CreateCall
	UpdateCalls  []UpdateCall
	DetailsCalls []string
}

func (b *Backend) CreateSOS(_ context.Context, userID string, loc models.Location) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CreateCalls = append(b.CreateCalls, CreateCall{UserID: userID, Location: loc})
	if b.CreateError != nil {
		return "", b.CreateError
	}
	return b.CreateResult, nil
}

func (b *Backend) UpdateSOS(_ context.Context, sessionID string, update models.StatusUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UpdateCalls = append(b.UpdateCalls, UpdateCall{SessionID: sessionID, Update: update})
	return b.UpdateError
}

func (b *Backend) GetUserDetails(_ context.Context, userID string) (*models.UserDetails, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DetailsCalls = append(b.DetailsCalls, userID)
	if b.DetailsError != nil {
		return nil, b.DetailsError
	}
	if b.DetailsResult == nil {
		return &models.UserDetails{}, nil
	}
	return b.DetailsResult, nil
}

// Calls returns copies of the recorded create and update calls.
func (b *Backend) Calls() ([]CreateCall, []UpdateCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CreateCall(nil), b.CreateCalls...), append([]UpdateCall(nil), b.UpdateCalls...)
}

func (b *Backend) DetailsCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.DetailsCalls)
}

// Store is an in-memory [sos.SessionStore].
type Store struct {
	mu sync.Mutex

	UserValue     *models.User
	SessionValue  *models.SessionRecord
	CodeWordValue string

	// SaveError fails SaveActiveSession; ClearError fails ClearActiveSession.
	SaveError  error
	ClearError error
	ReadError  error

	// ClearFailures limits ClearError to the first n calls; zero fails every call.
	ClearFailures int

	SaveCalls  []models.SessionRecord
	ClearCalls int
}

func (s *Store) User(context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UserValue, s.ReadError
}

func (s *Store) SetUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserValue = user
	return nil
}

func (s *Store) ActiveSession(context.Context) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadError != nil {
		return nil, s.ReadError
	}
	if s.SessionValue == nil {
		return nil, nil
	}
	rec := *s.SessionValue
	return &rec, nil
}

func (s *Store) SaveActiveSession(_ context.Context, rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, rec)
	if s.SaveError != nil {
		return s.SaveError
	}
	s.SessionValue = &rec
	return nil
}

func (s *Store) ClearActiveSession(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCalls++
	if s.ClearError != nil && (s.ClearFailures == 0 || s.ClearCalls <= s.ClearFailures) {
		return s.ClearError
	}
	s.SessionValue = nil
	return nil
}

func (s *Store) CodeWord(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CodeWordValue, nil
}

func (s *Store) SetCodeWord(_ context.Context, phrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CodeWordValue = phrase
	return nil
}

func (s *Store) Session() *models.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SessionValue == nil {
		return nil
	}
	rec := *s.SessionValue
	return &rec
}

// SetClearError replaces ClearError while the store is in use.
func (s *Store) SetClearError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearError = err
}

func (s *Store) ClearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ClearCalls
}

func (s *Store) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CodeWordValue
}

// Locator is a mock of [sos.Locator].
type Locator struct {
	mu sync.Mutex

	FixResult models.Location
	FixError  error
	// LastResult is returned by Last when LastOK is set.
	LastResult models.Location
	LastOK     bool

	FixCalls int
}

func (l *Locator) GetOnce(context.Context) (models.Location, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FixCalls++
	if l.FixError != nil {
		return models.Location{}, l.FixError
	}
	return l.FixResult, nil
}

func (l *Locator) Last() (models.Location, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.LastResult, l.LastOK
}

func (l *Locator) SetFixError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FixError = err
}

// Audio is a mock of [sos.AudioStream].
type Audio struct {
	mu sync.Mutex

	StartError    error
	StopResult    string
	ElapsedResult int64

	StartCalls []string
	StopCalls  int
}

func (a *Audio) Start(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StartCalls = append(a.StartCalls, sessionID)
	return a.StartError
}

func (a *Audio) Stop(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StopCalls++
	return a.StopResult, nil
}

func (a *Audio) Elapsed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ElapsedResult
}

func (a *Audio) Counts() (starts []string, stops int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.StartCalls...), a.StopCalls
}

type PhotoStartCall struct {
	SessionID string
	Interval  time.Duration
}

// Photo is a mock of [sos.PhotoLoop].
type Photo struct {
	mu sync.Mutex

	StartError error

	StartCalls []PhotoStartCall
	StopCalls  int
}

func (p *Photo) Start(_ context.Context, sessionID string, interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, PhotoStartCall{SessionID: sessionID, Interval: interval})
	return p.StartError
}

func (p *Photo) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCalls++
}

func (p *Photo) Counts() ([]PhotoStartCall, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PhotoStartCall(nil), p.StartCalls...), p.StopCalls
}

// Voice is a mock of [sos.VoiceListener]. Trigger invokes the callback
// registered by the last Init.
type Voice struct {
	mu sync.Mutex

	InitError error

	InitCalls []string
	StopCalls int

	onDetected func()
	inits      chan string
}

func (v *Voice) Init(_ context.Context, phrase string, onDetected func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.InitCalls = append(v.InitCalls, phrase)
	if v.InitError != nil {
		return v.InitError
	}
	v.onDetected = onDetected
	if v.inits != nil {
		select {
		case v.inits <- phrase:
		default:
		}
	}
	return nil
}

func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.StopCalls++
	v.onDetected = nil
}

// Trigger simulates a detected phrase. It reports false when not armed.
func (v *Voice) Trigger() bool {
	v.mu.Lock()
	cb := v.onDetected
	v.onDetected = nil
	v.mu.Unlock()
	if cb == nil {
		return false
	}
	cb()
	return true
}

// Inits returns a channel receiving the phrase of every later Init call.
func (v *Voice) Inits() <-chan string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inits == nil {
		v.inits = make(chan string, 16)
	}
	return v.inits
}

func (v *Voice) Counts() ([]string, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.InitCalls...), v.StopCalls
}

// Notifier is a mock of [sos.Notifier].
type Notifier struct {
	mu sync.Mutex

	NotifyResult *notify.Report
	NotifyError  error

	NotifyCalls []notify.Alert
	notified    chan notify.Alert
}

func (n *Notifier) Notify(_ context.Context, alert notify.Alert) (*notify.Report, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.NotifyCalls = append(n.NotifyCalls, alert)
	if n.notified != nil {
		select {
		case n.notified <- alert:
		default:
		}
	}
	if n.NotifyError != nil {
		return nil, n.NotifyError
	}
	if n.NotifyResult == nil {
		return &notify.Report{Delivered: len(alert.Phones)}, nil
	}
	return n.NotifyResult, nil
}

// Notified returns a channel receiving every later alert.
func (n *Notifier) Notified() <-chan notify.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notified == nil {
		n.notified = make(chan notify.Alert, 16)
	}
	return n.notified
}

func (n *Notifier) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.NotifyCalls)
}
