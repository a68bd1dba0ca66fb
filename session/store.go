package session

import (
	"sync"
	"time"
)

// Transition is one of the closed set of state changes accepted by Store.Dispatch.
type Transition interface {
	apply(AuthState) AuthState
}

// Full installs a fully usable session and clears any error or pending redirection.
type Full struct {
	Session *Session
}

func (t Full) apply(prev AuthState) AuthState {
	next := AuthState{Context: prev.Context}
	if t.Session != nil {
		s := t.Session.Clone()
		s.Scenario = ScenarioNone
		next.Session = s
		if s.Platform != nil {
			next.Platform = s.Platform.Name
		}
	}
	return next
}

// Partial installs a restricted session with its blocking scenario.
type Partial struct {
	Session *Session
	Context *AuthContext
}

func (t Partial) apply(prev AuthState) AuthState {
	next := AuthState{Context: t.Context.Clone()}
	if next.Context == nil {
		next.Context = prev.Context
	}
	if t.Session != nil {
		next.Session = t.Session.Clone()
		if next.Session.Platform != nil {
			next.Platform = next.Session.Platform.Name
		}
	}
	return next
}

// Redirected records a pending redirection. Any previous session is dropped.
type Redirected struct {
	Pending Pending
	Context *AuthContext
}

func (t Redirected) apply(prev AuthState) AuthState {
	p := t.Pending
	next := AuthState{Pending: &p, Context: t.Context.Clone()}
	if next.Context == nil {
		next.Context = prev.Context
	}
	if p.Platform != nil {
		next.Platform = p.Platform.Name
	}
	return next
}

// Failed records a login failure and drops any previous session.
type Failed struct {
	Kind      string
	Timestamp time.Time
}

func (t Failed) apply(prev AuthState) AuthState {
	return AuthState{
		Error:    &RecordedError{Kind: t.Kind, Timestamp: t.Timestamp},
		Context:  prev.Context,
		Platform: prev.Platform,
	}
}

// LoggedOut clears the session, error and pending redirection.
type LoggedOut struct{}

func (LoggedOut) apply(prev AuthState) AuthState {
	return AuthState{Platform: prev.Platform}
}

// ContextLoaded stores a freshly fetched platform login context.
type ContextLoaded struct {
	Context *AuthContext
}

func (t ContextLoaded) apply(prev AuthState) AuthState {
	next := prev
	next.Context = t.Context.Clone()
	return next
}

// Store is a single-writer container for AuthState, safe for concurrent use.
// Concurrent writers are not serialized beyond the lock: the last write wins.
type Store struct {
	mu    sync.RWMutex
	state AuthState

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(AuthState)
}

// NewStore returns a Store holding initial.
func NewStore(initial AuthState) *Store {
	return &Store{
		state: initial.clone(),
		subs:  make(map[int]func(AuthState)),
	}
}

// Get returns a copy of the current state.
func (s *Store) Get() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Session returns a copy of the active session, or nil.
func (s *Store) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Session.Clone()
}

// Replace swaps the whole state, for rehydration after a cold start.
func (s *Store) Replace(next AuthState) {
	s.mu.Lock()
	s.state = next.clone()
	snapshot := s.state.clone()
	s.mu.Unlock()
	s.notify(snapshot)
}

// Dispatch applies t and returns the resulting state.
func (s *Store) Dispatch(t Transition) AuthState {
	s.mu.Lock()
	s.state = t.apply(s.state)
	snapshot := s.state.clone()
	s.mu.Unlock()
	s.notify(snapshot)
	return snapshot.clone()
}

// TakePending returns the pending redirection and clears it, so it is consumed once.
func (s *Store) TakePending() *Pending {
	s.mu.Lock()
	p := s.state.Pending
	s.state.Pending = nil
	s.mu.Unlock()
	return p
}

// Subscribe registers fn to receive a copy of the state after every write.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(AuthState)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(state AuthState) {
	s.subMu.Lock()
	fns := make([]func(AuthState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(state.clone())
	}
}
