package conversation

import (
	"container/list"
	"sync"
	"time"
)

// SessionStore owns per-sender conversation history.
type SessionStore interface {
	// GetOrCreate returns the sender's session, creating an empty one if needed.
	GetOrCreate(sender string) Session
	// Append adds turns to the end of the sender's history, creating the session if needed.
	Append(sender string, turns ...Turn)
	// History returns a copy of the sender's turns, or nil for an unknown sender.
	History(sender string) []Turn
	// Len returns the number of live sessions.
	Len() int
}

// MemorySessionStore is an in-process SessionStore bounded by sender count
// (least recently used sender is evicted) and by turns per session (oldest
// turns are dropped). A bound <= 0 disables it.
type MemorySessionStore struct {
	mu         sync.Mutex
	maxSenders int
	maxTurns   int
	order      *list.List // front = most recently used
	index      map[string]*list.Element
	now        func() time.Time
	onEvict    func(sender string)
}

// StoreOption configures a MemorySessionStore.
type StoreOption func(*MemorySessionStore)

// WithMaxSenders caps how many sessions are kept.
func WithMaxSenders(n int) StoreOption {
	return func(s *MemorySessionStore) {
		s.maxSenders = n
	}
}

// WithMaxTurns caps the history length of each session.
func WithMaxTurns(n int) StoreOption {
	return func(s *MemorySessionStore) {
		s.maxTurns = n
	}
}

// WithEvictionHook registers a callback invoked (under the store lock) when a
// session is evicted. The callback must not call back into the store.
func WithEvictionHook(fn func(sender string)) StoreOption {
	return func(s *MemorySessionStore) {
		s.onEvict = fn
	}
}

func withClock(now func() time.Time) StoreOption {
	return func(s *MemorySessionStore) {
		s.now = now
	}
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore(opts ...StoreOption) *MemorySessionStore {
	s := &MemorySessionStore{
		order: list.New(),
		index: make(map[string]*list.Element),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySessionStore) GetOrCreate(sender string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.touchLocked(sender))
}

func (s *MemorySessionStore) Append(sender string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.touchLocked(sender)
	now := s.now().UTC()
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		sess.History = append(sess.History, t)
	}
	sess.UpdatedAt = now

	if s.maxTurns > 0 && len(sess.History) > s.maxTurns {
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, sess.History[len(sess.History)-s.maxTurns:])
		sess.History = trimmed
	}
}

func (s *MemorySessionStore) History(sender string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[sender]
	if !ok {
		return nil
	}
	s.order.MoveToFront(elem)
	return copyTurns(elem.Value.(*Session).History)
}

func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// touchLocked returns the live session for sender, creating it and evicting
// the least recently used sessions past the bound.
func (s *MemorySessionStore) touchLocked(sender string) *Session {
	if elem, ok := s.index[sender]; ok {
		s.order.MoveToFront(elem)
		return elem.Value.(*Session)
	}

	now := s.now().UTC()
	sess := &Session{Sender: sender, CreatedAt: now, UpdatedAt: now}
	s.index[sender] = s.order.PushFront(sess)

	for s.maxSenders > 0 && s.order.Len() > s.maxSenders {
		oldest := s.order.Back()
		evicted := oldest.Value.(*Session)
		s.order.Remove(oldest)
		delete(s.index, evicted.Sender)
		if s.onEvict != nil {
			s.onEvict(evicted.Sender)
		}
	}
	return sess
}

func snapshot(sess *Session) Session {
	out := *sess
	out.History = copyTurns(sess.History)
	return out
}

func copyTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
