// Package session keeps per-conversation state and serializes the events that
// touch it. Conversations are created on first use; eviction is left to the
// caller through Sweep.
package session

import (
	"sync"
	"time"
)

// Conversation holds the state of one chat. State may only be read or written
// while the conversation is locked.
type Conversation[T any] struct {
	ID    int64
	State T

	mu       sync.Mutex
	lastSeen time.Time
	evicted  bool
}

// Store maps conversation ids to conversations.
type Store[T any] struct {
	mu    sync.Mutex
	convs map[int64]*Conversation[T]
	init  func(id int64) T
	now   func() time.Time
}

// Option customizes a Store.
type Option[T any] func(*Store[T])

// WithClock overrides the time source used for activity tracking.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds a store; init produces the zero state of a new conversation.
func NewStore[T any](init func(id int64) T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		convs: make(map[int64]*Conversation[T]),
		init:  init,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lock returns the conversation for id with its lock held, creating it if
// needed, and records activity. The returned func releases the lock.
func (s *Store[T]) Lock(id int64) (*Conversation[T], func()) {
	for {
		conv := s.getOrCreate(id)
		conv.mu.Lock()
		if conv.evicted {
			// Swept between lookup and lock; retry against the fresh entry.
			conv.mu.Unlock()
			continue
		}
		conv.lastSeen = s.now()
		return conv, conv.mu.Unlock
	}
}

func (s *Store[T]) getOrCreate(id int64) *Conversation[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		var state T
		if s.init != nil {
			state = s.init(id)
		}
		conv = &Conversation[T]{ID: id, State: state, lastSeen: s.now()}
		s.convs[id] = conv
	}
	return conv
}

// LastSeen reports the last activity time for id.
func (s *Store[T]) LastSeen(id int64) (time.Time, bool) {
	s.mu.Lock()
	conv, ok := s.convs[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.lastSeen, true
}

// Len returns the number of live conversations.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Sweep evicts conversations idle for at least idle and for which keep, when
// non-nil, returns false. Conversations currently locked are skipped.
// It returns the evicted ids.
func (s *Store[T]) Sweep(idle time.Duration, keep func(T) bool) []int64 {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []int64
	for id, conv := range s.convs {
		if !conv.mu.TryLock() {
			continue
		}
		if now.Sub(conv.lastSeen) >= idle && (keep == nil || !keep(conv.State)) {
			conv.evicted = true
			delete(s.convs, id)
			evicted = append(evicted, id)
		}
		conv.mu.Unlock()
	}
	return evicted
}
