package session

import (
	"sync"
	"time"

	"github.com/zhouzirui/z-relay/internal/model/session"
)

// Store owns every live conversation session. Sessions are keyed by
// (channel, thread root timestamp): the agent's continuity model is
// per-thread, so multiple users replying in the same thread share one
// session. Nothing outside the store retains session records.
type Store struct {
	mu   sync.RWMutex
	data map[session.Key]session.Session
	ttl  time.Duration

	// now is swapped out in tests to drive expiry.
	now func() time.Time
}

// NewStore bootstraps an empty in-memory store whose entries expire ttl
// after their last activity.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		data: make(map[session.Key]session.Session),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Resolve maps an inbound message to its agent session id. An empty
// threadTS means the message roots a new conversation, so there is
// nothing to resolve. A hit refreshes the session's last activity. A
// threaded message with no stored session (for example a thread older
// than the expiry window) reports absent and the conversation starts
// fresh; no session is re-created for it until the thread roots again.
func (s *Store) Resolve(channel, threadTS string) (string, bool) {
	if threadTS == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := session.Key{Channel: channel, ThreadTS: threadTS}
	sess, ok := s.data[key]
	if !ok {
		return "", false
	}

	sess.LastActivity = s.now()
	s.data[key] = sess
	return sess.ID, true
}

// Record inserts or overwrites the session for a thread root. Called for
// the root message of a new conversation once the agent has issued a
// session id; an empty id is ignored so the store never holds id-less
// entries.
func (s *Store) Record(channel, rootTS, sessionID string) {
	if sessionID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := session.Key{Channel: channel, ThreadTS: rootTS}
	s.data[key] = session.Session{ID: sessionID, LastActivity: s.now()}
}

// Remove deletes the session for a thread and reports whether one existed.
func (s *Store) Remove(channel, threadTS string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := session.Key{Channel: channel, ThreadTS: threadTS}
	if _, ok := s.data[key]; !ok {
		return false
	}

	delete(s.data, key)
	return true
}

// Get returns the stored session for a thread without counting as
// activity. It backs the info command, which must not refresh expiry.
func (s *Store) Get(channel, threadTS string) (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.data[session.Key{Channel: channel, ThreadTS: threadTS}]
	return sess, ok
}

// SweepExpired removes every session idle for strictly longer than the
// ttl and returns how many were removed.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, sess := range s.data {
		if now.Sub(sess.LastActivity) > s.ttl {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

// Size reports the current entry count for diagnostics.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
