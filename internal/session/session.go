// Package session holds per-browsing-session state: the access gate's
// unlock flag and the record snapshot the views work from. The snapshot
// is an explicit cache over the record store, loaded lazily and always
// fully reloaded after a mutation, never incrementally patched.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"kopilka/internal/core"
	"kopilka/internal/storage"
)

// Session is one browsing session. The zero unlock flag means a fresh
// session always starts locked.
type Session struct {
	ID string

	mu       sync.Mutex
	unlocked bool
	records  []core.Record
	loaded   bool
	lastSeen time.Time
}

// Unlocked implements gate.SessionFlag.
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// SetUnlocked implements gate.SessionFlag. Unlocked is terminal for the
// session; there is no re-lock.
func (s *Session) SetUnlocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = true
}

// Snapshot returns the session's record snapshot, loading it from the
// store on first access.
func (s *Session) Snapshot(ctx context.Context, store storage.RecordStore) ([]core.Record, error) {
	s.mu.Lock()
	if s.loaded {
		records := s.records
		s.mu.Unlock()
		return records, nil
	}
	s.mu.Unlock()

	return s.Reload(ctx, store)
}

// Reload throws the snapshot away and loads the full record set again.
// Views call it after every mutation before the next render.
func (s *Session) Reload(ctx context.Context, store storage.RecordStore) ([]core.Record, error) {
	records, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload snapshot: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.loaded = true
	s.mu.Unlock()
	return records, nil
}

// Invalidate drops the snapshot so the next access reloads.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.records = nil
	s.loaded = false
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seenBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}

// Registry tracks live sessions by id and expires idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration

	stopCleanup  chan struct{}
	cleanupDone  chan struct{}
	shutdownOnce sync.Once
}

// NewRegistry starts a registry whose sessions expire after ttl of
// inactivity. Expiring a session clears its unlock flag with it, which
// is what makes the flag session-scoped.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Get looks up a live session by id, refreshing its idle timer.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(time.Now())
	}
	return s, ok
}

// Create starts a new locked session with a random id.
func (r *Registry) Create() (*Session, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	s := &Session{ID: hex.EncodeToString(b), lastSeen: time.Now()}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// InvalidateAll drops every session's snapshot. Wired to the
// records-changed event so no view renders from a stale cache.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Invalidate()
	}
}

func (r *Registry) cleanupLoop() {
	defer close(r.cleanupDone)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-r.ttl)
			r.mu.Lock()
			for id, s := range r.sessions {
				if s.seenBefore(cutoff) {
					delete(r.sessions, id)
				}
			}
			r.mu.Unlock()
		case <-r.stopCleanup:
			return
		}
	}
}

// Stop shuts the cleanup goroutine down.
func (r *Registry) Stop() {
	r.shutdownOnce.Do(func() {
		close(r.stopCleanup)
		<-r.cleanupDone
	})
}
