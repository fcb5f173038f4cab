// Package session keeps OCR adapters addressable by handle, so remote callers can
// drive one engine over several requests.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johbar/ocrlib/internal/ocr"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many open sessions")
)

type session struct {
	// mu serializes all calls on the adapter
	mu       sync.Mutex
	adapter  *ocr.Adapter
	lastUsed time.Time
	closed   bool
}

// Registry maps session IDs to open adapters.
// Different sessions can be used concurrently.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*session
	newAdapter  func() *ocr.Adapter
	maxSessions int
	log         *slog.Logger
	now         func() time.Time
}

// New creates a registry. newAdapter returns an unopened adapter.
// maxSessions <= 0 means no limit.
func New(newAdapter func() *ocr.Adapter, maxSessions int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		sessions:    make(map[string]*session),
		newAdapter:  newAdapter,
		maxSessions: maxSessions,
		log:         logger,
		now:         time.Now,
	}
}

// Open creates an adapter for lang and returns the ID of its session.
func (r *Registry) Open(lang string) (string, error) {
	if r.maxSessions > 0 && r.Len() >= r.maxSessions {
		return "", ErrTooManySessions
	}
	a := r.newAdapter()
	if err := a.Open(lang); err != nil {
		return "", err
	}
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		a.Close()
		return "", ErrTooManySessions
	}
	r.sessions[id] = &session{adapter: a, lastUsed: r.now()}
	r.log.Info("session opened", "id", id, "lang", lang, "sessions", len(r.sessions))
	return id, nil
}

func (r *Registry) get(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Do calls fn with the adapter of session id. Calls on the same session are serialized.
func (r *Registry) Do(id string, fn func(a *ocr.Adapter) error) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotFound
	}
	s.lastUsed = r.now()
	return fn(s.adapter)
}

// Close closes the adapter of session id and forgets the session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close()
	r.log.Info("session closed", "id", id)
	return nil
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.adapter.Close()
		s.closed = true
	}
}

// CloseAll closes every session, waiting for running calls to finish.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
	if len(sessions) > 0 {
		r.log.Info("all sessions closed", "count", len(sessions))
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap closes sessions unused for longer than idle and returns how many were closed.
// Sessions busy with a call are skipped.
func (r *Registry) Reap(idle time.Duration) int {
	deadline := r.now().Add(-idle)
	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.Before(deadline) {
			expired = append(expired, id)
		}
		s.mu.Unlock()
	}
	r.mu.Unlock()
	n := 0
	for _, id := range expired {
		if err := r.Close(id); err == nil {
			r.log.Info("idle session reaped", "id", id)
			n++
		}
	}
	return n
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Reap(idle)
		}
	}
}
