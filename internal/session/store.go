// Package session keeps one upload workflow per browser session.
//
// Sessions are identified by a random cookie value and expire after a
// period without use. Expiry closes the session's workflow, which releases
// any preview handle it still holds.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/docparse/internal/core"
	"github.com/JonMunkholm/docparse/internal/logging"
)

// Factory creates the workflow for a new session.
type Factory func() *core.Workflow

// Store maps session IDs to workflows.
type Store struct {
	factory     Factory
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*core.Workflow
}

// NewStore creates a store whose sessions expire after idleTimeout.
func NewStore(factory Factory, idleTimeout time.Duration) *Store {
	return &Store{
		factory:     factory,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*core.Workflow),
	}
}

// Get returns the workflow for id.
func (s *Store) Get(id string) (*core.Workflow, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.sessions[id]
	return wf, ok
}

// Create starts a new session.
func (s *Store) Create() (string, *core.Workflow) {
	id := uuid.NewString()
	wf := s.factory()

	s.mu.Lock()
	s.sessions[id] = wf
	s.mu.Unlock()

	return id, wf
}

// Delete ends a session and closes its workflow.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	wf, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		wf.Close()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle since before now minus the idle timeout and
// returns how many were removed. Sessions with a submission in flight are
// kept until it completes.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTimeout)

	var expired []*core.Workflow
	s.mu.Lock()
	for id, wf := range s.sessions {
		if wf.LastUsed().Before(cutoff) && !wf.Snapshot().InFlight {
			expired = append(expired, wf)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, wf := range expired {
		wf.Close()
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes every session.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				slog.Debug("expired sessions", "count", n, "remaining", s.Len())
			}
		}
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*core.Workflow)
	s.mu.Unlock()

	for _, wf := range all {
		wf.Close()
	}
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Middleware resolves the request's session, creating one when the cookie
// is missing or unknown, and attaches its workflow to the request context.
// Every resolved request counts as activity: the workflow is touched and
// the cookie is re-sent so its MaxAge runs from the latest request.
func (s *Store) Middleware(opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			var wf *core.Workflow

			if c, err := r.Cookie(opts.Name); err == nil {
				if existing, ok := s.Get(c.Value); ok {
					id, wf = c.Value, existing
					wf.Touch()
				}
			}

			if wf == nil {
				id, wf = s.Create()
				logging.FromContext(r.Context()).Debug("session created", "session_id", id)
			}
			setCookie(w, opts, id)

			ctx := logging.WithSession(r.Context(), id)
			ctx = core.ContextWithWorkflow(ctx, wf)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func setCookie(w http.ResponseWriter, opts CookieOptions, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
