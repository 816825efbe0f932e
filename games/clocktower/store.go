/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store holds every live session, keyed by code. Construct one per process
// with NewStore and share it between handlers.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	catalog Catalog
	pusher  Pusher
	newID   IDGenerator
	now     func() time.Time
	log     zerolog.Logger
}

type Option func(*Store)

// WithPusher sets where projections are delivered after each mutation.
func WithPusher(p Pusher) Option {
	return func(s *Store) { s.pusher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithIDGenerator replaces the nanoid generator used for codes and
// participant ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.newID = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(catalog Catalog, opts ...Option) *Store {
	if len(catalog.Names) == 0 {
		catalog = DefaultCatalog()
	}

	s := &Store{
		sessions: make(map[string]*Session),
		catalog:  catalog.clone(),
		pusher:   Discard,
		newID:    nanoID,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns a copy of the store's role catalog.
func (s *Store) Catalog() Catalog {
	return s.catalog.clone()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Lookup finds a session by code, ignoring case and surrounding whitespace.
func (s *Store) Lookup(code string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[NormalizeCode(code)]
	return sess, ok
}

// View returns the projection of a session for one viewer.
func (s *Store) View(code, viewerConnID string) (View, error) {
	sess, ok := s.Lookup(code)
	if !ok {
		return View{}, ErrSessionNotFound
	}
	return sess.Project(viewerConnID), nil
}

// Create registers a new session hosted by connID. The host joins the
// roster immediately. With no usable roles the session starts with the
// first DefaultSelectionSize catalog roles.
func (s *Store) Create(connID, hostName string, roles []string) (*Session, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		hostName = "Host"
	}

	roles = SanitizeRoles(roles)
	if len(roles) == 0 {
		roles = s.catalog.Defaults(DefaultSelectionSize)
	}

	now := s.now()

	s.mu.Lock()
	code, err := s.unusedCodeLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	sess := newSession(code, connID, hostName, roles, s.catalog.Info, now)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, err := sess.joinLocked(connID, hostName, s.newID); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.sessions[code] = sess
	s.mu.Unlock()

	s.log.Info().Str("game", code).Str("conn", connID).Str("host", hostName).Int("roles", len(roles)).Msg("session created")

	s.broadcastLocked(sess)

	return sess, nil
}

func (s *Store) unusedCodeLocked() (string, error) {
	for range maxIDAttempts {
		code, err := s.newID(CodeLength)
		if err != nil {
			return "", err
		}
		if _, exists := s.sessions[code]; !exists {
			return code, nil
		}
		s.log.Debug().Str("game", code).Msg("session code collision, regenerating")
	}
	return "", errCodeSpaceExhausted
}

// mutate runs fn against the session under its lock once the requester is
// confirmed as host, then pushes fresh projections. fn must validate before
// changing anything.
func (s *Store) mutate(code, connID string, fn func(sess *Session, now time.Time) error) error {
	sess, ok := s.Lookup(code)
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.hostConnID != connID {
		return ErrNotHost
	}

	now := s.now()
	if err := fn(sess, now); err != nil {
		return err
	}
	sess.lastActive = now

	s.broadcastLocked(sess)

	return nil
}

// broadcastLocked pushes one projection per connected participant.
func (s *Store) broadcastLocked(sess *Session) {
	for _, p := range sess.connectedLocked() {
		s.pusher.Push(p.ConnectionID, sess.projectLocked(p.ConnectionID))
	}
}

func (s *Store) snapshot() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Reap removes sessions that have not been mutated for longer than idle,
// returning how many were removed.
func (s *Store) Reap(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, sess := range s.sessions {
		if sess.LastActive().Before(cutoff) {
			delete(s.sessions, code)
			removed++
			s.log.Info().Str("game", code).Msg("session reaped")
		}
	}
	return removed
}

// RunReaper calls Reap every idle/2 until ctx is done.
func (s *Store) RunReaper(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(max(idle/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap(idle)
		}
	}
}
