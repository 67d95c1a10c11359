package web

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the store is full.
	ErrTooManySessions = errors.New("too many sessions open")

	errStoreClosed = errors.New("session store closed")
)

// Session is one client's live preview: a Previewer plus the spooled file
// it reads.
type Session struct {
	ID        string
	CreatedAt time.Time
	Previewer *preview.Previewer

	mu       sync.Mutex
	file     *source.SpooledFile
	closed   bool
	lastSeen time.Time
	streams  atomic.Int32
}

// SetFile hands f to the previewer and removes the file it replaces.
// A run still reading the old file keeps its open handle. On a closed
// session f is removed right away.
func (s *Session) SetFile(f *source.SpooledFile) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := f.Remove(); err != nil {
			slog.Warn("remove file of closed session", "session_id", s.ID, "error", err)
		}
		return
	}
	old := s.file
	s.file = f
	s.mu.Unlock()

	s.Previewer.SetFile(f)
	if old != nil {
		if err := old.Remove(); err != nil {
			slog.Warn("remove replaced session file", "session_id", s.ID, "error", err)
		}
	}
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) close() {
	s.Previewer.Close()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.closed = true
	s.mu.Unlock()

	if f != nil {
		if err := f.Remove(); err != nil {
			slog.Warn("remove session file", "session_id", s.ID, "error", err)
		}
	}
}

// SessionConfig configures a SessionStore.
type SessionConfig struct {
	TTL         time.Duration
	MaxSessions int
	Debounce    time.Duration
	// SpoolDir is where uploads are kept; empty means os.TempDir.
	SpoolDir string
}

// SessionStore owns all sessions and expires idle ones. A session with an
// open event stream never expires.
type SessionStore struct {
	cfg  SessionConfig
	deps preview.Deps
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSessionStore creates a store and starts its expiry loop.
func NewSessionStore(cfg SessionConfig, deps preview.Deps) *SessionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = preview.DefaultDebounce
	}

	st := &SessionStore{
		cfg:      cfg,
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go st.expireLoop()
	return st
}

// Create opens a new session.
func (st *SessionStore) Create() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, errStoreClosed
	}
	if st.cfg.MaxSessions > 0 && len(st.sessions) >= st.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	now := st.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Previewer: preview.NewPreviewer(st.deps, preview.WithDebounce(st.cfg.Debounce)),
		lastSeen:  now,
	}
	st.sessions[s.ID] = s
	return s, nil
}

// Get returns the session with id and marks it used.
func (st *SessionStore) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}

	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.touch(st.now())
	return s, nil
}

// Delete closes and removes the session with id.
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

// Len returns the number of open sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// ExpiresAt returns when s expires if left idle.
func (st *SessionStore) ExpiresAt(s *Session) time.Time {
	return s.LastSeen().Add(st.cfg.TTL)
}

// Expire closes sessions idle for longer than the TTL and returns how many
// were removed.
func (st *SessionStore) Expire() int {
	now := st.now()

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.streams.Load() > 0 {
			continue
		}
		if now.Sub(s.LastSeen()) > st.cfg.TTL {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.close()
		slog.Info("preview session expired", "session_id", s.ID)
	}
	return len(expired)
}

func (st *SessionStore) expireLoop() {
	defer close(st.done)

	interval := min(st.cfg.TTL/2, time.Minute)
	ticker := time.NewTicker(max(interval, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			st.Expire()
		}
	}
}

// Close stops the expiry loop and closes every session.
func (st *SessionStore) Close() {
	st.stopOnce.Do(func() {
		close(st.stop)
		<-st.done

		st.mu.Lock()
		sessions := st.sessions
		st.sessions = make(map[string]*Session)
		st.closed = true
		st.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}
	})
}
