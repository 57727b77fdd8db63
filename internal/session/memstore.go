package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tinredperu/jack/internal/observe"
	"github.com/tinredperu/jack/internal/tinred"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

const (
	// defaultTTL matches the back-office session lifetime: a day of
	// inactivity and the conversation starts over.
	defaultTTL = 24 * time.Hour

	defaultSweepInterval = 10 * time.Minute
)

// MemStore is the in-memory [Store] implementation.
//
// A map-level mutex guards the session table; each entry additionally carries
// its own mutex so one phone's messages queue behind each other without
// blocking other phones.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl     time.Duration
	now     func() time.Time
	metrics *observe.Metrics
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// MemOption configures a [MemStore].
type MemOption func(*MemStore)

// WithTTL overrides the idle lifetime after which a session is discarded
// (default 24h).
func WithTTL(d time.Duration) MemOption {
	return func(s *MemStore) { s.ttl = d }
}

// WithNow replaces the clock. Tests use this to age sessions.
func WithNow(now func() time.Time) MemOption {
	return func(s *MemStore) { s.now = now }
}

// WithMetrics replaces the metrics sink (tests pass a private instance).
func WithMetrics(m *observe.Metrics) MemOption {
	return func(s *MemStore) { s.metrics = m }
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		entries: make(map[string]*entry),
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Do implements [Store.Do].
func (s *MemStore) Do(ctx context.Context, phone string, fn func(*Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	phone = tinred.CleanPhone(phone)
	e := s.entryFor(ctx, phone)

	// Serializes all messages for this phone. Waiters queue here in lock
	// acquisition order.
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	if s.expired(e.sess, now) {
		slog.Info("session: expired, starting fresh", "phone", phone, "idle", now.Sub(e.sess.LastSeen))
		e.sess = s.fresh(phone, now)
	}

	err := fn(e.sess)
	e.sess.LastSeen = s.now()
	return err
}

// Peek implements [Store.Peek].
func (s *MemStore) Peek(ctx context.Context, phone string) (Session, error) {
	phone = tinred.CleanPhone(phone)

	s.mu.RLock()
	e, ok := s.entries[phone]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expired(e.sess, s.now()) {
		return Session{}, ErrNotFound
	}
	return *e.sess, nil
}

// Len implements [Store.Len].
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep implements [Store.Sweep]. Entries whose per-session mutex is busy are
// skipped; they are by definition not idle.
func (s *MemStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for phone, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		expired := s.expired(e.sess, now)
		e.mu.Unlock()
		if expired {
			delete(s.entries, phone)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.ActiveSessions.Add(context.Background(), int64(-removed))
		slog.Info("session: swept expired sessions", "removed", removed, "remaining", len(s.entries))
	}
	return removed
}

// Run sweeps on a fixed interval until ctx is cancelled. interval <= 0 uses
// the default. Intended to be started as a goroutine from the app wiring.
func (s *MemStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// entryFor returns the entry for phone, creating it on first contact.
func (s *MemStore) entryFor(ctx context.Context, phone string) *entry {
	s.mu.RLock()
	e, ok := s.entries[phone]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[phone]; ok {
		return e
	}
	e = &entry{sess: s.fresh(phone, s.now())}
	s.entries[phone] = e
	s.metrics.ActiveSessions.Add(ctx, 1)
	return e
}

func (s *MemStore) fresh(phone string, now time.Time) *Session {
	return &Session{
		Phone:     phone,
		CreatedAt: now,
		LastSeen:  now,
	}
}

func (s *MemStore) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.LastSeen) > s.ttl
}
