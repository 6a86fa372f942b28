package bank

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/qbedit/internal/store"
)

// DefaultSessionTTL is how long a bank token stays valid.
const DefaultSessionTTL = 24 * time.Hour

const sweepInterval = time.Minute

// sessionSweeper removes expired tokens, at most once per sweepInterval.
// It runs on login, so an idle bank keeps its rows until the next sign-in.
type sessionSweeper struct {
	mu        sync.Mutex
	store     *store.Store
	metrics   *Metrics
	lastSweep time.Time
}

func newSessionSweeper(s *store.Store, m *Metrics) *sessionSweeper {
	return &sessionSweeper{store: s, metrics: m}
}

// Sweep purges tokens expired at now unless a sweep ran recently.
func (s *sessionSweeper) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now

	n, err := s.store.PurgeExpiredSessions(now)
	if err != nil {
		slog.Warn("failed to purge expired sessions", "error", err)
		return
	}
	if n > 0 {
		s.metrics.sessionsPurged.Add(float64(n))
		slog.Info("purged expired sessions", "count", n)
	}
}
