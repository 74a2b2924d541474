package dialogue

import (
	"context"
	"sync"
	"time"

	"kra-assist/internal/models"
)

type history struct {
	turns    []models.Turn
	lastSeen time.Time
}

// MemoryStore keeps histories in process. A history idle for longer than
// ttl is dropped on the next read or Sweep; ttl <= 0 disables expiry.
type MemoryStore struct {
	mu        sync.RWMutex
	histories map[string]*history
	maxTurns  int
	ttl       time.Duration
	now       func() time.Time
}

func NewMemoryStore(maxTurns int, ttl time.Duration) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{
		histories: make(map[string]*history),
		maxTurns:  maxTurns,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *MemoryStore) expired(h *history, now time.Time) bool {
	return s.ttl > 0 && now.Sub(h.lastSeen) > s.ttl
}

func (s *MemoryStore) GetHistory(_ context.Context, userID string) ([]models.Turn, error) {
	now := s.now()

	s.mu.RLock()
	h, ok := s.histories[userID]
	if ok && !s.expired(h, now) {
		out := make([]models.Turn, len(h.turns))
		copy(out, h.turns)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	if ok {
		s.mu.Lock()
		if h, ok := s.histories[userID]; ok && s.expired(h, now) {
			delete(s.histories, userID)
		}
		s.mu.Unlock()
	}
	return []models.Turn{}, nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, userID string, turn models.Turn) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[userID]
	if !ok || s.expired(h, now) {
		h = &history{}
		s.histories[userID] = h
	}
	h.turns = append(h.turns, turn)
	if over := len(h.turns) - s.maxTurns; over > 0 {
		h.turns = append([]models.Turn(nil), h.turns[over:]...)
	}
	h.lastSeen = now
	return nil
}

// Sweep drops every expired history and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, h := range s.histories {
		if s.expired(h, now) {
			delete(s.histories, id)
			removed++
		}
	}
	return removed
}

// Users is the number of histories currently held.
func (s *MemoryStore) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}
