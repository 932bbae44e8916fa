package slowmode

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps timers in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	lastPost map[string]map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-process timer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lastPost: make(map[string]map[string]time.Time)}
}

func (s *MemoryStore) Acquire(_ context.Context, channelID, username string, interval time.Duration, now time.Time) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.lastPost[channelID]
	if !ok {
		users = make(map[string]time.Time)
		s.lastPost[channelID] = users
	}

	if last, seen := users[username]; seen {
		if elapsed := now.Sub(last); elapsed < interval {
			return interval - elapsed, false, nil
		}
	}

	users[username] = now
	return 0, true, nil
}

func (s *MemoryStore) Forget(_ context.Context, channelID string) error {
	s.mu.Lock()
	delete(s.lastPost, channelID)
	s.mu.Unlock()
	return nil
}
