package ratelimit

import (
	"context"
	"sync"
	"time"

	"hookrelay/pkg/metrics"
)

// hitLog is a ring of the admission times still inside the window, oldest first.
type hitLog struct {
	mu       sync.Mutex
	hits     []time.Time
	head     int
	size     int
	lastSeen time.Time
}

func newHitLog(quota int, now time.Time) *hitLog {
	return &hitLog{
		hits:     make([]time.Time, quota),
		lastSeen: now,
	}
}

// expire drops hits at or before now-window.
func (l *hitLog) expire(now time.Time, window time.Duration) {
	for l.size > 0 && now.Sub(l.hits[l.head]) >= window {
		l.head = (l.head + 1) % len(l.hits)
		l.size--
	}
}

func (l *hitLog) push(t time.Time) {
	l.hits[(l.head+l.size)%len(l.hits)] = t
	l.size++
}

// MemoryStore keeps a sliding log of admissions per client key. A request is
// admitted only while fewer than Quota admissions fall inside the last
// Window, so no Window-long span ever admits more than Quota.
type MemoryStore struct {
	cfg     RateLimitConfig
	mu      sync.RWMutex
	entries map[string]*hitLog
}

func NewMemoryStore(cfg RateLimitConfig) *MemoryStore {
	return &MemoryStore{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*hitLog),
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (Result, error) {
	return s.allowAt(key, time.Now()), nil
}

func (s *MemoryStore) allowAt(key string, now time.Time) Result {
	entry := s.entry(key, now)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.lastSeen = now
	entry.expire(now, s.cfg.Window)

	res := Result{Limit: s.cfg.Quota}
	if entry.size < s.cfg.Quota {
		entry.push(now)
		res.Allowed = true
		res.Remaining = s.cfg.Quota - entry.size
		return res
	}

	res.RetryAfter = entry.hits[entry.head].Add(s.cfg.Window).Sub(now)
	return res
}

func (s *MemoryStore) entry(key string, now time.Time) *hitLog {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()
	if exists {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists = s.entries[key]
	if !exists {
		entry = newHitLog(s.cfg.Quota, now)
		s.entries[key] = entry
	}
	return entry
}

// Run evicts idle keys every CleanupInterval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.evictIdle(now)
		}
	}
}

func (s *MemoryStore) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, entry := range s.entries {
		entry.mu.Lock()
		lastSeen := entry.lastSeen
		entry.mu.Unlock()
		if now.Sub(lastSeen) > s.cfg.MaxAge {
			delete(s.entries, key)
			evicted++
		}
	}
	metrics.SetRateLimitTrackedClients(len(s.entries))
	return evicted
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
