// Package spam содержит эвристики защиты публичных форм от автоматических отправок.
package spam

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultWindow - длительность окна ограничения частоты запросов.
	DefaultWindow = time.Minute
	// DefaultLimit - максимальное число принятых запросов за окно.
	DefaultLimit = 5
)

// WindowStore хранит счётчики запросов в фиксированных окнах.
type WindowStore interface {
	// Hit учитывает запрос и возвращает значение счётчика и момент сброса окна.
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error)
	// Sweep удаляет окна, время сброса которых прошло.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// RateLimitResult описывает результат проверки частоты запросов.
type RateLimitResult struct {
	Limited bool
	Reason  string
	Count   int
	ResetAt time.Time
}

// RateLimiter ограничивает число запросов от одного клиента в фиксированном окне.
type RateLimiter struct {
	store  WindowStore
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter создаёт ограничитель с окном 60 секунд и лимитом 5 запросов.
func NewRateLimiter(store WindowStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		store:  store,
		limit:  DefaultLimit,
		window: DefaultWindow,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock подменяет источник времени, используется в тестах.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Check учитывает запрос клиента и сообщает, превышен ли лимит.
// Ошибки хранилища не блокируют запрос.
func (rl *RateLimiter) Check(ctx context.Context, identifier string) RateLimitResult {
	if identifier == "" {
		identifier = "unknown"
	}

	count, resetAt, err := rl.store.Hit(ctx, identifier, rl.now(), rl.window)
	if err != nil {
		rl.logger.Warn("rate limit check failed", zap.String("identifier", identifier), zap.Error(err))
		return RateLimitResult{}
	}

	res := RateLimitResult{Count: count, ResetAt: resetAt}
	if count > rl.limit {
		res.Limited = true
		res.Reason = ReasonRateLimit
	}
	return res
}

// Sweep удаляет истёкшие окна.
func (rl *RateLimiter) Sweep(ctx context.Context) (int, error) {
	return rl.store.Sweep(ctx, rl.now())
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryWindowStore хранит окна в памяти процесса.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
}

// NewMemoryWindowStore создаёт пустое хранилище окон.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{entries: make(map[string]*windowEntry)}
}

// Hit учитывает запрос. Окно начинается заново, если текущее время позже момента сброса.
func (s *MemoryWindowStore) Hit(_ context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &windowEntry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return e.count, e.resetAt, nil
	}

	e.count++
	return e.count, e.resetAt, nil
}

// Sweep удаляет окна с прошедшим временем сброса.
func (s *MemoryWindowStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len возвращает количество хранимых окон.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
