package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// MemoryStore хранит счетчики окон в памяти процесса.
// Подходит для единственного экземпляра сервера; для нескольких реплик
// используется RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Incr атомарен за счет мьютекса: проверка окна и инкремент выполняются
// под одной блокировкой, гонок на параллельных запросах одного клиента нет.
func (s *MemoryStore) Incr(_ context.Context, key string, winLen time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= winLen {
		w = &window{start: now, count: 0}
		s.windows[key] = w
	}
	w.count++

	return w.count, winLen - now.Sub(w.start), nil
}

// Cleanup удаляет окна, истекшие раньше порога. Вызывается периодически
// из фонового тикера сервера.
func (s *MemoryStore) Cleanup(olderThan time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if now.Sub(w.start) >= olderThan {
			delete(s.windows, key)
		}
	}
}
