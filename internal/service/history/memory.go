package history

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
)

// MemoryStore — потокобезопасный журнал фиксированной ёмкости на каждый Identity.
// Global читает по всем диалогам сразу.
type MemoryStore struct {
	cap   int
	mu    sync.Mutex
	seq   uint64
	turns map[Identity][]storedTurn
}

type storedTurn struct {
	Turn
	seq uint64
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryStore{cap: capacity, turns: make(map[Identity][]storedTurn)}
}

// Append добавляет реплику, при переполнении удаляет самую старую.
func (s *MemoryStore) Append(_ context.Context, id Identity, t Turn) error {
	if t.Speaker == "" {
		return errors.New("history: turn without speaker")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	list := s.turns[id]
	if len(list) == s.cap {
		// удалить самое старое
		copy(list, list[1:])
		list = list[:s.cap-1]
	}
	s.turns[id] = append(list, storedTurn{Turn: t, seq: s.seq})
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, id Identity, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	var all []storedTurn
	if id == Global {
		for _, list := range s.turns {
			all = append(all, list...)
		}
	} else {
		all = slices.Clone(s.turns[id])
	}
	s.mu.Unlock()

	// новые первыми: по времени записи, при равенстве — по порядку добавления
	slices.SortFunc(all, func(a, b storedTurn) int {
		if c := b.RecordedAt.Compare(a.RecordedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	n = min(n, len(all))
	out := make([]Turn, 0, n)
	for i := range n {
		out = append(out, all[i].Turn)
	}
	return out, nil
}

func (s *MemoryStore) Len(id Identity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns[id])
}
