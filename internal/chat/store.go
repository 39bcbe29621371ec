package chat

import (
	"sync"

	"github.com/xela07ax/folio-core/internal/domain"
)

// slot владеет одной сессией. Его мьютекс задает исключение на сессию:
// любое чтение-изменение-запись сессии идет под ним.
type slot struct {
	mu      sync.Mutex
	session *domain.ChatSession // nil до первого сообщения
	evicted bool
}

// Store: арена сессий. Снаружи держат только id, а не указатели внутрь;
// наружу сессии выходят только копиями.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewStore() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// acquire возвращает захваченный слот для id, при необходимости создает пустой.
// Освобождает вызывающий.
func (s *Store) acquire(id string) *slot {
	for {
		s.mu.Lock()
		sl, ok := s.slots[id]
		if !ok {
			sl = &slot{}
			s.slots[id] = sl
		}
		s.mu.Unlock()

		sl.mu.Lock()
		if !sl.evicted {
			return sl
		}
		// проиграли гонку с evict: в карте уже другой слот
		sl.mu.Unlock()
	}
}

// lock возвращает захваченный слот существующей сессии или false.
func (s *Store) lock(id string) (*slot, bool) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	sl.mu.Lock()
	if sl.evicted || sl.session == nil {
		sl.mu.Unlock()
		return nil, false
	}
	return sl, true
}

// evict убирает sl из арены. Вызывающий держит sl.mu.
func (s *Store) evict(id string, sl *slot) {
	s.mu.Lock()
	if s.slots[id] == sl {
		delete(s.slots, id)
	}
	s.mu.Unlock()
	sl.evicted = true
}

// ids перечисляет текущие id сессий.
func (s *Store) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.slots))
	for id := range s.slots {
		out = append(out, id)
	}
	return out
}

// Len считает слоты с сессией.
func (s *Store) Len() int {
	n := 0
	for _, id := range s.ids() {
		if sl, ok := s.lock(id); ok {
			n++
			sl.mu.Unlock()
		}
	}
	return n
}
