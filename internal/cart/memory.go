package cart

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]map[string]Line
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]map[string]Line{}, clock: time.Now}
}

func (s *MemoryStore) Items(_ context.Context, userID string) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, 0, len(s.carts[userID]))
	for _, l := range s.carts[userID] {
		out = append(out, l)
	}
	sortLines(out)
	return out, nil
}

func (s *MemoryStore) Add(_ context.Context, userID string, line Line) (Line, error) {
	if err := line.validate(); err != nil {
		return Line{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = map[string]Line{}
		s.carts[userID] = c
	}
	now := s.clock().UTC()
	if cur, ok := c[line.Key()]; ok {
		cur.Quantity += line.Quantity
		cur.UpdatedAt = now
		c[line.Key()] = cur
		return cur, nil
	}
	line.AddedAt, line.UpdatedAt = now, now
	c[line.Key()] = line
	return line, nil
}

func (s *MemoryStore) SetQuantity(_ context.Context, userID, key string, quantity int) (Line, error) {
	if quantity < 1 {
		return Line{}, fmt.Errorf("%w: quantity %d", ErrInvalidLine, quantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.carts[userID][key]
	if !ok {
		return Line{}, ErrLineNotFound
	}
	cur.Quantity = quantity
	cur.UpdatedAt = s.clock().UTC()
	s.carts[userID][key] = cur
	return cur, nil
}

func (s *MemoryStore) Remove(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[userID][key]; !ok {
		return ErrLineNotFound
	}
	delete(s.carts[userID], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

func (s *MemoryStore) ClearUntil(_ context.Context, userID string, until time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, l := range s.carts[userID] {
		if !l.UpdatedAt.After(until) {
			delete(s.carts[userID], key)
			n++
		}
	}
	return n, nil
}
