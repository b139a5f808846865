// Package cart keeps the pending selections of a user before checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidLine  = errors.New("cart: invalid line")
	ErrLineNotFound = errors.New("cart: line not found")
)

type Line struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Size      string    `json:"size,omitempty"`
	Color     string    `json:"color,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	// UpdatedAt moves on every write to the line, AddedAt never does.
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies a line: the same product in another size or color is a
// separate line.
func (l Line) Key() string {
	return fmt.Sprintf("%d:%s:%s", l.ProductID, strings.TrimSpace(l.Size), strings.TrimSpace(l.Color))
}

func (l Line) validate() error {
	if l.ProductID <= 0 {
		return fmt.Errorf("%w: product id %d", ErrInvalidLine, l.ProductID)
	}
	if l.Quantity < 1 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidLine, l.Quantity)
	}
	return nil
}

type Store interface {
	Items(ctx context.Context, userID string) ([]Line, error)
	// Add merges into an existing line with the same key.
	Add(ctx context.Context, userID string, line Line) (Line, error)
	SetQuantity(ctx context.Context, userID, key string, quantity int) (Line, error)
	Remove(ctx context.Context, userID, key string) error
	Clear(ctx context.Context, userID string) error
	// ClearUntil removes the lines last written at or before until and
	// reports how many went.
	ClearUntil(ctx context.Context, userID string, until time.Time) (int, error)
}

func sortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].Key() < lines[j].Key()
		}
		return lines[i].AddedAt.Before(lines[j].AddedAt)
	})
}
