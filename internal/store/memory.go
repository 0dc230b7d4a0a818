// Package store persists quotes.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/quote-engine/internal/quote"
)

// Memory is an in-process quote store.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]quote.Quote
	byRef map[string]string
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{byID: map[string]quote.Quote{}, byRef: map[string]string{}}
}

// Save stores a copy of q under its id.
func (m *Memory) Save(ctx context.Context, q quote.Quote, externalRef string) error {
	if strings.TrimSpace(q.ID) == "" {
		return errors.New("store: quote id is required")
	}
	q = q.Clone()
	q.ExternalRef = strings.TrimSpace(externalRef)

	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.byRef[q.ExternalRef]; ok && q.ExternalRef != "" && owner != q.ID {
		return fmt.Errorf("%w: %s", ErrRefTaken, q.ExternalRef)
	}
	if prev, ok := m.byID[q.ID]; ok && prev.ExternalRef != "" {
		delete(m.byRef, prev.ExternalRef)
	}
	m.byID[q.ID] = q
	if q.ExternalRef != "" {
		m.byRef[q.ExternalRef] = q.ID
	}
	return nil
}

// Get returns the quote with id.
func (m *Memory) Get(ctx context.Context, id string) (quote.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.byID[id]
	if !ok {
		return quote.Quote{}, quote.ErrNotFound
	}
	return q.Clone(), nil
}

// GetByExternalRef returns the quote linked to ref.
func (m *Memory) GetByExternalRef(ctx context.Context, ref string) (quote.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRef[ref]
	if !ok {
		return quote.Quote{}, quote.ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

// Link records the external reference of a persisted quote and marks it linked.
func (m *Memory) Link(ctx context.Context, id, externalRef string) error {
	ref := strings.TrimSpace(externalRef)
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.byID[id]
	if !ok {
		return quote.ErrNotFound
	}
	if owner, ok := m.byRef[ref]; ok && owner != id {
		return fmt.Errorf("%w: %s", ErrRefTaken, ref)
	}
	if err := q.Advance(quote.StateLinked); err != nil {
		return err
	}
	q.ExternalRef = ref
	m.byID[id] = q
	m.byRef[ref] = id
	return nil
}
