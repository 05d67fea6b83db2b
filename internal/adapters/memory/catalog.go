package memory

import (
	"context"
	"sync"

	"github.com/robertarktes/ticket-entry-gate/internal/domain"
)

// Catalog serves tickets and events from memory.
type Catalog struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	events  map[string]domain.Event
}

func NewCatalog() *Catalog {
	return &Catalog{
		tickets: make(map[string]domain.Ticket),
		events:  make(map[string]domain.Event),
	}
}

func (c *Catalog) PutTicket(t domain.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[t.ID] = t
}

func (c *Catalog) PutEvent(e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[e.ID] = e
}

func (c *Catalog) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (c *Catalog) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}
