package state

import (
	"sort"
	"sync"
)

// Pending is the set of entity ids with an operation in flight. It drives UI
// affordances only.
type Pending struct {
	mu  sync.RWMutex
	ids map[string]int
}

func NewPending() *Pending {
	return &Pending{ids: make(map[string]int)}
}

func (p *Pending) add(id string) {
	p.mu.Lock()
	p.ids[id]++
	p.mu.Unlock()
}

func (p *Pending) remove(id string) {
	p.mu.Lock()
	if p.ids[id] <= 1 {
		delete(p.ids, id)
	} else {
		p.ids[id]--
	}
	p.mu.Unlock()
}

func (p *Pending) Has(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ids[id]
	return ok
}

func (p *Pending) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ids)
}

// IDs returns the pending ids in sorted order.
func (p *Pending) IDs() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
