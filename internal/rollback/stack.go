// Package rollback unwinds undo actions in reverse order.
package rollback

import (
	"context"
	"fmt"
	"sync"

	"github.com/petrijr/weft/pkg/api"
)

// Options configures Run.
type Options struct {
	// Source labels the failures reported through OnError.
	Source  string
	OnError func(f api.RollbackFailure)
}

// Run invokes the undo action of every entry, last entry first. Undo actions
// may settle immediately or later. A failing undo is reported through
// opts.OnError and unwinding continues with the next entry; the returned
// Maybe never fails.
func Run(ctx context.Context, entries []api.RollbackEntry, opts Options) api.Maybe[api.Unit] {
	var step func(i int) api.Maybe[api.Unit]
	step = func(i int) api.Maybe[api.Unit] {
		if i < 0 {
			return api.Done()
		}
		entry := entries[i]
		return api.Then(invoke(ctx, entry), func(_ api.Unit, err error) api.Maybe[api.Unit] {
			if err != nil && opts.OnError != nil {
				opts.OnError(api.RollbackFailure{
					Err: err,
					Metadata: api.RollbackMetadata{
						Source:   opts.Source,
						Key:      entry.Key,
						Position: i,
					},
					Entry: entry,
				})
			}
			return step(i - 1)
		})
	}
	return step(len(entries) - 1)
}

// invoke calls entry.Undo, turning a panic into an error so one broken undo
// cannot stop the rest.
func invoke(ctx context.Context, entry api.RollbackEntry) (m api.Maybe[api.Unit]) {
	if entry.Undo == nil {
		return api.Done()
	}
	defer func() {
		if r := recover(); r != nil {
			m = api.Failed[api.Unit](fmt.Errorf("rollback %q panicked: %v", entry.Key, r))
		}
	}()
	return entry.Undo(ctx)
}

// Collector gathers rollback entries in execution order. A slot is reserved
// when a helper starts and filled when it settles, so the final order does not
// depend on which helper settled first.
type Collector struct {
	mu    sync.Mutex
	slots []*api.RollbackEntry
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Reserve claims the next slot.
func (c *Collector) Reserve() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = append(c.slots, nil)
	return len(c.slots) - 1
}

// Fill stores entry in a reserved slot.
func (c *Collector) Fill(slot int, entry api.RollbackEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot] = &entry
}

// Entries returns the filled slots in reservation order.
func (c *Collector) Entries() []api.RollbackEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.RollbackEntry, 0, len(c.slots))
	for _, s := range c.slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
