package extension

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/petrijr/weft/pkg/api"
)

// Registry stores the hooks contributed by extensions and tracks
// registrations that have not settled yet.
type Registry struct {
	handle           api.Handle
	defaultLifecycle api.Lifecycle
	warn             func(msg string, args ...any)

	mu      sync.Mutex
	hooks   []api.Hook
	pending map[int]api.Maybe[api.Unit]
	nextID  int
}

// NewRegistry returns a Registry that hands h to every extension.
// Hooks registered without a lifecycle are attached to defaultLifecycle.
// warn, if set, is told about deferred registrations that failed.
func NewRegistry(h api.Handle, defaultLifecycle api.Lifecycle, warn func(msg string, args ...any)) *Registry {
	if defaultLifecycle == "" {
		defaultLifecycle = api.LifecycleDefault
	}
	return &Registry{
		handle:           h,
		defaultLifecycle: defaultLifecycle,
		warn:             warn,
		pending:          make(map[int]api.Maybe[api.Unit]),
	}
}

// Use calls ext.Register and stores the hook it settles with. A registration
// that fails aborts only itself.
func (r *Registry) Use(ctx context.Context, ext api.Extension) api.Maybe[api.Unit] {
	if ext.Register == nil {
		return api.Failed[api.Unit](r.handle.ErrorFactory()(api.CodeValidation,
			fmt.Sprintf("extension %q has no register function", ext.Key)))
	}

	reg := r.register(ctx, ext)
	m := api.Map(reg, func(reg api.Registration) api.Unit {
		r.add(ext, reg)
		return api.Unit{}
	})
	if !m.IsDeferred() {
		return m
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.pending[id] = m
	r.mu.Unlock()

	return api.Then(m, func(_ api.Unit, err error) api.Maybe[api.Unit] {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		if err != nil && r.warn != nil {
			r.warn("extension registration failed", "extension", ext.Key, "error", err)
		}
		return api.From(api.Unit{}, err)
	})
}

func (r *Registry) register(ctx context.Context, ext api.Extension) (m api.Maybe[api.Registration]) {
	defer func() {
		if rec := recover(); rec != nil {
			m = api.Failed[api.Registration](fmt.Errorf("extension %q panicked while registering: %v", ext.Key, rec))
		}
	}()
	return ext.Register(ctx, r.handle)
}

func (r *Registry) add(ext api.Extension, reg api.Registration) {
	if reg.Hook == nil {
		return
	}
	lifecycle := reg.Lifecycle
	if lifecycle == "" {
		lifecycle = r.defaultLifecycle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, api.Hook{Key: ext.Key, Lifecycle: lifecycle, Fn: reg.Hook})
}

// Hooks returns the registered hooks in registration order.
func (r *Registry) Hooks() []api.Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.hooks)
}

// Wait returns a Maybe that settles once every registration pending at call
// time has settled. Failed registrations do not make it fail.
func (r *Registry) Wait() api.Maybe[api.Unit] {
	r.mu.Lock()
	ids := make([]int, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	pending := make([]api.Maybe[api.Unit], 0, len(ids))
	for _, id := range ids {
		pending = append(pending, r.pending[id])
	}
	r.mu.Unlock()

	fns := make([]func() api.Maybe[api.Unit], 0, len(pending))
	for _, m := range pending {
		fns = append(fns, func() api.Maybe[api.Unit] {
			return api.Then(m, func(api.Unit, error) api.Maybe[api.Unit] { return api.Done() })
		})
	}
	return api.Sequence(fns...)
}
