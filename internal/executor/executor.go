// Package executor runs an ordered list of helpers with explicit
// continuation control.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/petrijr/weft/internal/rollback"
	"github.com/petrijr/weft/pkg/api"
)

// InvokeFunc calls the helper of entry. Stages use it to build the helper
// arguments and record the step.
type InvokeFunc func(ctx context.Context, entry api.Entry, next api.Next) api.Maybe[api.HelperResult]

// Run executes entries in order.
//
// Each helper receives a next function. A helper that does not call it is
// followed by the rest of the chain once its result settles; a helper that
// does call it wraps everything after it. Either way each helper runs at most
// once. Immediate and deferred helper results go through the same path, so a
// chain of immediate helpers settles before Run returns.
//
// Rollback actions returned by helpers are stored in collector in the order
// the helpers were invoked. collector may be nil.
func Run(ctx context.Context, entries []api.Entry, invoke InvokeFunc, collector *rollback.Collector) api.Maybe[api.Unit] {
	var (
		mu      sync.Mutex
		visited = make([]bool, len(entries))
	)

	var dispatch func(i int) api.Maybe[api.Unit]
	dispatch = func(i int) api.Maybe[api.Unit] {
		if i >= len(entries) {
			return api.Done()
		}
		mu.Lock()
		if visited[i] {
			mu.Unlock()
			return api.Done()
		}
		visited[i] = true
		mu.Unlock()

		entry := entries[i]
		tok := newToken(func() api.Maybe[api.Unit] { return dispatch(i + 1) })

		slot := -1
		if collector != nil {
			slot = collector.Reserve()
		}

		return api.Then(call(ctx, invoke, entry, tok.next), func(res api.HelperResult, err error) api.Maybe[api.Unit] {
			if err != nil {
				return api.Failed[api.Unit](err)
			}
			if res.Rollback != nil && slot >= 0 {
				collector.Fill(slot, api.RollbackEntry{Key: entry.Helper.Key, Undo: res.Rollback})
			}
			return tok.settle()
		})
	}

	return dispatch(0)
}

// call invokes a helper, turning a panic into a failed result.
func call(ctx context.Context, invoke InvokeFunc, entry api.Entry, next api.Next) (m api.Maybe[api.HelperResult]) {
	defer func() {
		if r := recover(); r != nil {
			m = api.Failed[api.HelperResult](fmt.Errorf("helper %s panicked: %v", entry.ID, r))
		}
	}()
	return invoke(ctx, entry, next)
}
