package executor

import (
	"errors"
	"sync"

	"github.com/petrijr/weft/pkg/api"
)

type tokenState int

const (
	stateNotStarted tokenState = iota
	stateNextCalled
	stateSettled
)

func (s tokenState) String() string {
	switch s {
	case stateNotStarted:
		return "not-started"
	case stateNextCalled:
		return "next-called"
	case stateSettled:
		return "settled"
	}
	return "unknown"
}

// token owns the continuation of one helper invocation. The downstream chain
// runs at most once, whether the helper calls next, the engine continues
// implicitly after the helper settles, or both.
type token struct {
	advance func() api.Maybe[api.Unit]

	once    sync.Once
	outcome api.Maybe[api.Unit]

	mu    sync.Mutex
	state tokenState
}

func newToken(advance func() api.Maybe[api.Unit]) *token {
	return &token{advance: advance}
}

// ErrLateNext is returned by a continuation invoked after its helper already
// settled. The downstream chain has run by then.
var ErrLateNext = errors.New("executor: next called after the helper settled")

// next is handed to the helper.
func (t *token) next() api.Maybe[api.Unit] {
	t.mu.Lock()
	switch t.state {
	case stateSettled:
		t.mu.Unlock()
		return api.Failed[api.Unit](ErrLateNext)
	case stateNotStarted:
		t.state = stateNextCalled
	}
	t.mu.Unlock()
	return t.run()
}

// settle is called by the engine once the helper's result settled; it
// continues downstream unless the helper already did.
func (t *token) settle() api.Maybe[api.Unit] {
	out := t.run()
	t.mu.Lock()
	t.state = stateSettled
	t.mu.Unlock()
	return out
}

func (t *token) run() api.Maybe[api.Unit] {
	t.once.Do(func() {
		t.outcome = t.advance()
	})
	return t.outcome
}

func (t *token) current() tokenState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
