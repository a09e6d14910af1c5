package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/weft/internal/rollback"
	"github.com/petrijr/weft/pkg/api"
)

type logBook struct {
	mu    sync.Mutex
	lines []string
}

func (l *logBook) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *logBook) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func chain(fns ...api.HelperFunc) []api.Entry {
	out := make([]api.Entry, 0, len(fns))
	for i, fn := range fns {
		key := string(rune('a' + i))
		out = append(out, api.Entry{
			ID:     "test:" + key,
			Index:  i,
			Helper: api.Helper{Key: key, Kind: "test", Mode: api.ModeExtend, Apply: fn},
		})
	}
	return out
}

func direct(ctx context.Context, entry api.Entry, next api.Next) api.Maybe[api.HelperResult] {
	return entry.Helper.Apply(ctx, api.HelperArgs{Entry: entry}, next)
}

func TestRun_ImplicitContinuation(t *testing.T) {
	log := &logBook{}
	entries := chain(
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			log.add("h1")
			return api.Continue()
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			log.add("h2")
			return api.Continue()
		},
	)

	m := Run(context.Background(), entries, direct, nil)
	require.False(t, m.IsDeferred())
	_, err := m.Get()
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "h2"}, log.get())
}

func TestRun_NextWrapsDownstream(t *testing.T) {
	log := &logBook{}
	entries := chain(
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			log.add("h1-start")
			return api.AndThen(next(), func(api.Unit) api.Maybe[api.HelperResult] {
				log.add("h1-end")
				return api.Continue()
			})
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			log.add("h2")
			return api.Continue()
		},
	)

	_, err := Run(context.Background(), entries, direct, nil).Get()
	require.NoError(t, err)
	require.Equal(t, []string{"h1-start", "h2", "h1-end"}, log.get())
}

func TestRun_NextIsSingleShot(t *testing.T) {
	var downstream int
	entries := chain(
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			first := next()
			second := next()
			third := next()
			_, err1 := first.Get()
			_, err2 := second.Get()
			_, err3 := third.Get()
			require.NoError(t, errors.Join(err1, err2, err3))
			return api.Continue()
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			downstream++
			return api.Continue()
		},
	)

	_, err := Run(context.Background(), entries, direct, nil).Get()
	require.NoError(t, err)
	require.Equal(t, 1, downstream)
}

func TestRun_NextReturnsDownstreamFailure(t *testing.T) {
	boom := errors.New("boom")
	var seen error
	entries := chain(
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			return api.Then(next(), func(_ api.Unit, err error) api.Maybe[api.HelperResult] {
				seen = err
				return api.Continue()
			})
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			return api.Failed[api.HelperResult](boom)
		},
	)

	_, err := Run(context.Background(), entries, direct, nil).Get()
	require.ErrorIs(t, seen, boom)
	// The wrapper swallowed the error, but the chain still reports it.
	require.ErrorIs(t, err, boom)
}

func TestRun_DeferredHelpersKeepOrder(t *testing.T) {
	log := &logBook{}
	deferred := func(name string, d time.Duration) api.HelperFunc {
		return func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			return api.Go(func() (api.HelperResult, error) {
				time.Sleep(d)
				log.add(name)
				return api.HelperResult{}, nil
			})
		}
	}
	entries := chain(
		deferred("slow", 20*time.Millisecond),
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			log.add("immediate")
			return api.Continue()
		},
		deferred("fast", time.Millisecond),
	)

	m := Run(context.Background(), entries, direct, nil)
	require.True(t, m.IsDeferred())
	_, err := m.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"slow", "immediate", "fast"}, log.get())
}

func TestRun_FailureStopsChainAndKeepsRollbacks(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	undo := func(key string) api.Action {
		return api.SyncAction(func(ctx context.Context) error { return nil })
	}
	entries := chain(
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			ran = append(ran, "a")
			return api.WithRollback(undo("a"))
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			ran = append(ran, "b")
			return api.Failed[api.HelperResult](boom)
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			ran = append(ran, "c")
			return api.Continue()
		},
	)

	collector := rollback.NewCollector()
	_, err := Run(context.Background(), entries, direct, collector).Get()
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a", "b"}, ran)

	rollbacks := collector.Entries()
	require.Len(t, rollbacks, 1)
	require.Equal(t, "a", rollbacks[0].Key)
}

func TestRun_RollbacksFollowInvocationOrder(t *testing.T) {
	noop := api.SyncAction(func(ctx context.Context) error { return nil })
	entries := chain(
		// Settles last because it wraps the rest of the chain.
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			return api.AndThen(next(), func(api.Unit) api.Maybe[api.HelperResult] {
				return api.WithRollback(noop)
			})
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			return api.Go(func() (api.HelperResult, error) {
				return api.HelperResult{Rollback: noop}, nil
			})
		},
		func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			return api.WithRollback(noop)
		},
	)

	collector := rollback.NewCollector()
	_, err := Run(context.Background(), entries, direct, collector).Await(context.Background())
	require.NoError(t, err)

	var keys []string
	for _, e := range collector.Entries() {
		keys = append(keys, e.Key)
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestRun_PanicBecomesError(t *testing.T) {
	entries := chain(func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
		panic("nope")
	})
	_, err := Run(context.Background(), entries, direct, nil).Get()
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope")
}

func TestRun_Empty(t *testing.T) {
	m := Run(context.Background(), nil, direct, nil)
	require.False(t, m.IsDeferred())
	_, err := m.Get()
	require.NoError(t, err)
}

func TestToken_States(t *testing.T) {
	calls := 0
	tok := newToken(func() api.Maybe[api.Unit] {
		calls++
		return api.Done()
	})
	require.Equal(t, stateNotStarted, tok.current())

	tok.next()
	require.Equal(t, stateNextCalled, tok.current())

	tok.settle()
	require.Equal(t, stateSettled, tok.current())
	require.Equal(t, "settled", tok.current().String())

	_, err := tok.next().Get()
	require.ErrorIs(t, err, ErrLateNext)
	require.Equal(t, 1, calls)
}

func TestRun_LateNextIsRejected(t *testing.T) {
	var stash api.Next
	var order []string
	entries := []api.Entry{
		{ID: "a", Helper: api.Helper{Key: "a", Apply: func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			stash = next
			order = append(order, "a")
			return api.Continue()
		}}},
		{ID: "b", Helper: api.Helper{Key: "b", Apply: func(ctx context.Context, args api.HelperArgs, next api.Next) api.Maybe[api.HelperResult] {
			order = append(order, "b")
			return api.Continue()
		}}},
	}

	_, err := Run(context.Background(), entries, direct, nil).Get()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, order)

	_, err = stash().Get()
	require.ErrorIs(t, err, ErrLateNext)
	require.Equal(t, []string{"a", "b"}, order)
}
