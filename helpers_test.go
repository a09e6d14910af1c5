package weft_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/weft"
	"github.com/petrijr/weft/pkg/api"
)

type trail struct {
	mu    sync.Mutex
	steps []string
}

func (tr *trail) add(s string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.steps = append(tr.steps, s)
}

func (tr *trail) step(name string) func(ctx context.Context, args weft.HelperArgs) error {
	return func(ctx context.Context, args weft.HelperArgs) error {
		tr.add(name)
		return nil
	}
}

func TestAround_WrapsDownstreamHelpers(t *testing.T) {
	tr := &trail{}
	p := weft.NewBuilder("p").
		Helpers("build").
		Use(
			weft.Helper{Key: "outer", Kind: "build", Priority: 10, Apply: weft.Around(tr.step("open"), tr.step("close"))},
			weft.Helper{Key: "inner", Kind: "build", Apply: weft.Sync(tr.step("work"))},
		).
		MustBuild()

	_, err := p.Run(context.Background(), weft.RunOptions{}).Get()
	require.NoError(t, err)
	require.Equal(t, []string{"open", "work", "close"}, tr.steps)
}

func TestAround_SkipsAfterWhenDownstreamFails(t *testing.T) {
	tr := &trail{}
	boom := errors.New("boom")
	p := weft.NewBuilder("p").
		Helpers("build").
		Use(
			weft.Helper{Key: "outer", Kind: "build", Priority: 10, Apply: weft.Around(tr.step("open"), tr.step("close"))},
			weft.Helper{Key: "inner", Kind: "build", Apply: weft.Sync(func(ctx context.Context, args weft.HelperArgs) error { return boom })},
		).
		MustBuild()

	_, err := p.Run(context.Background(), weft.RunOptions{}).Get()
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"open"}, tr.steps)
}

func TestTyped_RejectsWrongState(t *testing.T) {
	p := weft.NewBuilder("p").
		Helpers("build").
		Use(weft.Helper{Key: "typed", Kind: "build", Apply: weft.Typed(
			func(ctx context.Context, n *int, args weft.HelperArgs) error { *n++; return nil })}).
		MustBuild()

	n := 1
	_, err := p.Run(context.Background(), weft.RunOptions{Input: &n}).Get()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = p.Run(context.Background(), weft.RunOptions{Input: "nope"}).Get()
	require.ErrorContains(t, err, `helper "typed"`)
}

func TestNewExtension_RegistersImmediately(t *testing.T) {
	p := weft.NewBuilder("p").Lifecycle("build").MustBuild()
	m := p.Extensions().Use(context.Background(), weft.NewExtension("x", "build",
		func(ctx context.Context, opts weft.HookOptions) api.Maybe[weft.HookResult] {
			return api.Ready(api.ReplaceWith("from-x"))
		}))
	require.False(t, m.IsDeferred())

	res, err := p.Run(context.Background(), weft.RunOptions{}).Get()
	require.NoError(t, err)
	require.Equal(t, "from-x", res.Artifact)
}
