package weft

import (
	"context"
	"fmt"
	"log/slog"
)

// Builder provides a fluent API for assembling a pipeline:
//
//	p := weft.NewBuilder("codegen").
//	    Helpers("parse").
//	    Lifecycle("after-parse").
//	    Helpers("emit").
//	    Commit().
//	    Finalize().
//	    MustBuild()
//
//	res, err := p.Run(ctx, weft.RunOptions{Input: src}).Await(ctx)
type Builder struct {
	cfg     Config
	helpers []Helper
}

// NewBuilder creates a builder for a pipeline named name.
func NewBuilder(name string) *Builder {
	return &Builder{cfg: Config{Name: name}}
}

// Name returns the pipeline name.
func (b *Builder) Name() string {
	return b.cfg.Name
}

// Config returns the configuration built so far.
func (b *Builder) Config() Config {
	return b.cfg
}

// Stage appends a custom stage.
func (b *Builder) Stage(stage Stage) *Builder {
	if stage.Name == "" {
		panic("weft: stage name must not be empty")
	}
	if stage.Run == nil {
		panic(fmt.Sprintf("weft: stage %q has nil function", stage.Name))
	}
	b.cfg.Stages = append(b.cfg.Stages, stage)
	return b
}

// Func appends a synchronous stage.
func (b *Builder) Func(name string, fn func(ctx context.Context, rs *RunState) error) *Builder {
	if fn == nil {
		panic(fmt.Sprintf("weft: stage %q has nil function", name))
	}
	return b.Stage(FuncStage(name, fn))
}

// Helpers appends a stage running the helpers of kind.
func (b *Builder) Helpers(kind Kind) *Builder {
	return b.Stage(HelperStage(kind))
}

// Lifecycle appends a stage running the extension hooks of lifecycle.
func (b *Builder) Lifecycle(lifecycle Lifecycle) *Builder {
	return b.Stage(LifecycleStage(lifecycle))
}

// Commit appends a stage committing every executed lifecycle.
func (b *Builder) Commit() *Builder {
	return b.Stage(CommitStage())
}

// Finalize appends the finalization stage.
func (b *Builder) Finalize() *Builder {
	return b.Stage(FinalizeStage())
}

// Pause appends a pause point and makes the pipeline resumable.
func (b *Builder) Pause(kind string, opts PauseOptions) *Builder {
	b.cfg.Resumable = true
	return b.Stage(PauseStage(kind, opts))
}

// Resumable lets custom stages pause the pipeline.
func (b *Builder) Resumable() *Builder {
	b.cfg.Resumable = true
	return b
}

// Kinds closes the set of helper kinds.
func (b *Builder) Kinds(kinds ...Kind) *Builder {
	b.cfg.Kinds = append(b.cfg.Kinds, kinds...)
	return b
}

// DefaultLifecycle sets the lifecycle of hooks registered without one.
func (b *Builder) DefaultLifecycle(lifecycle Lifecycle) *Builder {
	b.cfg.DefaultLifecycle = lifecycle
	return b
}

// Provide marks dependency keys of kind as satisfied outside the registry.
func (b *Builder) Provide(kind Kind, keys ...string) *Builder {
	if b.cfg.ProvidedKeys == nil {
		b.cfg.ProvidedKeys = make(map[Kind][]string)
	}
	b.cfg.ProvidedKeys[kind] = append(b.cfg.ProvidedKeys[kind], keys...)
	return b
}

// ErrorFactory sets the factory used for engine errors.
func (b *Builder) ErrorFactory(f ErrorFactory) *Builder {
	b.cfg.ErrorFactory = f
	return b
}

// Observer sets the run observer.
func (b *Builder) Observer(o Observer) *Builder {
	b.cfg.Observer = o
	return b
}

// Logger sets the logger used for run contexts and warnings.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.cfg.Logger = l
	return b
}

// OnDiagnostic sets a callback invoked for every diagnostic as it is flagged.
func (b *Builder) OnDiagnostic(fn func(Diagnostic)) *Builder {
	b.cfg.OnDiagnostic = fn
	return b
}

// OnRollbackError sets the callback for failing helper and extension
// rollbacks.
func (b *Builder) OnRollbackError(fn func(RollbackFailure)) *Builder {
	b.cfg.OnHelperRollbackError = fn
	b.cfg.OnExtensionRollbackError = fn
	return b
}

// Use queues helpers to register when the pipeline is built.
func (b *Builder) Use(helpers ...Helper) *Builder {
	b.helpers = append(b.helpers, helpers...)
	return b
}

// Build creates the pipeline and registers queued helpers in order. The
// first rejected helper is returned as an error.
func (b *Builder) Build() (*Pipeline, error) {
	p := New(b.cfg)
	for _, h := range b.helpers {
		if err := p.Use(h); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MustBuild is like Build but panics on error.
// Useful for initialization in main().
func (b *Builder) MustBuild() *Pipeline {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
