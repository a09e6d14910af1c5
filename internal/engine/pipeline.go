package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/petrijr/weft/internal/diagnostics"
	"github.com/petrijr/weft/internal/extension"
	"github.com/petrijr/weft/internal/registry"
	"github.com/petrijr/weft/pkg/api"
)

// Config describes how to construct a Pipeline.
type Config struct {
	// Name identifies the pipeline in logs, events and traces.
	Name string

	// Stages is the stage program, run in order.
	Stages []api.Stage

	// Resumable pipelines hand pause snapshots to the caller. Other
	// pipelines treat a pause as a programming error.
	Resumable bool

	// Kinds, when non-empty, is the closed set of kinds helpers may use.
	Kinds []api.Kind

	// DefaultLifecycle receives hooks registered without a lifecycle.
	DefaultLifecycle api.Lifecycle

	// ErrorFactory builds every error the engine raises. Defaults to
	// api.NewError.
	ErrorFactory api.ErrorFactory

	// ProvidedKeys are dependency keys satisfied outside the registry, per
	// kind. They are merged with RunOptions.Provided.
	ProvidedKeys map[api.Kind][]string

	// DecorateContext may add values to the run context before helpers are
	// resolved.
	DecorateContext func(c *api.Context, opts api.RunOptions)
	// CreateState builds the opaque user state of a run. Defaults to
	// opts.Input.
	CreateState func(c *api.Context, opts api.RunOptions) any
	// CreateResult builds RunResult.Result once every stage ran. Defaults
	// to the artifact.
	CreateResult func(rs *api.RunState) any

	OnDiagnostic             func(api.Diagnostic)
	OnHelperRollbackError    func(api.RollbackFailure)
	OnExtensionRollbackError func(api.RollbackFailure)

	Observer api.Observer
	Logger   *slog.Logger
}

// Pipeline is the engine behind api.Pipeline.
type Pipeline struct {
	cfg      Config
	errf     api.ErrorFactory
	logger   *slog.Logger
	observer api.Observer

	helpers    *registry.Registry
	diags      *diagnostics.Manager
	extensions *extension.Registry
}

// Ensure Pipeline implements api.Pipeline.
var _ api.Pipeline = (*Pipeline)(nil)

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		errf:     cfg.ErrorFactory,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		helpers:  registry.New(),
		diags:    diagnostics.NewManager(),
	}
	if p.errf == nil {
		p.errf = api.NewError
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.observer == nil {
		p.observer = api.NoopObserver{}
	}
	if p.cfg.Name == "" {
		p.cfg.Name = "pipeline"
	}
	p.cfg.Stages = slices.Clone(cfg.Stages)
	p.extensions = extension.NewRegistry(p, cfg.DefaultLifecycle, func(msg string, args ...any) {
		p.logger.Warn(msg, args...)
	})
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.cfg.Name
}

// Stages returns the stage names of the program, in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.cfg.Stages))
	for _, s := range p.cfg.Stages {
		names = append(names, s.Name)
	}
	return names
}

// Use registers h under its declared kind.
func (p *Pipeline) Use(h api.Helper) error {
	if len(p.cfg.Kinds) > 0 && !slices.Contains(p.cfg.Kinds, h.Kind) {
		return p.errf(api.CodeValidation, fmt.Sprintf("helper %q uses unknown kind %q", h.Key, h.Kind))
	}
	_, err := p.helpers.Register(h, h.Kind, p.flagStatic, p.errf)
	return err
}

func (p *Pipeline) flagStatic(d api.Diagnostic) {
	p.diags.Flag(d)
	if p.cfg.OnDiagnostic != nil {
		d.Static = true
		p.cfg.OnDiagnostic(d)
	}
}

// Entries returns the helpers registered under kind.
func (p *Pipeline) Entries(kind api.Kind) []api.Entry {
	return p.helpers.Entries(kind)
}

// Extensions returns the extension registry of the pipeline.
func (p *Pipeline) Extensions() api.Extensions {
	return p.extensions
}

// Diagnostics returns static diagnostics followed by those of the most
// recently started run.
func (p *Pipeline) Diagnostics() []api.Diagnostic {
	return p.diags.Latest()
}

// ErrorFactory returns the factory used for engine errors.
func (p *Pipeline) ErrorFactory() api.ErrorFactory {
	return p.errf
}

// AttachReporter issues a reporter session. Runs that pass it through
// RunOptions.Session announce each static diagnostic once.
func (p *Pipeline) AttachReporter(r api.Reporter) *api.ReporterSession {
	return p.diags.Attach(r)
}

// Run executes the stage program.
func (p *Pipeline) Run(ctx context.Context, opts api.RunOptions) api.Maybe[*api.RunResult] {
	return api.AndThen(p.extensions.Wait(), func(api.Unit) api.Maybe[*api.RunResult] {
		rt, rs, err := p.prepare(ctx, opts)
		if err != nil {
			return p.fail(ctx, rt, err)
		}
		p.observer.OnRunStart(ctx, rt.info)
		return p.execute(ctx, rt, rs, 0)
	})
}

// Resume continues a paused run at snap.StageIndex. The resolved helper
// orders and hooks recorded in the snapshot are used as-is; helpers and
// extensions registered after the pause do not affect it.
func (p *Pipeline) Resume(ctx context.Context, snap *api.Snapshot, input any, opts api.RunOptions) api.Maybe[*api.RunResult] {
	if !p.cfg.Resumable {
		return api.Failed[*api.RunResult](p.errf(api.CodeValidation,
			fmt.Sprintf("pipeline %q is not resumable", p.cfg.Name)))
	}
	if snap == nil || snap.State == nil {
		return api.Failed[*api.RunResult](p.errf(api.CodeValidation, "cannot resume from an empty snapshot"))
	}
	if snap.StageIndex < 0 || snap.StageIndex > len(p.cfg.Stages) {
		return api.Failed[*api.RunResult](p.errf(api.CodeValidation,
			fmt.Sprintf("snapshot stage index %d is outside the stage program (%d stages)", snap.StageIndex, len(p.cfg.Stages))))
	}

	return api.AndThen(p.extensions.Wait(), func(api.Unit) api.Maybe[*api.RunResult] {
		rt, rs := p.restore(snap, input, opts)
		p.observer.OnRunStart(ctx, rt.info)
		return p.execute(ctx, rt, rs, snap.StageIndex)
	})
}
