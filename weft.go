package weft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/petrijr/weft/internal/config"
	"github.com/petrijr/weft/internal/engine"
	"github.com/petrijr/weft/internal/persistence"
	"github.com/petrijr/weft/internal/telemetry"
	"github.com/petrijr/weft/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Pipeline     = engine.Pipeline
	Config       = engine.Config
	PauseOptions = engine.PauseOptions

	Kind         = api.Kind
	Mode         = api.Mode
	Helper       = api.Helper
	HelperFunc   = api.HelperFunc
	HelperArgs   = api.HelperArgs
	HelperResult = api.HelperResult
	Next         = api.Next
	Action       = api.Action
	Entry        = api.Entry

	Lifecycle    = api.Lifecycle
	Extension    = api.Extension
	Registration = api.Registration
	Handle       = api.Handle
	Hook         = api.Hook
	HookFunc     = api.HookFunc
	HookOptions  = api.HookOptions
	HookResult   = api.HookResult

	Stage        = api.Stage
	StageFunc    = api.StageFunc
	StageOutcome = api.StageOutcome
	RunState     = api.RunState
	RunOptions   = api.RunOptions
	RunResult    = api.RunResult
	Snapshot     = api.Snapshot
	ResumeInput  = api.ResumeInput
	Step         = api.Step

	Diagnostic      = api.Diagnostic
	DiagnosticType  = api.DiagnosticType
	Reporter        = api.Reporter
	ReporterSession = api.ReporterSession
	RollbackFailure = api.RollbackFailure
	ErrorCode       = api.ErrorCode
	ErrorFactory    = api.ErrorFactory
	Error           = api.Error

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	TracingObserver      = api.TracingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	RunEvent   = api.RunEvent
	EventStore = persistence.EventStore

	FileConfig    = config.Config
	ConfigOptions = config.Options
	LogConfig     = config.LogConfig
	EventsConfig  = config.EventsConfig
	TracingConfig = config.TracingConfig
	MetricsConfig = config.MetricsConfig
)

const (
	ModeExtend   = api.ModeExtend
	ModeOverride = api.ModeOverride
	ModeMerge    = api.ModeMerge

	CodeValidation = api.CodeValidation
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewTracingObserver   = api.NewTracingObserver
	NewReporter          = api.NewReporter
	NewError             = api.NewError
	IsValidation         = api.IsValidation
	NewMemoryEventStore  = persistence.NewMemoryEventStore

	LoadConfig = config.Load
)

// Stage builders.

var (
	HelperStage    = engine.HelperStage
	LifecycleStage = engine.LifecycleStage
	CommitStage    = engine.CommitStage
	FinalizeStage  = engine.FinalizeStage
	PauseStage     = engine.PauseStage
	FuncStage      = engine.FuncStage
	NewSnapshot    = engine.NewSnapshot
)

// New returns a pipeline built from cfg.
func New(cfg Config) *Pipeline {
	return engine.New(cfg)
}

// Service is a pipeline assembled from a FileConfig together with the
// resources it owns.
type Service struct {
	*Pipeline

	Logger *slog.Logger
	Events EventStore
	// Metrics is nil unless metrics are enabled.
	Metrics *BasicMetrics

	closers []func(context.Context) error
}

// Close releases the event database and flushes traces.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig builds a Service running stages. The logger, event store and
// observer chain (logging, events, metrics, tracing) follow cfg.
func NewFromConfig(cfg *FileConfig, stages ...Stage) (*Service, error) {
	return newService(cfg, nil, stages)
}

// NewFromConfigWithEvents is like NewFromConfig but records run events in
// events, ignoring cfg.Events. The caller owns events and closes it.
func NewFromConfigWithEvents(cfg *FileConfig, events EventStore, stages ...Stage) (*Service, error) {
	if events == nil {
		return nil, errors.New("weft: nil event store")
	}
	return newService(cfg, events, stages)
}

func newService(cfg *FileConfig, events EventStore, stages []Stage) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{Logger: cfg.Log.NewLogger(), Events: events}
	observers := []Observer{api.NewLoggingObserver(s.Logger)}

	if s.Events == nil {
		if err := s.openEvents(cfg.Events); err != nil {
			return nil, err
		}
	}
	observers = append(observers, persistence.NewEventObserver(s.Events, s.Logger))

	if cfg.Metrics.Enabled {
		s.Metrics = &BasicMetrics{}
		observers = append(observers, s.Metrics)
	}

	if cfg.Tracing.Enabled {
		var out io.Writer
		if cfg.Tracing.Stdout {
			out = os.Stdout
		}
		tp, shutdown, err := telemetry.NewTracerProvider(cfg.Name, out)
		if err != nil {
			_ = s.Close(context.Background())
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		s.closers = append(s.closers, shutdown)
		observers = append(observers, api.NewTracingObserver(tp.Tracer("github.com/petrijr/weft")))
	}

	s.Pipeline = engine.New(engine.Config{
		Name:             cfg.Name,
		Stages:           stages,
		Resumable:        cfg.Resumable,
		DefaultLifecycle: api.Lifecycle(cfg.DefaultLifecycle),
		Observer:         api.NewCompositeObserver(observers...),
		Logger:           s.Logger,
	})
	return s, nil
}

func (s *Service) openEvents(cfg EventsConfig) error {
	switch cfg.Driver {
	case "memory":
		s.Events = persistence.NewMemoryEventStore()
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return fmt.Errorf("open event database: %w", err)
		}
		db.SetMaxOpenConns(1)
		store, err := persistence.NewSQLiteEventStore(db)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("init event store: %w", err)
		}
		s.Events = store
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
	default:
		s.Events = persistence.NoopEventStore{}
	}
	return nil
}
