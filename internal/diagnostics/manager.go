// Package diagnostics buffers pipeline diagnostics and replays them to
// reporters.
//
// Static diagnostics are recorded while helpers are registered and live as
// long as the pipeline. Run diagnostics belong to a single run and start
// empty every time. Replay goes through explicit reporter sessions: a session
// sees each static diagnostic once, while a new session receives the full
// backlog.
package diagnostics

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/weft/pkg/api"
)

type record struct {
	seq uint64
	d   api.Diagnostic
}

// Manager owns static diagnostics and reporter sessions.
type Manager struct {
	mu       sync.Mutex
	seq      uint64
	static   []record
	sessions map[string]map[uint64]bool
	last     *Run
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]map[uint64]bool)}
}

func (m *Manager) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// Flag records a static diagnostic.
func (m *Manager) Flag(d api.Diagnostic) {
	d.Static = true
	m.mu.Lock()
	defer m.mu.Unlock()
	m.static = append(m.static, record{seq: m.nextSeq(), d: d})
}

// Static returns the static diagnostics in recording order.
func (m *Manager) Static() []api.Diagnostic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return unwrap(m.static)
}

// Attach issues a new session for r.
func (m *Manager) Attach(r api.Reporter) *api.ReporterSession {
	s := &api.ReporterSession{ID: uuid.NewString(), Reporter: r}
	m.mu.Lock()
	m.sessions[s.ID] = make(map[uint64]bool)
	m.mu.Unlock()
	return s
}

// Detach forgets s. A detached session that is replayed again starts over
// with the full backlog.
func (m *Manager) Detach(s *api.ReporterSession) {
	if s == nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

// Sessions returns the number of attached sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Begin starts the diagnostics scope of a run. onFlag, if set, is called for
// every run diagnostic as it is recorded.
func (m *Manager) Begin(onFlag func(api.Diagnostic)) *Run {
	r := &Run{m: m, onFlag: onFlag}
	m.mu.Lock()
	m.last = r
	m.mu.Unlock()
	return r
}

// Latest returns the static diagnostics followed by those of the most
// recently started run.
func (m *Manager) Latest() []api.Diagnostic {
	m.mu.Lock()
	static := unwrap(m.static)
	last := m.last
	m.mu.Unlock()
	if last == nil {
		return static
	}
	return append(static, last.Diagnostics()...)
}

// Replay announces every diagnostic the session has not seen yet through its
// reporter's Warn channel: static ones first, then those of run (which may be
// nil). It returns the number of diagnostics announced.
func (m *Manager) Replay(s *api.ReporterSession, run *Run) int {
	if s == nil || s.Reporter == nil {
		return 0
	}

	m.mu.Lock()
	seen, ok := m.sessions[s.ID]
	if !ok {
		// Sessions issued by another manager still get the full backlog.
		seen = make(map[uint64]bool)
		m.sessions[s.ID] = seen
	}
	pending := slices.Clone(m.static)
	m.mu.Unlock()

	if run != nil {
		pending = append(pending, run.records()...)
	}

	var fresh []record
	m.mu.Lock()
	for _, rec := range pending {
		if seen[rec.seq] {
			continue
		}
		seen[rec.seq] = true
		fresh = append(fresh, rec)
	}
	m.mu.Unlock()

	for _, rec := range fresh {
		announce(s.Reporter, rec.d)
	}
	return len(fresh)
}

func announce(r api.Reporter, d api.Diagnostic) {
	args := []any{"type", string(d.Type), "key", d.Key}
	if d.Kind != "" {
		args = append(args, "kind", string(d.Kind))
	}
	if d.HelperID != "" {
		args = append(args, "helper", d.HelperID)
	}
	if d.Dependency != "" {
		args = append(args, "dependency", d.Dependency)
	}
	if d.Origin != "" {
		args = append(args, "origin", d.Origin)
	}
	r.Warn(d.Message, args...)
}

// Run holds the diagnostics of one run.
type Run struct {
	m      *Manager
	onFlag func(api.Diagnostic)

	mu   sync.Mutex
	recs []record
}

// Flag records a run diagnostic.
func (r *Run) Flag(d api.Diagnostic) {
	d.Static = false
	r.m.mu.Lock()
	seq := r.m.nextSeq()
	r.m.mu.Unlock()

	r.mu.Lock()
	r.recs = append(r.recs, record{seq: seq, d: d})
	r.mu.Unlock()

	if r.onFlag != nil {
		r.onFlag(d)
	}
}

// Restore records diagnostics carried over from a paused run without
// calling onFlag again.
func (r *Run) Restore(ds []api.Diagnostic) {
	for _, d := range ds {
		if d.Static {
			continue
		}
		r.m.mu.Lock()
		seq := r.m.nextSeq()
		r.m.mu.Unlock()
		r.mu.Lock()
		r.recs = append(r.recs, record{seq: seq, d: d})
		r.mu.Unlock()
	}
}

// Diagnostics returns the run diagnostics in recording order.
func (r *Run) Diagnostics() []api.Diagnostic {
	return unwrap(r.records())
}

// All returns static diagnostics followed by run diagnostics.
func (r *Run) All() []api.Diagnostic {
	return append(r.m.Static(), r.Diagnostics()...)
}

func (r *Run) records() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.recs)
}

func unwrap(recs []record) []api.Diagnostic {
	out := make([]api.Diagnostic, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.d)
	}
	return out
}
