// Package graph turns the helpers registered for one kind into a
// deterministic execution order.
package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/petrijr/weft/pkg/api"
)

// ReasonPossibleCycle is passed to OnUnusedHelper for helpers left over when
// no more helpers become ready.
const ReasonPossibleCycle = "possible cycle"

// ReasonMissingDependency is passed to OnUnusedHelper for helpers that depend
// on a key nobody registered.
const ReasonMissingDependency = "missing dependency"

// Options configures Resolve.
type Options struct {
	// Provided keys count as satisfied dependencies.
	Provided []string

	OnMissingDependency func(e api.Entry, dependency string)
	OnUnusedHelper      func(e api.Entry, reason string)

	ErrorFactory api.ErrorFactory
}

// Less orders helpers by priority (higher first), then key, then
// registration index.
func Less(a, b api.Entry) int {
	if c := cmp.Compare(b.Helper.Priority, a.Helper.Priority); c != 0 {
		return c
	}
	if c := strings.Compare(a.Helper.Key, b.Helper.Key); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// Resolve orders entries so that no helper runs before a dependency it
// declares.
//
// The order is built in rounds: every helper whose dependencies are all
// provided or already ordered is ready; the ready set is sorted with Less and
// appended. A dependency key counts as ordered once every entry carrying that
// key has been ordered.
//
// Helpers depending on a key that is neither registered nor provided are
// reported through OnMissingDependency and OnUnusedHelper. Helpers still
// unordered when a round produces nothing are reported as a possible cycle.
// Unresolved helpers are never part of the returned order. Resolve returns an
// error naming them unless every unresolved helper is optional.
func Resolve(entries []api.Entry, opts Options) ([]api.Entry, error) {
	errf := opts.ErrorFactory
	if errf == nil {
		errf = api.NewError
	}

	provided := make(map[string]bool, len(opts.Provided))
	for _, k := range opts.Provided {
		provided[k] = true
	}

	// remaining[key] counts entries for key not yet ordered.
	remaining := make(map[string]int)
	for _, e := range entries {
		remaining[e.Helper.Key]++
	}

	var (
		pending    []api.Entry
		missing    []api.Entry
		missingFor = make(map[string][]string)
	)
	for _, e := range entries {
		var absent []string
		for _, dep := range e.Helper.DependsOn {
			if provided[dep] {
				continue
			}
			if _, ok := remaining[dep]; !ok && !slices.Contains(absent, dep) {
				absent = append(absent, dep)
			}
		}
		if len(absent) == 0 {
			pending = append(pending, e)
			continue
		}
		missing = append(missing, e)
		missingFor[e.ID] = absent
		for _, dep := range absent {
			if opts.OnMissingDependency != nil {
				opts.OnMissingDependency(e, dep)
			}
		}
		if opts.OnUnusedHelper != nil {
			opts.OnUnusedHelper(e, ReasonMissingDependency)
		}
	}

	ready := func(e api.Entry) bool {
		for _, dep := range e.Helper.DependsOn {
			if provided[dep] {
				continue
			}
			if remaining[dep] > 0 {
				return false
			}
		}
		return true
	}

	order := make([]api.Entry, 0, len(pending))
	for len(pending) > 0 {
		var batch, rest []api.Entry
		for _, e := range pending {
			if ready(e) {
				batch = append(batch, e)
			} else {
				rest = append(rest, e)
			}
		}
		if len(batch) == 0 {
			break
		}
		slices.SortStableFunc(batch, Less)
		for _, e := range batch {
			remaining[e.Helper.Key]--
		}
		order = append(order, batch...)
		pending = rest
	}

	for _, e := range pending {
		if opts.OnUnusedHelper != nil {
			opts.OnUnusedHelper(e, ReasonPossibleCycle)
		}
	}

	var problems []string
	for _, e := range missing {
		if e.Helper.Optional {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s (missing %s)", e.Helper.Key, strings.Join(missingFor[e.ID], ", ")))
	}
	for _, e := range pending {
		if e.Helper.Optional {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s (%s)", e.Helper.Key, ReasonPossibleCycle))
	}
	if len(problems) > 0 {
		return order, errf(api.CodeValidation, "unresolved helpers: "+strings.Join(problems, "; "))
	}
	return order, nil
}
