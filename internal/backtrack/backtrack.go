// Package backtrack is a small depth-first backtracking dependency solver.  It pins one identifier
// at a time, trying the candidates a [Provider] offers in order, and backs up to the most recent
// pin with untried candidates whenever a requirement can no longer be satisfied.
package backtrack

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rhansen/wheelresolve/internal/logging"
)

// A RequirementInformation records that Parent introduced Requirement.  Parent is the zero value
// for requirements passed to [Resolve] directly.
type RequirementInformation[R any, C comparable] struct {
	Requirement R
	Parent      C
}

// An ImpossibleError is returned when no assignment satisfies every requirement.  Causes are the
// requirements on the identifier that could not be satisfied, in the order they were introduced.
type ImpossibleError[R any, C comparable] struct {
	Causes []RequirementInformation[R, C]
}

func (e *ImpossibleError[R, C]) Error() string {
	return fmt.Sprintf("resolution impossible: %d conflicting requirements", len(e.Causes))
}

// ErrTooDeep is returned when the solver gives up after trying too many candidates.
var ErrTooDeep = errors.New("resolution too deep")

// A Provider supplies the problem to solve.  Identifiers of type K group requirements (R) and
// candidates (C) that compete for the same slot.
type Provider[K cmp.Ordered, R any, C comparable] interface {
	IdentifyRequirement(r R) K
	IdentifyCandidate(c C) K
	// Preference returns a sort key for an unpinned identifier; the identifier with the smallest
	// key (compared with [slices.Compare], ties broken by identifier) is pinned next.
	Preference(id K, information []RequirementInformation[R, C]) []int
	// FindMatches returns the candidates that satisfy every requirement in reqs, best first,
	// excluding those in incompatible.  The done callback reports any error hit while iterating.
	FindMatches(ctx context.Context, id K, reqs []R, incompatible []C) (iter.Seq[C], func() error)
	IsSatisfiedBy(r R, c C) bool
	Dependencies(ctx context.Context, c C) ([]R, error)
}

// A Result is a successful assignment.
type Result[K cmp.Ordered, R any, C comparable] struct {
	// Mapping assigns a candidate to every identifier that was required.
	Mapping map[K]C
	// Criteria lists, for every identifier, the requirements placed on it.
	Criteria map[K][]RequirementInformation[R, C]
	// Graph maps an identifier to the sorted identifiers it depends on.  The zero K is the root.
	Graph map[K][]K
}

type criterion[R any, C comparable] struct {
	information  []RequirementInformation[R, C]
	incompatible []C
}

func (cr *criterion[R, C]) requirements() []R {
	reqs := make([]R, 0, len(cr.information))
	for _, info := range cr.information {
		reqs = append(reqs, info.Requirement)
	}
	return reqs
}

// state is copied before every pin; criteria values are never modified once stored.
type state[K cmp.Ordered, R any, C comparable] struct {
	mapping  map[K]C
	criteria map[K]*criterion[R, C]
}

func (st *state[K, R, C]) clone() *state[K, R, C] {
	return &state[K, R, C]{
		mapping:  maps.Clone(st.mapping),
		criteria: maps.Clone(st.criteria),
	}
}

type resolver[K cmp.Ordered, R any, C comparable] struct {
	p         Provider[K, R, C]
	maxRounds int
	rounds    int
}

// Resolve finds a candidate for every identifier reachable from reqs.  It gives up with
// [ErrTooDeep] after maxRounds pins.  If there is no solution the error is an [*ImpossibleError].
func Resolve[K cmp.Ordered, R any, C comparable](ctx context.Context, p Provider[K, R, C], reqs []R,
	maxRounds int) (*Result[K, R, C], error) {

	r := &resolver[K, R, C]{p: p, maxRounds: maxRounds}
	st := &state[K, R, C]{mapping: map[K]C{}, criteria: map[K]*criterion[R, C]{}}
	var root C
	for _, req := range reqs {
		if err := r.merge(ctx, st, RequirementInformation[R, C]{req, root}); err != nil {
			return nil, err
		}
	}
	st, err := r.solve(ctx, st)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "resolution complete", "pins", len(st.mapping), "rounds", r.rounds)
	return r.result(st), nil
}

// merge adds a requirement to its identifier's criterion and checks that the criterion can still
// be satisfied.
func (r *resolver[K, R, C]) merge(ctx context.Context, st *state[K, R, C], info RequirementInformation[R, C]) error {
	id := r.p.IdentifyRequirement(info.Requirement)
	cr := &criterion[R, C]{}
	if old, ok := st.criteria[id]; ok {
		cr.information = slices.Clone(old.information)
		cr.incompatible = old.incompatible
	}
	cr.information = append(cr.information, info)
	st.criteria[id] = cr
	if pin, ok := st.mapping[id]; ok {
		if !r.p.IsSatisfiedBy(info.Requirement, pin) {
			slog.Log(ctx, logging.LevelTrace, "requirement conflicts with pin", "id", id, "pin", pin)
			return &ImpossibleError[R, C]{Causes: slices.Clone(cr.information)}
		}
		return nil
	}
	seq, done := r.p.FindMatches(ctx, id, cr.requirements(), cr.incompatible)
	found := false
	for range seq {
		found = true
		break
	}
	if err := done(); err != nil {
		return err
	}
	if !found {
		slog.Log(ctx, logging.LevelTrace, "no candidates left", "id", id)
		return &ImpossibleError[R, C]{Causes: slices.Clone(cr.information)}
	}
	return nil
}

// next returns the unpinned identifier to work on, if any.
func (r *resolver[K, R, C]) next(st *state[K, R, C]) (K, bool) {
	var best K
	var bestKey []int
	found := false
	for _, id := range slices.Sorted(maps.Keys(st.criteria)) {
		if _, pinned := st.mapping[id]; pinned {
			continue
		}
		key := r.p.Preference(id, st.criteria[id].information)
		if !found || slices.Compare(key, bestKey) < 0 {
			best, bestKey, found = id, key, true
		}
	}
	return best, found
}

func (r *resolver[K, R, C]) solve(ctx context.Context, st *state[K, R, C]) (*state[K, R, C], error) {
	id, ok := r.next(st)
	if !ok {
		return st, nil
	}
	cr := st.criteria[id]
	seq, done := r.p.FindMatches(ctx, id, cr.requirements(), cr.incompatible)
	var last *ImpossibleError[R, C]
	var failed []C
	var retErr error
	var solved *state[K, R, C]
	for c := range seq {
		if r.rounds++; r.rounds > r.maxRounds {
			retErr = ErrTooDeep
			break
		}
		slog.Log(ctx, logging.LevelTrace, "pinning", "id", id, "candidate", c)
		next := st.clone()
		next.mapping[id] = c
		if len(failed) > 0 {
			next.criteria[id] = &criterion[R, C]{information: cr.information,
				incompatible: append(slices.Clone(cr.incompatible), failed...)}
		}
		res, err := r.pin(ctx, next, c)
		if err == nil {
			solved = res
			break
		}
		var ie *ImpossibleError[R, C]
		if !errors.As(err, &ie) {
			retErr = err
			break
		}
		slog.Log(ctx, logging.LevelTrace, "backtracking", "id", id, "candidate", c)
		last = ie
		failed = append(failed, c)
	}
	if err := done(); err != nil && retErr == nil {
		retErr = err
	}
	switch {
	case retErr != nil:
		return nil, retErr
	case solved != nil:
		return solved, nil
	case last != nil:
		return nil, last
	}
	return nil, &ImpossibleError[R, C]{Causes: slices.Clone(cr.information)}
}

// pin merges the dependencies of c, which has just been pinned in st, and continues the search.
func (r *resolver[K, R, C]) pin(ctx context.Context, st *state[K, R, C], c C) (*state[K, R, C], error) {
	deps, err := r.p.Dependencies(ctx, c)
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		if err := r.merge(ctx, st, RequirementInformation[R, C]{dep, c}); err != nil {
			return nil, err
		}
	}
	return r.solve(ctx, st)
}

func (r *resolver[K, R, C]) result(st *state[K, R, C]) *Result[K, R, C] {
	res := &Result[K, R, C]{
		Mapping:  st.mapping,
		Criteria: map[K][]RequirementInformation[R, C]{},
		Graph:    map[K][]K{},
	}
	edges := map[K]mapset.Set[K]{}
	var zero C
	var root K
	for id, cr := range st.criteria {
		res.Criteria[id] = cr.information
		for _, info := range cr.information {
			parent := root
			if info.Parent != zero {
				parent = r.p.IdentifyCandidate(info.Parent)
			}
			if edges[parent] == nil {
				edges[parent] = mapset.NewThreadUnsafeSet[K]()
			}
			edges[parent].Add(id)
		}
	}
	for parent, children := range edges {
		res.Graph[parent] = slices.Sorted(mapset.Elements(children))
	}
	return res
}
