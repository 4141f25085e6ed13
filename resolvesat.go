package wheelresolve

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"maps"
	"slices"

	"github.com/crillab/gophersat/solver"
	"github.com/rhansen/wheelresolve/internal/itertools"
)

// ErrUnsatisfiable is returned by [ResolveSat] when no selection satisfies the requirements.  The
// SAT encoding cannot say why; [Resolve] falls back to the backtracking solver to explain.
var ErrUnsatisfiable = errors.New("no selection satisfies the requirements")

// ResolveSat constructs a Boolean satisfiability (SAT) problem from every candidate reachable from
// roots and uses a SAT solver to select one candidate per identifier.  Among the solutions it
// prefers candidates offered early by the [Provider], so the result usually matches what the
// backtracking solver picks.  Unlike the backtracking solver, it builds every reachable candidate.
func ResolveSat(ctx context.Context, p *Provider, roots []Requirement) (map[Identifier]Candidate, error) {
	if len(roots) == 0 {
		return map[Identifier]Candidate{}, nil
	}
	prob, cands, err := buildSatProblem(ctx, p, roots)
	if err != nil {
		return nil, err
	}
	s := solver.New(prob)
	cost := s.Minimize()
	if cost < 0 {
		return nil, ErrUnsatisfiable
	}
	slog.DebugContext(ctx, "SAT solution found", "candidates", len(cands), "cost", cost)
	mapping := map[Identifier]Candidate{}
	for v := range satModelTrueVars(s.Model()) {
		c := cands[v]
		mapping[c.Name()] = c
	}
	return mapping, nil
}

type satBuilder struct {
	p     *Provider
	cands []Candidate
	vars  map[Candidate]solver.Var
	byId  map[Identifier][]int
	costs []int
	queue []Candidate
}

// lits returns the literals of the candidates that satisfy r, adding unseen candidates to the
// problem.
func (b *satBuilder) lits(ctx context.Context, r Requirement) ([]int, error) {
	seq, done := b.p.FindMatches(ctx, r.Name(), []Requirement{r}, nil)
	var lits []int
	for c := range seq {
		v, ok := b.vars[c]
		if !ok {
			v = solver.Var(len(b.cands))
			b.vars[c] = v
			b.cands = append(b.cands, c)
			// Candidates are offered best first; each later one costs a little more.
			b.costs = append(b.costs, len(b.byId[c.Name()])+1)
			b.byId[c.Name()] = append(b.byId[c.Name()], int(v.Int()))
			b.queue = append(b.queue, c)
		}
		lits = append(lits, int(v.Int()))
	}
	if err := done(); err != nil {
		return nil, err
	}
	return lits, nil
}

func buildSatProblem(ctx context.Context, p *Provider, roots []Requirement) (*solver.Problem, []Candidate, error) {
	b := &satBuilder{p: p, vars: map[Candidate]solver.Var{}, byId: map[Identifier][]int{}}
	var constrs []solver.PBConstr
	for _, r := range roots {
		lits, err := b.lits(ctx, r)
		if err != nil {
			return nil, nil, err
		}
		if len(lits) == 0 {
			return nil, nil, ErrUnsatisfiable
		}
		// Something satisfying each root requirement must be selected.
		constrs = append(constrs, solver.PropClause(lits...))
	}
	for len(b.queue) > 0 {
		c := b.queue[0]
		b.queue = b.queue[1:]
		deps, err := p.Dependencies(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		for _, d := range deps {
			lits, err := b.lits(ctx, d)
			if err != nil {
				return nil, nil, err
			}
			// Either c is NOT selected or a candidate that satisfies d IS selected.
			clause := append([]int{-int(b.vars[c].Int())}, lits...)
			constrs = append(constrs, solver.PropClause(clause...))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(b.byId)) {
		if lits := b.byId[id]; len(lits) > 1 {
			constrs = append(constrs, solver.AtMost(lits, 1))
		}
	}
	prob := solver.ParsePBConstrs(constrs)
	prob.SetCostFunc(
		slices.Collect(itertools.Map(
			itertools.Range(0, len(b.cands)),
			func(v int) solver.Lit { return solver.Var(v).Lit() })),
		b.costs)
	return prob, b.cands, nil
}

func satModelTrueVars(model []bool) iter.Seq[solver.Var] {
	return itertools.Map21(
		itertools.Filter2(
			slices.All(model),
			func(_ int, isSel bool) bool { return isSel }),
		func(v int, _ bool) solver.Var { return solver.Var(v) })
}
