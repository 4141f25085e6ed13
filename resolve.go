package wheelresolve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rhansen/wheelresolve/internal/backtrack"
	"github.com/rhansen/wheelresolve/internal/logging"
)

// A Solver selects the search algorithm used by [Resolve].
type Solver int

const (
	// SolverBacktrack is a depth-first backtracking search that tries candidates in stream order.
	SolverBacktrack Solver = iota
	// SolverSat encodes the whole problem for a SAT solver (see [ResolveSat]).
	SolverSat
)

const defaultMaxRounds = 200000

// ResolveOptions configures [Resolve].
type ResolveOptions struct {
	UpgradeStrategy UpgradeStrategy
	// IgnoreDependencies skips candidates' declared dependencies.
	IgnoreDependencies bool
	Solver             Solver
	// MaxRounds bounds the number of pins the backtracking solver tries.  Zero means a default.
	MaxRounds int
}

// An InstallAction is one candidate the installer has to act on.
type InstallAction struct {
	Candidate Candidate
	// Uninstall is the installed distribution that has to be removed first, if any.
	Uninstall *InstalledDistribution
}

// A Result is a successful resolution.
type Result struct {
	// Mapping assigns a candidate to every required identifier.
	Mapping map[Identifier]Candidate
	// Graph maps an identifier to the sorted identifiers it depends on.  The empty identifier is
	// the root.
	Graph map[Identifier][]Identifier
	// Install lists the candidates that need installing, dependencies before dependents.
	Install []InstallAction
}

// checkConstraint rejects constraint lines that cannot be expressed as a [Constraint].
func checkConstraint(ireq *InstallRequirement) error {
	switch {
	case ireq.Name == "":
		return fmt.Errorf("unnamed requirements are not allowed as constraints: %v", ireq)
	case ireq.Editable:
		return fmt.Errorf("editable requirements are not allowed as constraints: %v", ireq)
	case len(ireq.Extras) > 0:
		return fmt.Errorf("constraints cannot have extras: %v", ireq)
	}
	return nil
}

// Resolve selects one candidate per identifier for the given requirement lines.  Lines marked
// [InstallRequirement.Constraint] restrict the selection without requesting anything.  If no
// selection exists, the error is the diagnosis produced by [Factory.InstallationError].
func Resolve(ctx context.Context, f *Factory, ireqs []*InstallRequirement, opts ResolveOptions) (*Result, error) {
	constraints := map[Identifier]Constraint{}
	userRequested := map[Identifier]int{}
	var reqs []Requirement
	for i, ireq := range ireqs {
		if ireq.Constraint {
			if err := checkConstraint(ireq); err != nil {
				return nil, err
			}
			if !ireq.MatchMarkers(f.markerEnv, nil) {
				continue
			}
			c := ConstraintFromInstallRequirement(ireq)
			if old, ok := constraints[ireq.ProjectName()]; ok {
				c = old.And(c)
			}
			constraints[ireq.ProjectName()] = c
			continue
		}
		if ireq.UserSupplied && ireq.Name != "" {
			if _, ok := userRequested[ireq.ProjectName()]; !ok {
				userRequested[ireq.ProjectName()] = i
			}
		}
		r, err := f.MakeRequirementFromInstallReq(ctx, ireq, nil)
		if err != nil {
			return nil, err
		}
		if r != nil {
			reqs = append(reqs, r)
		}
	}
	p := NewProvider(f, constraints, opts.IgnoreDependencies, opts.UpgradeStrategy, userRequested)
	maxRounds := opts.MaxRounds
	if maxRounds == 0 {
		maxRounds = defaultMaxRounds
	}

	var res *Result
	var err error
	switch opts.Solver {
	case SolverSat:
		var mapping map[Identifier]Candidate
		mapping, err = ResolveSat(ctx, p, reqs)
		if err == nil {
			res = &Result{Mapping: mapping}
			res.Graph, err = dependencyGraph(ctx, p, reqs, mapping)
		} else if errors.Is(err, ErrUnsatisfiable) {
			slog.DebugContext(ctx, "no SAT solution; searching again to explain the conflict")
			res, err = resolveBacktrack(ctx, p, reqs, maxRounds)
		}
	default:
		res, err = resolveBacktrack(ctx, p, reqs, maxRounds)
	}
	if err != nil {
		var rie *ResolutionImpossibleError
		if errors.As(err, &rie) {
			return nil, f.InstallationError(ctx, rie, constraints)
		}
		return nil, err
	}
	if res.Install, err = f.installPlan(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveBacktrack(ctx context.Context, p *Provider, reqs []Requirement, maxRounds int) (*Result, error) {
	res, err := backtrack.Resolve(ctx, p, reqs, maxRounds)
	if err != nil {
		var ie *backtrack.ImpossibleError[Requirement, Candidate]
		if errors.As(err, &ie) {
			rie := &ResolutionImpossibleError{}
			for _, cause := range ie.Causes {
				rie.Causes = append(rie.Causes, RequirementInformation{cause.Requirement, cause.Parent})
			}
			return nil, rie
		}
		return nil, err
	}
	return &Result{Mapping: res.Mapping, Graph: res.Graph}, nil
}

// dependencyGraph reconstructs the graph of a selection made without the backtracking solver.
func dependencyGraph(ctx context.Context, p *Provider, reqs []Requirement,
	mapping map[Identifier]Candidate) (map[Identifier][]Identifier, error) {

	edges := map[Identifier]mapset.Set[Identifier]{"": mapset.NewThreadUnsafeSet[Identifier]()}
	for _, r := range reqs {
		edges[""].Add(r.Name())
	}
	for id, c := range mapping {
		deps, err := p.Dependencies(ctx, c)
		if err != nil {
			return nil, err
		}
		if len(deps) == 0 {
			continue
		}
		edges[id] = mapset.NewThreadUnsafeSet[Identifier]()
		for _, d := range deps {
			edges[id].Add(d.Name())
		}
	}
	g := map[Identifier][]Identifier{}
	for id, children := range edges {
		g[id] = slices.Sorted(mapset.Elements(children))
	}
	return g, nil
}

// installPlan picks the selected candidates that need installing.  An installed distribution of
// the same version is left alone unless a reinstall is forced or either side is editable.
func (f *Factory) installPlan(ctx context.Context, res *Result) ([]InstallAction, error) {
	weights := installWeights(res.Graph)
	var plan []InstallAction
	for _, id := range slices.Sorted(maps.Keys(res.Mapping)) {
		c := res.Mapping[id]
		if c.InstallRequirement() == nil {
			continue
		}
		dist, err := f.DistToUninstall(c)
		if err != nil {
			return nil, err
		}
		if dist != nil && !f.opts.ForceReinstall && !c.IsEditable() && !dist.Editable &&
			c.Version().Equal(f.installed[c.ProjectName()].version) {
			slog.Log(ctx, logging.LevelVerbose, "already installed", "candidate", c)
			continue
		}
		plan = append(plan, InstallAction{Candidate: c, Uninstall: dist})
	}
	slices.SortStableFunc(plan, func(a, b InstallAction) int {
		return cmp.Compare(weights[b.Candidate.ProjectName()], weights[a.Candidate.ProjectName()])
	})
	return plan, nil
}

// installWeights assigns each project the length of the longest path from the root to it, so that
// deeper dependencies are installed first.  Edges that close a cycle are ignored.
func installWeights(g map[Identifier][]Identifier) map[Identifier]int {
	weights := map[Identifier]int{}
	depths := map[Identifier]int{}
	onPath := mapset.NewThreadUnsafeSet[Identifier]()
	var visit func(id Identifier, depth int)
	visit = func(id Identifier, depth int) {
		if d, ok := depths[id]; ok && d >= depth {
			return
		}
		if !onPath.Add(id) {
			return
		}
		defer onPath.Remove(id)
		depths[id] = depth
		if id != "" {
			weights[id.Project()] = max(weights[id.Project()], depth)
		}
		for _, child := range g[id] {
			visit(child, depth+1)
		}
	}
	visit("", 0)
	return weights
}
