package wheelresolve

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/rhansen/wheelresolve/internal/backtrack"
)

// An UpgradeStrategy decides which projects may move away from their installed version.
type UpgradeStrategy int

const (
	// UpgradeToSatisfyOnly keeps every installed distribution that satisfies its requirements.
	UpgradeToSatisfyOnly UpgradeStrategy = iota
	// UpgradeOnlyIfNeeded upgrades projects the user requested and keeps installed dependencies.
	UpgradeOnlyIfNeeded
	// UpgradeEager upgrades every project to the best available version.
	UpgradeEager
)

func (s UpgradeStrategy) String() string {
	switch s {
	case UpgradeToSatisfyOnly:
		return "to-satisfy-only"
	case UpgradeOnlyIfNeeded:
		return "only-if-needed"
	case UpgradeEager:
		return "eager"
	}
	return fmt.Sprintf("UpgradeStrategy(%d)", int(s))
}

// A Provider adapts a [Factory] to a dependency solver.  It decides the order identifiers are
// worked on and whether installed distributions are preferred.
type Provider struct {
	factory            *Factory
	constraints        map[Identifier]Constraint
	ignoreDependencies bool
	upgradeStrategy    UpgradeStrategy
	userRequested      map[Identifier]int
}

var _ backtrack.Provider[Identifier, Requirement, Candidate] = (*Provider)(nil)

// NewProvider returns a [Provider].  userRequested maps the projects the user asked for to the
// position of their first request.
func NewProvider(f *Factory, constraints map[Identifier]Constraint, ignoreDependencies bool,
	upgradeStrategy UpgradeStrategy, userRequested map[Identifier]int) *Provider {

	return &Provider{
		factory:            f,
		constraints:        constraints,
		ignoreDependencies: ignoreDependencies,
		upgradeStrategy:    upgradeStrategy,
		userRequested:      userRequested,
	}
}

func (p *Provider) IdentifyRequirement(r Requirement) Identifier {
	return r.Name()
}

func (p *Provider) IdentifyCandidate(c Candidate) Identifier {
	return c.Name()
}

// restrictiveRating rates how narrowly reqs pin an identifier: 0 for an explicit candidate, 1 for
// an exact version, 2 for a range, and 3 for a bare name.
func restrictiveRating(reqs []Requirement) int {
	var ops []string
	for _, r := range reqs {
		c, ireq := r.candidateLookup()
		if c != nil {
			return 0
		}
		if ireq != nil {
			ops = append(ops, ireq.Specifier.Operators()...)
		}
	}
	switch {
	case slices.Contains(ops, "==") || slices.Contains(ops, "==="):
		return 1
	case len(ops) > 0:
		return 2
	}
	return 3
}

// Preference orders identifiers: Requires-Python first (it is free to check), setuptools last,
// then by how restrictive the requirements are, then by the user's request order.
func (p *Provider) Preference(id Identifier, information []backtrack.RequirementInformation[Requirement, Candidate]) []int {
	reqs := make([]Requirement, 0, len(information))
	for _, info := range information {
		reqs = append(reqs, info.Requirement)
	}
	delay, notPython := 0, 1
	if id.Project() == "setuptools" {
		delay = 1
	}
	if id == RequiresPythonIdentifier {
		notPython = 0
	}
	order, ok := p.userRequested[id.Project()]
	if !ok {
		order = math.MaxInt
	}
	return []int{delay, notPython, restrictiveRating(reqs), order}
}

func (p *Provider) eligibleForUpgrade(id Identifier) bool {
	switch p.upgradeStrategy {
	case UpgradeEager:
		return true
	case UpgradeOnlyIfNeeded:
		_, ok := p.userRequested[id.Project()]
		return ok
	}
	return false
}

// FindMatches returns the candidates for id via [Factory.FindCandidates], applying the user's
// constraint on the identifier.
func (p *Provider) FindMatches(ctx context.Context, id Identifier, reqs []Requirement,
	incompatible []Candidate) (iter.Seq[Candidate], func() error) {

	constraint, ok := p.constraints[id]
	if !ok {
		constraint = EmptyConstraint()
	}
	return p.factory.FindCandidates(ctx, id, reqs, incompatible, constraint, !p.eligibleForUpgrade(id))
}

func (p *Provider) IsSatisfiedBy(r Requirement, c Candidate) bool {
	return r.IsSatisfiedBy(c)
}

// Dependencies returns c's requirements.  With dependencies ignored only the requirements needed
// for consistency are returned.
func (p *Provider) Dependencies(ctx context.Context, c Candidate) ([]Requirement, error) {
	return c.Dependencies(ctx, !p.ignoreDependencies)
}
