package wheelresolve

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// A Constraint restricts the candidates acceptable for an identifier without requesting that the
// identifier be installed.  Constraints come from a constraints file.
type Constraint struct {
	Specifier Specifier
	Hashes    Hashes
	// Links pins the identifier to one of these artifacts when non-empty.
	Links mapset.Set[Link]
}

// EmptyConstraint returns a [Constraint] that accepts everything.
func EmptyConstraint() Constraint {
	return Constraint{Links: mapset.NewThreadUnsafeSet[Link]()}
}

// ConstraintFromInstallRequirement builds a [Constraint] from a constraints-file line.
func ConstraintFromInstallRequirement(ireq *InstallRequirement) Constraint {
	c := EmptyConstraint()
	c.Specifier = ireq.Specifier
	c.Hashes = ireq.Hashes(false)
	if ireq.Link != nil {
		c.Links.Add(*ireq.Link)
	}
	return c
}

// IsEmpty reports whether the constraint restricts nothing.
func (c Constraint) IsEmpty() bool {
	return c.Specifier.IsEmpty() && c.Hashes.IsEmpty() && (c.Links == nil || c.Links.IsEmpty())
}

// And combines two constraints on the same identifier.
func (c Constraint) And(o Constraint) Constraint {
	links := mapset.NewThreadUnsafeSet[Link]()
	for _, l := range []mapset.Set[Link]{c.Links, o.Links} {
		if l != nil {
			links = links.Union(l)
		}
	}
	return Constraint{
		Specifier: c.Specifier.And(o.Specifier),
		Hashes:    c.Hashes.And(o.Hashes),
		Links:     links,
	}
}

// IsSatisfiedBy reports whether the candidate is acceptable.  If links are pinned, the candidate
// must come from one of them.  Pre-releases are always allowed because the [Index] has already
// applied the pre-release policy.
func (c Constraint) IsSatisfiedBy(cand Candidate) bool {
	if c.Links != nil && !c.Links.IsEmpty() {
		link := cand.SourceLink()
		if link == nil || !c.Links.Contains(*link) {
			return false
		}
	}
	return c.Specifier.Contains(cand.Version(), true)
}
