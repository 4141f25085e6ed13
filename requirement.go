package wheelresolve

import (
	"fmt"
	"strings"
)

// A Requirement is a restriction the candidate chosen for an [Identifier] must satisfy.  The set of
// implementations is closed: [*SpecifierRequirement], [*ExplicitRequirement],
// [*RequiresPythonRequirement], and [*UnsatisfiableRequirement].  Construct them with a [Factory].
type Requirement interface {
	// Name returns the identifier the requirement applies to, including any extras.
	Name() Identifier
	// ProjectName returns the identifier without extras.
	ProjectName() Identifier
	// IsSatisfiedBy reports whether the candidate, which must have the same [Requirement.Name],
	// satisfies the requirement.
	IsSatisfiedBy(c Candidate) bool
	// FormatForError renders the requirement for conflict reports.
	FormatForError() string
	fmt.Stringer

	// candidateLookup returns the concrete candidate the requirement is pinned to, or else the
	// install requirement to search the index with.  Both are nil for a requirement that can
	// never be satisfied.
	candidateLookup() (Candidate, *InstallRequirement)
}

func checkSameName(r Requirement, c Candidate) {
	if r.Name() != c.Name() {
		panic(fmt.Errorf("requirement %v checked against candidate %v with a different name", r, c))
	}
}

// A SpecifierRequirement is satisfied by any candidate of the right project, extras, and version.
type SpecifierRequirement struct {
	ireq *InstallRequirement
}

var _ Requirement = (*SpecifierRequirement)(nil)

func (r *SpecifierRequirement) Name() Identifier {
	return ExtrasIdentifier(r.ireq.ProjectName(), r.ireq.Extras)
}

func (r *SpecifierRequirement) ProjectName() Identifier {
	return r.ireq.ProjectName()
}

// Specifier returns the version specifier of the requirement.
func (r *SpecifierRequirement) Specifier() Specifier {
	return r.ireq.Specifier
}

// InstallRequirement returns the requirement line this was made from.
func (r *SpecifierRequirement) InstallRequirement() *InstallRequirement {
	return r.ireq
}

func (r *SpecifierRequirement) IsSatisfiedBy(c Candidate) bool {
	checkSameName(r, c)
	return r.ireq.Specifier.Contains(c.Version(), true)
}

func (r *SpecifierRequirement) String() string {
	return r.ireq.RequirementString()
}

// FormatForError turns "foo<2,>=1" into "foo<2 and >=1", which reads better without changing the
// meaning.
func (r *SpecifierRequirement) FormatForError() string {
	parts := strings.Split(r.String(), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return textJoin(parts)
}

func (r *SpecifierRequirement) candidateLookup() (Candidate, *InstallRequirement) {
	return nil, r.ireq
}

// An ExplicitRequirement is satisfied only by one particular candidate, such as the artifact
// behind a direct link.
type ExplicitRequirement struct {
	candidate Candidate
}

var _ Requirement = (*ExplicitRequirement)(nil)

func (r *ExplicitRequirement) Name() Identifier {
	return r.candidate.Name()
}

func (r *ExplicitRequirement) ProjectName() Identifier {
	return r.candidate.ProjectName()
}

// Candidate returns the candidate the requirement is pinned to.
func (r *ExplicitRequirement) Candidate() Candidate {
	return r.candidate
}

func (r *ExplicitRequirement) IsSatisfiedBy(c Candidate) bool {
	return sameCandidate(c, r.candidate)
}

func (r *ExplicitRequirement) String() string {
	return r.candidate.String()
}

func (r *ExplicitRequirement) FormatForError() string {
	return r.candidate.FormatForError()
}

func (r *ExplicitRequirement) candidateLookup() (Candidate, *InstallRequirement) {
	return r.candidate, nil
}

// A RequiresPythonRequirement restricts the interpreter version.  Only the session's single
// [RequiresPythonCandidate] can satisfy it.
type RequiresPythonRequirement struct {
	specifier Specifier
	candidate *RequiresPythonCandidate
}

var _ Requirement = (*RequiresPythonRequirement)(nil)

func (r *RequiresPythonRequirement) Name() Identifier {
	return RequiresPythonIdentifier
}

func (r *RequiresPythonRequirement) ProjectName() Identifier {
	return RequiresPythonIdentifier
}

// Specifier returns the declared Requires-Python specifier.
func (r *RequiresPythonRequirement) Specifier() Specifier {
	return r.specifier
}

func (r *RequiresPythonRequirement) IsSatisfiedBy(c Candidate) bool {
	checkSameName(r, c)
	return r.specifier.Contains(c.Version(), true)
}

func (r *RequiresPythonRequirement) String() string {
	return "Python " + r.specifier.String()
}

func (r *RequiresPythonRequirement) FormatForError() string {
	return r.String()
}

func (r *RequiresPythonRequirement) candidateLookup() (Candidate, *InstallRequirement) {
	return r.candidate, nil
}

// An UnsatisfiableRequirement can never be satisfied.  It stands in for a named link requirement
// whose artifact failed to build, so that the solver reports an ordinary conflict instead of the
// factory aborting.
type UnsatisfiableRequirement struct {
	name Identifier
}

var _ Requirement = (*UnsatisfiableRequirement)(nil)

func (r *UnsatisfiableRequirement) Name() Identifier {
	return r.name
}

func (r *UnsatisfiableRequirement) ProjectName() Identifier {
	return r.name.Project()
}

func (r *UnsatisfiableRequirement) IsSatisfiedBy(Candidate) bool {
	return false
}

func (r *UnsatisfiableRequirement) String() string {
	return fmt.Sprintf("%s (unavailable)", r.name)
}

func (r *UnsatisfiableRequirement) FormatForError() string {
	return r.String()
}

func (r *UnsatisfiableRequirement) candidateLookup() (Candidate, *InstallRequirement) {
	return nil, nil
}

// textJoin joins parts as "A, B and C".
func textJoin(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
