package wheelresolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	mapset "github.com/deckarep/golang-set/v2"
)

// A Candidate is a concrete artifact at a specific version that might be chosen for an
// [Identifier].  The set of implementations is closed: [*LinkCandidate], [*EditableCandidate],
// [*AlreadyInstalledCandidate], [*ExtrasCandidate], and [*RequiresPythonCandidate].
//
// Candidates are only created by a [Factory], which guarantees that the same construction input
// always yields the same pointer.  Solvers may therefore compare candidates with ==.
type Candidate interface {
	// Name returns the identifier the candidate is for, including any extras.
	Name() Identifier
	// ProjectName returns the identifier without extras.
	ProjectName() Identifier
	Version() *semver.Version
	IsInstalled() bool
	IsEditable() bool
	// SourceLink returns the artifact the candidate was built from, or nil.
	SourceLink() *Link
	// Dependencies returns the candidate's own requirements.  If withRequires is false only the
	// requirements needed for consistency (the base of an extras candidate, Requires-Python) are
	// returned.
	Dependencies(ctx context.Context, withRequires bool) ([]Requirement, error)
	// InstallRequirement returns the requirement line the candidate was created for, or nil.
	InstallRequirement() *InstallRequirement
	// FormatForError renders the candidate for conflict reports.
	FormatForError() string
	fmt.Stringer

	sealedCandidate()
}

// linkBased is the shared implementation of [LinkCandidate] and [EditableCandidate].
type linkBased struct {
	factory        *Factory
	link           Link
	ireq           *InstallRequirement
	name           Identifier
	version        *semver.Version
	metadata       *Metadata
	requiresPython Specifier
	editable       bool
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// prepareLinkBased invokes the build backend for link and checks the result against the expected
// name and version (either may be empty/nil if unknown).
func prepareLinkBased(ctx context.Context, f *Factory, link Link, template *InstallRequirement,
	name Identifier, version *semver.Version, editable bool) (*linkBased, error) {

	built := link
	if !editable {
		if entry := f.WheelCacheEntry(link, name); entry != nil {
			slog.DebugContext(ctx, "using cached wheel", "link", link, "cached", entry.Link)
			built = entry.Link
		}
	}
	md, err := f.backend.BuildMetadata(ctx, built, editable)
	if err != nil {
		// A build hook killed by cancellation reports its exit status, not the context error.
		if ctxErr := ctx.Err(); ctxErr != nil && !isCanceled(err) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		if isCanceled(err) {
			return nil, err
		}
		return nil, &BuildError{Link: link, Err: err}
	}
	mdName := CanonicalizeName(md.Name)
	if md.Name == "" {
		return nil, &BuildError{Link: link, Err: errors.New("metadata has no project name")}
	}
	if name != "" && mdName != name {
		return nil, &MetadataInconsistentError{Link: link, Field: "name", Expected: string(name), Got: md.Name}
	}
	mdVersion, err := ParseVersion(md.Version)
	if err != nil {
		return nil, &BuildError{Link: link, Err: err}
	}
	if version != nil && !version.Equal(mdVersion) {
		return nil, &MetadataInconsistentError{
			Link: link, Field: "version", Expected: VersionString(version), Got: md.Version}
	}
	requiresPython, err := ParseSpecifier(md.RequiresPython)
	if err != nil {
		return nil, &BuildError{Link: link, Err: fmt.Errorf("invalid Requires-Python: %w", err)}
	}
	ireq := *template
	ireq.Link = &link
	ireq.Editable = editable
	return &linkBased{
		factory:        f,
		link:           link,
		ireq:           &ireq,
		name:           mdName,
		version:        mdVersion,
		metadata:       md,
		requiresPython: requiresPython,
		editable:       editable,
	}, nil
}

func (c *linkBased) Name() Identifier                        { return c.name }
func (c *linkBased) ProjectName() Identifier                 { return c.name }
func (c *linkBased) Version() *semver.Version                { return c.version }
func (c *linkBased) IsInstalled() bool                       { return false }
func (c *linkBased) IsEditable() bool                        { return c.editable }
func (c *linkBased) SourceLink() *Link                       { return &c.link }
func (c *linkBased) InstallRequirement() *InstallRequirement { return c.ireq }

func (c *linkBased) Dependencies(ctx context.Context, withRequires bool) ([]Requirement, error) {
	var reqs []Requirement
	if withRequires {
		for _, line := range c.metadata.RequiresDist {
			r, err := c.factory.MakeRequirementFromSpec(ctx, line, c.ireq, nil)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", c, err)
			}
			if r != nil {
				reqs = append(reqs, r)
			}
		}
	}
	if r := c.factory.MakeRequiresPythonRequirement(c.requiresPython); r != nil {
		reqs = append(reqs, r)
	}
	return reqs, nil
}

func (c *linkBased) String() string {
	return fmt.Sprintf("%s %s", c.name, VersionString(c.version))
}

func (c *linkBased) FormatForError() string {
	from := c.link.String()
	if c.link.IsFile() {
		from = c.link.FilePath()
	}
	return fmt.Sprintf("%s %s (from %s)", c.name, VersionString(c.version), from)
}

// A LinkCandidate is an artifact from an index or a direct link, to be installed normally.
type LinkCandidate struct {
	linkBased
}

func (*LinkCandidate) sealedCandidate() {}

// An EditableCandidate is a local project or VCS checkout to be installed in editable mode.
type EditableCandidate struct {
	linkBased
}

func (*EditableCandidate) sealedCandidate() {}

// An AlreadyInstalledCandidate is a distribution already present in the environment.  It is never
// rebuilt.
type AlreadyInstalledCandidate struct {
	factory *Factory
	dist    *InstalledDistribution
	ireq    *InstallRequirement
	name    Identifier
	version *semver.Version
}

func (*AlreadyInstalledCandidate) sealedCandidate() {}

// Distribution returns the installed distribution the candidate wraps.
func (c *AlreadyInstalledCandidate) Distribution() *InstalledDistribution {
	return c.dist
}

func (c *AlreadyInstalledCandidate) Name() Identifier         { return c.name }
func (c *AlreadyInstalledCandidate) ProjectName() Identifier  { return c.name }
func (c *AlreadyInstalledCandidate) Version() *semver.Version { return c.version }
func (c *AlreadyInstalledCandidate) IsInstalled() bool        { return true }
func (c *AlreadyInstalledCandidate) IsEditable() bool         { return false }
func (c *AlreadyInstalledCandidate) SourceLink() *Link        { return nil }

// InstallRequirement is always nil: an installed distribution is not installed again.
func (c *AlreadyInstalledCandidate) InstallRequirement() *InstallRequirement { return nil }

func (c *AlreadyInstalledCandidate) Dependencies(ctx context.Context, withRequires bool) ([]Requirement, error) {
	if !withRequires {
		return nil, nil
	}
	var reqs []Requirement
	for _, line := range c.dist.RequiresDist {
		r, err := c.factory.MakeRequirementFromSpec(ctx, line, c.ireq, nil)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", c, err)
		}
		if r != nil {
			reqs = append(reqs, r)
		}
	}
	return reqs, nil
}

func (c *AlreadyInstalledCandidate) String() string {
	return fmt.Sprintf("%s %s", c.name, VersionString(c.version))
}

func (c *AlreadyInstalledCandidate) FormatForError() string {
	return fmt.Sprintf("%s %s (Installed)", c.name, VersionString(c.version))
}

// An ExtrasCandidate adds optional dependency groups on top of a base candidate.  It depends on
// its base explicitly, so the solver always picks the same artifact for "foo" and "foo[bar]".
type ExtrasCandidate struct {
	base   Candidate
	extras []string
}

func (*ExtrasCandidate) sealedCandidate() {}

// Base returns the candidate the extras are added to.
func (c *ExtrasCandidate) Base() Candidate {
	return c.base
}

// Extras returns the sorted, canonicalized extras.
func (c *ExtrasCandidate) Extras() []string {
	return c.extras
}

func (c *ExtrasCandidate) Name() Identifier         { return ExtrasIdentifier(c.base.ProjectName(), c.extras) }
func (c *ExtrasCandidate) ProjectName() Identifier  { return c.base.ProjectName() }
func (c *ExtrasCandidate) Version() *semver.Version { return c.base.Version() }
func (c *ExtrasCandidate) IsInstalled() bool        { return c.base.IsInstalled() }
func (c *ExtrasCandidate) IsEditable() bool         { return c.base.IsEditable() }
func (c *ExtrasCandidate) SourceLink() *Link        { return c.base.SourceLink() }

// InstallRequirement is always nil; the base candidate is the one that gets installed.
func (c *ExtrasCandidate) InstallRequirement() *InstallRequirement { return nil }

func (c *ExtrasCandidate) Dependencies(ctx context.Context, withRequires bool) ([]Requirement, error) {
	f := candidateFactory(c.base)
	reqs := []Requirement{f.MakeRequirementFromCandidate(c.base)}
	if !withRequires {
		return reqs, nil
	}
	md := candidateMetadata(c.base)
	if md == nil {
		return reqs, nil
	}
	provided := mapset.NewThreadUnsafeSet(canonicalExtras(md.ProvidesExtra)...)
	requested := mapset.NewThreadUnsafeSet(c.extras...)
	for _, extra := range canonicalExtras(requested.Difference(provided).ToSlice()) {
		slog.WarnContext(ctx, "extra not provided",
			"candidate", c.base.String(), "extra", extra,
			"msg", fmt.Sprintf("%s %s does not provide the extra '%s'",
				c.base.Name(), VersionString(c.Version()), extra))
	}
	valid := canonicalExtras(requested.Intersect(provided).ToSlice())
	for _, line := range md.RequiresDist {
		r, err := f.MakeRequirementFromSpec(ctx, line, c.base.InstallRequirement(), valid)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", c, err)
		}
		if r != nil {
			reqs = append(reqs, r)
		}
	}
	return reqs, nil
}

func (c *ExtrasCandidate) String() string {
	name, rest, _ := strings.Cut(c.base.String(), " ")
	return fmt.Sprintf("%s[%s] %s", name, strings.Join(c.extras, ","), rest)
}

func (c *ExtrasCandidate) FormatForError() string {
	return fmt.Sprintf("%s [%s]", c.base.FormatForError(), strings.Join(c.extras, ", "))
}

// The RequiresPythonCandidate represents the target interpreter.  Each [Factory] has exactly one.
type RequiresPythonCandidate struct {
	version *semver.Version
}

func (*RequiresPythonCandidate) sealedCandidate() {}

func (c *RequiresPythonCandidate) Name() Identifier                        { return RequiresPythonIdentifier }
func (c *RequiresPythonCandidate) ProjectName() Identifier                 { return RequiresPythonIdentifier }
func (c *RequiresPythonCandidate) Version() *semver.Version                { return c.version }
func (c *RequiresPythonCandidate) IsInstalled() bool                       { return false }
func (c *RequiresPythonCandidate) IsEditable() bool                        { return false }
func (c *RequiresPythonCandidate) SourceLink() *Link                       { return nil }
func (c *RequiresPythonCandidate) InstallRequirement() *InstallRequirement { return nil }

func (c *RequiresPythonCandidate) Dependencies(context.Context, bool) ([]Requirement, error) {
	return nil, nil
}

func (c *RequiresPythonCandidate) String() string {
	return "Python " + VersionString(c.version)
}

func (c *RequiresPythonCandidate) FormatForError() string {
	return c.String()
}

func candidateMetadata(c Candidate) *Metadata {
	switch c := c.(type) {
	case *LinkCandidate:
		return c.metadata
	case *EditableCandidate:
		return c.metadata
	case *AlreadyInstalledCandidate:
		return &c.dist.Metadata
	case *ExtrasCandidate:
		return candidateMetadata(c.base)
	}
	return nil
}

func candidateFactory(c Candidate) *Factory {
	switch c := c.(type) {
	case *LinkCandidate:
		return c.factory
	case *EditableCandidate:
		return c.factory
	case *AlreadyInstalledCandidate:
		return c.factory
	case *ExtrasCandidate:
		return candidateFactory(c.base)
	}
	panic(fmt.Errorf("candidate %v has no factory", c))
}

// sameCandidate reports whether two candidates are the same artifact.  The factory's caches make
// this pointer equality in practice; link-based candidates additionally compare by link so that
// candidates from different factories do not spuriously differ.
func sameCandidate(a, b Candidate) bool {
	if a == b {
		return true
	}
	switch a := a.(type) {
	case *LinkCandidate:
		b, ok := b.(*LinkCandidate)
		return ok && a.link == b.link
	case *EditableCandidate:
		b, ok := b.(*EditableCandidate)
		return ok && a.link == b.link
	}
	return false
}
