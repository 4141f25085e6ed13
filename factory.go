package wheelresolve

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rhansen/wheelresolve/internal/logging"
)

// Options configures a [Factory].
type Options struct {
	// ForceReinstall makes installed distributions ineligible as candidates.
	ForceReinstall bool
	// IgnoreInstalled skips the installed-environment snapshot entirely.
	IgnoreInstalled bool
	// IgnoreRequiresPython drops every Requires-Python requirement.
	IgnoreRequiresPython bool
	// UseUserSite installs into the per-user site-packages directory.
	UseUserSite bool
	// UnderVirtualenv reports that the target interpreter runs in a virtual environment.
	UnderVirtualenv bool
	// RequireHashes enables hash-checking mode, which bypasses the wheel cache.
	RequireHashes bool
	// Target is the interpreter and platform to resolve for.  Required.
	Target *TargetPython
}

type installedDist struct {
	dist    *InstalledDistribution
	version *semver.Version
}

type extrasKey struct {
	base   Candidate
	extras string
}

// A Factory creates and caches the [Candidate] and [Requirement] values of a single resolve
// session.  Construction input maps to exactly one candidate pointer for the life of the Factory,
// which is what allows solvers to compare candidates by identity.
//
// A Factory is not safe for concurrent use.
type Factory struct {
	index      Index
	backend    BuildBackend
	wheelCache WheelCache
	opts       Options
	tags       []Tag
	markerEnv  map[string]string
	python     *RequiresPythonCandidate

	buildFailures  map[Link]error
	linkCache      map[Link]*LinkCandidate
	editableCache  map[Link]*EditableCandidate
	installedCache map[Identifier]*AlreadyInstalledCandidate
	extrasCache    map[extrasKey]*ExtrasCandidate

	installed map[Identifier]installedDist
}

// NewFactory starts a resolve session.  The environment is snapshotted once, here, unless
// [Options.IgnoreInstalled] is set.  wheelCache and env may be nil.
func NewFactory(ctx context.Context, index Index, backend BuildBackend, wheelCache WheelCache,
	env Environment, opts Options) (*Factory, error) {

	if opts.Target == nil {
		return nil, errors.New("no target interpreter configured")
	}
	f := &Factory{
		index:          index,
		backend:        backend,
		wheelCache:     wheelCache,
		opts:           opts,
		tags:           opts.Target.SupportedTags(),
		markerEnv:      opts.Target.MarkerEnvironment(),
		python:         &RequiresPythonCandidate{version: opts.Target.Version},
		buildFailures:  map[Link]error{},
		linkCache:      map[Link]*LinkCandidate{},
		editableCache:  map[Link]*EditableCandidate{},
		installedCache: map[Identifier]*AlreadyInstalledCandidate{},
		extrasCache:    map[extrasKey]*ExtrasCandidate{},
		installed:      map[Identifier]installedDist{},
	}
	if opts.IgnoreInstalled || env == nil {
		return f, nil
	}
	snap, err := env.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot installed distributions: %w", err)
	}
	for id, dist := range snap {
		v, err := ParseVersion(dist.Version)
		if err != nil {
			slog.WarnContext(ctx, "ignoring installed distribution with invalid version",
				"name", dist.Name, "version", dist.Version, "err", err)
			continue
		}
		f.installed[CanonicalizeName(string(id))] = installedDist{dist, v}
	}
	return f, nil
}

// PythonCandidate returns the session's interpreter pseudo-candidate.
func (f *Factory) PythonCandidate() *RequiresPythonCandidate {
	return f.python
}

// ForceReinstall reports whether installed distributions are ignored as candidates.
func (f *Factory) ForceReinstall() bool {
	return f.opts.ForceReinstall
}

// SupportedTags returns the wheel tags of the target interpreter, most preferred first.
func (f *Factory) SupportedTags() []Tag {
	return f.tags
}

// Installed returns the installed distribution of the project, or nil.
func (f *Factory) Installed(name Identifier) *InstalledDistribution {
	if d, ok := f.installed[name.Project()]; ok {
		return d.dist
	}
	return nil
}

// BuildFailure returns the error recorded against link, or nil if the link has not failed.
func (f *Factory) BuildFailure(link Link) error {
	return f.buildFailures[link]
}

func (f *Factory) makeExtrasCandidate(base Candidate, extras []string) Candidate {
	extras = canonicalExtras(extras)
	key := extrasKey{base, strings.Join(extras, ",")}
	c, ok := f.extrasCache[key]
	if !ok {
		c = &ExtrasCandidate{base: base, extras: extras}
		f.extrasCache[key] = c
	}
	return c
}

func (f *Factory) makeCandidateFromDist(d installedDist, extras []string, template *InstallRequirement) Candidate {
	name := CanonicalizeName(d.dist.Name)
	base, ok := f.installedCache[name]
	if !ok {
		base = &AlreadyInstalledCandidate{
			factory: f,
			dist:    d.dist,
			ireq:    template,
			name:    name,
			version: d.version,
		}
		f.installedCache[name] = base
	}
	if len(extras) == 0 {
		return base
	}
	return f.makeExtrasCandidate(base, extras)
}

// recordFailure remembers err against link so the link is never built again.  Cancellation is
// returned to the caller instead.
func (f *Factory) recordFailure(ctx context.Context, link Link, err error) error {
	if isCanceled(err) {
		return err
	}
	slog.WarnContext(ctx, fmt.Sprintf("Discarding %v. %v", link, err))
	f.buildFailures[link] = err
	return nil
}

// makeCandidateFromLink returns the cached candidate for link, building it on first use.  A nil
// candidate with a nil error means the link is recorded as a build failure.
func (f *Factory) makeCandidateFromLink(ctx context.Context, link Link, extras []string,
	template *InstallRequirement, name Identifier, version *semver.Version) (Candidate, error) {

	if _, failed := f.buildFailures[link]; failed {
		slog.Log(ctx, logging.LevelTrace, "skipping link that failed to build", "link", link)
		return nil, nil
	}
	var base Candidate
	if template.Editable {
		c, ok := f.editableCache[link]
		if !ok {
			lb, err := prepareLinkBased(ctx, f, link, template, name, version, true)
			if err != nil {
				return nil, f.recordFailure(ctx, link, err)
			}
			c = &EditableCandidate{*lb}
			f.editableCache[link] = c
		}
		base = c
	} else {
		c, ok := f.linkCache[link]
		if !ok {
			lb, err := prepareLinkBased(ctx, f, link, template, name, version, false)
			if err != nil {
				return nil, f.recordFailure(ctx, link, err)
			}
			c = &LinkCandidate{*lb}
			f.linkCache[link] = c
		}
		base = c
	}
	if len(extras) == 0 {
		return base, nil
	}
	return f.makeExtrasCandidate(base, extras), nil
}

// supportedWheel reports whether link is not a wheel or is a wheel compatible with the target.
func (f *Factory) supportedWheel(link Link) (bool, error) {
	if !link.IsWheel() {
		return true, nil
	}
	w, err := ParseWheelFilename(link.Filename())
	if err != nil {
		return false, err
	}
	return w.Supported(f.tags), nil
}

// FindCandidates returns the candidates for id that could satisfy every requirement in reqs and
// the constraint, in the order a solver should try them.  Candidates in incompatible are never
// returned.  If prefersInstalled is true, an eligible installed distribution is returned first.
//
// The returned sequence is lazy: artifacts are built only as the caller advances it, and every
// range over it starts from scratch.  The returned done callback reports the first error
// encountered by the most recent range (only cancellation and unrecoverable errors; ordinary build
// failures are skipped).
func (f *Factory) FindCandidates(ctx context.Context, id Identifier, reqs []Requirement,
	incompatible []Candidate, constraint Constraint, prefersInstalled bool) (iter.Seq[Candidate], func() error) {

	var retErr error
	rejected := mapset.NewThreadUnsafeSet(incompatible...)
	return func(yield func(Candidate) bool) {
		retErr = nil
		explicit, ireqs, err := f.explicitCandidates(ctx, reqs, constraint)
		if err != nil {
			retErr = err
			return
		}
		if explicit == nil {
			for c := range f.iterFoundCandidates(ctx, ireqs, constraint, prefersInstalled, rejected, &retErr) {
				if !yield(c) {
					return
				}
			}
			return
		}
		for _, c := range explicit {
			if rejected.Contains(c) || !constraint.IsSatisfiedBy(c) {
				continue
			}
			if !allSatisfiedBy(reqs, c) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}, func() error { return retErr }
}

func allSatisfiedBy(reqs []Requirement, c Candidate) bool {
	for _, r := range reqs {
		if !r.IsSatisfiedBy(c) {
			return false
		}
	}
	return true
}

// explicitCandidates collects the candidates pinned by reqs and by the constraint's links.  It
// returns a nil slice if nothing is pinned, and a non-nil empty slice if a pinned constraint link
// cannot produce a candidate.
func (f *Factory) explicitCandidates(ctx context.Context, reqs []Requirement,
	constraint Constraint) ([]Candidate, []*InstallRequirement, error) {

	var explicit []Candidate
	seen := mapset.NewThreadUnsafeSet[Candidate]()
	add := func(c Candidate) {
		if seen.Add(c) {
			explicit = append(explicit, c)
		}
	}
	var ireqs []*InstallRequirement
	for _, r := range reqs {
		c, ireq := r.candidateLookup()
		if c != nil {
			add(c)
		}
		if ireq != nil {
			ireqs = append(ireqs, ireq)
		}
	}
	if constraint.Links != nil && len(ireqs) > 0 {
		links := constraint.Links.ToSlice()
		slices.SortFunc(links, func(a, b Link) int { return strings.Compare(a.URL, b.URL) })
		for _, link := range links {
			ok, err := f.supportedWheel(link)
			if err != nil || !ok {
				slog.DebugContext(ctx, "constraint link is not a supported wheel", "link", link, "err", err)
				return []Candidate{}, ireqs, nil
			}
			template := ireqs[0].WithLink(link)
			c, err := f.makeCandidateFromLink(ctx, link, template.Extras, template, template.ProjectName(), nil)
			if err != nil {
				return nil, nil, err
			}
			if c == nil {
				return []Candidate{}, ireqs, nil
			}
			add(c)
		}
	}
	return explicit, ireqs, nil
}

// iterFoundCandidates queries the index for candidates satisfying every ireq and merges the
// installed distribution into the result.
func (f *Factory) iterFoundCandidates(ctx context.Context, ireqs []*InstallRequirement,
	constraint Constraint, prefersInstalled bool, rejected mapset.Set[Candidate],
	errp *error) iter.Seq[Candidate] {

	if len(ireqs) == 0 {
		return func(func(Candidate) bool) {}
	}
	template := ireqs[0]
	name := template.ProjectName()
	if name == "" {
		panic(fmt.Errorf("index candidates requested for unnamed requirement %v", template))
	}
	specifier := constraint.Specifier
	hashes := constraint.Hashes
	extras := mapset.NewThreadUnsafeSet[string]()
	for _, ireq := range ireqs {
		specifier = specifier.And(ireq.Specifier)
		hashes = hashes.And(ireq.Hashes(false))
		extras.Append(ireq.Extras...)
	}
	extraList := canonicalExtras(extras.ToSlice())

	var installed Candidate
	if d, ok := f.installed[name]; ok && !f.opts.ForceReinstall && specifier.Contains(d.version, true) {
		installed = f.makeCandidateFromDist(d, extraList, template)
		if rejected.Contains(installed) {
			installed = nil
		}
	}

	infos := func(yield func(indexInfo) bool) {
		icans, err := f.index.FindBestCandidate(ctx, name, specifier, hashes)
		if err != nil {
			*errp = fmt.Errorf("failed to find candidates for %v: %w", name, err)
			return
		}
		// Yanked releases are only used if nothing else satisfies the specifier.
		allYanked := !slices.ContainsFunc(icans, func(ic IndexCandidate) bool { return !ic.Yanked })
		for _, ic := range slices.Backward(icans) {
			if ic.Yanked && !allYanked {
				continue
			}
			if ok, _ := f.supportedWheel(ic.Link); !ok {
				slog.Log(ctx, logging.LevelTrace, "skipping unsupported wheel", "link", ic.Link)
				continue
			}
			if ic.Yanked {
				slog.WarnContext(ctx, "selecting yanked release", "link", ic.Link, "reason", ic.YankedReason)
			}
			build := func() (Candidate, error) {
				return f.makeCandidateFromLink(ctx, ic.Link, extraList, template, name, ic.Version)
			}
			if !yield(indexInfo{ic.Version, build}) {
				return
			}
		}
	}
	return foundCandidates(infos, installed, prefersInstalled, rejected, errp)
}

// MakeRequirementFromInstallReq converts a parsed requirement line into a [Requirement].  It
// returns nil if the requirement's markers exclude it from the target environment for the given
// extras.
func (f *Factory) MakeRequirementFromInstallReq(ctx context.Context, ireq *InstallRequirement,
	requestedExtras []string) (Requirement, error) {

	if !ireq.MatchMarkers(f.markerEnv, requestedExtras) {
		slog.Log(ctx, logging.LevelVerbose, "ignoring requirement: markers don't match your environment",
			"name", ireq.Name, "markers", ireq.Marker)
		return nil, nil
	}
	if ireq.Link == nil {
		return &SpecifierRequirement{ireq}, nil
	}
	link := *ireq.Link
	ok, err := f.supportedWheel(link)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", link, err)
	}
	if !ok {
		uerr := &UnsupportedWheelError{Filename: link.Filename()}
		if ireq.UserSupplied {
			return nil, uerr
		}
		if _, failed := f.buildFailures[link]; !failed {
			slog.WarnContext(ctx, fmt.Sprintf("Discarding %v. %v", link, uerr))
			f.buildFailures[link] = uerr
		}
	}
	c, err := f.makeCandidateFromLink(ctx, link, ireq.Extras, ireq, ireq.ProjectName(), nil)
	if err != nil {
		return nil, err
	}
	if c == nil {
		// An unnamed link gives the solver nothing to attach a conflict to.
		if ireq.Name == "" {
			return nil, f.buildFailures[link]
		}
		return &UnsatisfiableRequirement{name: ireq.ProjectName()}, nil
	}
	return f.MakeRequirementFromCandidate(c), nil
}

// MakeRequirementFromCandidate returns a requirement satisfied only by c.
func (f *Factory) MakeRequirementFromCandidate(c Candidate) Requirement {
	return &ExplicitRequirement{candidate: c}
}

// MakeRequirementFromSpec parses a dependency line declared by comesFrom's candidate and converts
// it with [Factory.MakeRequirementFromInstallReq].
func (f *Factory) MakeRequirementFromSpec(ctx context.Context, spec string, comesFrom *InstallRequirement,
	requestedExtras []string) (Requirement, error) {

	ireq, err := ParseInstallRequirement(spec, comesFrom)
	if err != nil {
		return nil, err
	}
	return f.MakeRequirementFromInstallReq(ctx, ireq, requestedExtras)
}

// MakeRequiresPythonRequirement returns a requirement on the target interpreter, or nil if the
// specifier is empty or Requires-Python checks are disabled.
func (f *Factory) MakeRequiresPythonRequirement(spec Specifier) Requirement {
	if f.opts.IgnoreRequiresPython || spec.IsEmpty() {
		return nil
	}
	return &RequiresPythonRequirement{specifier: spec, candidate: f.python}
}

// WheelCacheEntry looks up link in the wheel cache.  The cache is not consulted in hash-checking
// mode: locally built wheels never match the digests of published artifacts.
func (f *Factory) WheelCacheEntry(link Link, name Identifier) *CacheEntry {
	if f.wheelCache == nil || f.opts.RequireHashes {
		return nil
	}
	return f.wheelCache.Lookup(link, name, f.tags)
}

// DistToUninstall returns the installed distribution that must be removed before c is installed,
// or nil if there is none.
func (f *Factory) DistToUninstall(c Candidate) (*InstalledDistribution, error) {
	d, ok := f.installed[c.ProjectName()]
	if !ok {
		return nil, nil
	}
	// A user-site installation shadows the global one, so installing globally must remove
	// whichever copy exists.
	if !f.opts.UseUserSite {
		return d.dist, nil
	}
	if d.dist.InUserSite {
		return d.dist, nil
	}
	// Shadowing does not work inside a virtual environment.
	if f.opts.UnderVirtualenv && d.dist.InSitePackages {
		return nil, fmt.Errorf("Will not install to the user site because it will lack sys.path precedence to %s in %s",
			d.dist.Name, d.dist.Location)
	}
	return nil, nil
}
