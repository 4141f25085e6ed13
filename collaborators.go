package wheelresolve

import (
	"context"

	"github.com/Masterminds/semver/v3"
)

// An IndexCandidate is one artifact an [Index] offers for a project.
type IndexCandidate struct {
	Name    Identifier
	Version *semver.Version
	Link    Link
	// Yanked marks a release withdrawn by its publisher ([PEP 592]).
	//
	// [PEP 592]: https://peps.python.org/pep-0592/
	Yanked       bool
	YankedReason string
}

// An Index finds the artifacts available for a project.
type Index interface {
	// FindBestCandidate returns the applicable artifacts whose versions are contained in spec and
	// whose hashes (if any are pinned) are allowed, ordered from oldest to newest version.
	FindBestCandidate(ctx context.Context, name Identifier, spec Specifier, hashes Hashes) ([]IndexCandidate, error)

	// FindAllCandidates returns every artifact known for the project, regardless of version.  It
	// is only used to explain failures.
	FindAllCandidates(ctx context.Context, name Identifier) ([]IndexCandidate, error)
}

// Metadata is what a build backend extracts from an artifact.
type Metadata struct {
	Name           string   `yaml:"name" json:"name"`
	Version        string   `yaml:"version" json:"version"`
	RequiresDist   []string `yaml:"requires_dist" json:"requires_dist"`
	RequiresPython string   `yaml:"requires_python" json:"requires_python"`
	ProvidesExtra  []string `yaml:"provides_extra" json:"provides_extra"`
}

// A BuildBackend turns an artifact (wheel, source archive, VCS checkout, or local directory) into
// [Metadata].  This is the expensive, blocking step of candidate construction.
type BuildBackend interface {
	BuildMetadata(ctx context.Context, link Link, editable bool) (*Metadata, error)
}

// An InstalledDistribution is a package already present in the target environment.
type InstalledDistribution struct {
	Metadata `yaml:",inline"`
	Location string `yaml:"location"`
	// InUserSite is true if the distribution lives in the per-user site-packages directory.
	InUserSite bool `yaml:"user_site"`
	// InSitePackages is true if the distribution lives in the global site-packages directory.
	InSitePackages bool `yaml:"site_packages"`
	// Editable is true if the distribution was installed in editable (development) mode.
	Editable bool `yaml:"editable"`
}

// An Environment reports which distributions are installed.
type Environment interface {
	// Snapshot is called once per resolve session; the returned map must not change afterward.
	Snapshot(ctx context.Context) (map[Identifier]*InstalledDistribution, error)
}

// A CacheEntry is a previously built wheel found in a [WheelCache].
type CacheEntry struct {
	Link Link
	// Persistent is false for entries in an ephemeral (per-invocation) cache.
	Persistent bool
}

// A WheelCache remembers wheels built from source artifacts.
type WheelCache interface {
	// Lookup returns the best cached wheel for link that is compatible with the supported tags, or
	// nil if there is none.
	Lookup(link Link, name Identifier, supported []Tag) *CacheEntry
}
