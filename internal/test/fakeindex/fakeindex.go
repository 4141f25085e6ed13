// Package fakeindex makes it easy to populate an in-memory package index, build backend, and
// installed environment for tests.
package fakeindex

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rhansen/wheelresolve"
	"github.com/rhansen/wheelresolve/internal/repository"
)

type config struct {
	name     string
	release  repository.Release
	buildErr string
}

// An Option controls the creation of a fake release.
type Option func(*config) error

// Id returns an option that sets the release's project and version.  The string has the form
// "name@version".
func Id(nameVer string) Option {
	return func(cfg *config) error {
		name, ver, ok := strings.Cut(nameVer, "@")
		if !ok || name == "" || ver == "" {
			return fmt.Errorf("invalid release id %q; want name@version", nameVer)
		}
		cfg.name, cfg.release.Version = name, ver
		return nil
	}
}

// Requires returns an option that adds dependency lines to the release's metadata.
func Requires(deps ...string) Option {
	return func(cfg *config) error {
		cfg.release.RequiresDist = append(cfg.release.RequiresDist, deps...)
		return nil
	}
}

// RequiresPython returns an option that sets the release's Requires-Python.
func RequiresPython(spec string) Option {
	return func(cfg *config) error {
		cfg.release.RequiresPython = spec
		return nil
	}
}

// Extras returns an option that declares extras provided by the release.
func Extras(extras ...string) Option {
	return func(cfg *config) error {
		cfg.release.ProvidesExtra = append(cfg.release.ProvidesExtra, extras...)
		return nil
	}
}

// Yanked returns an option that marks the release as yanked.
func Yanked(reason string) Option {
	return func(cfg *config) error {
		cfg.release.Yanked, cfg.release.YankedReason = true, reason
		return nil
	}
}

// Wheel returns an option that adds a wheel with the given compressed tag (e.g., "py3-none-any")
// to the release.
func Wheel(tag string) Option {
	return func(cfg *config) error {
		if cfg.name == "" {
			return fmt.Errorf("Wheel option must come after Id")
		}
		cfg.release.Files = append(cfg.release.Files, repository.File{
			Filename: fmt.Sprintf("%s-%s-%s.whl", strings.ReplaceAll(cfg.name, "-", "_"), cfg.release.Version, tag),
		})
		return nil
	}
}

// Sdist returns an option that adds a source archive to the release.
func Sdist() Option {
	return func(cfg *config) error {
		if cfg.name == "" {
			return fmt.Errorf("Sdist option must come after Id")
		}
		cfg.release.Files = append(cfg.release.Files, repository.File{
			Filename: fmt.Sprintf("%s-%s.tar.gz", cfg.name, cfg.release.Version),
		})
		return nil
	}
}

// Hash returns an option that sets the digest ("algorithm:digest") of every file added so far.
func Hash(hash string) Option {
	return func(cfg *config) error {
		for i := range cfg.release.Files {
			cfg.release.Files[i].Hash = hash
		}
		return nil
	}
}

// BuildError returns an option that makes building any of the release's files fail.
func BuildError(msg string) Option {
	return func(cfg *config) error {
		cfg.buildErr = msg
		return nil
	}
}

// An Index is a [repository.Repository] with a test-friendly interface.  Methods call t.Fatal on
// error.
type Index struct {
	*repository.Repository
	t        *testing.T
	projects map[wheelresolve.Identifier]*repository.Project
}

// New returns an empty [Index] that prefers the wheels of [Index.Target].
func New(t *testing.T) *Index {
	t.Helper()
	ix := &Index{
		Repository: repository.New(),
		t:          t,
		projects:   map[wheelresolve.Identifier]*repository.Project{},
	}
	ix.Tags = ix.Target().SupportedTags()
	return ix
}

// Add adds one release to the index.
func (ix *Index) Add(opts ...Option) *Index {
	ix.t.Helper()
	cfg := &config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			ix.t.Fatal(err)
		}
	}
	if cfg.name == "" {
		ix.t.Fatal("release has no Id")
	}
	if len(cfg.release.Files) == 0 {
		cfg.release.Files = []repository.File{{Filename: fmt.Sprintf("%s-%s.tar.gz", cfg.name, cfg.release.Version)}}
	}
	for i := range cfg.release.Files {
		cfg.release.Files[i].BuildError = cfg.buildErr
	}
	id := wheelresolve.CanonicalizeName(cfg.name)
	p, ok := ix.projects[id]
	if !ok {
		p = &repository.Project{Name: cfg.name}
		ix.projects[id] = p
	}
	p.Releases = append(p.Releases, cfg.release)
	if err := ix.AddProject(p); err != nil {
		ix.t.Fatal(err)
	}
	return ix
}

// AddAll is a convenience method to make it easier to add many releases at a time.
func (ix *Index) AddAll(optss ...[]Option) *Index {
	ix.t.Helper()
	for _, opts := range optss {
		ix.Add(opts...)
	}
	return ix
}

// Install marks "name@version" as installed with the given dependencies.
func (ix *Index) Install(nameVer string, requires ...string) *Index {
	ix.t.Helper()
	name, ver, ok := strings.Cut(nameVer, "@")
	if !ok {
		ix.t.Fatalf("invalid installed id %q; want name@version", nameVer)
	}
	ix.AddInstalled(&wheelresolve.InstalledDistribution{
		Metadata:       wheelresolve.Metadata{Name: name, Version: ver, RequiresDist: requires},
		Location:       "/site-packages",
		InSitePackages: true,
	})
	return ix
}

// FileLink returns the index link of a release file.
func (ix *Index) FileLink(name, filename string) wheelresolve.Link {
	return ix.Link(name, repository.File{Filename: filename})
}

// Target returns the interpreter used by [Index.Factory] when none is given: CPython 3.9.1 on
// linux_x86_64.
func (ix *Index) Target() *wheelresolve.TargetPython {
	ix.t.Helper()
	tp, err := wheelresolve.NewTargetPython("3.9.1", "linux_x86_64")
	if err != nil {
		ix.t.Fatal(err)
	}
	return tp
}

// Factory starts a resolve session against the index.
func (ix *Index) Factory(opts wheelresolve.Options) *wheelresolve.Factory {
	ix.t.Helper()
	if opts.Target == nil {
		opts.Target = ix.Target()
	}
	f, err := wheelresolve.NewFactory(ix.t.Context(), ix, ix, nil, ix, opts)
	if err != nil {
		ix.t.Fatal(err)
	}
	return f
}
