// Package repository is a package index, build backend, and installed environment described by
// YAML files.  It serves the resolver's collaborator interfaces for the command-line tool and for
// tests.
//
// A repository directory contains:
//
//	projects/*.yaml  one [Project] per file
//	links.yaml       [DirectLink] entries for artifacts outside the index (optional)
//	site.yaml        the installed distributions, as a [Site] (optional)
//
// A local project directory referenced by a file:// link may describe itself in a
// "wheelresolve.yaml" file holding its [wheelresolve.Metadata].
package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rhansen/wheelresolve"
	"github.com/rhansen/wheelresolve/internal/syncmap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL prefixes the links of index files.
const DefaultBaseURL = "https://index.invalid/packages"

// ProjectFile is the name of the metadata file inside a local project directory.
const ProjectFile = "wheelresolve.yaml"

// A File is one artifact of a release.
type File struct {
	Filename string `yaml:"filename"`
	// Hash is "algorithm:digest", e.g. "sha256:0123...".
	Hash string `yaml:"hash"`
	// BuildError, if set, makes building the file fail with this message.
	BuildError string `yaml:"build_error"`
	// Metadata overrides the release's metadata for this file.
	Metadata *wheelresolve.Metadata `yaml:"metadata"`
}

// A Release is one version of a project.
type Release struct {
	Version        string   `yaml:"version"`
	Yanked         bool     `yaml:"yanked"`
	YankedReason   string   `yaml:"yanked_reason"`
	RequiresDist   []string `yaml:"requires_dist"`
	RequiresPython string   `yaml:"requires_python"`
	ProvidesExtra  []string `yaml:"provides_extra"`
	// Files defaults to a single source archive.
	Files []File `yaml:"files"`
}

// A Project is everything the index knows about one project.
type Project struct {
	Name     string    `yaml:"name"`
	Releases []Release `yaml:"releases"`
}

// A DirectLink is an artifact that can be installed by URL but is not on the index.
type DirectLink struct {
	URL        string                `yaml:"url"`
	Metadata   wheelresolve.Metadata `yaml:"metadata"`
	BuildError string                `yaml:"build_error"`
}

// A Site lists the installed distributions.
type Site struct {
	Installed []wheelresolve.InstalledDistribution `yaml:"installed"`
}

type artifact struct {
	metadata   wheelresolve.Metadata
	buildError string
}

// A Repository implements [wheelresolve.Index], [wheelresolve.BuildBackend], and
// [wheelresolve.Environment].  It is safe for concurrent use.
type Repository struct {
	// BaseURL prefixes the links of index files.
	BaseURL string
	// Tags lists the supported wheel tags, most preferred first.  It orders the files of a
	// release: source archives, then wheels not matching Tags, then wheels by preference.
	Tags []wheelresolve.Tag
	// AllowPrereleases offers pre-release versions even if final releases match.
	AllowPrereleases bool

	mu        sync.Mutex
	projects  map[wheelresolve.Identifier]*Project
	artifacts map[string]artifact
	installed map[wheelresolve.Identifier]*wheelresolve.InstalledDistribution
	builds    syncmap.Map[wheelresolve.Link, *atomic.Int64]
}

var (
	_ wheelresolve.Index        = (*Repository)(nil)
	_ wheelresolve.BuildBackend = (*Repository)(nil)
	_ wheelresolve.Environment  = (*Repository)(nil)
)

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		BaseURL:   DefaultBaseURL,
		projects:  map[wheelresolve.Identifier]*Project{},
		artifacts: map[string]artifact{},
		installed: map[wheelresolve.Identifier]*wheelresolve.InstalledDistribution{},
	}
}

func readYaml[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := yaml.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v, nil
}

// Load reads a repository directory.  The project files are read in parallel.
func Load(ctx context.Context, dir string) (*Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := New()
	paths, err := filepath.Glob(filepath.Join(dir, "projects", "*.yaml"))
	if err != nil {
		return nil, err
	}
	gr, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		gr.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := readYaml[Project](path)
			if err != nil {
				return err
			}
			slog.DebugContext(ctx, "loaded project", "path", path, "name", p.Name, "releases", len(p.Releases))
			return r.AddProject(p)
		})
	}
	gr.Go(func() error {
		links, err := readYaml[[]DirectLink](filepath.Join(dir, "links.yaml"))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}
		for _, l := range *links {
			r.AddLink(l)
		}
		return nil
	})
	gr.Go(func() error {
		site, err := readYaml[Site](filepath.Join(dir, "site.yaml"))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}
		for i := range site.Installed {
			r.AddInstalled(&site.Installed[i])
		}
		return nil
	})
	if err := gr.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

func defaultFiles(name, version string) []File {
	return []File{{Filename: fmt.Sprintf("%s-%s.tar.gz", name, version)}}
}

// Link returns the index link of a project's file.
func (r *Repository) Link(project string, f File) wheelresolve.Link {
	u := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(r.BaseURL, "/"), wheelresolve.CanonicalizeName(project), f.Filename)
	if alg, digest, ok := strings.Cut(f.Hash, ":"); ok {
		u += "#" + alg + "=" + digest
	}
	return wheelresolve.Link{URL: u}
}

// AddProject adds (or replaces) a project on the index.
func (r *Repository) AddProject(p *Project) error {
	if p.Name == "" {
		return errors.New("project has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p.Releases {
		rel := &p.Releases[i]
		if _, err := wheelresolve.ParseVersion(rel.Version); err != nil {
			return fmt.Errorf("project %s: %w", p.Name, err)
		}
		if len(rel.Files) == 0 {
			rel.Files = defaultFiles(p.Name, rel.Version)
		}
		for _, f := range rel.Files {
			md := wheelresolve.Metadata{
				Name:           p.Name,
				Version:        rel.Version,
				RequiresDist:   rel.RequiresDist,
				RequiresPython: rel.RequiresPython,
				ProvidesExtra:  rel.ProvidesExtra,
			}
			if f.Metadata != nil {
				md = *f.Metadata
			}
			r.artifacts[r.Link(p.Name, f).WithoutFragment()] = artifact{md, f.BuildError}
		}
	}
	r.projects[wheelresolve.CanonicalizeName(p.Name)] = p
	return nil
}

// AddLink registers an artifact reachable only by its URL.
func (r *Repository) AddLink(l DirectLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[wheelresolve.NewLink(l.URL).WithoutFragment()] = artifact{l.Metadata, l.BuildError}
}

// AddInstalled marks a distribution as installed.
func (r *Repository) AddInstalled(d *wheelresolve.InstalledDistribution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[wheelresolve.CanonicalizeName(d.Name)] = d
}

// Builds returns how many times link has been built.
func (r *Repository) Builds(link wheelresolve.Link) int {
	n, ok := r.builds.Load(link)
	if !ok {
		return 0
	}
	return int(n.Load())
}

// fileRank orders the files of one release: source archives first, then wheels from least to
// most preferred.
func (r *Repository) fileRank(f File) int {
	w, err := wheelresolve.ParseWheelFilename(f.Filename)
	if err != nil {
		return -2
	}
	idx := w.SupportIndexMin(r.Tags)
	if idx < 0 {
		return -1
	}
	return len(r.Tags) - idx
}

func (r *Repository) candidates(name wheelresolve.Identifier, keep func(*wheelresolve.IndexCandidate, File) bool) []wheelresolve.IndexCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[name]
	if !ok {
		return nil
	}
	type ranked struct {
		ic   wheelresolve.IndexCandidate
		rank int
	}
	var all []ranked
	for _, rel := range p.Releases {
		v, err := wheelresolve.ParseVersion(rel.Version)
		if err != nil {
			continue
		}
		for _, f := range rel.Files {
			ic := wheelresolve.IndexCandidate{
				Name:         name,
				Version:      v,
				Link:         r.Link(p.Name, f),
				Yanked:       rel.Yanked,
				YankedReason: rel.YankedReason,
			}
			if keep(&ic, f) {
				all = append(all, ranked{ic, r.fileRank(f)})
			}
		}
	}
	slices.SortStableFunc(all, func(a, b ranked) int {
		if c := wheelresolve.VersionCompare(a.ic.Version, b.ic.Version); c != 0 {
			return c
		}
		return cmp.Compare(a.rank, b.rank)
	})
	out := make([]wheelresolve.IndexCandidate, 0, len(all))
	for _, a := range all {
		out = append(out, a.ic)
	}
	return out
}

// FindBestCandidate returns the files whose version matches spec and whose hash is allowed,
// ordered by version and then by file preference.  Pre-releases are only offered if allowed, if
// spec mentions one, or if nothing else matches.
func (r *Repository) FindBestCandidate(ctx context.Context, name wheelresolve.Identifier,
	spec wheelresolve.Specifier, hashes wheelresolve.Hashes) ([]wheelresolve.IndexCandidate, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := r.candidates(name, func(ic *wheelresolve.IndexCandidate, f File) bool {
		if !spec.Contains(ic.Version, true) {
			return false
		}
		if hashes.IsEmpty() {
			return true
		}
		alg, digest, ok := strings.Cut(f.Hash, ":")
		return ok && hashes.IsAllowed(alg, digest)
	})
	if r.AllowPrereleases || spec.Prereleases() {
		return matches, nil
	}
	final := slices.DeleteFunc(slices.Clone(matches), func(ic wheelresolve.IndexCandidate) bool {
		return wheelresolve.IsPrerelease(ic.Version)
	})
	if len(final) == 0 {
		return matches, nil
	}
	return final, nil
}

// FindAllCandidates returns every file of the project.
func (r *Repository) FindAllCandidates(ctx context.Context, name wheelresolve.Identifier) ([]wheelresolve.IndexCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.candidates(name, func(*wheelresolve.IndexCandidate, File) bool { return true }), nil
}

// BuildMetadata returns the metadata registered for link, or reads a local project directory's
// metadata file.
func (r *Repository) BuildMetadata(ctx context.Context, link wheelresolve.Link, editable bool) (*wheelresolve.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, _ := r.builds.LoadOrStore(link, new(atomic.Int64))
	n.Add(1)
	r.mu.Lock()
	a, ok := r.artifacts[link.WithoutFragment()]
	r.mu.Unlock()
	slog.DebugContext(ctx, "building metadata", "link", link, "editable", editable)
	if !ok {
		if !link.IsFile() {
			return nil, fmt.Errorf("unknown artifact %v", link)
		}
		md, err := readYaml[wheelresolve.Metadata](filepath.Join(link.FilePath(), ProjectFile))
		if err != nil {
			return nil, err
		}
		return md, nil
	}
	if a.buildError != "" {
		return nil, errors.New(a.buildError)
	}
	md := a.metadata
	return &md, nil
}

// Snapshot returns a copy of the installed distributions.
func (r *Repository) Snapshot(ctx context.Context) (map[wheelresolve.Identifier]*wheelresolve.InstalledDistribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[wheelresolve.Identifier]*wheelresolve.InstalledDistribution, len(r.installed))
	for id, d := range r.installed {
		dc := *d
		snap[id] = &dc
	}
	return snap, nil
}
