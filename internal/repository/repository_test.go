package repository

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rhansen/wheelresolve"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func target(t *testing.T) *wheelresolve.TargetPython {
	t.Helper()
	tp, err := wheelresolve.NewTargetPython("3.9.1", "linux_x86_64")
	if err != nil {
		t.Fatal(err)
	}
	return tp
}

func describe(ics []wheelresolve.IndexCandidate) []string {
	var ret []string
	for _, ic := range ics {
		ret = append(ret, wheelresolve.VersionString(ic.Version)+" "+ic.Link.URL)
	}
	return ret
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "projects", "foo.yaml"), `
name: foo
releases:
  - version: "1.0"
    requires_dist: ["bar>=1"]
  - version: "2.0"
    requires_python: ">=3.8"
    files:
      - filename: foo-2.0-py3-none-any.whl
        hash: sha256:abcd
      - filename: foo-2.0.tar.gz
      - filename: foo-2.0-cp39-cp39-linux_x86_64.whl
`)
	writeFile(t, filepath.Join(dir, "projects", "bar.yaml"), `
name: bar
releases:
  - version: "1.0"
`)
	writeFile(t, filepath.Join(dir, "links.yaml"), `
- url: https://example.com/baz-1.0.tar.gz
  metadata:
    name: baz
    version: "1.0"
- url: https://example.com/broken-1.0.tar.gz
  build_error: no setup.py
`)
	writeFile(t, filepath.Join(dir, "site.yaml"), `
installed:
  - name: foo
    version: "1.0"
    requires_dist: ["bar>=1"]
    location: /site
    site_packages: true
`)
	r, err := Load(t.Context(), dir)
	if err != nil {
		t.Fatal(err)
	}
	r.Tags = target(t).SupportedTags()

	all, err := r.FindAllCandidates(t.Context(), "foo")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{
		"1.0 " + DefaultBaseURL + "/foo/foo-1.0.tar.gz",
		"2.0 " + DefaultBaseURL + "/foo/foo-2.0.tar.gz",
		"2.0 " + DefaultBaseURL + "/foo/foo-2.0-py3-none-any.whl#sha256=abcd",
		"2.0 " + DefaultBaseURL + "/foo/foo-2.0-cp39-cp39-linux_x86_64.whl",
	}, describe(all)); diff != "" {
		t.Errorf("FindAllCandidates (-want +got):\n%s", diff)
	}

	link := r.Link("foo", File{Filename: "foo-1.0.tar.gz"})
	md, err := r.BuildMetadata(t.Context(), link, false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&wheelresolve.Metadata{Name: "foo", Version: "1.0", RequiresDist: []string{"bar>=1"}}, md); diff != "" {
		t.Errorf("BuildMetadata (-want +got):\n%s", diff)
	}
	if got := r.Builds(link); got != 1 {
		t.Errorf("Builds = %d, want 1", got)
	}

	md, err = r.BuildMetadata(t.Context(), r.Link("foo", File{Filename: "foo-2.0-py3-none-any.whl"}), false)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := md.RequiresPython, ">=3.8"; got != want {
		t.Errorf("RequiresPython = %q, want %q", got, want)
	}

	md, err = r.BuildMetadata(t.Context(), wheelresolve.NewLink("https://example.com/baz-1.0.tar.gz"), false)
	if err != nil {
		t.Fatal(err)
	}
	if md.Name != "baz" || md.Version != "1.0" {
		t.Errorf("direct link metadata = %+v, want baz 1.0", md)
	}
	_, err = r.BuildMetadata(t.Context(), wheelresolve.NewLink("https://example.com/broken-1.0.tar.gz"), false)
	if err == nil || err.Error() != "no setup.py" {
		t.Errorf("got error %v, want the configured build error", err)
	}
	_, err = r.BuildMetadata(t.Context(), wheelresolve.NewLink("https://example.com/unknown-1.0.tar.gz"), false)
	if err == nil || !regexp.MustCompile(`^unknown artifact`).MatchString(err.Error()) {
		t.Errorf("got error %v, want unknown artifact", err)
	}

	snap, err := r.Snapshot(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[wheelresolve.Identifier]*wheelresolve.InstalledDistribution{
		"foo": {
			Metadata:       wheelresolve.Metadata{Name: "foo", Version: "1.0", RequiresDist: []string{"bar>=1"}},
			Location:       "/site",
			InSitePackages: true,
		},
	}, snap); diff != "" {
		t.Errorf("Snapshot (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc    string
		files   map[string]string
		wantErr string
	}{
		{
			desc:    "malformed project",
			files:   map[string]string{"projects/foo.yaml": "name: [foo"},
			wantErr: `^failed to parse .*foo\.yaml`,
		},
		{
			desc:    "invalid version",
			files:   map[string]string{"projects/foo.yaml": "name: foo\nreleases:\n  - version: banana\n"},
			wantErr: `^project foo: invalid version "banana"`,
		},
		{
			desc:    "unnamed project",
			files:   map[string]string{"projects/foo.yaml": "releases: []\n"},
			wantErr: `^project has no name$`,
		},
		{
			desc:    "malformed site",
			files:   map[string]string{"site.yaml": "installed: 3\n"},
			wantErr: `^failed to parse .*site\.yaml`,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			for name, content := range tc.files {
				writeFile(t, filepath.Join(dir, filepath.FromSlash(name)), content)
			}
			_, err := Load(t.Context(), dir)
			if err == nil || !regexp.MustCompile(tc.wantErr).MatchString(err.Error()) {
				t.Errorf("got error %v, want match for %q", err, tc.wantErr)
			}
		})
	}
}

func TestFindBestCandidate(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc      string
		spec      string
		hashes    []string
		allowPre  bool
		wantFiles []string
	}{
		{
			desc:      "finals only",
			wantFiles: []string{"foo-1.0.tar.gz", "foo-1.5-py3-none-any.whl", "foo-1.5.tar.gz"},
		},
		{
			desc:      "specifier narrows",
			spec:      "<1.5",
			wantFiles: []string{"foo-1.0.tar.gz"},
		},
		{
			desc:      "specifier names a pre-release",
			spec:      ">=2.0.0-rc.1",
			wantFiles: []string{"foo-2.0.0-rc.1.tar.gz"},
		},
		{
			desc:      "only pre-releases match",
			spec:      ">1.5",
			wantFiles: []string{"foo-2.0.0-rc.1.tar.gz"},
		},
		{
			desc:      "pre-releases allowed",
			allowPre:  true,
			wantFiles: []string{"foo-1.0.tar.gz", "foo-1.5-py3-none-any.whl", "foo-1.5.tar.gz", "foo-2.0.0-rc.1.tar.gz"},
		},
		{
			desc:      "hash filter",
			hashes:    []string{"sha256:abcd"},
			wantFiles: []string{"foo-1.5.tar.gz"},
		},
		{
			desc: "no match",
			spec: ">=3",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			r := New()
			r.Tags = target(t).SupportedTags()
			r.AllowPrereleases = tc.allowPre
			if err := r.AddProject(&Project{Name: "foo", Releases: []Release{
				{Version: "1.0"},
				{Version: "1.5", Files: []File{
					{Filename: "foo-1.5-py3-none-any.whl", Hash: "sha256:ffff"},
					{Filename: "foo-1.5.tar.gz", Hash: "sha256:abcd"},
				}},
				{Version: "2.0.0-rc.1"},
			}}); err != nil {
				t.Fatal(err)
			}
			hashes, err := wheelresolve.NewHashes(tc.hashes...)
			if err != nil {
				t.Fatal(err)
			}
			got, err := r.FindBestCandidate(t.Context(), "foo", wheelresolve.MustParseSpecifier(tc.spec), hashes)
			if err != nil {
				t.Fatal(err)
			}
			var files []string
			for _, ic := range got {
				files = append(files, ic.Link.Filename())
			}
			slices.Sort(files)
			if diff := cmp.Diff(tc.wantFiles, files); diff != "" {
				t.Errorf("-want +got:\n%s", diff)
			}
		})
	}
}

func TestFindBestCandidate_FileOrder(t *testing.T) {
	t.Parallel()
	r := New()
	r.Tags = target(t).SupportedTags()
	if err := r.AddProject(&Project{Name: "foo", Releases: []Release{{Version: "1.0", Files: []File{
		{Filename: "foo-1.0-cp39-cp39-linux_x86_64.whl"},
		{Filename: "foo-1.0-cp310-cp310-linux_x86_64.whl"},
		{Filename: "foo-1.0.tar.gz"},
		{Filename: "foo-1.0-py3-none-any.whl"},
	}}}}); err != nil {
		t.Fatal(err)
	}
	got, err := r.FindBestCandidate(t.Context(), "foo", wheelresolve.Specifier{}, wheelresolve.Hashes{})
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, ic := range got {
		files = append(files, ic.Link.Filename())
	}
	if diff := cmp.Diff([]string{
		"foo-1.0.tar.gz",
		"foo-1.0-cp310-cp310-linux_x86_64.whl",
		"foo-1.0-py3-none-any.whl",
		"foo-1.0-cp39-cp39-linux_x86_64.whl",
	}, files); diff != "" {
		t.Errorf("least to most preferred (-want +got):\n%s", diff)
	}
}

func TestBuildMetadata_LocalProject(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFile), "name: local\nversion: \"0.1\"\nrequires_dist: [\"foo\"]\n")
	r := New()
	md, err := r.BuildMetadata(t.Context(), wheelresolve.NewLink(dir), true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&wheelresolve.Metadata{Name: "local", Version: "0.1", RequiresDist: []string{"foo"}}, md); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}

func TestCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	r := New()
	if _, err := r.FindAllCandidates(ctx, "foo"); err == nil {
		t.Error("FindAllCandidates ignored a canceled context")
	}
	if _, err := r.Snapshot(ctx); err == nil {
		t.Error("Snapshot ignored a canceled context")
	}
	if _, err := Load(ctx, t.TempDir()); err == nil {
		t.Error("Load ignored a canceled context")
	}
}
