package wheelresolve

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLink(t *testing.T) {
	t.Parallel()
	type props struct {
		Filename        string
		IsWheel, IsFile bool
		HashAlg, Digest string
		EggName         string
		WithoutFragment string
	}
	for _, tc := range []struct {
		url  string
		want props
	}{
		{
			url: "https://example.com/pkgs/foo-1.0-py3-none-any.whl#sha256=ABCD",
			want: props{
				Filename:        "foo-1.0-py3-none-any.whl",
				IsWheel:         true,
				HashAlg:         "sha256",
				Digest:          "abcd",
				WithoutFragment: "https://example.com/pkgs/foo-1.0-py3-none-any.whl",
			},
		},
		{
			url: "git+https://example.com/foo.git#egg=foo&subdirectory=src",
			want: props{
				Filename:        "foo.git",
				EggName:         "foo",
				WithoutFragment: "git+https://example.com/foo.git",
			},
		},
		{
			url: "file:///srv/src/foo/",
			want: props{
				Filename:        "foo",
				IsFile:          true,
				WithoutFragment: "file:///srv/src/foo/",
			},
		},
	} {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			l := NewLink(tc.url)
			alg, digest, _ := l.Hash()
			got := props{
				Filename:        l.Filename(),
				IsWheel:         l.IsWheel(),
				IsFile:          l.IsFile(),
				HashAlg:         alg,
				Digest:          digest,
				EggName:         l.EggName(),
				WithoutFragment: l.WithoutFragment(),
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("-want +got:\n%s", diff)
			}
		})
	}
}

func TestNewLink_LocalPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l := NewLink(filepath.Join(dir, "foo-1.0.tar.gz"))
	if !l.IsFile() {
		t.Fatalf("%v is not a file link", l)
	}
	if got, want := l.FilePath(), filepath.Join(dir, "foo-1.0.tar.gz"); got != want {
		t.Errorf("FilePath = %q, want %q", got, want)
	}
	if got, want := NewLink("https://example.com/x").FilePath(), ""; got != want {
		t.Errorf("FilePath of a remote link = %q, want %q", got, want)
	}
}
