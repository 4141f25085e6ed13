package wheelresolve_test

import (
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/rhansen/wheelresolve"
)

func TestCommandBackend(t *testing.T) {
	t.Parallel()
	link := NewLink("https://example.com/foo-1.0.tar.gz")
	for _, tc := range []struct {
		desc     string
		script   string
		env      []string
		editable bool
		want     *Metadata
		wantErr  string
	}{
		{
			desc:   "metadata",
			script: `printf '{"name": "foo", "version": "1.0", "requires_dist": ["bar>=1"], "requires_python": "%s"}' "$1"`,
			want: &Metadata{Name: "foo", Version: "1.0", RequiresDist: []string{"bar>=1"},
				RequiresPython: "https://example.com/foo-1.0.tar.gz"},
		},
		{
			desc:     "editable",
			script:   `[ "$2" = --editable ] && printf '{"name": "foo", "version": "2.0"}'`,
			editable: true,
			want:     &Metadata{Name: "foo", Version: "2.0"},
		},
		{
			desc:   "environment",
			script: `printf '{"name": "%s", "version": "1.0"}' "$PROJECT"`,
			env:    []string{"PROJECT=foo"},
			want:   &Metadata{Name: "foo", Version: "1.0"},
		},
		{
			desc:    "no output",
			script:  `true`,
			wantErr: `printed no metadata for https://example\.com/foo-1\.0\.tar\.gz$`,
		},
		{
			desc:    "too much output",
			script:  `printf '{"name": "foo"}\n{"name": "bar"}\n'`,
			wantErr: `printed 2 metadata objects`,
		},
		{
			desc:    "hook fails",
			script:  `echo oops >&2; exit 3`,
			wantErr: `exit status 3\noops$`,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			b := &CommandBackend{Args: []string{"sh", "-c", tc.script, "hook"}, Dir: t.TempDir(), Env: tc.env}
			got, err := b.BuildMetadata(t.Context(), link, tc.editable)
			if tc.wantErr != "" {
				if err == nil || !regexp.MustCompile(tc.wantErr).MatchString(err.Error()) {
					t.Fatalf("got error %v, want match for %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("-want +got:\n%s", diff)
			}
		})
	}
}

func TestCommandBackend_Unconfigured(t *testing.T) {
	t.Parallel()
	_, err := (&CommandBackend{}).BuildMetadata(t.Context(), NewLink("https://example.com/x.tar.gz"), false)
	if err == nil || err.Error() != "no build hook configured" {
		t.Errorf("got error %v, want no build hook configured", err)
	}
}
