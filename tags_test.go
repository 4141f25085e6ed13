package wheelresolve

import (
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustTarget(t *testing.T, version string, platforms ...string) *TargetPython {
	t.Helper()
	tp, err := NewTargetPython(version, platforms...)
	if err != nil {
		t.Fatal(err)
	}
	return tp
}

func TestParseWheelFilename(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		filename string
		want     *Wheel
		wantErr  string
	}{
		{
			filename: "foo_bar-1.0-py2.py3-none-any.whl",
			want: &Wheel{
				Filename: "foo_bar-1.0-py2.py3-none-any.whl",
				Name:     "foo-bar",
				Version:  "1.0",
				Tags:     []Tag{{"py2", "none", "any"}, {"py3", "none", "any"}},
			},
		},
		{
			filename: "foo-1.0-1-cp39-cp39-linux_x86_64.whl",
			want: &Wheel{
				Filename: "foo-1.0-1-cp39-cp39-linux_x86_64.whl",
				Name:     "foo",
				Version:  "1.0",
				Build:    "1",
				Tags:     []Tag{{"cp39", "cp39", "linux_x86_64"}},
			},
		},
		{
			filename: "foo-1.0.tar.gz",
			wantErr:  `^foo-1\.0\.tar\.gz is not a valid wheel filename$`,
		},
	} {
		t.Run(tc.filename, func(t *testing.T) {
			t.Parallel()
			got, err := ParseWheelFilename(tc.filename)
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

func TestParseTags_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := ParseTags("py3-none"); err == nil {
		t.Error("no error for a two-part tag")
	}
}

func TestSupportedTags(t *testing.T) {
	t.Parallel()
	tags := mustTarget(t, "3.9.1", "linux_x86_64").SupportedTags()
	if diff := cmp.Diff([]Tag{
		{"cp39", "cp39", "linux_x86_64"},
		{"cp39", "abi3", "linux_x86_64"},
		{"cp39", "none", "linux_x86_64"},
	}, tags[:3]); diff != "" {
		t.Errorf("most preferred tags (-want +got):\n%s", diff)
	}
	if got, want := tags[len(tags)-1], (Tag{"py30", "none", "any"}); got != want {
		t.Errorf("least preferred tag = %v, want %v", got, want)
	}
	for _, tc := range []struct {
		filename string
		want     int
	}{
		{"foo-1.0-cp39-cp39-linux_x86_64.whl", 0},
		{"foo-1.0-cp36-abi3-linux_x86_64.whl", 5},
		{"foo-1.0-py3-none-any.whl", 14},
		{"foo-1.0-py2.py3-none-any.whl", 14},
		{"foo-1.0-cp310-cp310-linux_x86_64.whl", -1},
		{"foo-1.0-cp39-cp39-macosx_11_0_arm64.whl", -1},
	} {
		w, err := ParseWheelFilename(tc.filename)
		if err != nil {
			t.Fatal(err)
		}
		if got := w.SupportIndexMin(tags); got != tc.want {
			t.Errorf("%s: SupportIndexMin = %d, want %d", tc.filename, got, tc.want)
		}
		if got, want := w.Supported(tags), tc.want >= 0; got != want {
			t.Errorf("%s: Supported = %v, want %v", tc.filename, got, want)
		}
	}
}

func TestSupportedTags_Override(t *testing.T) {
	t.Parallel()
	tp := mustTarget(t, "3.9.1")
	tp.Tags = []Tag{{"py3", "none", "any"}}
	if diff := cmp.Diff([]Tag{{"py3", "none", "any"}}, tp.SupportedTags()); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}

func TestMarkerEnvironment(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		platform string
		want     map[string]string
	}{
		{
			platform: "linux_x86_64",
			want: map[string]string{
				"python_version":      "3.9",
				"python_full_version": "3.9.1",
				"sys_platform":        "linux",
				"platform_system":     "Linux",
				"platform_machine":    "x86_64",
				"os_name":             "posix",
				"implementation_name": "cpython",
			},
		},
		{
			platform: "win_amd64",
			want: map[string]string{
				"python_version":      "3.9",
				"python_full_version": "3.9.1",
				"sys_platform":        "win32",
				"platform_system":     "Windows",
				"platform_machine":    "x86_64",
				"os_name":             "nt",
				"implementation_name": "cpython",
			},
		},
	} {
		t.Run(tc.platform, func(t *testing.T) {
			t.Parallel()
			got := mustTarget(t, "3.9.1", tc.platform).MarkerEnvironment()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("-want +got:\n%s", diff)
			}
		})
	}
}
