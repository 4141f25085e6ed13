package wheelresolve

import (
	"regexp"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-cmp/cmp"
)

func mustVersion(t *testing.T, v string) *semver.Version {
	t.Helper()
	ver, err := ParseVersion(v)
	if err != nil {
		t.Fatal(err)
	}
	return ver
}

func TestSpecifierContains(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		spec        string
		ver         string
		prereleases bool
		want        bool
	}{
		{spec: "", ver: "1.0", want: true},
		{spec: ">=1.0,<2.0", ver: "1.0", want: true},
		{spec: ">=1.0,<2.0", ver: "1.5", want: true},
		{spec: ">=1.0,<2.0", ver: "2.0", want: false},
		{spec: "==1.0", ver: "1.0.0", want: true},
		{spec: "!=1.0", ver: "1.0.0", want: false},
		{spec: "==1.*", ver: "1.9", want: true},
		{spec: "==1.*", ver: "2.0", want: false},
		{spec: "!=1.2.*", ver: "1.2.5", want: false},
		{spec: "!=1.2.*", ver: "1.3", want: true},
		{spec: "~=1.4", ver: "1.9", want: true},
		{spec: "~=1.4", ver: "1.3", want: false},
		{spec: "~=1.4", ver: "2.0", want: false},
		{spec: "~=1.4.2", ver: "1.4.9", want: true},
		{spec: "~=1.4.2", ver: "1.5", want: false},
		{spec: "===1.0", ver: "1.0", want: true},
		{spec: "===1.0", ver: "1.0.0", want: false},
		{spec: ">=1.0", ver: "2.0.0-rc.1", want: false},
		{spec: ">=1.0", ver: "2.0.0-rc.1", prereleases: true, want: true},
		{spec: ">=2.0.0-rc.1", ver: "2.0.0-rc.1", want: true},
		{spec: "<2.0", ver: "2.0rc1", prereleases: true, want: false},
		{spec: "<2.0", ver: "2.0.dev0", prereleases: true, want: false},
		{spec: "<2.0", ver: "1.9rc1", prereleases: true, want: true},
		{spec: "<2.0rc2", ver: "2.0rc1", want: true},
		{spec: ">1.0", ver: "1.0.post1", want: false},
		{spec: ">1.0", ver: "1.0.1", want: true},
		{spec: ">1.0.post1", ver: "1.0.post2", want: true},
		{spec: ">=1.0", ver: "1.0.post1", want: true},
		{spec: "~=2020.1.1", ver: "2020.1.1.1", want: true},
		{spec: "==1.0.*", ver: "1.0.post1", want: true},
		{spec: "!=1.0", ver: "1.0+local", want: false},
		{spec: "==1!2.0", ver: "2.0", want: false},
		{spec: "===1.0a1", ver: "1.0-alpha1", prereleases: true, want: true},
	} {
		t.Run(tc.spec+" "+tc.ver, func(t *testing.T) {
			t.Parallel()
			s, err := ParseSpecifier(tc.spec)
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Contains(mustVersion(t, tc.ver), tc.prereleases); got != tc.want {
				t.Errorf("%q.Contains(%v, %v) = %v, want %v", tc.spec, tc.ver, tc.prereleases, got, tc.want)
			}
		})
	}
}

func TestSpecifierString(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc string
		got  Specifier
		want string
	}{
		{"empty", Specifier{}, ""},
		{"sorted", MustParseSpecifier(">=1, <2"), "<2,>=1"},
		{"deduplicated", MustParseSpecifier(">=1,>=1"), ">=1"},
		{"and", MustParseSpecifier(">=1").And(MustParseSpecifier("<2")), "<2,>=1"},
		{"and overlapping", MustParseSpecifier(">=1,<3").And(MustParseSpecifier("<3,!=2.0")), "!=2.0,<3,>=1"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			if got := tc.got.String(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSpecifierOperators(t *testing.T) {
	t.Parallel()
	got := MustParseSpecifier(">=1,<2,~=1.2").Operators()
	if diff := cmp.Diff([]string{"<", ">=", "~="}, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
	if !MustParseSpecifier("").IsEmpty() {
		t.Error("empty specifier is not empty")
	}
}

func TestParseSpecifier_Errors(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		spec    string
		wantErr string
	}{
		{"foo", `invalid version specifier "foo"`},
		{">=abc", `invalid version "abc"`},
		{">=1.*", `wildcard not allowed`},
		{"~=1", `needs at least two components`},
		{">=1,", `invalid version specifier ""`},
	} {
		t.Run(tc.spec, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSpecifier(tc.spec)
			if err == nil {
				t.Fatalf("no error for %q", tc.spec)
			}
			if !regexp.MustCompile(tc.wantErr).MatchString(err.Error()) {
				t.Errorf("error %q does not match %q", err, tc.wantErr)
			}
		})
	}
}

func TestVersionKey(t *testing.T) {
	t.Parallel()
	a, b := mustVersion(t, "1.0"), mustVersion(t, "1.0.0")
	if versionKey(a) != versionKey(b) {
		t.Errorf("versionKey(1.0) = %q, versionKey(1.0.0) = %q", versionKey(a), versionKey(b))
	}
	if VersionCompare(a, b) != 0 {
		t.Error("1.0 and 1.0.0 compare unequal")
	}
	if got, want := VersionString(a), "1.0"; got != want {
		t.Errorf("VersionString = %q, want %q", got, want)
	}
	if got := VersionString(nil); got != "" {
		t.Errorf("VersionString(nil) = %q", got)
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		in      string
		want    string
		wantPre bool
	}{
		{in: "1.0", want: "1.0"},
		{in: "v1.2", want: "1.2"},
		{in: "1.0a1", want: "1.0a1", wantPre: true},
		{in: "2.0rc1", want: "2.0rc1", wantPre: true},
		{in: "2.0.0-rc.1", want: "2.0.0rc1", wantPre: true},
		{in: "1.0-alpha1", want: "1.0a1", wantPre: true},
		{in: "1.0c1", want: "1.0rc1", wantPre: true},
		{in: "1.0.dev0", want: "1.0.dev0", wantPre: true},
		{in: "1.0.post1", want: "1.0.post1"},
		{in: "1.0-1", want: "1.0.post1"},
		{in: "1.0.post", want: "1.0.post0"},
		{in: "1.0a1.post2.dev3", want: "1.0a1.post2.dev3", wantPre: true},
		{in: "2020.1.1.1", want: "2020.1.1.1"},
		{in: "1.2.3.4rc1.post1", want: "1.2.3.4rc1.post1", wantPre: true},
		{in: "1.0.0.0", want: "1.0.0.0"},
		{in: "1.0.0.1.0", want: "1.0.0.1.0"},
		{in: "1!2.0", want: "1!2.0"},
		{in: "1.0+Ubuntu-1", want: "1.0+ubuntu.1"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			v := mustVersion(t, tc.in)
			if got := VersionString(v); got != tc.want {
				t.Errorf("VersionString = %q, want %q", got, tc.want)
			}
			if got := IsPrerelease(v); got != tc.wantPre {
				t.Errorf("IsPrerelease = %v, want %v", got, tc.wantPre)
			}
		})
	}
}

func TestParseVersion_Errors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "banana", "1.0.x", "1!", "1.0+", "1..0"} {
		if _, err := ParseVersion(in); err == nil {
			t.Errorf("no error for %q", in)
		}
	}
}

func TestVersionCompare_Order(t *testing.T) {
	t.Parallel()
	ordered := []string{
		"1.0.dev0",
		"1.0a1.dev1",
		"1.0a1",
		"1.0a1.post1",
		"1.0a2",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0.post1.dev0",
		"1.0.post1",
		"1.0.post2",
		"1.0.0.1rc1",
		"1.0.0.1",
		"1.0.0.1.post1",
		"1.0.0.1.5",
		"1.0.1.dev0",
		"1.0.1",
		"1.1a1",
		"2020.1.1.1",
		"1!0.1",
	}
	for i, a := range ordered {
		for j, b := range ordered {
			want := 0
			switch {
			case i < j:
				want = -1
			case i > j:
				want = 1
			}
			if got := VersionCompare(mustVersion(t, a), mustVersion(t, b)); got != want {
				t.Errorf("VersionCompare(%s, %s) = %d, want %d", a, b, got, want)
			}
		}
	}
	if VersionCompare(mustVersion(t, "1.0"), mustVersion(t, "1.0.0.0")) != 0 {
		t.Error("1.0 and 1.0.0.0 compare unequal")
	}
}
