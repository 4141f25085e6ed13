package wheelresolve

import (
	"regexp"
	"testing"
)

func TestMarkerEvaluate(t *testing.T) {
	t.Parallel()
	env := mustTarget(t, "3.9.1", "linux_x86_64").MarkerEnvironment()
	for _, tc := range []struct {
		marker string
		extra  string
		want   bool
	}{
		{marker: `python_version >= "3.8"`, want: true},
		{marker: `python_version < "3.9"`, want: false},
		{marker: `python_version < "3.10"`, want: true},
		{marker: `python_full_version == "3.9.1"`, want: true},
		{marker: `'3.9' == python_version`, want: true},
		{marker: `sys_platform == "win32"`, want: false},
		{marker: `sys_platform == "linux" and python_version >= "3.10"`, want: false},
		{marker: `sys_platform == "linux" or python_version >= "3.10"`, want: true},
		{marker: `(os_name == "nt" or os_name == "posix") and platform_machine == "x86_64"`, want: true},
		{marker: `"linux" in sys_platform`, want: true},
		{marker: `"win" not in sys_platform`, want: true},
		{marker: `extra == "test"`, want: false},
		{marker: `extra == "Test"`, extra: "test", want: true},
		{marker: `extra == "test_utils"`, extra: "test-utils", want: true},
	} {
		t.Run(tc.marker, func(t *testing.T) {
			t.Parallel()
			m, err := ParseMarker(tc.marker)
			if err != nil {
				t.Fatal(err)
			}
			e := map[string]string{"extra": tc.extra}
			for k, v := range env {
				e[k] = v
			}
			if got := m.Evaluate(e); got != tc.want {
				t.Errorf("Evaluate = %v, want %v", got, tc.want)
			}
			if got := m.String(); got != tc.marker {
				t.Errorf("String = %q, want %q", got, tc.marker)
			}
		})
	}
}

func TestParseMarker_Errors(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		marker  string
		wantErr string
	}{
		{`python_version >=`, `unexpected end of marker`},
		{`foo == "1"`, `unknown marker variable "foo"`},
		{`python_version = "3"`, `invalid operator "="`},
		{`sys_platform == "linux`, `unterminated string`},
		{`(os_name == "nt"`, `missing closing parenthesis`},
		{`os_name == "nt" extra`, `unexpected "extra"`},
		{`os_name == "nt" & extra == "x"`, `unexpected character`},
	} {
		t.Run(tc.marker, func(t *testing.T) {
			t.Parallel()
			_, err := ParseMarker(tc.marker)
			if err == nil {
				t.Fatalf("no error for %q", tc.marker)
			}
			if !regexp.MustCompile(tc.wantErr).MatchString(err.Error()) {
				t.Errorf("error %q does not match %q", err, tc.wantErr)
			}
		})
	}
}
