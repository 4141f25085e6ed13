package wheelresolve

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	mapset "github.com/deckarep/golang-set/v2"
)

// A Tag is a wheel compatibility tag: interpreter, ABI, and platform (e.g., "cp39-cp39-linux_x86_64").
type Tag struct {
	Interpreter, ABI, Platform string
}

func (t Tag) String() string {
	return t.Interpreter + "-" + t.ABI + "-" + t.Platform
}

// ParseTags expands a possibly compressed tag string such as "py2.py3-none-any" into the individual
// tags it represents.
func ParseTags(s string) ([]Tag, error) {
	parts := strings.Split(strings.ToLower(s), "-")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid compatibility tag %q", s)
	}
	var ret []Tag
	for _, i := range strings.Split(parts[0], ".") {
		for _, a := range strings.Split(parts[1], ".") {
			for _, p := range strings.Split(parts[2], ".") {
				ret = append(ret, Tag{Interpreter: i, ABI: a, Platform: p})
			}
		}
	}
	return ret, nil
}

// A Wheel is the information encoded in a wheel's filename.
type Wheel struct {
	Filename string
	Name     string
	Version  string
	Build    string
	Tags     []Tag
}

var wheelFilenameRe = regexp.MustCompile(
	`^(?P<name>[^\s-]+?)-(?P<ver>[^\s-]*?)(-(?P<build>\d[^-]*?))?-(?P<pyver>[^\s-]+?)-(?P<abi>[^\s-]+?)-(?P<plat>[^\s-]+?)\.whl$`)

// ParseWheelFilename parses a wheel filename such as "foo-1.0-py3-none-any.whl".
func ParseWheelFilename(filename string) (*Wheel, error) {
	m := wheelFilenameRe.FindStringSubmatch(filename)
	if m == nil {
		return nil, fmt.Errorf("%s is not a valid wheel filename", filename)
	}
	group := func(name string) string { return m[wheelFilenameRe.SubexpIndex(name)] }
	tags, err := ParseTags(group("pyver") + "-" + group("abi") + "-" + group("plat"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &Wheel{
		Filename: filename,
		Name:     strings.ReplaceAll(group("name"), "_", "-"),
		Version:  strings.ReplaceAll(group("ver"), "_", "-"),
		Build:    group("build"),
		Tags:     tags,
	}, nil
}

// Supported reports whether any of the wheel's tags is in the supported set.
func (w *Wheel) Supported(supported []Tag) bool {
	return w.SupportIndexMin(supported) >= 0
}

// SupportIndexMin returns the index of the most preferred supported tag matched by the wheel, or -1
// if the wheel is not supported.  Lower is better.
func (w *Wheel) SupportIndexMin(supported []Tag) int {
	mine := mapset.NewThreadUnsafeSet(w.Tags...)
	return slices.IndexFunc(supported, func(t Tag) bool { return mine.Contains(t) })
}

// TargetPython describes the interpreter and platform candidates are resolved for.
type TargetPython struct {
	// Version is the full interpreter version, e.g. 3.9.1.
	Version *semver.Version
	// Implementation is the short interpreter name used in tags, e.g. "cp".
	Implementation string
	// Platforms lists platform tags from most to least preferred, e.g. "manylinux2014_x86_64".
	Platforms []string
	// SysPlatform, PlatformSystem, and PlatformMachine feed environment markers.
	SysPlatform, PlatformSystem, PlatformMachine string
	// Tags overrides the generated compatibility tags when non-nil.
	Tags []Tag
}

// NewTargetPython returns a [TargetPython] for a CPython interpreter of the given version on the
// given platforms.
func NewTargetPython(version string, platforms ...string) (*TargetPython, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		platforms = []string{"linux_x86_64"}
	}
	tp := &TargetPython{
		Version:         v,
		Implementation:  "cp",
		Platforms:       platforms,
		SysPlatform:     "linux",
		PlatformSystem:  "Linux",
		PlatformMachine: "x86_64",
	}
	switch p := platforms[0]; {
	case strings.HasPrefix(p, "win"):
		tp.SysPlatform, tp.PlatformSystem = "win32", "Windows"
	case strings.HasPrefix(p, "macosx"):
		tp.SysPlatform, tp.PlatformSystem = "darwin", "Darwin"
	}
	if i := strings.IndexByte(platforms[0], '_'); i >= 0 && strings.HasPrefix(platforms[0], "linux") {
		tp.PlatformMachine = platforms[0][i+1:]
	}
	return tp, nil
}

// SupportedTags returns the compatibility tags this interpreter accepts, most preferred first.
func (tp *TargetPython) SupportedTags() []Tag {
	if tp.Tags != nil {
		return tp.Tags
	}
	major, minor := tp.Version.Major(), tp.Version.Minor()
	impl := tp.Implementation
	if impl == "" {
		impl = "cp"
	}
	interp := fmt.Sprintf("%s%d%d", impl, major, minor)
	var tags []Tag
	for _, p := range tp.Platforms {
		tags = append(tags,
			Tag{interp, interp, p},
			Tag{interp, "abi3", p},
			Tag{interp, "none", p})
		for m := int(minor) - 1; m >= 2; m-- {
			tags = append(tags, Tag{fmt.Sprintf("%s%d%d", impl, major, m), "abi3", p})
		}
	}
	for _, p := range tp.Platforms {
		tags = append(tags,
			Tag{fmt.Sprintf("py%d%d", major, minor), "none", p},
			Tag{fmt.Sprintf("py%d", major), "none", p})
	}
	tags = append(tags, Tag{interp, "none", "any"})
	tags = append(tags,
		Tag{fmt.Sprintf("py%d%d", major, minor), "none", "any"},
		Tag{fmt.Sprintf("py%d", major), "none", "any"})
	for m := int(minor) - 1; m >= 0; m-- {
		tags = append(tags, Tag{fmt.Sprintf("py%d%d", major, m), "none", "any"})
	}
	return tags
}

// MarkerEnvironment returns the values of the environment marker variables for this interpreter.
func (tp *TargetPython) MarkerEnvironment() map[string]string {
	return map[string]string{
		"python_version":      fmt.Sprintf("%d.%d", tp.Version.Major(), tp.Version.Minor()),
		"python_full_version": VersionString(tp.Version),
		"sys_platform":        tp.SysPlatform,
		"platform_system":     tp.PlatformSystem,
		"platform_machine":    tp.PlatformMachine,
		"os_name":             map[bool]string{true: "nt", false: "posix"}[tp.SysPlatform == "win32"],
		"implementation_name": "cpython",
	}
}
