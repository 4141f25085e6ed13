package wheelresolve

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	mapset "github.com/deckarep/golang-set/v2"
)

// Versions follow PEP 440 but are stored as [semver.Version] values whose native ordering matches
// PEP 440 ordering.  The encoding works as follows:
//
//   - The first three release components map to major, minor, and patch.  A non-zero epoch is added
//     to major above bit 32.
//   - Pre-releases and dev releases of X.Y.Z are semver pre-releases of X.Y.Z whose identifiers are
//     phase, number, post slot, dev slot.  Phases sort "0dev" < "a" < "b" < "rc".  A post slot of 0
//     means no post-release, and a dev slot of "z" means no dev release.
//   - Post-releases of X.Y.Z, and releases with more than three components, sort between X.Y.Z and
//     every pre-release of X.Y.(Z+1).  They are stored as pre-releases of X.Y.(Z+1) whose identifiers
//     are numeric: each extra release component plus one, then 0, then the four-identifier tail.
//   - Build metadata records the number of release components as written ("r2"), the epoch ("e1"),
//     and the local label ("l" followed by its segments).  Semver ignores metadata when comparing,
//     so local labels do not affect ordering.
//
// Use [VersionString] rather than the semver String method to render a version.

const epochShift = 32

var versionRe = regexp.MustCompile(`(?i)^\s*v?(?:([0-9]+)!)?([0-9]+(?:\.[0-9]+)*)` +
	`(?:[-_.]?(alpha|a|beta|b|preview|pre|c|rc)[-_.]?([0-9]+)?)?` +
	`(?:-([0-9]+)|[-_.]?(post|rev|r)[-_.]?([0-9]+)?)?` +
	`(?:[-_.]?(dev)[-_.]?([0-9]+)?)?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?\s*$`)

// versionParts is the decoded form of a version.
type versionParts struct {
	epoch   uint64
	release []uint64
	pre     string // "a", "b", "rc", or empty.
	preN    uint64
	hasPost bool
	post    uint64
	hasDev  bool
	dev     uint64
	local   []string
}

func (p versionParts) isPrerelease() bool {
	return p.pre != "" || p.hasDev
}

func (p versionParts) String() string {
	var b strings.Builder
	if p.epoch > 0 {
		fmt.Fprintf(&b, "%d!", p.epoch)
	}
	for i, r := range p.release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(r, 10))
	}
	if p.pre != "" {
		fmt.Fprintf(&b, "%s%d", p.pre, p.preN)
	}
	if p.hasPost {
		fmt.Fprintf(&b, ".post%d", p.post)
	}
	if p.hasDev {
		fmt.Fprintf(&b, ".dev%d", p.dev)
	}
	if len(p.local) > 0 {
		b.WriteString("+" + strings.Join(p.local, "."))
	}
	return b.String()
}

// tail returns the phase, number, post slot, and dev slot identifiers.
func (p versionParts) tail() []string {
	phase, n := "z", uint64(0)
	switch {
	case p.pre != "":
		phase, n = p.pre, p.preN
	case p.hasDev && !p.hasPost:
		phase = "0dev"
	}
	post, dev := "0", "z"
	if p.hasPost {
		post = strconv.FormatUint(p.post+1, 10)
	}
	if p.hasDev {
		dev = strconv.FormatUint(p.dev, 10)
	}
	return []string{phase, strconv.FormatUint(n, 10), post, dev}
}

func (p versionParts) encode() *semver.Version {
	rel := slices.Clone(p.release)
	for len(rel) < 3 {
		rel = append(rel, 0)
	}
	major, minor, patch := rel[0], rel[1], rel[2]
	extras := rel[3:]
	for len(extras) > 0 && extras[len(extras)-1] == 0 {
		extras = extras[:len(extras)-1]
	}
	var ids []string
	switch {
	case len(extras) > 0 || (p.pre == "" && p.hasPost):
		for _, x := range extras {
			ids = append(ids, strconv.FormatUint(x+1, 10))
		}
		ids = append(ids, "0")
		ids = append(ids, p.tail()...)
		patch++
	case p.isPrerelease():
		ids = p.tail()
	}
	meta := []string{fmt.Sprintf("r%d", len(p.release))}
	if p.epoch > 0 {
		major += p.epoch << epochShift
		meta = append(meta, fmt.Sprintf("e%d", p.epoch))
	}
	if len(p.local) > 0 {
		meta = append(meta, "l")
		meta = append(meta, p.local...)
	}
	return semver.New(major, minor, patch, strings.Join(ids, "."), strings.Join(meta, "."))
}

// partsOf decodes a version produced by [ParseVersion].  Versions built some other way are treated
// as plain semver.
func partsOf(v *semver.Version) versionParts {
	meta := strings.Split(v.Metadata(), ".")
	n, err := strconv.Atoi(strings.TrimPrefix(meta[0], "r"))
	if !strings.HasPrefix(meta[0], "r") || err != nil {
		return versionParts{release: []uint64{v.Major(), v.Minor(), v.Patch()}, pre: v.Prerelease()}
	}
	var p versionParts
	major := v.Major()
	for i := 1; i < len(meta); i++ {
		if meta[i] == "l" {
			p.local = meta[i+1:]
			break
		}
		if e, ok := strings.CutPrefix(meta[i], "e"); ok {
			p.epoch, _ = strconv.ParseUint(e, 10, 64)
			major -= p.epoch << epochShift
		}
	}
	rel := []uint64{major, v.Minor(), v.Patch()}
	var ids []string
	if v.Prerelease() != "" {
		ids = strings.Split(v.Prerelease(), ".")
	}
	if len(ids) > 0 {
		if _, err := strconv.ParseUint(ids[0], 10, 64); err == nil {
			rel[2]--
			for len(ids) > 0 && ids[0] != "0" {
				x, _ := strconv.ParseUint(ids[0], 10, 64)
				rel = append(rel, x-1)
				ids = ids[1:]
			}
			if len(ids) > 0 {
				ids = ids[1:]
			}
		}
	}
	for len(rel) < n {
		rel = append(rel, 0)
	}
	p.release = rel[:n]
	if len(ids) == 4 {
		if ids[0] != "z" && ids[0] != "0dev" {
			p.pre = ids[0]
			p.preN, _ = strconv.ParseUint(ids[1], 10, 64)
		}
		if ids[2] != "0" {
			p.hasPost = true
			p.post, _ = strconv.ParseUint(ids[2], 10, 64)
			p.post--
		}
		if ids[3] != "z" {
			p.hasDev = true
			p.dev, _ = strconv.ParseUint(ids[3], 10, 64)
		}
	}
	return p
}

func trailingZeros(s []uint64) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == 0; i-- {
		n++
	}
	return n
}

var preNames = map[string]string{
	"alpha": "a", "a": "a",
	"beta": "b", "b": "b",
	"c": "rc", "pre": "rc", "preview": "rc", "rc": "rc",
}

// ParseVersion parses a PEP 440 version such as "1.2", "2.0rc1", "1.0.post1", "1!2.0", or
// "2020.1.1.1".  Alternative spellings accepted by PEP 440 (e.g., "2.0.0-rc.1", "1.0-alpha1") are
// normalized.
func ParseVersion(v string) (*semver.Version, error) {
	m := versionRe.FindStringSubmatch(v)
	if m == nil {
		return nil, fmt.Errorf("invalid version %q", v)
	}
	num := func(s string) (uint64, error) {
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", v, err)
		}
		return n, nil
	}
	var p versionParts
	var err error
	if p.epoch, err = num(m[1]); err != nil {
		return nil, err
	}
	for _, r := range strings.Split(m[2], ".") {
		n, err := num(r)
		if err != nil {
			return nil, err
		}
		p.release = append(p.release, n)
	}
	if p.epoch > 0 && p.release[0] >= 1<<epochShift {
		return nil, fmt.Errorf("invalid version %q: release too large for an epoch", v)
	}
	if m[3] != "" {
		p.pre = preNames[strings.ToLower(m[3])]
		if p.preN, err = num(m[4]); err != nil {
			return nil, err
		}
	}
	if m[5] != "" || m[6] != "" {
		p.hasPost = true
		if p.post, err = num(m[5] + m[7]); err != nil {
			return nil, err
		}
	}
	if m[8] != "" {
		p.hasDev = true
		if p.dev, err = num(m[9]); err != nil {
			return nil, err
		}
	}
	if m[10] != "" {
		p.local = strings.FieldsFunc(strings.ToLower(m[10]), func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		})
	}
	return p.encode(), nil
}

// VersionCompare orders versions from oldest to newest.  It can be passed to [slices.SortFunc].
func VersionCompare(a, b *semver.Version) int {
	return a.Compare(b)
}

// IsPrerelease reports whether v is a pre-release or a dev release.
func IsPrerelease(v *semver.Version) bool {
	return partsOf(v).isPrerelease()
}

// versionKey is used to deduplicate versions that compare equal but were written differently
// (e.g., "1.0" and "1.0.0").
func versionKey(v *semver.Version) string {
	key := fmt.Sprintf("%d.%d.%d-%s", v.Major(), v.Minor(), v.Patch(), v.Prerelease())
	if local := partsOf(v).local; len(local) > 0 {
		key += "+" + strings.Join(local, ".")
	}
	return key
}

// VersionString renders v in normalized PEP 440 form, keeping the number of release components as
// written.
func VersionString(v *semver.Version) string {
	if v == nil {
		return ""
	}
	if !strings.HasPrefix(v.Metadata(), "r") {
		return v.Original()
	}
	return partsOf(v).String()
}

// sameBase reports whether a and b have the same epoch and release, ignoring trailing zeros.
func sameBase(a, b *semver.Version) bool {
	pa, pb := partsOf(a), partsOf(b)
	ra := pa.release[:len(pa.release)-trailingZeros(pa.release)]
	rb := pb.release[:len(pb.release)-trailingZeros(pb.release)]
	return pa.epoch == pb.epoch && slices.Equal(ra, rb)
}

var clauseRe = regexp.MustCompile(`^\s*(~=|===|==|!=|<=|>=|<|>)\s*(\S+?)\s*$`)

type specifierClause struct {
	op       string
	text     string // Version text as written, including any ".*" suffix.
	ver      *semver.Version
	prefix   []uint64 // Release components for wildcard and compatible-release matching.
	wildcard bool
}

func parseClause(s string) (specifierClause, error) {
	m := clauseRe.FindStringSubmatch(s)
	if m == nil {
		return specifierClause{}, fmt.Errorf("invalid version specifier %q", strings.TrimSpace(s))
	}
	c := specifierClause{op: m[1], text: m[2]}
	if c.op == "===" {
		// Arbitrary equality compares strings; the version need not parse.
		c.ver, _ = ParseVersion(c.text)
		return c, nil
	}
	release := c.text
	if strings.HasSuffix(release, ".*") {
		if c.op != "==" && c.op != "!=" {
			return specifierClause{}, fmt.Errorf("wildcard not allowed with %q in %q", c.op, s)
		}
		c.wildcard = true
		release = strings.TrimSuffix(release, ".*")
	}
	ver, err := ParseVersion(release)
	if err != nil {
		return specifierClause{}, err
	}
	c.ver = ver
	c.prefix = partsOf(ver).release
	if c.op == "~=" && len(c.prefix) < 2 {
		return specifierClause{}, fmt.Errorf("compatible release %q needs at least two components", s)
	}
	return c, nil
}

func (c specifierClause) String() string {
	return c.op + c.text
}

func hasPrefix(v *semver.Version, prefix []uint64) bool {
	rel := partsOf(v).release
	for i, p := range prefix {
		r := uint64(0)
		if i < len(rel) {
			r = rel[i]
		}
		if r != p {
			return false
		}
	}
	return true
}

func (c specifierClause) contains(v *semver.Version) bool {
	switch c.op {
	case "===":
		return strings.EqualFold(VersionString(v), c.text)
	case "==":
		if c.wildcard {
			return hasPrefix(v, c.prefix)
		}
		return v.Equal(c.ver)
	case "!=":
		if c.wildcard {
			return !hasPrefix(v, c.prefix)
		}
		return !v.Equal(c.ver)
	case "<=":
		return v.Compare(c.ver) <= 0
	case ">=":
		return v.Compare(c.ver) >= 0
	case "<":
		// A pre-release of V is not less than V unless V is itself a pre-release.
		if v.Compare(c.ver) >= 0 {
			return false
		}
		return IsPrerelease(c.ver) || !IsPrerelease(v) || !sameBase(v, c.ver)
	case ">":
		// Likewise a post-release of V is not greater than V unless V is a post-release.
		if v.Compare(c.ver) <= 0 {
			return false
		}
		return partsOf(c.ver).hasPost || !partsOf(v).hasPost || !sameBase(v, c.ver)
	case "~=":
		return v.Compare(c.ver) >= 0 && hasPrefix(v, c.prefix[:len(c.prefix)-1])
	default:
		panic(fmt.Errorf("unknown specifier operator %q", c.op))
	}
}

// A Specifier is a conjunction of version clauses such as ">=1.0,<2.0".  The zero value matches
// every version.
type Specifier struct {
	clauses []specifierClause
}

// ParseSpecifier parses a comma-separated list of version clauses.  The empty string yields the
// zero [Specifier].
func ParseSpecifier(s string) (Specifier, error) {
	var spec Specifier
	if strings.TrimSpace(s) == "" {
		return spec, nil
	}
	for _, part := range strings.Split(s, ",") {
		c, err := parseClause(part)
		if err != nil {
			return Specifier{}, err
		}
		spec.clauses = append(spec.clauses, c)
	}
	return spec.normalized(), nil
}

// MustParseSpecifier is like [ParseSpecifier] but panics on error.
func MustParseSpecifier(s string) Specifier {
	spec, err := ParseSpecifier(s)
	if err != nil {
		panic(err)
	}
	return spec
}

func (s Specifier) normalized() Specifier {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out []specifierClause
	for _, c := range s.clauses {
		if seen.Add(c.String()) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b specifierClause) int { return strings.Compare(a.String(), b.String()) })
	return Specifier{clauses: out}
}

// And returns the intersection of two specifiers: a version is contained in the result if and only
// if it is contained in both.
func (s Specifier) And(o Specifier) Specifier {
	return Specifier{clauses: slices.Concat(s.clauses, o.clauses)}.normalized()
}

// IsEmpty reports whether the specifier has no clauses.
func (s Specifier) IsEmpty() bool {
	return len(s.clauses) == 0
}

// Operators returns the operator of each clause.
func (s Specifier) Operators() []string {
	ret := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		ret[i] = c.op
	}
	return ret
}

// Prereleases reports whether any clause other than an exclusion explicitly names a pre-release
// version, which implicitly allows pre-releases to match.
func (s Specifier) Prereleases() bool {
	return slices.ContainsFunc(s.clauses, func(c specifierClause) bool {
		return c.op != "!=" && c.ver != nil && IsPrerelease(c.ver)
	})
}

// Contains reports whether v satisfies every clause.  Pre-release versions only match if
// prereleases is true or the specifier itself names a pre-release.
func (s Specifier) Contains(v *semver.Version, prereleases bool) bool {
	if v == nil {
		return false
	}
	if !prereleases && IsPrerelease(v) && !s.Prereleases() {
		return false
	}
	for _, c := range s.clauses {
		if !c.contains(v) {
			return false
		}
	}
	return true
}

func (s Specifier) String() string {
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}
