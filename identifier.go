package wheelresolve

import (
	"regexp"
	"slices"
	"strings"
)

// An Identifier is a canonicalized project name, possibly followed by a bracketed list of extras
// (e.g., "foo-bar[security,test]").  It is the unit a solver reasons about: each [Identifier] is
// assigned at most one [Candidate].  Construct one with [CanonicalizeName] or [ExtrasIdentifier].
type Identifier string

// RequiresPythonIdentifier identifies the interpreter pseudo-project.  Only
// [RequiresPythonRequirement] and [RequiresPythonCandidate] use it.
const RequiresPythonIdentifier Identifier = "<Python from Requires-Python>"

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// CanonicalizeName normalizes a project name as described in [PEP 503]: runs of "-", "_", and "."
// collapse to a single "-" and the result is lower-cased.
//
// [PEP 503]: https://peps.python.org/pep-0503/#normalized-names
func CanonicalizeName(name string) Identifier {
	return Identifier(strings.ToLower(nameSeparators.ReplaceAllString(name, "-")))
}

// ExtrasIdentifier returns the [Identifier] of a project with extras, for example
// "foo[bar,baz]".  The extras are canonicalized and sorted.  If there are no extras the project's
// own [Identifier] is returned.
func ExtrasIdentifier(project Identifier, extras []string) Identifier {
	extras = canonicalExtras(extras)
	if len(extras) == 0 {
		return project
	}
	return Identifier(string(project) + "[" + strings.Join(extras, ",") + "]")
}

// Project strips the extras (if any) from the identifier.
func (id Identifier) Project() Identifier {
	if i := strings.IndexByte(string(id), '['); i >= 0 {
		return id[:i]
	}
	return id
}

func canonicalExtras(extras []string) []string {
	ret := make([]string, 0, len(extras))
	for _, e := range extras {
		if e = string(CanonicalizeName(strings.TrimSpace(e))); e != "" {
			ret = append(ret, e)
		}
	}
	slices.Sort(ret)
	return slices.Compact(ret)
}
