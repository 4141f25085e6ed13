package wheelresolve

import (
	"fmt"
	"regexp"
	"strings"
)

// An InstallRequirement is a single parsed requirement line, as written by a user or listed in a
// candidate's metadata.  The [Factory] turns it into a [Requirement] the solver can reason about.
// Treat an InstallRequirement as immutable once it has been handed to a [Factory].
type InstallRequirement struct {
	// Name is the project name as written, or empty for an unnamed link requirement.
	Name string
	// Extras are the requested optional dependency groups, canonicalized and sorted.
	Extras    []string
	Specifier Specifier
	Marker    *Marker
	// Link is the artifact the requirement points at, if any.  OriginalLink is the link the user
	// wrote; Link may later be replaced by a cached artifact.
	Link         *Link
	OriginalLink *Link
	Editable     bool
	// UserSupplied marks requirements requested directly by the user.
	UserSupplied bool
	// Constraint marks requirements from a constraints file: they restrict but do not request.
	Constraint  bool
	HashOptions Hashes
	// ComesFrom is the requirement whose candidate pulled this one in.  When it is nil,
	// ComesFromText may describe the origin instead (e.g., "-r requirements.txt (line 3)").
	ComesFrom     *InstallRequirement
	ComesFromText string
}

var (
	reqNameRe  = regexp.MustCompile(`^\s*([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*(.*)$`)
	namedURLRe = regexp.MustCompile(`^\s*([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*@\s*(.*)$`)
	urlLikeRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
)

func looksLikeLink(s string) bool {
	return urlLikeRe.MatchString(s) ||
		strings.HasPrefix(s, ".") || strings.HasPrefix(s, "/") ||
		strings.HasSuffix(s, ".whl") || strings.HasSuffix(s, ".tar.gz") || strings.HasSuffix(s, ".zip")
}

// ParseInstallRequirement parses a [PEP 508] requirement string.  In addition to
// `name[extras] specifier ; marker` and `name[extras] @ url ; marker`, a bare URL or local path is
// accepted; its name is taken from an "#egg=" fragment or the wheel filename, and may be left empty.
//
// [PEP 508]: https://peps.python.org/pep-0508/
func ParseInstallRequirement(spec string, comesFrom *InstallRequirement) (*InstallRequirement, error) {
	ireq := &InstallRequirement{ComesFrom: comesFrom}
	body := strings.TrimSpace(spec)
	if body == "" {
		return nil, fmt.Errorf("empty requirement")
	}
	if m := namedURLRe.FindStringSubmatch(body); m != nil {
		loc, marker, hasMarker := strings.Cut(m[3], "; ")
		if hasMarker {
			if err := ireq.setMarker(marker); err != nil {
				return nil, err
			}
		}
		if strings.TrimSpace(loc) == "" {
			return nil, fmt.Errorf("invalid requirement %q: missing URL after @", spec)
		}
		ireq.Name = m[1]
		if m[2] != "" {
			ireq.Extras = canonicalExtras(strings.Split(strings.Trim(m[2], "[]"), ","))
		}
		ireq.setLink(NewLink(strings.TrimSpace(loc)))
		return ireq, nil
	}
	if looksLikeLink(body) {
		// A semicolon inside a URL is legal, so only "; " starts a marker here.
		loc, marker, hasMarker := strings.Cut(body, "; ")
		if hasMarker {
			if err := ireq.setMarker(marker); err != nil {
				return nil, err
			}
		}
		link := NewLink(strings.TrimSpace(loc))
		ireq.setLink(link)
		switch {
		case link.EggName() != "":
			name, extras, _ := strings.Cut(link.EggName(), "[")
			ireq.Name = name
			if extras != "" {
				ireq.Extras = canonicalExtras(strings.Split(strings.TrimSuffix(extras, "]"), ","))
			}
		case link.IsWheel():
			if w, err := ParseWheelFilename(link.Filename()); err == nil {
				ireq.Name = w.Name
			}
		}
		return ireq, nil
	}
	body, marker, hasMarker := strings.Cut(body, ";")
	if hasMarker {
		if err := ireq.setMarker(marker); err != nil {
			return nil, err
		}
	}
	m := reqNameRe.FindStringSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("invalid requirement %q", spec)
	}
	ireq.Name = m[1]
	if m[2] != "" {
		ireq.Extras = canonicalExtras(strings.Split(strings.Trim(m[2], "[]"), ","))
	}
	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = rest[1 : len(rest)-1]
	}
	s, err := ParseSpecifier(rest)
	if err != nil {
		return nil, fmt.Errorf("invalid requirement %q: %w", spec, err)
	}
	ireq.Specifier = s
	return ireq, nil
}

// ParseEditable parses a requirement to be installed in editable (development) mode.  The argument
// is a URL or local path, optionally with an "#egg=name" fragment.
func ParseEditable(loc string, comesFrom *InstallRequirement) (*InstallRequirement, error) {
	ireq, err := ParseInstallRequirement(loc, comesFrom)
	if err != nil {
		return nil, err
	}
	if ireq.Link == nil {
		return nil, fmt.Errorf("editable requirement %q must be a URL or a local path", loc)
	}
	ireq.Editable = true
	return ireq, nil
}

func (ireq *InstallRequirement) setMarker(s string) error {
	m, err := ParseMarker(s)
	if err != nil {
		return err
	}
	ireq.Marker = m
	return nil
}

func (ireq *InstallRequirement) setLink(link Link) {
	ireq.Link = &link
	orig := link
	ireq.OriginalLink = &orig
}

// ProjectName returns the canonical project name, or the empty [Identifier] for an unnamed
// requirement.
func (ireq *InstallRequirement) ProjectName() Identifier {
	if ireq.Name == "" {
		return ""
	}
	return CanonicalizeName(ireq.Name)
}

// MatchMarkers reports whether the requirement applies to the environment when the given extras
// have been requested.  A requirement without a marker always applies.
func (ireq *InstallRequirement) MatchMarkers(env map[string]string, extras []string) bool {
	if ireq.Marker == nil {
		return true
	}
	e := map[string]string{}
	for k, v := range env {
		e[k] = v
	}
	if len(extras) == 0 {
		e["extra"] = ""
		return ireq.Marker.Evaluate(e)
	}
	for _, extra := range extras {
		e["extra"] = extra
		if ireq.Marker.Evaluate(e) {
			return true
		}
	}
	return false
}

// Hashes returns the digests the artifact must match: the --hash options plus any hash in the URL
// fragment.  If trustInternet is false only the user-written link's fragment is trusted.
func (ireq *InstallRequirement) Hashes(trustInternet bool) Hashes {
	h := ireq.HashOptions
	link := ireq.OriginalLink
	if trustInternet {
		link = ireq.Link
	}
	if link != nil {
		if alg, digest, ok := link.Hash(); ok {
			h = h.with(alg, digest)
		}
	}
	return h
}

// WithLink returns a copy of the requirement that points at link, keeping its name, extras, hashes
// and origin.  It is used to pin a requirement to a link from a constraints file.
func (ireq *InstallRequirement) WithLink(link Link) *InstallRequirement {
	clone := *ireq
	clone.setLink(link)
	return &clone
}

// RequirementString renders the requirement without its origin, e.g. "foo[bar]<2,>=1".
func (ireq *InstallRequirement) RequirementString() string {
	var b strings.Builder
	b.WriteString(ireq.Name)
	if len(ireq.Extras) > 0 {
		b.WriteString("[" + strings.Join(ireq.Extras, ",") + "]")
	}
	switch {
	case ireq.Link != nil && ireq.Name != "":
		b.WriteString(" @ " + ireq.Link.String())
	case ireq.Link != nil:
		b.WriteString(ireq.Link.String())
	default:
		b.WriteString(ireq.Specifier.String())
	}
	if ireq.Marker != nil {
		b.WriteString("; " + ireq.Marker.String())
	}
	return b.String()
}

func (ireq *InstallRequirement) String() string {
	s := ireq.RequirementString()
	switch {
	case ireq.ComesFrom != nil:
		s += fmt.Sprintf(" (from %s)", ireq.ComesFrom.Name)
	case ireq.ComesFromText != "":
		s += fmt.Sprintf(" (from %s)", ireq.ComesFromText)
	}
	return s
}
