package wheelresolve

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// A Link locates an artifact: an archive or wheel on an index, a VCS URL, or a local file or
// directory (file:// URL).  Links are compared by URL, so two [Link] values with the same URL are
// the same artifact.
type Link struct {
	URL string
}

// NewLink returns a [Link] for the given URL.  A local filesystem path is converted to a file://
// URL.
func NewLink(s string) Link {
	if !strings.Contains(s, "://") {
		if abs, err := filepath.Abs(s); err == nil {
			s = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
		}
	}
	return Link{URL: s}
}

func (l Link) String() string {
	return l.URL
}

func (l Link) parsed() *url.URL {
	u, err := url.Parse(l.URL)
	if err != nil {
		return &url.URL{Path: l.URL}
	}
	return u
}

// Filename returns the last path segment, unescaped.
func (l Link) Filename() string {
	u := l.parsed()
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" {
		return u.Host
	}
	return name
}

// IsWheel reports whether the link points at a wheel (a built distribution).
func (l Link) IsWheel() bool {
	return strings.HasSuffix(strings.ToLower(l.Filename()), ".whl")
}

// IsFile reports whether the link refers to the local filesystem.
func (l Link) IsFile() bool {
	return l.parsed().Scheme == "file"
}

// FilePath returns the local path for a file:// link, or the empty string.
func (l Link) FilePath() string {
	if !l.IsFile() {
		return ""
	}
	return filepath.FromSlash(l.parsed().Path)
}

var hashFragmentRe = regexp.MustCompile(`^(sha1|sha224|sha384|sha256|sha512|md5)=([0-9a-fA-F]+)$`)

func (l Link) fragment() url.Values {
	v, _ := url.ParseQuery(l.parsed().Fragment)
	return v
}

// Hash returns the algorithm and digest embedded in the URL fragment (e.g., "#sha256=..."), if any.
func (l Link) Hash() (alg, digest string, ok bool) {
	for _, part := range strings.Split(l.parsed().Fragment, "&") {
		if m := hashFragmentRe.FindStringSubmatch(part); m != nil {
			return m[1], strings.ToLower(m[2]), true
		}
	}
	return "", "", false
}

// EggName returns the project name given by an "#egg=name" fragment, if any.
func (l Link) EggName() string {
	return l.fragment().Get("egg")
}

// WithoutFragment strips the fragment, which is how links are shown to users.
func (l Link) WithoutFragment() string {
	u := l.parsed()
	u.Fragment = ""
	return u.String()
}
