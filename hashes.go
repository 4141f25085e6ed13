package wheelresolve

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Hashes is the set of artifact digests a user is willing to accept, keyed by algorithm name
// (e.g., "sha256").  The zero value accepts anything.
type Hashes struct {
	allowed map[string]mapset.Set[string]
}

// NewHashes builds a [Hashes] from "algorithm:hexdigest" strings as written in a requirements
// file's --hash option.
func NewHashes(pins ...string) (Hashes, error) {
	h := Hashes{}
	for _, pin := range pins {
		alg, digest, ok := strings.Cut(pin, ":")
		if !ok || alg == "" || digest == "" {
			return Hashes{}, fmt.Errorf("invalid hash %q; expected algorithm:digest", pin)
		}
		h = h.with(alg, digest)
	}
	return h, nil
}

func (h Hashes) with(alg, digest string) Hashes {
	ret := Hashes{allowed: map[string]mapset.Set[string]{}}
	for a, ds := range h.allowed {
		ret.allowed[a] = ds.Clone()
	}
	alg = strings.ToLower(alg)
	if ret.allowed[alg] == nil {
		ret.allowed[alg] = mapset.NewThreadUnsafeSet[string]()
	}
	ret.allowed[alg].Add(strings.ToLower(digest))
	return ret
}

// IsEmpty reports whether no hashes are pinned, meaning every artifact is acceptable.
func (h Hashes) IsEmpty() bool {
	return len(h.allowed) == 0
}

// And intersects two hash sets.  If either side is empty the other side is returned unchanged.
// Otherwise only algorithms present in both are kept, each with the digests common to both.
func (h Hashes) And(o Hashes) Hashes {
	if o.IsEmpty() {
		return h
	}
	if h.IsEmpty() {
		return o
	}
	ret := Hashes{allowed: map[string]mapset.Set[string]{}}
	for alg, ds := range o.allowed {
		mine, ok := h.allowed[alg]
		if !ok {
			continue
		}
		ret.allowed[alg] = mine.Intersect(ds)
	}
	return ret
}

// IsAllowed reports whether the given digest is acceptable.
func (h Hashes) IsAllowed(alg, digest string) bool {
	if h.IsEmpty() {
		return true
	}
	ds, ok := h.allowed[strings.ToLower(alg)]
	return ok && ds.Contains(strings.ToLower(digest))
}

func (h Hashes) String() string {
	var parts []string
	for _, alg := range slices.Sorted(maps.Keys(h.allowed)) {
		for _, d := range slices.Sorted(mapset.Elements(h.allowed[alg])) {
			parts = append(parts, alg+":"+d)
		}
	}
	return strings.Join(parts, " ")
}
