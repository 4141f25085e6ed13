package wheelresolve

import (
	"iter"

	"github.com/Masterminds/semver/v3"
	mapset "github.com/deckarep/golang-set/v2"
)

// indexInfo is an index entry whose candidate has not been built yet.
type indexInfo struct {
	version *semver.Version
	build   func() (Candidate, error)
}

// foundCandidates builds the entries of infos (newest first) as the caller advances, skipping
// versions already produced and entries that fail to build.  An installed candidate is merged in:
// first if prefersInstalled, otherwise in version order, taking the place of an index entry with
// the same version.  Candidates in rejected are never yielded.
func foundCandidates(infos iter.Seq[indexInfo], installed Candidate, prefersInstalled bool,
	rejected mapset.Set[Candidate], errp *error) iter.Seq[Candidate] {

	return func(yield func(Candidate) bool) {
		found := mapset.NewThreadUnsafeSet[string]()
		emit := func(c Candidate) bool {
			found.Add(versionKey(c.Version()))
			if rejected.Contains(c) {
				return true
			}
			return yield(c)
		}
		pending := installed
		if pending != nil && prefersInstalled {
			if !emit(pending) {
				return
			}
			pending = nil
		}
		for info := range infos {
			if pending != nil && VersionCompare(pending.Version(), info.version) >= 0 {
				if !emit(pending) {
					return
				}
				pending = nil
			}
			if found.Contains(versionKey(info.version)) {
				continue
			}
			c, err := info.build()
			if err != nil {
				*errp = err
				return
			}
			if c == nil {
				continue
			}
			if !emit(c) {
				return
			}
		}
		if *errp != nil {
			return
		}
		if pending != nil {
			emit(pending)
		}
	}
}
