package wheelresolve

import (
	"fmt"
)

// A BuildError reports that an artifact could not be turned into metadata.  The [Factory] records
// it against the link for the rest of the session and never retries the build.
type BuildError struct {
	Link Link
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to prepare metadata for %v: %v", e.Link, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// A MetadataInconsistentError reports that an artifact's metadata disagrees with what the index or
// the requirement said it would be.
type MetadataInconsistentError struct {
	Link     Link
	Field    string
	Expected string
	Got      string
}

func (e *MetadataInconsistentError) Error() string {
	return fmt.Sprintf("Requested %v has inconsistent %s: filename has %q, but metadata has %q",
		e.Link, e.Field, e.Expected, e.Got)
}

// An UnsupportedWheelError reports that a wheel the user explicitly asked for cannot be installed on
// the target platform.
type UnsupportedWheelError struct {
	Filename string
}

func (e *UnsupportedWheelError) Error() string {
	return fmt.Sprintf("%s is not a supported wheel on this platform.", e.Filename)
}

// A DistributionNotFoundError reports that nothing satisfies a requirement.  Explanation holds
// the advisory text meant for the user, such as the versions that do exist.
type DistributionNotFoundError struct {
	Requirement Requirement
	// Versions lists every known version of the project, oldest first.
	Versions    []string
	Message     string
	Explanation string
}

func (e *DistributionNotFoundError) Error() string {
	return e.Message
}

// A ConflictError reports a set of requirements that cannot all be satisfied at once.
type ConflictError struct {
	// Triggers are the sorted, de-duplicated descriptions of what pulled in the conflict.
	Triggers    []string
	Message     string
	Explanation string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// An UnsupportedPythonVersionError reports that the target interpreter does not satisfy a
// Requires-Python declaration.  It takes priority over every other kind of conflict.
type UnsupportedPythonVersionError struct {
	Message string
}

func (e *UnsupportedPythonVersionError) Error() string {
	return e.Message
}

// A RequirementInformation pairs a requirement with the candidate that introduced it.  Parent is
// nil for requirements requested by the user.
type RequirementInformation struct {
	Requirement Requirement
	Parent      Candidate
}

// A ResolutionImpossibleError is returned by a solver that exhausted its search.  Causes is the set
// of requirements that cannot be satisfied together.
type ResolutionImpossibleError struct {
	Causes []RequirementInformation
}

func (e *ResolutionImpossibleError) Error() string {
	return fmt.Sprintf("resolution impossible: %d conflicting requirements", len(e.Causes))
}
