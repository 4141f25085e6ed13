package wheelresolve

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rhansen/wheelresolve/internal/logging"
)

// InstallationError explains why a solver could not find a consistent assignment.  constraints
// holds the user-supplied constraints by identifier.  The result is one of
// [*UnsupportedPythonVersionError], [*DistributionNotFoundError], or [*ConflictError], in that
// order of priority.  An error querying the index while explaining is returned as is.
func (f *Factory) InstallationError(ctx context.Context, err *ResolutionImpossibleError,
	constraints map[Identifier]Constraint) error {

	if len(err.Causes) == 0 {
		panic(fmt.Errorf("installation error reported with no cause"))
	}

	var pythonCauses []RequirementInformation
	for _, cause := range err.Causes {
		if r, ok := cause.Requirement.(*RequiresPythonRequirement); ok && !r.IsSatisfiedBy(f.python) {
			pythonCauses = append(pythonCauses, cause)
		}
	}
	if len(pythonCauses) > 0 {
		return f.requiresPythonError(pythonCauses)
	}

	if len(err.Causes) == 1 {
		cause := err.Causes[0]
		if _, constrained := constraints[cause.Requirement.Name()]; !constrained {
			return f.singleRequirementError(ctx, cause)
		}
	}
	return conflictError(ctx, err.Causes, constraints)
}

func (f *Factory) requiresPythonError(causes []RequirementInformation) error {
	version := VersionString(f.python.version)
	specOf := func(cause RequirementInformation) string {
		return cause.Requirement.(*RequiresPythonRequirement).specifier.String()
	}
	if len(causes) == 1 {
		return &UnsupportedPythonVersionError{Message: fmt.Sprintf(
			"Package '%s' requires a different Python: %s not in '%s'",
			parentName(causes[0].Parent), version, specOf(causes[0]))}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Packages require a different Python. %s not in:", version)
	for _, cause := range causes {
		fmt.Fprintf(&b, "\n'%s' (required by %s)", specOf(cause), parentDisplay(cause.Parent))
	}
	return &UnsupportedPythonVersionError{Message: b.String()}
}

func parentName(c Candidate) string {
	if c == nil {
		return "the user"
	}
	return string(c.Name())
}

func parentDisplay(c Candidate) string {
	if c == nil {
		return "the user"
	}
	return c.FormatForError()
}

func (f *Factory) singleRequirementError(ctx context.Context, cause RequirementInformation) error {
	req := cause.Requirement
	display := req.String()
	if cause.Parent != nil {
		display = fmt.Sprintf("%v (from %s)", req, cause.Parent.Name())
	}
	cands, err := f.index.FindAllCandidates(ctx, req.ProjectName())
	if err != nil {
		return fmt.Errorf("failed to list versions of %v: %w", req.ProjectName(), err)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	var ics []IndexCandidate
	for _, ic := range cands {
		if seen.Add(versionKey(ic.Version)) {
			ics = append(ics, ic)
		}
	}
	slices.SortStableFunc(ics, func(a, b IndexCandidate) int { return VersionCompare(a.Version, b.Version) })
	versions := make([]string, 0, len(ics))
	for _, ic := range ics {
		versions = append(versions, VersionString(ic.Version))
	}
	available := strings.Join(versions, ", ")
	if available == "" {
		available = "none"
	}
	explanation := fmt.Sprintf("Could not find a version that satisfies the requirement %s (from versions: %s)",
		display, available)
	slog.Log(ctx, logging.LevelCritical, explanation)
	return &DistributionNotFoundError{
		Requirement: req,
		Versions:    versions,
		Message:     fmt.Sprintf("No matching distribution found for %v", req),
		Explanation: explanation,
	}
}

// describeTrigger names what caused parent to be considered: the requirement that pulled it in, or
// the pin itself if the user asked for it.
func describeTrigger(parent Candidate) string {
	ireq := parent.InstallRequirement()
	switch {
	case ireq == nil || (ireq.ComesFrom == nil && ireq.ComesFromText == ""):
		return fmt.Sprintf("%s==%s", parent.Name(), VersionString(parent.Version()))
	case ireq.ComesFrom != nil:
		return ireq.ComesFrom.Name
	default:
		return ireq.ComesFromText
	}
}

func conflictError(ctx context.Context, causes []RequirementInformation, constraints map[Identifier]Constraint) error {
	triggers := mapset.NewThreadUnsafeSet[string]()
	for _, cause := range causes {
		if cause.Parent == nil {
			triggers.Add(cause.Requirement.FormatForError())
		} else {
			triggers.Add(describeTrigger(cause.Parent))
		}
	}
	sorted := triggers.ToSlice()
	slices.Sort(sorted)
	info := textJoin(sorted)
	if info == "" {
		info = "the requested packages"
	}
	msg := fmt.Sprintf("Cannot install %s because these package versions have conflicting dependencies.", info)
	slog.Log(ctx, logging.LevelCritical, msg)

	var b strings.Builder
	b.WriteString("\nThe conflict is caused by:")
	relevant := mapset.NewThreadUnsafeSet[Identifier]()
	for _, cause := range causes {
		if _, ok := constraints[cause.Requirement.Name()]; ok {
			relevant.Add(cause.Requirement.Name())
		}
		b.WriteString("\n    ")
		if cause.Parent != nil {
			fmt.Fprintf(&b, "%s %s depends on ", cause.Parent.Name(), VersionString(cause.Parent.Version()))
		} else {
			b.WriteString("The user requested ")
		}
		b.WriteString(cause.Requirement.FormatForError())
	}
	keys := relevant.ToSlice()
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "\n    The user requested (constraint) %s%s", key, constraints[key].Specifier)
	}
	b.WriteString("\n\nTo fix this you could try to:\n" +
		"1. loosen the range of package versions you've specified\n" +
		"2. remove package versions to allow the resolver to attempt to solve the dependency conflict\n")
	slog.InfoContext(ctx, b.String())

	return &ConflictError{
		Triggers:    sorted,
		Message:     msg,
		Explanation: b.String(),
	}
}
