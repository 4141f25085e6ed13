// Package wheelresolve selects a consistent set of Python distributions for a list of requirement
// lines, the way pip's resolver does.
//
// # Quick Start
//
// (The following is also available as a package-level example.)
//
// Describe the interpreter you are resolving for with [NewTargetPython]:
//
//	target, err := wheelresolve.NewTargetPython("3.12.0", "linux_x86_64")
//	if err != nil {
//		return err
//	}
//
// Start a resolve session with [NewFactory].  The [Index], [BuildBackend], [WheelCache], and
// [Environment] arguments are the outside world; the internal repository package implements them on
// top of YAML files:
//
//	ctx := context.Background()
//	f, err := wheelresolve.NewFactory(ctx, index, backend, nil, env,
//		wheelresolve.Options{Target: target})
//	if err != nil {
//		return err
//	}
//
// Parse requirement lines with [ParseInstallRequirement] and hand them to [Resolve]:
//
//	ireq, err := wheelresolve.ParseInstallRequirement("requests>=2", nil)
//	if err != nil {
//		return err
//	}
//	ireq.UserSupplied = true
//	res, err := wheelresolve.Resolve(ctx, f, []*wheelresolve.InstallRequirement{ireq},
//		wheelresolve.ResolveOptions{})
//
// On success, [Result.Install] lists what to install, dependencies first.  On failure the error is
// one of [*DistributionNotFoundError], [*ConflictError], or [*UnsupportedPythonVersionError], each
// carrying the user-facing message.
//
// # Candidates
//
// A [Candidate] is one concrete choice for a project: a release file on the index
// ([LinkCandidate]), an editable checkout ([EditableCandidate]), what is already installed
// ([AlreadyInstalledCandidate]), a base candidate plus extras ([ExtrasCandidate]), or the target
// interpreter itself ([RequiresPythonCandidate]).  A [Factory] hands out exactly one pointer per
// candidate for the whole session, so candidates compare with ==.
//
// [Factory.FindCandidates] yields the candidates for an identifier lazily, preferred first.  Index
// candidates are built on demand; a build failure is remembered and the candidate is skipped from
// then on.  The installed distribution is placed according to the upgrade strategy.
//
// # Diagnosis
//
// When resolution fails, [Factory.InstallationError] turns the solver's causes into a single
// error.  A Requires-Python mismatch wins over everything else.  A single unconstrained cause is
// reported as "no matching distribution", with the versions that do exist.  Anything else is a
// conflict, listing every requirement involved and where it came from.
package wheelresolve
