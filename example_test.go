package wheelresolve_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhansen/wheelresolve"
	"github.com/rhansen/wheelresolve/internal/repository"
)

func Example() {
	// Describe a small index in memory so that this example does not require network access.
	repo := repository.New()
	for _, p := range []*repository.Project{
		{Name: "dependency", Releases: []repository.Release{{Version: "1.0"}, {Version: "2.0"}}},
		{Name: "app", Releases: []repository.Release{{Version: "1.0", RequiresDist: []string{"dependency<2"}}}},
	} {
		if err := repo.AddProject(p); err != nil {
			panic(err)
		}
	}

	// Describe the interpreter to resolve for.
	target, err := wheelresolve.NewTargetPython("3.12.0", "linux_x86_64")
	if err != nil {
		panic(err)
	}
	repo.Tags = target.SupportedTags()

	// Start a resolve session.  The repository is the index, the build backend, and the installed
	// environment all at once.
	ctx := context.Background()
	f, err := wheelresolve.NewFactory(ctx, repo, repo, nil, repo, wheelresolve.Options{Target: target})
	if err != nil {
		panic(err)
	}

	// Use [wheelresolve.Factory.FindCandidates] to see what the index offers, preferred first.
	dep, err := f.MakeRequirementFromSpec(ctx, "dependency", nil, nil)
	if err != nil {
		panic(err)
	}
	seq, done := f.FindCandidates(ctx, dep.Name(), []wheelresolve.Requirement{dep}, nil,
		wheelresolve.EmptyConstraint(), false)
	for c := range seq {
		fmt.Printf("candidate: %v\n", c)
	}
	if err := done(); err != nil {
		panic(err)
	}

	// Parse the requirement lines and resolve them.
	ireq, err := wheelresolve.ParseInstallRequirement("app", nil)
	if err != nil {
		panic(err)
	}
	ireq.UserSupplied = true
	res, err := wheelresolve.Resolve(ctx, f, []*wheelresolve.InstallRequirement{ireq}, wheelresolve.ResolveOptions{})
	if err != nil {
		panic(err)
	}
	for _, a := range res.Install {
		fmt.Printf("install: %v\n", a.Candidate)
	}

	// An unsatisfiable request is diagnosed.
	ireq, err = wheelresolve.ParseInstallRequirement("dependency>=3", nil)
	if err != nil {
		panic(err)
	}
	_, err = wheelresolve.Resolve(ctx, f, []*wheelresolve.InstallRequirement{ireq}, wheelresolve.ResolveOptions{})
	if dnf := (*wheelresolve.DistributionNotFoundError)(nil); errors.As(err, &dnf) {
		fmt.Println(dnf.Message)
		fmt.Println(dnf.Explanation)
	}

	// Output:
	// candidate: dependency 2.0
	// candidate: dependency 1.0
	// install: dependency 1.0
	// install: app 1.0
	// No matching distribution found for dependency>=3
	// Could not find a version that satisfies the requirement dependency>=3 (from versions: 1.0, 2.0)
}
