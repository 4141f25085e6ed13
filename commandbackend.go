package wheelresolve

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rhansen/wheelresolve/internal/command"
)

// A CommandBackend is a [BuildBackend] that delegates to an external build hook.  The hook is run
// as Args followed by the artifact URL (and "--editable" for editable installs) in directory Dir,
// and must print the artifact's [Metadata] as a JSON object on standard output.  Anything the hook
// prints to standard error is passed through, and the end of it is included in the error if the
// hook fails.
type CommandBackend struct {
	Args []string
	Dir  string
	// Env holds "name=value" entries added to the hook's environment.
	Env []string
}

var _ BuildBackend = (*CommandBackend)(nil)

func (b *CommandBackend) BuildMetadata(ctx context.Context, link Link, editable bool) (*Metadata, error) {
	if len(b.Args) == 0 {
		return nil, fmt.Errorf("no build hook configured")
	}
	args := append(slices.Clone(b.Args), link.URL)
	if editable {
		args = append(args, "--editable")
	}
	mds, done := command.DecodeJsonStream[Metadata](command.WithEnv(ctx, b.Env...), b.Dir, args...)
	var md *Metadata
	n := 0
	// Drain the stream so the hook does not die of SIGPIPE.
	for m := range mds {
		if md == nil {
			md = &m
		}
		n++
	}
	if err := done(); err != nil {
		return nil, err
	}
	switch {
	case md == nil:
		return nil, fmt.Errorf("build hook %q printed no metadata for %v", strings.Join(b.Args, " "), link)
	case n > 1:
		return nil, fmt.Errorf("build hook %q printed %d metadata objects for %v, want 1",
			strings.Join(b.Args, " "), n, link)
	}
	return md, nil
}
