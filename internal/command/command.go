// Package command runs build hooks and other helper programs and decodes their JSON output.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/rhansen/wheelresolve/internal/logging"
)

type envKeyType struct{}

// EnvKey is a [context.Context.WithValue] key that can be used to override the environment of
// commands that are executed by this package.  The value must have type []string where each entry
// has the form "name=value".  Most callers should use [WithEnv] instead.
var EnvKey = envKeyType{}

// WithEnv returns a context whose commands run with vars added to the environment.  The additions
// are layered on top of any environment already set in ctx, or on the current process's environment
// if there is none.  A later entry for the same name wins.
func WithEnv(ctx context.Context, vars ...string) context.Context {
	if len(vars) == 0 {
		return ctx
	}
	base, ok := ctx.Value(EnvKey).([]string)
	if !ok {
		base = os.Environ()
	}
	return context.WithValue(ctx, EnvKey, slices.Concat(base, vars))
}

// maxStderr bounds how much of a command's standard error is kept for error messages.
const maxStderr = 4096

// stderrTail copies a command's standard error to w and keeps the last maxStderr bytes.
type stderrTail struct {
	w   io.Writer
	buf []byte
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - maxStderr; over > 0 {
		t.buf = slices.Delete(t.buf, 0, over)
	}
	return t.w.Write(p)
}

// An Error reports a command that did not exit successfully.
type Error struct {
	Args   []string
	Err    error
	Stderr string // The end of the command's standard error output.
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("command %q failed: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a new [exec.Cmd] with the given arguments.  Its stdout is connected to stdout and
// its stderr is passed through to stderr.
func New(ctx context.Context, wd string, args ...string) *exec.Cmd {
	slog.DebugContext(ctx, "running command", "wd", wd, "args", args)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = wd
	if v := ctx.Value(EnvKey); v != nil {
		cmd.Env = v.([]string)
		slog.Log(ctx, logging.LevelTrace, "command environment", "env", cmd.Env)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderrTail{w: os.Stderr}
	return cmd
}

// Pipe is like [New] except it connects the command's stdout to a pipe and the reading side is
// returned.
func Pipe(ctx context.Context, wd string, args ...string) (*exec.Cmd, io.ReadCloser, error) {
	cmd := New(ctx, wd, args...)
	cmd.Stdout = nil
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get stdout pipe for command %q: %w",
			strings.Join(args, " "), err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start command %q: %w", strings.Join(args, " "), err)
	}
	return cmd, out, nil
}

// Wait waits for cmd, which must have been created by [New] or [Pipe], and converts a failure into
// an [*Error] carrying the end of the command's standard error.
func Wait(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err == nil {
		return nil
	}
	e := &Error{Args: cmd.Args, Err: err}
	if t, ok := cmd.Stderr.(*stderrTail); ok {
		e.Stderr = strings.TrimSpace(string(t.buf))
	}
	return e
}

// DecodeJsonStream calls [Pipe] and processes the output as a stream of JSON objects.  The returned
// done callback must be called when done processing the JSON stream.  Beware that if the done
// callback is called before the command is done outputting JSON values then the command will
// receive a SIGPIPE signal.
func DecodeJsonStream[T any](ctx context.Context, wd string, args ...string) (iter.Seq[T], func() error) {
	var retErr error
	var cmd *exec.Cmd
	var out io.ReadCloser
	return func(yield func(T) bool) {
			var err error
			if cmd, out, err = Pipe(ctx, wd, args...); err != nil {
				retErr = err
				return
			}
			dec := json.NewDecoder(out)
			for dec.More() {
				obj := *new(T)
				if err := dec.Decode(&obj); err != nil {
					retErr = fmt.Errorf("failed to decode JSON from command %q: %w",
						strings.Join(args, " "), err)
					return
				}
				if !yield(obj) {
					return
				}
			}
		}, func() error {
			if out != nil {
				if err := out.Close(); retErr == nil {
					retErr = err
				}
			}
			if cmd != nil {
				if err := Wait(cmd); err != nil && retErr == nil {
					retErr = err
				}
			}
			return retErr
		}
}
