// Package shell provides task handlers that run subprocesses.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aristath/taskrunner/internal/locator"
	"github.com/aristath/taskrunner/internal/tasks"
)

// Lines of this form on stdout are applied to the task context and removed
// from the stdout output:
//
//	::set-output name=value
//	::set-env name=value
//	::add-secret name=value
const (
	cmdSetOutput = "::set-output "
	cmdSetEnv    = "::set-env "
	cmdAddSecret = "::add-secret "
)

// Runner is a tasks.Handler that runs one program.
type Runner struct {
	Name string
	Args []string
}

// Command returns a handler running name with args in the task's working
// directory and environment.
func Command(name string, args ...string) *Runner {
	return &Runner{Name: name, Args: args}
}

// Script returns a handler running script with sh -c.
func Script(script string) *Runner {
	return Command("sh", "-c", script)
}

// Handle runs the program. Outputs are stdout, stderr and exitCode. A
// non-zero exit is an error.
func (r *Runner) Handle(ctx context.Context, tc *tasks.Context) (map[string]any, error) {
	logger := locator.GetOr(tc.Services, zap.NewNop())
	pm, _ := locator.Get[*ProcessManager](tc.Services)

	cmd := newCommand(ctx, r.Name, r.Args...)
	cmd.Dir = tc.Cwd
	cmd.Env = tc.Environ()

	logger.Debug("running command",
		zap.String("task", tc.Task.ID()),
		zap.String("command", r.Name),
		zap.Strings("args", r.Args),
		zap.String("dir", cmd.Dir))

	stdout, stderr, err := executeCommand(cmd, pm)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExitError{Code: exitCode(err), Stderr: string(stderr), err: err}
	}

	return map[string]any{
		"stdout":   string(applyCommands(tc, stdout)),
		"stderr":   string(stderr),
		"exitCode": 0,
	}, nil
}

// ExitError reports a command that could not start or exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
	err    error
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return e.err.Error()
	}
	return e.err.Error() + " (stderr: " + msg + ")"
}

func (e *ExitError) Unwrap() error { return e.err }

// applyCommands applies workflow command lines to tc and returns stdout
// without them.
func applyCommands(tc *tasks.Context, stdout []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if applyCommand(tc, line) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if scanner.Err() != nil {
		// Lines over the buffer limit: keep stdout untouched
		return stdout
	}
	return out.Bytes()
}

func applyCommand(tc *tasks.Context, line string) bool {
	var apply func(name, value string)
	var rest string

	switch {
	case strings.HasPrefix(line, cmdSetOutput):
		rest = line[len(cmdSetOutput):]
		apply = func(name, value string) { tc.SetOutput(name, value) }
	case strings.HasPrefix(line, cmdSetEnv):
		rest = line[len(cmdSetEnv):]
		apply = tc.SetEnv
	case strings.HasPrefix(line, cmdAddSecret):
		rest = line[len(cmdAddSecret):]
		apply = tc.SetSecret
	default:
		return false
	}

	name, value, ok := strings.Cut(rest, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return false
	}
	apply(name, value)
	return true
}
