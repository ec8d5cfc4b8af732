package compiler

import (
	"context"
	"fmt"

	"golang.org/x/sys/execabs"
)

// ProcessCapture records one external process invocation.
// It is never modified after creation.
type ProcessCapture struct {
	cmd    string
	file   string
	ok     bool
	output string
}

func NewProcessCapture(cmd, file string, ok bool, output string) ProcessCapture {
	return ProcessCapture{cmd: cmd, file: file, ok: ok, output: output}
}

// Cmd returns the command line that was run.
func (p ProcessCapture) Cmd() string { return p.cmd }

// File returns the artifact the command produced.
func (p ProcessCapture) File() string { return p.file }

// OK reports whether the process exited successfully.
func (p ProcessCapture) OK() bool { return p.ok }

// Output returns combined stdout and stderr.
func (p ProcessCapture) Output() string { return p.output }

// ProcessError reports a failed compiler, linker or archiver run.
type ProcessError struct {
	Capture ProcessCapture
}

func (e *ProcessError) Error() string {
	if e.Capture.Output() == "" {
		return fmt.Sprintf("command failed: %s", e.Capture.Cmd())
	}
	return fmt.Sprintf("command failed: %s\n%s", e.Capture.Cmd(), e.Capture.Output())
}

// Check returns a *ProcessError when the capture did not succeed.
func Check(p ProcessCapture) error {
	if p.OK() {
		return nil
	}
	return &ProcessError{Capture: p}
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command, env []string) ProcessCapture
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run executes cmd with env (nil inherits the current environment) and
// captures its combined output.
func (ExecRunner) Run(ctx context.Context, cmd Command, env []string) ProcessCapture {
	if len(cmd.Args) == 0 {
		return NewProcessCapture("", cmd.Output, false, "empty command")
	}
	c := execabs.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Env = env
	out, err := c.CombinedOutput()
	if err != nil && len(out) == 0 {
		out = []byte(err.Error())
	}
	return NewProcessCapture(cmd.String(), cmd.Output, err == nil, string(out))
}
