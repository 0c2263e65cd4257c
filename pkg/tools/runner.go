// Package tools runs the external collaborators (encoder, signer, manifest
// builder, checksum utility) as child processes.
package tools

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// Runner executes a command and returns its captured standard output.
type Runner interface {
	// Run executes argv[0] with argv[1:] and waits for it to exit. tool names
	// the collaborator in errors and logs.
	Run(ctx context.Context, tool string, argv []string) ([]byte, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// Dir is the working directory of the child process. Empty means the
	// current directory.
	Dir string
}

// NewExecRunner creates a runner rooted at dir
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir}
}

func (r *ExecRunner) Run(ctx context.Context, tool string, argv []string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.Toolf(tool, "empty command")
	}

	slog.Info("tool_exec_start", "tool", tool, "command", strings.Join(argv, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Error("tool_exec_failed", "tool", tool, "error", err, "stderr", strings.TrimSpace(stderr.String()))
		return nil, &errors.ToolError{Tool: tool, Stderr: stderr.String(), Err: err}
	}

	slog.Info("tool_exec_complete", "tool", tool, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}

// SplitCommand splits a configured command line on whitespace. Quoting is
// not supported; configure a wrapper script for arguments with spaces.
func SplitCommand(command string) []string {
	return strings.Fields(command)
}

// Command appends args to a configured command line.
func Command(command string, args ...string) []string {
	argv := SplitCommand(command)
	return append(argv, args...)
}
