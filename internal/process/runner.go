// internal/process/runner.go
package process

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"syscall"
)

// ExitSpawnFailure is reported when the command could not be launched at all
// (missing binary, permission denied). Matches the shell convention for
// "command not found" so callers can branch on it.
const ExitSpawnFailure = 127

// Result holds the outcome of a completed command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Run executes a command to completion and collects its output. It never
// returns a Go error: a failed launch is reported as ExitCode 127 with the
// launch error folded into Stderr. Both output streams are drained
// concurrently with the wait so a chatty child cannot deadlock on a full
// pipe buffer.
func Run(ctx context.Context, command string, args []string, cwd string) Result {
	cmd := exec.CommandContext(ctx, command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: ExitSpawnFailure, Stderr: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: ExitSpawnFailure, Stderr: err.Error()}
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: ExitSpawnFailure, Stderr: err.Error()}
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outBuf.ReadFrom(stdout)
	}()
	go func() {
		defer wg.Done()
		errBuf.ReadFrom(stderr)
	}()

	// Drain before Wait: Wait closes the pipes once the process exits.
	wg.Wait()
	waitErr := cmd.Wait()

	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
	}

	if waitErr != nil && result.ExitCode < 0 {
		// Killed by a signal: report the shell convention 128+signal,
		// never the spawn-failure code. 127 strictly means the command
		// could not be launched.
		if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			result.ExitCode = 128 + int(status.Signal())
		}
		if result.Stderr == "" {
			result.Stderr = waitErr.Error()
		}
	}

	return result
}
