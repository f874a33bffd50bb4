// Package process runs external commands and captures their results.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Result holds the outcome of a finished process.
type Result struct {
	ExitCode int
	Output   string
}

// Runner executes external processes. Implementations must be safe for
// concurrent use across independent invocations.
type Runner interface {
	// Run executes the command and captures combined stdout/stderr.
	// A non-zero exit code is reported in the Result, not as an error;
	// errors are reserved for failures to run the process at all.
	Run(name string, args ...string) (Result, error)

	// RunAndStream behaves like Run but additionally delivers each output
	// line to onLine, in order, while the process runs. The full combined
	// output is still returned in the Result.
	RunAndStream(onLine func(string), name string, args ...string) (Result, error)

	// RunAttached executes the command with stdout/stderr connected to the
	// calling process's terminal. When interactive is true, stdin is
	// attached as well. Returns the process exit code.
	RunAttached(interactive bool, name string, args ...string) (int, error)
}

// ExecRunner is a Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(name string, args ...string) (Result, error) {
	cmd := exec.Command(name, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: string(output)}, nil
		}
		return Result{}, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return Result{ExitCode: 0, Output: string(output)}, nil
}

func (r *ExecRunner) RunAndStream(onLine func(string), name string, args ...string) (Result, error) {
	cmd := exec.Command(name, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var captured strings.Builder
	done := make(chan struct{})

	go func() {
		defer close(done)

		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			captured.WriteString(line)
			captured.WriteString("\n")

			if onLine != nil {
				onLine(line)
			}
		}
	}()

	err := cmd.Run()
	pw.Close()
	<-done

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: captured.String()}, nil
		}
		return Result{}, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return Result{ExitCode: 0, Output: captured.String()}, nil
}

func (r *ExecRunner) RunAttached(interactive bool, name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if interactive {
		cmd.Stdin = os.Stdin
	}

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return 0, nil
}
