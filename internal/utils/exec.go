package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/apex/log"
)

// CommandError is returned when an external tool fails to start, exits
// non-zero or times out.
type CommandError struct {
	Title    string
	Output   []byte
	ExitCode int
}

func (e *CommandError) Error() string {
	if len(e.Output) == 0 {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, bytes.TrimSpace(e.Output))
}

// RunCmd runs "bin args..." and returns its stdout.
// A zero timeout means the command only stops when ctx is done.
// Stderr is folded into the returned error on failure.
func RunCmd(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children that inherited our pipes must not keep Wait blocked
	cmd.WaitDelay = time.Second

	log.WithField("cmd", cmd.String()).Debug("Running")

	if err := cmd.Run(); err != nil {
		cerr := &CommandError{
			Title:  fmt.Sprintf("failed to run %q: %v", cmd.Args, err),
			Output: stderr.Bytes(),
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cerr.Title = fmt.Sprintf("timed out after %s running %q", timeout, cmd.Args)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), cerr
	}

	return stdout.Bytes(), nil
}
