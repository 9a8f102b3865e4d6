package radio

import (
	"fmt"
	"strings"
)

// CommandError reports a failed nmcli invocation.
type CommandError struct {
	// Args are the arguments passed to nmcli
	Args []string
	// ExitCode is the process exit code, -1 if it did not start
	ExitCode int
	// Stderr is the trimmed error output
	Stderr string
	// Err is the underlying exec error
	Err error
}

func (e *CommandError) Error() string {
	cmd := strings.Join(e.Args, " ")
	if e.Stderr != "" {
		return fmt.Sprintf("nmcli %s failed (exit code %d): %s", cmd, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("nmcli %s failed (exit code %d): %v", cmd, e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
