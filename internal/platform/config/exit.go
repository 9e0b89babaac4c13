package config

import (
	"fmt"
	"os"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

// Process exit codes used by command-line entry points.
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitSysError  = 2
)

// ExitCode maps err to a process exit code. Errors the caller can fix
// (validation, relational, precondition, not found, concurrency) exit with
// ExitUserError; everything else is a system error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if apperrors.Class(err) == apperrors.ClassInfrastructure {
		return ExitSysError
	}
	return ExitUserError
}

// Exitf writes a formatted message to stderr and exits with code.
func Exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
