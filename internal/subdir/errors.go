package subdir

import (
	"errors"
	"fmt"
)

// Error kinds, exit codes, and diagnostic messages. Each is a typed error
// inspectable with errors.As, following a sentinel-plus-predicate
// pattern rather than bare error strings.

// ArgError wraps a malformed or missing required CLI argument (exit 2).
type ArgError struct{ Msg string }

func (e *ArgError) Error() string { return e.Msg }
func (e *ArgError) ExitCode() int { return 2 }

// NotInitialized is returned when an operation expects a subdir record
// that doesn't exist (exit 1).
type NotInitialized struct{ Path string }

func (e *NotInitialized) Error() string {
	return fmt.Sprintf("%s is not a git-subdir (no .git-subdir/config)", e.Path)
}
func (e *NotInitialized) ExitCode() int { return 1 }

// AlreadyInitialized is returned by add when the subdir already carries
// a record (exit 1).
type AlreadyInitialized struct{ Path string }

func (e *AlreadyInitialized) Error() string {
	return fmt.Sprintf("%s is already a git-subdir", e.Path)
}
func (e *AlreadyInitialized) ExitCode() int { return 1 }

// PathTaken is returned by add when the target path exists and is
// non-empty, and --pre-integrated-commit was not given (exit 1).
type PathTaken struct{ Path string }

func (e *PathTaken) Error() string {
	return fmt.Sprintf("%s already exists and is not empty", e.Path)
}
func (e *PathTaken) ExitCode() int { return 1 }

// StaleMetadata is returned when last-squash-commit is unreachable from
// the container HEAD.
type StaleMetadata struct{ LastSquashCommit string }

func (e *StaleMetadata) Error() string {
	return fmt.Sprintf("last-squash-commit %s is not reachable from HEAD", e.LastSquashCommit)
}
func (e *StaleMetadata) ExitCode() int { return 1 }

// SubdirMissing is returned when the subdir path is absent at HEAD.
type SubdirMissing struct{ Path string }

func (e *SubdirMissing) Error() string {
	return fmt.Sprintf("%s does not exist at HEAD", e.Path)
}
func (e *SubdirMissing) ExitCode() int { return 1 }

// NetworkError wraps a fetch/push failure with the VCS's own message.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }
func (e *NetworkError) ExitCode() int { return 1 }

// RebaseConflict is returned when a cherry-pick halts mid-rebase. The
// worktree is left in place for the user to resolve with native git
// tools before re-running the command.
type RebaseConflict struct {
	WorktreePath string
	Commit       string
	Files        []string
}

func (e *RebaseConflict) Error() string {
	return fmt.Sprintf("conflict cherry-picking %s onto rebase base, resolve in %s and re-run (files: %v)",
		e.Commit, e.WorktreePath, e.Files)
}
func (e *RebaseConflict) ExitCode() int { return 1 }

// PushRejected is returned on a non-fast-forward push.
type PushRejected struct{ Branch string }

func (e *PushRejected) Error() string {
	return fmt.Sprintf("push to %s rejected (non-fast-forward)", e.Branch)
}
func (e *PushRejected) ExitCode() int { return 1 }

// InternalInvariant is returned when a post-condition of an otherwise
// successful operation fails to hold. This always aborts with a
// diagnostic rather than attempting to proceed.
type InternalInvariant struct{ Msg string }

func (e *InternalInvariant) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Msg)
}
func (e *InternalInvariant) ExitCode() int { return 1 }

// exitCoder is implemented by every error kind above; cmd/git-subdir uses
// it as the single place that maps an error to a process exit status.
type exitCoder interface {
	error
	ExitCode() int
}

// ExitCode returns the process exit code for err, defaulting to 1 for
// any error that doesn't carry one explicitly (e.g. a wrapped VCS
// gateway error that escaped without being classified above).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// IsRetryable reports whether err is likely to succeed on retry.
func IsRetryable(err error) bool {
	var pushRejected *PushRejected
	return errors.As(err, &pushRejected)
}

// IsUserActionRequired reports whether err requires the user to resolve
// something (a conflict, a rejected push) before retrying.
func IsUserActionRequired(err error) bool {
	var conflict *RebaseConflict
	var rejected *PushRejected
	return errors.As(err, &conflict) || errors.As(err, &rejected)
}
