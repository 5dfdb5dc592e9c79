package remote

import (
	"errors"
	"fmt"

	"github.com/joe/server-sync/pkg/filesystem"
)

// Exported variables.
var (
	ErrMissingConfig         = errors.New("missing remote configuration")
	ErrRemoteOperationFailed = errors.New("remote operation failed")
	ErrStoreClosed           = errors.New("remote store closed")
)

// OperationError is returned once every attempt of an operation has failed.
// It matches ErrRemoteOperationFailed with errors.Is and unwraps to the last cause.
type OperationError struct {
	Op       string
	Name     string
	Attempts int
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s %s after %d attempts: %v",
		ErrRemoteOperationFailed, e.Op, e.Name, e.Attempts, e.Err)
}

// Is matches ErrRemoteOperationFailed.
func (e *OperationError) Is(target error) bool {
	return target == ErrRemoteOperationFailed //nolint:errorlint // sentinel identity
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var perm *permanentError

	return errors.As(err, &perm) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, filesystem.ErrAuth) ||
		errors.Is(err, filesystem.ErrInvalidRemoteURL)
}

// unwrapPermanent strips the marker so callers see the cause.
func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}

	return err
}
