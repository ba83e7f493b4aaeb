package mirror

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedDocument marks a document without an id: it is counted & skipped.
	ErrMalformedDocument = errors.New("malformed document: missing id")
	// ErrSyncInProgress is the ConcurrentSyncConflict: a pass is already running for the school.
	ErrSyncInProgress = errors.New("a sync is already in progress for this school")
	ErrSchoolNotFound = errors.New("school not found")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
)

// RemoteUnavailableError reports a failed fetch (network, auth, quota).
type RemoteUnavailableError struct {
	Collection string
	Err        error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("remote unavailable: fetching %s: %v", e.Collection, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// NewRemoteUnavailable wraps a fetch failure of collection.
func NewRemoteUnavailable(collection string, err error) error {
	return &RemoteUnavailableError{Collection: collection, Err: err}
}

func IsRemoteUnavailable(err error) bool {
	var target *RemoteUnavailableError
	return errors.As(err, &target)
}

// LocalWriteError reports an upsert transaction that did not commit.
type LocalWriteError struct {
	Table string
	Err   error
}

func (e *LocalWriteError) Error() string {
	return fmt.Sprintf("local write failure: upserting %s: %v", e.Table, e.Err)
}

func (e *LocalWriteError) Unwrap() error { return e.Err }

func NewLocalWriteFailure(table string, err error) error {
	return &LocalWriteError{Table: table, Err: err}
}

func IsLocalWriteFailure(err error) bool {
	var target *LocalWriteError
	return errors.As(err, &target)
}

// ConflictError is returned with ErrSyncInProgress; Task is the pass already in flight.
type ConflictError struct {
	Task *Task
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: school %s, task %s", ErrSyncInProgress, e.Task.SchoolID, e.Task.ID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrSyncInProgress }
