package upload

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout           = errors.New("upload timed out")
	ErrSessionClosed     = errors.New("upload session is closed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidSize       = errors.New("invalid file size")
)

// InitiationError means the store refused to open a multipart upload. It is not retried.
type InitiationError struct {
	ObjectName string
	Err        error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("initiate upload %s: %v", e.ObjectName, e.Err)
}

func (e *InitiationError) Unwrap() error { return e.Err }

type PartUploadError struct {
	PartNumber int32
	StatusCode int
	Err        error
}

func (e *PartUploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload part %d: status %d: %v", e.PartNumber, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload part %d: %v", e.PartNumber, e.Err)
}

func (e *PartUploadError) Unwrap() error { return e.Err }

type IncompleteUploadError struct {
	Missing []int32
	Reason  string
}

func (e *IncompleteUploadError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("incomplete upload: %s: missing parts %v", e.Reason, e.Missing)
	}
	return "incomplete upload: " + e.Reason
}

// CommitError is fatal for the session; the caller must abort.
type CommitError struct {
	UploadID string
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit upload %s: %v", e.UploadID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
