package transcode

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedRequest = errors.New("malformed transcode request")
	ErrTimeout          = errors.New("rendition timed out")
)

// RenditionError is the failure of one rendition job. It is reported in the
// completion and never returned by the pipeline.
type RenditionError struct {
	Resolution string
	Stage      string
	Err        error
}

func (e *RenditionError) Error() string {
	return fmt.Sprintf("%s rendition %s: %v", e.Resolution, e.Stage, e.Err)
}

func (e *RenditionError) Unwrap() error { return e.Err }
