package upload

import "fmt"

type Strategy int

const (
	Single Strategy = iota
	Multipart
)

func (s Strategy) String() string {
	switch s {
	case Single:
		return "single"
	case Multipart:
		return "multipart"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

type PartStatus string

const (
	PartPending   PartStatus = "pending"
	PartUploading PartStatus = "uploading"
	PartCompleted PartStatus = "completed"
	PartFailed    PartStatus = "failed"
)

// CanTransition reports whether a part may move from s to to.
// Failed parts go back to uploading on retry.
func (s PartStatus) CanTransition(to PartStatus) bool {
	switch s {
	case PartPending:
		return to == PartUploading
	case PartUploading:
		return to == PartCompleted || to == PartFailed
	case PartFailed:
		return to == PartUploading
	default:
		return false
	}
}

type SessionState string

const (
	SessionInitiated  SessionState = "initiated"
	SessionInProgress SessionState = "in_progress"
	SessionCommitted  SessionState = "committed"
	SessionAborted    SessionState = "aborted"
)

func (s SessionState) CanTransition(to SessionState) bool {
	switch s {
	case SessionInitiated:
		return to == SessionInProgress || to == SessionCommitted || to == SessionAborted
	case SessionInProgress:
		return to == SessionCommitted || to == SessionAborted
	default:
		return false
	}
}

func (s SessionState) Terminal() bool {
	return s == SessionCommitted || s == SessionAborted
}

type PartRecord struct {
	PartNumber      int32
	Status          PartStatus
	ProgressPercent int
	ETag            string
	Attempts        int
}

func (p *PartRecord) transition(to PartStatus) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: part %d %s -> %s", ErrInvalidTransition, p.PartNumber, p.Status, to)
	}
	p.Status = to
	return nil
}

type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// UploadSession is owned by the goroutine that initiated it. Part records are
// written by their upload goroutine only and merged back at the batch join.
type UploadSession struct {
	UploadID    string
	ObjectName  string
	ContentType string
	Parts       []PartRecord
	State       SessionState
}

func (s *UploadSession) transition(to SessionState) error {
	if s.State == to {
		return nil
	}
	if !s.State.CanTransition(to) {
		return fmt.Errorf("%w: session %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// plan assigns part numbers 1..n before any upload starts.
func (s *UploadSession) plan(n int) {
	s.Parts = make([]PartRecord, n)
	for i := range s.Parts {
		s.Parts[i] = PartRecord{PartNumber: int32(i + 1), Status: PartPending}
	}
}

// Result describes an object that was delivered to the store.
type Result struct {
	ObjectName string
	Strategy   Strategy
	ETag       string
	VersionID  string
	Parts      int
}
