package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	UploadedStatus   Status = "uploaded"
	ProcessingStatus Status = "processing"
	ReadyStatus      Status = "ready"
	FailedStatus     Status = "failed"
)

// ContentKind is the closed set of content kinds the catalog accepts.
type ContentKind int

const (
	KindImage ContentKind = iota + 1
	KindVideo
	KindPdf
)

func ParseContentKind(s string) (ContentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return KindImage, nil
	case "video":
		return KindVideo, nil
	case "pdf", "file": // the web portal sends "file" for documents
		return KindPdf, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownContentKind, s)
	}
}

// KindFromMIME maps image/*, video/* and application/pdf.
func KindFromMIME(mime string) (ContentKind, error) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage, nil
	case strings.HasPrefix(mime, "video/"):
		return KindVideo, nil
	case mime == "application/pdf":
		return KindPdf, nil
	default:
		return 0, fmt.Errorf("%w: mime %q", ErrUnknownContentKind, mime)
	}
}

func (k ContentKind) Valid() bool {
	return k == KindImage || k == KindVideo || k == KindPdf
}

func (k ContentKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindPdf:
		return "pdf"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k ContentKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContentKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *ContentKind) UnmarshalText(b []byte) error {
	parsed, err := ParseContentKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k ContentKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContentKind, int(k))
	}
	return k.String(), nil
}

func (k *ContentKind) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return k.UnmarshalText([]byte(v))
	case []byte:
		return k.UnmarshalText(v)
	default:
		return fmt.Errorf("scan content kind: unsupported type %T", src)
	}
}

type Rendition struct {
	Name      string `json:"name"`
	ObjectKey string `json:"objectKey"`
	ETag      string `json:"etag,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Renditions is stored as a JSON document.
type Renditions []Rendition

func (r Renditions) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (r *Renditions) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan renditions: unsupported type %T", src)
	}
	return json.Unmarshal(data, r)
}

type Content struct {
	ID         uuid.UUID   `db:"id"`
	Kind       ContentKind `db:"kind"`
	ObjectKey  string      `db:"object_key"`
	Status     Status      `db:"status"`
	Renditions Renditions  `db:"renditions"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

type ListFilter struct {
	Status Status
	Kind   ContentKind
	Limit  int
	Offset int
}
