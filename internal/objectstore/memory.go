package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	grantPut  = "put"
	grantPart = "part"
	grantGet  = "get"
)

type memObject struct {
	data        []byte
	contentType string
	etag        string
}

type memPart struct {
	data []byte
	etag string
}

type memUpload struct {
	key         string
	contentType string
	parts       map[int32]memPart
}

type grant struct {
	kind       string
	key        string
	uploadID   string
	partNumber int32
	expiresAt  time.Time
}

// Memory is an in-process Store. It also serves the URLs it signs, so it can
// be mounted on an HTTP server (or httptest.Server) and driven by real clients.
type Memory struct {
	mu        sync.Mutex
	baseURL   string
	objects   map[string]memObject
	uploads   map[string]*memUpload
	grants    map[string]grant
	completed map[string][]Part

	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		baseURL:   "http://localhost",
		objects:   make(map[string]memObject),
		uploads:   make(map[string]*memUpload),
		grants:    make(map[string]grant),
		completed: make(map[string][]Part),
		now:       time.Now,
	}
}

// SetBaseURL sets the externally reachable address of the handler.
func (m *Memory) SetBaseURL(base string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURL = strings.TrimRight(base, "/")
}

func (m *Memory) sign(g grant, ttl time.Duration) string {
	token := uuid.NewString()
	now := m.now()
	g.expiresAt = now.Add(ttl)

	m.mu.Lock()
	m.pruneGrantsLocked(now)
	m.grants[token] = g
	base := m.baseURL
	m.mu.Unlock()

	q := url.Values{}
	q.Set("token", token)
	return fmt.Sprintf("%s/%s?%s", base, (&url.URL{Path: g.key}).EscapedPath(), q.Encode())
}

// pruneGrantsLocked drops expired signatures. m.mu must be held.
func (m *Memory) pruneGrantsLocked(now time.Time) {
	for token, g := range m.grants {
		if now.After(g.expiresAt) {
			delete(m.grants, token)
		}
	}
}

func (m *Memory) PresignPutURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return m.sign(grant{kind: grantPut, key: key}, ttl), nil
}

func (m *Memory) PresignGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	_, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return "", &Error{Op: "presign-get", Key: key, Err: ErrNotFound}
	}
	return m.sign(grant{kind: grantGet, key: key}, ttl), nil
}

func (m *Memory) InitiateMultipartUpload(_ context.Context, key, contentType string) (string, error) {
	if key == "" {
		return "", &Error{Op: "create-multipart", Key: key, Err: fmt.Errorf("empty object key")}
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.uploads[id] = &memUpload{key: key, contentType: contentType, parts: make(map[int32]memPart)}
	m.mu.Unlock()

	return id, nil
}

func (m *Memory) PresignPartUploadURL(_ context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	if partNumber < 1 {
		return "", &Error{Op: "presign-part", Key: key, Err: ErrInvalidPart}
	}

	m.mu.Lock()
	u, ok := m.uploads[uploadID]
	m.mu.Unlock()
	if !ok || u.key != key {
		return "", &Error{Op: "presign-part", Key: key, Code: "NoSuchUpload", Err: ErrUploadNotFound}
	}

	return m.sign(grant{kind: grantPart, key: key, uploadID: uploadID, partNumber: partNumber}, ttl), nil
}

func (m *Memory) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []Part) (UploadInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.uploads[uploadID]
	if !ok || u.key != key {
		return UploadInfo{}, &Error{Op: "complete-multipart", Key: key, Code: "NoSuchUpload", Err: ErrUploadNotFound}
	}
	if len(parts) == 0 {
		return UploadInfo{}, &Error{Op: "complete-multipart", Key: key, Code: "InvalidPart", Err: ErrInvalidPart}
	}

	var buf bytes.Buffer
	sums := md5.New()
	for i, p := range parts {
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return UploadInfo{}, &Error{Op: "complete-multipart", Key: key, Code: "InvalidPartOrder", Err: ErrInvalidPart}
		}
		stored, ok := u.parts[p.PartNumber]
		if !ok || trimETag(stored.etag) != trimETag(p.ETag) {
			return UploadInfo{}, &Error{
				Op: "complete-multipart", Key: key, Code: "InvalidPart",
				Err: fmt.Errorf("%w: part %d", ErrInvalidPart, p.PartNumber),
			}
		}
		buf.Write(stored.data)
		raw, _ := hex.DecodeString(trimETag(stored.etag))
		sums.Write(raw)
	}

	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(sums.Sum(nil)), len(parts))
	m.objects[key] = memObject{data: buf.Bytes(), contentType: u.contentType, etag: etag}
	m.completed[key] = append([]Part(nil), parts...)
	delete(m.uploads, uploadID)

	return UploadInfo{ETag: etag}, nil
}

func (m *Memory) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.uploads[uploadID]
	if !ok || u.key != key {
		return &Error{Op: "abort-multipart", Key: key, Code: "NoSuchUpload", Err: ErrUploadNotFound}
	}
	delete(m.uploads, uploadID)
	return nil
}

func (m *Memory) PutStream(ctx context.Context, key string, body io.Reader, contentType string) (UploadInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return UploadInfo{}, &Error{Op: "put-stream", Key: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return UploadInfo{}, &Error{Op: "put-stream", Key: key, Err: err}
	}

	etag := m.PutObject(key, data, contentType)
	return UploadInfo{ETag: etag}, nil
}

// PutObject stores data directly and returns its unquoted ETag.
func (m *Memory) PutObject(key string, data []byte, contentType string) string {
	etag := md5Hex(data)

	m.mu.Lock()
	m.objects[key] = memObject{data: append([]byte(nil), data...), contentType: contentType, etag: etag}
	m.mu.Unlock()

	return etag
}

// Object returns a copy of the stored object body.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys lists stored object keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompletedParts returns the part list the last successful complete for key received.
func (m *Memory) CompletedParts(key string) []Part {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Part(nil), m.completed[key]...)
}

// PendingUploads reports multipart uploads neither completed nor aborted.
func (m *Memory) PendingUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *Memory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	now := m.now()
	m.mu.Lock()
	g, ok := m.grants[token]
	expired := ok && now.After(g.expiresAt)
	if expired {
		delete(m.grants, token)
	}
	m.mu.Unlock()

	if !ok {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	if expired {
		http.Error(w, "request has expired", http.StatusForbidden)
		return
	}

	switch {
	case g.kind == grantGet && r.Method == http.MethodGet:
		m.serveGet(w, g)
	case g.kind == grantPut && r.Method == http.MethodPut:
		m.servePut(w, r, g)
	case g.kind == grantPart && r.Method == http.MethodPut:
		m.servePart(w, r, g)
	default:
		http.Error(w, "method not allowed for signature", http.StatusMethodNotAllowed)
	}
}

func (m *Memory) serveGet(w http.ResponseWriter, g grant) {
	m.mu.Lock()
	obj, ok := m.objects[g.key]
	m.mu.Unlock()

	if !ok {
		http.Error(w, "no such key", http.StatusNotFound)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("ETag", quote(obj.etag))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.data)
}

func (m *Memory) servePut(w http.ResponseWriter, r *http.Request, g grant) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	etag := m.PutObject(g.key, data, r.Header.Get("Content-Type"))
	w.Header().Set("ETag", quote(etag))
	w.WriteHeader(http.StatusOK)
}

func (m *Memory) servePart(w http.ResponseWriter, r *http.Request, g grant) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	etag := md5Hex(data)

	m.mu.Lock()
	u, ok := m.uploads[g.uploadID]
	if ok {
		// the same part number overwrites the previous attempt
		u.parts[g.partNumber] = memPart{data: data, etag: etag}
	}
	m.mu.Unlock()

	if !ok {
		http.Error(w, "no such upload", http.StatusNotFound)
		return
	}
	w.Header().Set("ETag", quote(etag))
	w.WriteHeader(http.StatusOK)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func quote(etag string) string {
	return `"` + etag + `"`
}
