// Package upload delivers a local byte stream to the object store, either as a
// single signed PUT or as a multipart upload split into fixed-size parts.
package upload

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/objectstore"
)

const (
	DefaultChunkSize          int64 = 5 * 1024 * 1024
	DefaultMultipartThreshold int64 = 10 * 1024 * 1024
	DefaultConcurrency              = 3
)

type Config struct {
	ChunkSize          int64
	MultipartThreshold int64
	Concurrency        int
	PartRetries        int
	RetryBackoff       time.Duration
	PartTimeout        time.Duration
	URLTTL             time.Duration

	// OnProgress is called from the goroutine that owns the part.
	OnProgress func(PartRecord)
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          DefaultChunkSize,
		MultipartThreshold: DefaultMultipartThreshold,
		Concurrency:        DefaultConcurrency,
		PartRetries:        3,
		RetryBackoff:       200 * time.Millisecond,
		PartTimeout:        5 * time.Minute,
		URLTTL:             time.Hour,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MultipartThreshold <= 0 {
		c.MultipartThreshold = d.MultipartThreshold
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.PartRetries < 0 {
		c.PartRetries = 0
	}
	if c.URLTTL <= 0 {
		c.URLTTL = d.URLTTL
	}
}

// Store is the part of objectstore.Store the coordinator drives. A remote
// gateway that hands out signed URLs satisfies it as well.
type Store interface {
	PresignPutURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignPartUploadURL(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []objectstore.Part) (objectstore.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Coordinator struct {
	store  Store
	client HTTPDoer
	cfg    Config
	logger zerolog.Logger
}

func NewCoordinator(store Store, client HTTPDoer, cfg Config, logger zerolog.Logger) *Coordinator {
	cfg.setDefaults()
	if client == nil {
		client = http.DefaultClient
	}
	return &Coordinator{
		store:  store,
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "upload").Logger(),
	}
}

// DecideStrategy picks multipart only for files strictly larger than the threshold.
func (c *Coordinator) DecideStrategy(size int64) Strategy {
	if size > c.cfg.MultipartThreshold {
		return Multipart
	}
	return Single
}

func (c *Coordinator) PartCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + c.cfg.ChunkSize - 1) / c.cfg.ChunkSize)
}

// PlanBatches groups part numbers 1..partCount into consecutive batches of at most k.
func PlanBatches(partCount, k int) [][]int32 {
	if partCount <= 0 || k <= 0 {
		return nil
	}
	batches := make([][]int32, 0, (partCount+k-1)/k)
	for start := 1; start <= partCount; start += k {
		end := min(start+k-1, partCount)
		batch := make([]int32, 0, end-start+1)
		for n := start; n <= end; n++ {
			batch = append(batch, int32(n))
		}
		batches = append(batches, batch)
	}
	return batches
}

func (c *Coordinator) Initiate(ctx context.Context, objectName, contentType string) (*UploadSession, error) {
	uploadID, err := c.store.InitiateMultipartUpload(ctx, objectName, contentType)
	if err != nil {
		return nil, &InitiationError{ObjectName: objectName, Err: err}
	}

	c.logger.Info().
		Str("object_key", objectName).
		Str("upload_id", uploadID).
		Msg("multipart upload initiated")

	return &UploadSession{
		UploadID:    uploadID,
		ObjectName:  objectName,
		ContentType: contentType,
		State:       SessionInitiated,
	}, nil
}

// UploadPart performs one attempt: it signs a URL for the part, PUTs the bytes
// and returns the ETag the store answered with. Repeating it for the same part
// number overwrites the previous attempt on the store side.
func (c *Coordinator) UploadPart(ctx context.Context, session *UploadSession, partNumber int32, data []byte) (CompletedPart, error) {
	if session.State.Terminal() {
		return CompletedPart{}, &PartUploadError{PartNumber: partNumber, Err: ErrSessionClosed}
	}
	if partNumber < 1 {
		return CompletedPart{}, &PartUploadError{PartNumber: partNumber, Err: objectstore.ErrInvalidPart}
	}

	if c.cfg.PartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PartTimeout)
		defer cancel()
	}

	url, err := c.store.PresignPartUploadURL(ctx, session.ObjectName, session.UploadID, partNumber, c.cfg.URLTTL)
	if err != nil {
		return CompletedPart{}, &PartUploadError{PartNumber: partNumber, Err: fmt.Errorf("presign part: %w", err)}
	}

	etag, status, err := c.put(ctx, url, "", data)
	if err != nil {
		return CompletedPart{}, &PartUploadError{PartNumber: partNumber, StatusCode: status, Err: err}
	}

	return CompletedPart{PartNumber: partNumber, ETag: etag}, nil
}

// Commit validates the part list, sorts it ascending and asks the store to
// assemble the object.
func (c *Coordinator) Commit(ctx context.Context, session *UploadSession, parts []CompletedPart) (objectstore.UploadInfo, error) {
	if session.State.Terminal() {
		return objectstore.UploadInfo{}, &CommitError{UploadID: session.UploadID, Err: ErrSessionClosed}
	}

	sorted, err := validateParts(session, parts)
	if err != nil {
		return objectstore.UploadInfo{}, err
	}

	storeParts := make([]objectstore.Part, len(sorted))
	for i, p := range sorted {
		storeParts[i] = objectstore.Part{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	info, err := c.store.CompleteMultipartUpload(ctx, session.ObjectName, session.UploadID, storeParts)
	if err != nil {
		return objectstore.UploadInfo{}, &CommitError{UploadID: session.UploadID, Err: err}
	}
	if err := session.transition(SessionCommitted); err != nil {
		return objectstore.UploadInfo{}, err
	}

	c.logger.Info().
		Str("object_key", session.ObjectName).
		Str("upload_id", session.UploadID).
		Int("parts", len(sorted)).
		Str("etag", info.ETag).
		Msg("multipart upload committed")

	return info, nil
}

func validateParts(session *UploadSession, parts []CompletedPart) ([]CompletedPart, error) {
	sorted, err := ValidateParts(parts, len(session.Parts))
	if err != nil {
		return nil, err
	}

	for _, rec := range session.Parts {
		if rec.Status != PartCompleted {
			return nil, &IncompleteUploadError{
				Missing: []int32{rec.PartNumber},
				Reason:  fmt.Sprintf("part %d is %s", rec.PartNumber, rec.Status),
			}
		}
	}
	return sorted, nil
}

// ValidateParts returns parts sorted ascending by part number, or an
// *IncompleteUploadError for an empty, duplicated or gapped list. When
// expected is zero the highest part number given defines the range.
func ValidateParts(parts []CompletedPart, expected int) ([]CompletedPart, error) {
	if len(parts) == 0 {
		return nil, &IncompleteUploadError{Reason: "no parts"}
	}

	sorted := slices.Clone(parts)
	slices.SortFunc(sorted, func(a, b CompletedPart) int { return cmp.Compare(a.PartNumber, b.PartNumber) })

	if expected <= 0 {
		expected = int(sorted[len(sorted)-1].PartNumber)
	}

	seen := make(map[int32]bool, len(sorted))
	for _, p := range sorted {
		if p.PartNumber < 1 || int(p.PartNumber) > expected {
			return nil, &IncompleteUploadError{Reason: fmt.Sprintf("unexpected part number %d", p.PartNumber)}
		}
		if seen[p.PartNumber] {
			return nil, &IncompleteUploadError{Reason: fmt.Sprintf("duplicate part number %d", p.PartNumber)}
		}
		if p.ETag == "" {
			return nil, &IncompleteUploadError{Reason: fmt.Sprintf("part %d has no etag", p.PartNumber)}
		}
		seen[p.PartNumber] = true
	}

	var missing []int32
	for n := int32(1); n <= int32(expected); n++ {
		if !seen[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteUploadError{Missing: missing, Reason: "gap in part numbers"}
	}
	return sorted, nil
}

// Abort releases the store-side reservation. Failures are only logged.
func (c *Coordinator) Abort(ctx context.Context, session *UploadSession) {
	if session == nil || session.State.Terminal() {
		return
	}
	log := c.logger.With().Str("object_key", session.ObjectName).Str("upload_id", session.UploadID).Logger()

	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := c.store.AbortMultipartUpload(ctx, session.ObjectName, session.UploadID); err != nil {
		log.Warn().Err(err).Msg("abort multipart upload failed")
	} else {
		log.Info().Msg("multipart upload aborted")
	}
	_ = session.transition(SessionAborted)
}

// Upload delivers size bytes from r to objectName, picking the strategy by size.
func (c *Coordinator) Upload(ctx context.Context, objectName, contentType string, r io.ReaderAt, size int64) (Result, error) {
	if size < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	if c.DecideStrategy(size) == Single {
		return c.uploadSingle(ctx, objectName, contentType, io.NewSectionReader(r, 0, size), size)
	}
	return c.uploadMultipart(ctx, objectName, contentType, r, size)
}

func (c *Coordinator) uploadSingle(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) != size {
		return Result{}, &PartUploadError{PartNumber: 1, Err: fmt.Errorf("read file: %d of %d bytes: %w", len(data), size, io.ErrUnexpectedEOF)}
	}

	if c.cfg.PartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PartTimeout)
		defer cancel()
	}

	url, err := c.store.PresignPutURL(ctx, objectName, c.cfg.URLTTL)
	if err != nil {
		return Result{}, fmt.Errorf("presign put: %w", err)
	}

	etag, status, err := c.put(ctx, url, contentType, data)
	if err != nil {
		return Result{}, &PartUploadError{PartNumber: 1, StatusCode: status, Err: err}
	}

	c.logger.Info().
		Str("object_key", objectName).
		Int("bytes", len(data)).
		Msg("single upload finished")

	return Result{ObjectName: objectName, Strategy: Single, ETag: etag}, nil
}

func (c *Coordinator) uploadMultipart(ctx context.Context, objectName, contentType string, r io.ReaderAt, size int64) (Result, error) {
	session, err := c.Initiate(ctx, objectName, contentType)
	if err != nil {
		return Result{}, err
	}

	partCount := c.PartCount(size)
	session.plan(partCount)
	if err := session.transition(SessionInProgress); err != nil {
		return Result{}, err
	}

	completed := make([]CompletedPart, 0, partCount)
	for i, batch := range PlanBatches(partCount, c.cfg.Concurrency) {
		c.logger.Debug().
			Str("upload_id", session.UploadID).
			Int("batch", i+1).
			Interface("parts", batch).
			Msg("uploading batch")

		done, err := c.uploadBatch(ctx, session, r, size, batch)
		if err != nil {
			c.Abort(ctx, session)
			return Result{}, err
		}
		completed = append(completed, done...)
	}

	info, err := c.Commit(ctx, session, completed)
	if err != nil {
		c.Abort(ctx, session)
		return Result{}, err
	}

	return Result{
		ObjectName: objectName,
		Strategy:   Multipart,
		ETag:       info.ETag,
		VersionID:  info.VersionID,
		Parts:      partCount,
	}, nil
}

// uploadBatch runs every part of one batch concurrently and waits for all of them.
func (c *Coordinator) uploadBatch(ctx context.Context, session *UploadSession, r io.ReaderAt, size int64, batch []int32) ([]CompletedPart, error) {
	records := make([]PartRecord, len(batch))
	results := make([]CompletedPart, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, partNumber := range batch {
		records[i] = session.Parts[partNumber-1]
		g.Go(func() error {
			offset := int64(partNumber-1) * c.cfg.ChunkSize
			length := min(c.cfg.ChunkSize, size-offset)

			data := make([]byte, length)
			n, err := r.ReadAt(data, offset)
			if n < len(data) {
				if err == nil || errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				return &PartUploadError{PartNumber: partNumber, Err: fmt.Errorf("read chunk: %d of %d bytes: %w", n, length, err)}
			}

			part, err := c.uploadPartWithRetry(gctx, session, &records[i], data)
			if err != nil {
				return err
			}
			results[i] = part
			return nil
		})
	}
	err := g.Wait()

	// batch join: the only place part records are merged into the session
	for _, rec := range records {
		session.Parts[rec.PartNumber-1] = rec
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Coordinator) uploadPartWithRetry(ctx context.Context, session *UploadSession, rec *PartRecord, data []byte) (CompletedPart, error) {
	log := c.logger.With().
		Str("upload_id", session.UploadID).
		Int32("part_number", rec.PartNumber).
		Logger()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.PartRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return CompletedPart{}, &PartUploadError{PartNumber: rec.PartNumber, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		if err := rec.transition(PartUploading); err != nil {
			return CompletedPart{}, err
		}
		rec.Attempts++
		rec.ProgressPercent = 0
		c.progress(*rec)

		part, err := c.UploadPart(ctx, session, rec.PartNumber, data)
		if err == nil {
			rec.ETag = part.ETag
			rec.ProgressPercent = 100
			_ = rec.transition(PartCompleted)
			c.progress(*rec)
			return part, nil
		}

		lastErr = err
		_ = rec.transition(PartFailed)
		c.progress(*rec)
		log.Warn().Err(err).Int("attempt", rec.Attempts).Msg("part upload failed")

		if ctx.Err() != nil {
			break
		}
	}

	return CompletedPart{}, lastErr
}

func (c *Coordinator) progress(rec PartRecord) {
	if c.cfg.OnProgress != nil {
		c.cfg.OnProgress(rec)
	}
}

// put sends data to a signed URL and returns the ETag header of the answer.
func (c *Coordinator) put(ctx context.Context, url, contentType string, data []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = int64(len(data))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return "", 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", resp.StatusCode, errors.New("response has no ETag header")
	}
	return etag, resp.StatusCode, nil
}
