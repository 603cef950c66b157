package uploads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"formlane/internal/pkg/async"
	"formlane/internal/responses"
)

// Resolver uploads file-bearing answers before the response is persisted.
// All uploads in a batch run concurrently and the batch fails as a whole if
// any single upload fails.
type Resolver struct {
	store    BlobStore
	pool     *async.Pool
	logger   *slog.Logger
	maxBytes int64
}

// NewResolver builds a resolver over the given blob store.
func NewResolver(logger *slog.Logger, store BlobStore, maxBytes int64) *Resolver {
	return &Resolver{
		store:    store,
		pool:     async.NewPool(4),
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// StoreError marks a blob store failure during attachment resolution, as
// opposed to a rejected file. Handlers map it to a server error.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return "file upload failed: " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

type uploadedAnswer struct {
	index    int
	fileName string
	stored   StoredFile
}

// Resolve matches multipart files to answers by fieldId, uploads them
// concurrently and rewrites the matched answers in place with the stored
// file's URL, public ID and original filename. It returns the public IDs of
// everything it stored so the caller can compensate if the response write
// later fails. If any upload fails, already-stored files are deleted and no
// answer is modified.
func (r *Resolver) Resolve(ctx context.Context, formID uint, answers responses.AnswerList, files map[string]*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var tasks []async.Task
	for i := range answers {
		fh, ok := files[answers[i].FieldID]
		if !ok {
			continue
		}
		idx := i
		header := fh
		tasks = append(tasks, async.Task{
			Name: answers[i].FieldID,
			Execute: func() (interface{}, error) {
				return r.uploadOne(ctx, formID, idx, header)
			},
		})
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	// On failure every upload that was in flight has still settled, so
	// the results carry all stored files and compensation misses nothing.
	results, err := r.pool.ExecuteFailFast(ctx, tasks)
	if err != nil {
		var stored []string
		for _, res := range results {
			if res.Err == nil {
				if ua, ok := res.Data.(*uploadedAnswer); ok {
					stored = append(stored, ua.stored.PublicID)
				}
			}
		}
		r.Compensate(ctx, stored)
		return nil, err
	}

	publicIDs := make([]string, 0, len(results))
	for _, res := range results {
		ua := res.Data.(*uploadedAnswer)
		answers[ua.index].FileURL = ua.stored.URL
		answers[ua.index].FilePublicID = ua.stored.PublicID
		answers[ua.index].Value = ua.fileName
		publicIDs = append(publicIDs, ua.stored.PublicID)
	}
	return publicIDs, nil
}

// Compensate deletes stored files after a failed response write. Deletion
// failures are logged, never escalated.
func (r *Resolver) Compensate(ctx context.Context, publicIDs []string) {
	if len(publicIDs) == 0 {
		return
	}
	if err := r.store.DeleteMany(ctx, publicIDs); err != nil {
		r.logger.Error("Failed to clean up uploaded files",
			slog.Int("count", len(publicIDs)), slog.Any("error", err))
	}
}

func (r *Resolver) uploadOne(ctx context.Context, formID uint, index int, fh *multipart.FileHeader) (*uploadedAnswer, error) {
	if r.maxBytes > 0 && fh.Size > r.maxBytes {
		return nil, fmt.Errorf("file %s exceeds the %d byte limit", fh.Filename, r.maxBytes)
	}
	if err := CheckExtension(fh.Filename); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", fh.Filename, err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(io.LimitReader(src, 512), head)
	reader := io.MultiReader(strings.NewReader(string(head[:n])), src)

	fileName := fh.Filename
	if fileName == "" {
		fileName = "uploaded-file"
	}

	stored, err := r.store.Upload(ctx, ObjectKey(formID, fileName), reader,
		DetectContentType(head[:n], fileName))
	if err != nil {
		return nil, &StoreError{Err: err}
	}

	return &uploadedAnswer{index: index, fileName: fileName, stored: stored}, nil
}
