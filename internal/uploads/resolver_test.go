package uploads_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlane/internal/responses"
	"formlane/internal/testsupport"
	"formlane/internal/uploads"
)

// fakeStore records uploads and deletes; failKeys injects upload failures
// by substring match on the object key.
type fakeStore struct {
	mu       sync.Mutex
	uploaded map[string]string // publicID -> contentType
	deleted  []string
	failKeys []string
	slowKeys []string // keys that sleep before completing, substring match
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploaded: make(map[string]string)}
}

func (s *fakeStore) Upload(_ context.Context, key string, r io.Reader, contentType string) (uploads.StoredFile, error) {
	for _, fail := range s.failKeys {
		if strings.Contains(key, fail) {
			return uploads.StoredFile{}, errors.New("upload rejected")
		}
	}
	for _, slow := range s.slowKeys {
		if strings.Contains(key, slow) {
			time.Sleep(40 * time.Millisecond)
		}
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return uploads.StoredFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[key] = contentType
	return uploads.StoredFile{URL: "https://cdn.example.com/" + key, PublicID: key}, nil
}

func (s *fakeStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, publicID)
	return nil
}

func (s *fakeStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	for _, id := range publicIDs {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// failingDeleteStore always fails deletion so compensation paths can be
// exercised.
type failingDeleteStore struct {
	fakeStore
}

func (s *failingDeleteStore) DeleteMany(context.Context, []string) error {
	return errors.New("delete unavailable")
}

// fileHeaders builds real multipart file headers keyed by field name.
func fileHeaders(t *testing.T, files map[string]string) map[string]*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&buf, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)

	out := make(map[string]*multipart.FileHeader, len(files))
	for field, headers := range form.File {
		require.Len(t, headers, 1)
		out[field] = headers[0]
	}
	return out
}

func TestResolveRewritesFileAnswers(t *testing.T) {
	store := newFakeStore()
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 0)

	answers := responses.AnswerList{
		{FieldID: "name", Value: "Ana"},
		{FieldID: "screenshot", Value: nil},
	}
	files := fileHeaders(t, map[string]string{"screenshot": "\x89PNG fake bytes"})

	publicIDs, err := resolver.Resolve(context.Background(), 7, answers, files)
	require.NoError(t, err)
	require.Len(t, publicIDs, 1)

	assert.Equal(t, "Ana", answers[0].Value)
	assert.Empty(t, answers[0].FileURL)

	screenshot := answers[1]
	assert.Equal(t, "screenshot.png", screenshot.Value)
	assert.Equal(t, publicIDs[0], screenshot.FilePublicID)
	assert.Equal(t, "https://cdn.example.com/"+publicIDs[0], screenshot.FileURL)
	assert.Contains(t, screenshot.FilePublicID, "formlane/responses/7/")

	assert.Equal(t, "image/png", store.uploaded[publicIDs[0]])
	assert.Empty(t, store.deleted)
}

func TestResolveNoFilesIsANoOp(t *testing.T) {
	store := newFakeStore()
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 0)

	answers := responses.AnswerList{{FieldID: "name", Value: "Ana"}}

	publicIDs, err := resolver.Resolve(context.Background(), 1, answers, nil)
	require.NoError(t, err)
	assert.Empty(t, publicIDs)
	assert.Empty(t, store.uploaded)

	// Files without a matching answer are ignored too.
	publicIDs, err = resolver.Resolve(context.Background(), 1, answers,
		fileHeaders(t, map[string]string{"unrelated": "data"}))
	require.NoError(t, err)
	assert.Empty(t, publicIDs)
	assert.Empty(t, store.uploaded)
}

func TestResolveFailureDeletesStoredFiles(t *testing.T) {
	store := newFakeStore()
	store.failKeys = []string{"bad.png"}
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 0)

	answers := responses.AnswerList{
		{FieldID: "good", Value: nil},
		{FieldID: "bad", Value: nil},
	}
	files := fileHeaders(t, map[string]string{
		"good": "fine",
		"bad":  "broken",
	})

	publicIDs, err := resolver.Resolve(context.Background(), 3, answers, files)
	require.Error(t, err)
	assert.Empty(t, publicIDs)

	// Whatever was stored before the failure got deleted again.
	for key := range store.uploaded {
		assert.Contains(t, store.deleted, key)
	}

	for _, answer := range answers {
		assert.Empty(t, answer.FileURL, "answers stay untouched on failure")
		assert.Empty(t, answer.FilePublicID)
	}
}

func TestResolveFailureDeletesInFlightFiles(t *testing.T) {
	store := newFakeStore()
	store.failKeys = []string{"bad.png"}
	store.slowKeys = []string{"slow.png"}
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 0)

	answers := responses.AnswerList{
		{FieldID: "slow", Value: nil},
		{FieldID: "bad", Value: nil},
	}
	files := fileHeaders(t, map[string]string{
		"slow": "large but fine",
		"bad":  "broken",
	})

	_, err := resolver.Resolve(context.Background(), 9, answers, files)
	require.Error(t, err)

	// The slow upload was still running when the other one failed. It
	// finishes anyway and its blob is swept with the rest.
	require.Len(t, store.uploaded, 1)
	for key := range store.uploaded {
		assert.Contains(t, store.deleted, key)
	}
}

func TestResolveErrorsTellStoreFailuresApart(t *testing.T) {
	store := newFakeStore()
	store.failKeys = []string{"broken.png"}
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 4)

	t.Run("store failure", func(t *testing.T) {
		answers := responses.AnswerList{{FieldID: "broken", Value: nil}}
		_, err := resolver.Resolve(context.Background(), 1, answers,
			fileHeaders(t, map[string]string{"broken": "bits"}))
		require.Error(t, err)

		var storeErr *uploads.StoreError
		assert.True(t, errors.As(err, &storeErr), "store failures carry the marker: %v", err)
	})

	t.Run("rejected file", func(t *testing.T) {
		answers := responses.AnswerList{{FieldID: "big", Value: nil}}
		_, err := resolver.Resolve(context.Background(), 1, answers,
			fileHeaders(t, map[string]string{"big": "more than four bytes"}))
		require.Error(t, err)

		var storeErr *uploads.StoreError
		assert.False(t, errors.As(err, &storeErr), "client rejections stay plain: %v", err)
	})
}

func TestResolveEnforcesSizeLimit(t *testing.T) {
	store := newFakeStore()
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 4)

	answers := responses.AnswerList{{FieldID: "screenshot", Value: nil}}
	files := fileHeaders(t, map[string]string{"screenshot": "more than four bytes"})

	_, err := resolver.Resolve(context.Background(), 1, answers, files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
	assert.Empty(t, store.uploaded)
}

func TestCheckExtension(t *testing.T) {
	assert.NoError(t, uploads.CheckExtension("photo.PNG"))
	assert.NoError(t, uploads.CheckExtension("report.pdf"))
	assert.NoError(t, uploads.CheckExtension("noext"))
	assert.Error(t, uploads.CheckExtension("malware.exe"))
	assert.Error(t, uploads.CheckExtension("script.SH"))
}

func TestCompensateSwallowsDeleteFailures(t *testing.T) {
	store := &failingDeleteStore{}
	resolver := uploads.NewResolver(testsupport.GetLogger(), store, 0)

	// Must not panic or surface the error.
	resolver.Compensate(context.Background(), []string{"a", "b"})
	resolver.Compensate(context.Background(), nil)
}

func TestObjectKey(t *testing.T) {
	key := uploads.ObjectKey(12, "../../etc/passwd")
	assert.Contains(t, key, "formlane/responses/12/")
	assert.True(t, strings.HasSuffix(key, "_passwd"), "path components are stripped: %s", key)

	empty := uploads.ObjectKey(12, "")
	assert.True(t, strings.HasSuffix(empty, "_file"))
}

func TestDetectContentType(t *testing.T) {
	assert.Contains(t, uploads.DetectContentType(nil, "photo.jpeg"), "image/jpeg")
	assert.Equal(t, "application/octet-stream", uploads.DetectContentType(nil, "mystery"))

	// Extension missing, sniffed from content.
	head := []byte("%PDF-1.7 ...")
	assert.Equal(t, "application/pdf", uploads.DetectContentType(head, "document"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := uploads.NewLocalStore(dir, "http://localhost:3000")

	stored, err := store.Upload(context.Background(), "forms/1/a.txt",
		strings.NewReader("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "forms/1/a.txt", stored.PublicID)
	assert.Equal(t, "http://localhost:3000/uploads/forms/1/a.txt", stored.URL)

	require.NoError(t, store.Delete(context.Background(), stored.PublicID))
	// Deleting a missing file is not an error.
	require.NoError(t, store.Delete(context.Background(), stored.PublicID))
}
