package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"formlane/internal/config"
)

// LocalStore implements BlobStore on the local filesystem for development
// and test environments where no object store is configured. Files land
// under dir using the object key as relative path and are served from
// baseURL at /uploads/<key>.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Dir returns the directory files are stored under, for static serving.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create upload dir: %w", err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(path)
		return StoredFile{}, fmt.Errorf("write upload file: %w", err)
	}

	return StoredFile{
		URL:      fmt.Sprintf("%s/uploads/%s", s.baseURL, key),
		PublicID: key,
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, publicID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(publicID)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	var firstErr error
	for _, id := range publicIDs {
		if err := s.Delete(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewBlobStore picks the configured store: OSS when credentials are present,
// the local filesystem otherwise.
func NewBlobStore(cfg *config.Config) (BlobStore, error) {
	if cfg.OSSEndpoint != "" && cfg.OSSBucket != "" {
		return NewOSSStore(cfg)
	}
	return NewLocalStore(filepath.Join(cfg.DatabasePath, "uploads"), cfg.PublicBaseURL), nil
}
