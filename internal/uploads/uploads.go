// Package uploads handles file attachments: blob storage behind the
// BlobStore interface, upload bookkeeping rows, and the attachment
// resolver that runs before a response is persisted.
package uploads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"formlane/internal/config"
)

// FileUpload records one stored attachment.
type FileUpload struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FormID      uint      `gorm:"index;not null" json:"form_id"`
	ResponseID  *uint     `gorm:"index" json:"response_id"`
	FieldID     string    `json:"field_id"`
	FileName    string    `json:"file_name"`
	FileURL     string    `json:"file_url"`
	PublicID    string    `gorm:"index" json:"public_id"` // object key in the blob store
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// StoredFile is what a BlobStore hands back after a successful upload.
type StoredFile struct {
	URL      string
	PublicID string
}

// BlobStore abstracts the external object store so handlers and the
// resolver never touch a concrete SDK client.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (StoredFile, error)
	Delete(ctx context.Context, publicID string) error
	DeleteMany(ctx context.Context, publicIDs []string) error
}

// OSSStore implements BlobStore on Alibaba Cloud OSS.
type OSSStore struct {
	bucket     *oss.Bucket
	endpoint   string
	bucketName string
}

// NewOSSStore builds a BlobStore from the configured OSS credentials.
func NewOSSStore(cfg *config.Config) (*OSSStore, error) {
	if cfg.OSSEndpoint == "" || cfg.OSSBucket == "" {
		return nil, fmt.Errorf("blob store is not configured")
	}

	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKeyID, cfg.OSSAccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	return &OSSStore{
		bucket:     bucket,
		endpoint:   cfg.OSSEndpoint,
		bucketName: cfg.OSSBucket,
	}, nil
}

// Upload stores the reader's content under key and returns its public URL.
func (s *OSSStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (StoredFile, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	}
	if err := s.bucket.PutObject(key, r, opts...); err != nil {
		return StoredFile{}, err
	}
	return StoredFile{URL: s.publicURL(key), PublicID: key}, nil
}

// Delete removes one object by key.
func (s *OSSStore) Delete(ctx context.Context, publicID string) error {
	return s.bucket.DeleteObject(publicID, oss.WithContext(ctx))
}

// DeleteMany removes the given objects in one batch call.
func (s *OSSStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	_, err := s.bucket.DeleteObjects(publicIDs, oss.WithContext(ctx))
	return err
}

func (s *OSSStore) publicURL(key string) string {
	end := strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, end, key)
}

// blockedExtensions are file types never accepted as attachments,
// matched case-insensitively on the original filename.
var blockedExtensions = map[string]bool{
	".exe": true,
	".dll": true,
	".bat": true,
	".cmd": true,
	".com": true,
	".scr": true,
	".msi": true,
	".sh":  true,
	".php": true,
}

// CheckExtension rejects filenames with a blocked extension.
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if blockedExtensions[ext] {
		return fmt.Errorf("file type %s is not allowed", ext)
	}
	return nil
}

// ObjectKey builds a collision-free object key for an attachment, scoped to
// the form it belongs to.
func ObjectKey(formID uint, filename string) string {
	base := filepath.Base(filename)
	if base == "" || base == "." || base == "/" {
		base = "file"
	}
	return fmt.Sprintf("formlane/responses/%d/%s_%s", formID, uuid.NewString()[:8], base)
}

// DetectContentType resolves a content type from the extension with a
// 512-byte sniff fallback.
func DetectContentType(head []byte, filename string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ct == "" && len(head) > 0 {
		ct = http.DetectContentType(head)
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return ct
}

// RecordUpload persists a bookkeeping row for a stored attachment.
func RecordUpload(logger *slog.Logger, db *gorm.DB, record *FileUpload) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
}

// AttachToResponse links upload rows to the response they ended up in.
func AttachToResponse(logger *slog.Logger, db *gorm.DB, responseID uint, publicIDs []string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&FileUpload{}).
			Where("public_id IN ?", publicIDs).
			Update("response_id", responseID).Error
	})
}

// UploadFormFile streams one multipart file into the blob store and records
// it. Used by the standalone upload endpoint.
func UploadFormFile(ctx context.Context, logger *slog.Logger, db *gorm.DB, store BlobStore, formID uint, fieldID string, fh *multipart.FileHeader) (*FileUpload, error) {
	if err := CheckExtension(fh.Filename); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(io.LimitReader(src, 512), head)
	reader := io.MultiReader(strings.NewReader(string(head[:n])), src)

	key := ObjectKey(formID, fh.Filename)
	stored, err := store.Upload(ctx, key, reader, DetectContentType(head[:n], fh.Filename))
	if err != nil {
		return nil, err
	}

	record := &FileUpload{
		FormID:      formID,
		FieldID:     fieldID,
		FileName:    fh.Filename,
		FileURL:     stored.URL,
		PublicID:    stored.PublicID,
		ContentType: DetectContentType(head[:n], fh.Filename),
		SizeBytes:   fh.Size,
	}
	if err := RecordUpload(logger, db, record); err != nil {
		// The row is bookkeeping only; the stored object must not leak.
		if dErr := store.Delete(ctx, stored.PublicID); dErr != nil {
			logger.Warn("Failed to delete orphaned upload",
				slog.String("public_id", stored.PublicID), slog.Any("error", dErr))
		}
		return nil, err
	}
	return record, nil
}
