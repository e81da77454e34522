package storage

import (
	"context"
	"strings"

	"tgmedia/internal/constants"
	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/sirupsen/logrus"
)

// UploadResult is the outcome of Uploader.Upload.
type UploadResult struct {
	PublicURL   string
	StoragePath string
	// Reused is true when an object with the same name already existed
	Reused bool
}

// Uploader stores media under a deterministic name derived from the
// Telegram file_unique_id so repeated uploads resolve to the same object.
type Uploader struct {
	store        ObjectStore
	bucket       string
	cacheControl string
	logger       *logrus.Logger
}

func NewUploader(store ObjectStore, bucket, cacheControl string, logger *logrus.Logger) *Uploader {
	if logger == nil {
		logger = logrus.New()
	}
	if cacheControl == "" {
		cacheControl = constants.DefaultStorageCacheControl
	}
	return &Uploader{
		store:        store,
		bucket:       bucket,
		cacheControl: cacheControl,
		logger:       logger,
	}
}

// Remove deletes the object stored at storagePath.
func (u *Uploader) Remove(ctx context.Context, storagePath string) error {
	if storagePath == "" {
		return nil
	}
	if err := u.store.Delete(ctx, u.bucket, storagePath); err != nil {
		return err
	}
	u.logger.WithField("object", storagePath).Debug("Storage object removed")
	return nil
}

// Upload returns the public URL of the object for fileUniqueID, uploading buf
// only when no object with that name exists. Errors are returned unretried.
func (u *Uploader) Upload(ctx context.Context, buf []byte, fileUniqueID string, fileType models.FileType, mimeType string) (UploadResult, error) {
	if SanitizeFileName(fileUniqueID) == "" {
		return UploadResult{}, apperrors.NewValidationError("file_unique_id", fileUniqueID, "has no characters usable in an object name")
	}
	name := ObjectName(fileUniqueID, fileType)

	existing, err := u.store.List(ctx, u.bucket, ListOptions{Search: name})
	if err != nil {
		return UploadResult{}, err
	}
	for _, obj := range existing {
		if obj.Name == name {
			u.logger.WithFields(logrus.Fields{
				"storage_path": name,
				"bucket":       u.bucket,
			}).Debug("Object already stored, reusing")
			return UploadResult{
				PublicURL:   u.store.PublicURL(u.bucket, name),
				StoragePath: name,
				Reused:      true,
			}, nil
		}
	}

	contentType := mimeType
	if contentType == "" {
		contentType = constants.MimeTypeForExtension(extensionFor(fileType))
	}

	err = u.store.Upload(ctx, u.bucket, name, buf, UploadOptions{
		ContentType:  contentType,
		Upsert:       true,
		CacheControl: u.cacheControl,
	})
	if err != nil {
		return UploadResult{}, err
	}

	u.logger.WithFields(logrus.Fields{
		"storage_path": name,
		"bucket":       u.bucket,
		"size":         len(buf),
	}).Debug("Uploaded media object")

	return UploadResult{
		PublicURL:   u.store.PublicURL(u.bucket, name),
		StoragePath: name,
	}, nil
}

// ObjectName builds "<sanitized file_unique_id>.<ext>".
func ObjectName(fileUniqueID string, fileType models.FileType) string {
	return SanitizeFileName(fileUniqueID) + "." + extensionFor(fileType)
}

// SanitizeFileName keeps ASCII letters and digits only.
func SanitizeFileName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extensionFor(fileType models.FileType) string {
	if ext, ok := constants.FileTypeExtensions[string(fileType)]; ok {
		return ext
	}
	return constants.DefaultExtension
}
