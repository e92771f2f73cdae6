package storage

import (
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// BlobStore holds question illustrations and import uploads.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}

var allowedImageExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// ImageKey mints a storage key for an uploaded question image, scoped by
// question id. Rejects unknown extensions.
func ImageKey(questionID, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := allowedImageExt[ext]; !ok {
		return "", errors.New("unsupported image type: " + ext)
	}
	return "questions/" + questionID + "/" + uuid.NewString() + ext, nil
}

// ContentTypeFor maps a stored key to its MIME type for serving.
func ContentTypeFor(key string) string {
	if ct, ok := allowedImageExt[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}
