package objects

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Store persists job media blobs and hands back stable keys.
type Store interface {
	// Put uploads the local file at src under key and returns the stored key.
	Put(ctx context.Context, key, src string) (string, error)
	// Fetch copies the object at key into the local file dst.
	Fetch(ctx context.Context, key, dst string) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	URL(key string) string
}

// JobKey builds the key of a job artifact, e.g. jobs/<id>/audio/narration.mp3.
func JobKey(jobID string, parts ...string) string {
	return path.Join(append([]string{"jobs", jobID}, parts...)...)
}

// JobPrefix is the key prefix shared by all artifacts of a job.
func JobPrefix(jobID string) string {
	return "jobs/" + jobID + "/"
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("objects: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("objects: invalid key")
	}
	return cleaned, nil
}

func contentType(src string) string {
	mt, err := mimetype.DetectFile(src)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func localPath(base, key string) string {
	return filepath.Join(base, filepath.FromSlash(key))
}
