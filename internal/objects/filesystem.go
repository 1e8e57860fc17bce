package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps objects on the local filesystem. It serves development setups
// without an S3 endpoint.
type FileStore struct {
	basePath   string
	publicBase string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("objects: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("objects: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, publicBase: publicBase}, nil
}

func (s *FileStore) Put(ctx context.Context, key, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	dst := localPath(s.basePath, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("objects: ensure directory: %w", err)
	}
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("objects: put %s: %w", clean, err)
	}
	return clean, nil
}

func (s *FileStore) Fetch(ctx context.Context, key, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := copyFile(localPath(s.basePath, clean), dst); err != nil {
		return fmt.Errorf("objects: fetch %s: %w", clean, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(localPath(s.basePath, clean)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) DeletePrefix(ctx context.Context, prefix string) error {
	clean, err := sanitizeKey(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(localPath(s.basePath, clean))
}

// Root is the directory objects are stored under.
func (s *FileStore) Root() string { return s.basePath }

func (s *FileStore) URL(key string) string {
	if s.publicBase != "" {
		return strings.TrimRight(s.publicBase, "/") + "/" + key
	}
	return "file://" + filepath.ToSlash(localPath(s.basePath, key))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
