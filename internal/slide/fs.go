package slide

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Filesystem writes slides under root, one file per key.
type Filesystem struct {
	root string
}

// NewFilesystem creates root if needed. Empty root means ./slides.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./slides"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFS }

func (f *Filesystem) Put(ctx context.Context, account, mime string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(account, mime)
	path := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write slide: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write slide: %w", err)
	}
	return key, nil
}

func (f *Filesystem) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	k, err := sanitizeKey(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(k)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return data, mimeFromKey(k), nil
}

func (f *Filesystem) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(f.root, filepath.FromSlash(k))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete slide: %w", err)
	}
	return nil
}
