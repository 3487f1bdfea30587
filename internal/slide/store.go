// Package slide stores uploaded slide images and hands back the reference
// kept in the history record.
package slide

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

type Driver string

const (
	DriverInline Driver = "inline"
	DriverFS     Driver = "fs"
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

var (
	ErrNotFound   = errors.New("slide not found")
	ErrInvalidKey = errors.New("invalid slide key")
)

// Store persists slide images. Put returns the reference to keep in the
// record: a data URL for the inline driver, an object key otherwise.
// Delete of a missing key succeeds.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, account, mime string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the Store selected by cfg.Driver. Empty means inline.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverInline:
		return Inline{}, nil
	case DriverFS:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown slide driver %q", cfg.Driver)
	}
}

// objectKey places each account's slides under a hashed prefix so emails
// never appear in paths or bucket listings.
func objectKey(account, mime string) string {
	return accountPrefix(account) + utilities.NewKSUID() + extension(mime)
}

func accountPrefix(account string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(account)))
	return hex.EncodeToString(sum[:8]) + "/"
}

// Owns reports whether key was issued for account.
func Owns(account, key string) bool {
	return strings.HasPrefix(key, accountPrefix(account))
}

func extension(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}

func mimeFromKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	}
	return "application/octet-stream"
}

// DataURL encodes data as a base64 data: URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// sanitizeKey rejects keys that could escape the store root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "..") ||
		strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}
