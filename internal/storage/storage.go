// Package storage abstracts the file tree holding uploads so that media can
// live on a local disk or in an S3 compatible bucket
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrNotExist = errors.New("file does not exist")

// Storage operates on slash separated paths relative to the upload root
type Storage interface {
	Exists(ctx context.Context, p string) bool
	// Move relocates src to dst, creating the parents of dst as needed
	Move(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, p string) error
	// DeleteDir removes a directory and everything below it
	DeleteDir(ctx context.Context, p string) error
	// List returns the names of the direct children of dir
	List(ctx context.Context, dir string) ([]string, error)
	Stat(ctx context.Context, p string) (*Info, error)
	Open(ctx context.Context, p string) (io.ReadCloser, *Info, error)
	Write(ctx context.Context, p string, r io.Reader, contentType string) (int64, error)
}

type Info struct {
	Name    string
	Size    int64
	ModTime int64
}

// Clean normalizes p into the relative form used by every backend
func Clean(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}
