package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

// Local keeps uploads on a filesystem rooted at the upload directory
type Local struct {
	fs afero.Fs
}

func fsPath(p string) string {
	if p = Clean(p); p == "" {
		return "."
	}

	return p
}

// NewLocal roots the storage at dir on the OS filesystem
func NewLocal(dir string) (*Local, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory, %w", err)
	}

	return &Local{fs: afero.NewBasePathFs(osFs, dir)}, nil
}

// NewLocalFs wraps an existing afero filesystem, mostly used with afero.NewMemMapFs
func NewLocalFs(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

func (l *Local) Exists(_ context.Context, p string) bool {
	ok, err := afero.Exists(l.fs, fsPath(p))
	return err == nil && ok
}

func (l *Local) Move(_ context.Context, src, dst string) error {
	src, dst = fsPath(src), fsPath(dst)

	if ok, _ := afero.Exists(l.fs, src); !ok {
		return fmt.Errorf("failed to move %s, %w", src, ErrNotExist)
	}

	if err := l.fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s, %w", dst, err)
	}

	if err := l.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s, %w", src, dst, err)
	}

	return nil
}

func (l *Local) Delete(_ context.Context, p string) error {
	err := l.fs.Remove(fsPath(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotExist
		}

		return fmt.Errorf("failed to delete %s, %w", p, err)
	}

	return nil
}

func (l *Local) DeleteDir(_ context.Context, p string) error {
	if err := l.fs.RemoveAll(fsPath(p)); err != nil {
		return fmt.Errorf("failed to delete directory %s, %w", p, err)
	}

	return nil
}

func (l *Local) List(_ context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, fsPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}

		return nil, fmt.Errorf("failed to list %s, %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names, nil
}

func (l *Local) Stat(_ context.Context, p string) (*Info, error) {
	fi, err := l.fs.Stat(fsPath(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}

		return nil, fmt.Errorf("failed to stat %s, %w", p, err)
	}

	if fi.IsDir() {
		return nil, ErrNotExist
	}

	return &Info{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime().Unix()}, nil
}

func (l *Local) Open(ctx context.Context, p string) (io.ReadCloser, *Info, error) {
	info, err := l.Stat(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	f, err := l.fs.Open(fsPath(p))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s, %w", p, err)
	}

	return f, info, nil
}

func (l *Local) Write(_ context.Context, p string, r io.Reader, _ string) (int64, error) {
	p = fsPath(p)

	if err := l.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s, %w", p, err)
	}

	f, err := l.fs.Create(p)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s, %w", p, err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("failed to write %s, %w", p, err)
	}

	return n, nil
}
