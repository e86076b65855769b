package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/insights/internal/apperr"
)

// DefaultDir is the default upload directory of the FS store.
const DefaultDir = "uploaded_excels"

// FS stores files in a directory on local disk.
type FS struct {
	dir  string
	opts Options
}

var _ Store = (*FS)(nil)

// NewFS returns a store rooted at dir, creating the directory if needed.
func NewFS(dir string, opts Options) (*FS, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.External("storage", "init", err)
	}
	return &FS{dir: dir, opts: opts}, nil
}

// Dir returns the root directory.
func (s *FS) Dir() string {
	return s.dir
}

func (s *FS) Save(ctx context.Context, name string, r io.Reader) (Entry, error) {
	base, err := CheckUpload(name)
	if err != nil {
		return Entry{}, err
	}
	savedAt := s.opts.now()
	stored := SavedName(savedAt, base)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Entry{}, apperr.External("storage", "save", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.opts.MaxBytes > 0 {
		src = io.LimitReader(r, s.opts.MaxBytes+1)
	}
	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		return Entry{}, apperr.External("storage", "save", err)
	}
	if s.opts.MaxBytes > 0 && n > s.opts.MaxBytes {
		return Entry{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.opts.MaxBytes)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, stored)); err != nil {
		return Entry{}, apperr.External("storage", "save", err)
	}
	return Entry{Name: stored, Original: base, Size: n, SavedAt: savedAt.Truncate(time.Second)}, nil
}

func (s *FS) List(ctx context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.External("storage", "list", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || CheckName(d.Name()) != nil {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, entryFor(d.Name(), info))
	}
	sortNewestFirst(entries)
	return entries, nil
}

func (s *FS) Delete(ctx context.Context, name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return apperr.External("storage", "delete", err)
	}
	return nil
}

func (s *FS) Open(ctx context.Context, name string) (io.ReadCloser, Entry, error) {
	if err := CheckName(name); err != nil {
		return nil, Entry{}, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, Entry{}, apperr.External("storage", "open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Entry{}, apperr.External("storage", "open", err)
	}
	return f, entryFor(name, info), nil
}

func (s *FS) Clear(ctx context.Context) (int, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.Delete(ctx, e.Name); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func entryFor(name string, info fs.FileInfo) Entry {
	savedAt, original, ok := ParseName(name)
	if !ok {
		savedAt = info.ModTime()
	}
	return Entry{Name: name, Original: original, Size: info.Size(), SavedAt: savedAt}
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
