// Package storage persists uploaded data files.
//
// Files are stored under a timestamped name, YYYYMMDD_HHMMSS_<base name>, so
// listing by name also lists by upload time. Two backends are provided: a
// directory on local disk (FS) and a Postgres table (Postgres).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TimeLayout is the prefix layout of saved file names.
const TimeLayout = "20060102_150405"

var (
	ErrNotFound        = errors.New("file not found")
	ErrInvalidName     = errors.New("invalid file name")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// AllowedExtensions lists the accepted upload extensions.
var AllowedExtensions = []string{".csv", ".xlsx", ".xls"}

// Entry describes a stored file.
type Entry struct {
	// Name is the stored, timestamped name used to address the file.
	Name string `json:"name"`

	// Original is the base name the file was uploaded under.
	Original string `json:"original"`

	Size    int64     `json:"size"`
	SavedAt time.Time `json:"saved_at"`
}

// Ext returns the lower-cased extension of the file.
func (e Entry) Ext() string {
	return strings.ToLower(filepath.Ext(e.Name))
}

// Store is a file store. Implementations are safe for concurrent use.
type Store interface {
	// Save stores the content of r under a timestamped version of name.
	Save(ctx context.Context, name string, r io.Reader) (Entry, error)

	// List returns every stored file, newest first.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes the named file.
	Delete(ctx context.Context, name string) error

	// Open returns the content of the named file. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, Entry, error)

	// Clear removes every stored file and reports how many were removed.
	Clear(ctx context.Context) (int, error)
}

// Options are shared by all backends.
type Options struct {
	// MaxBytes limits the size of a saved file. Zero means no limit.
	MaxBytes int64

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// CheckUpload validates an uploaded file name and returns its base name.
func CheckUpload(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == "" || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !allowed(base) {
		return "", fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedType, base, strings.Join(AllowedExtensions, ", "))
	}
	return base, nil
}

// SavedName returns the stored name for an upload of base at t.
func SavedName(t time.Time, base string) string {
	return t.Format(TimeLayout) + "_" + base
}

// CheckName validates a stored name received from a client.
func CheckName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !allowed(name) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, name)
	}
	return nil
}

// ParseName splits a stored name into its timestamp and original name.
// ok is false when name carries no timestamp prefix.
func ParseName(name string) (savedAt time.Time, original string, ok bool) {
	if len(name) <= len(TimeLayout)+1 || name[len(TimeLayout)] != '_' {
		return time.Time{}, name, false
	}
	t, err := time.ParseInLocation(TimeLayout, name[:len(TimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, name, false
	}
	return t, name[len(TimeLayout)+1:], true
}

func allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// sortNewestFirst orders entries by upload time, newest first, then by name.
func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].SavedAt.Equal(entries[j].SavedAt) {
			return entries[i].SavedAt.After(entries[j].SavedAt)
		}
		return entries[i].Name > entries[j].Name
	})
}

// readLimited reads r fully, failing with ErrTooLarge past max bytes.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, max)
	}
	return data, nil
}
