package home

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultDirName is the default name for the problembook home directory.
	DefaultDirName = ".problembook"

	// DataDirName is the subdirectory for book data.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// ErrInvalidBookID is returned for book IDs that cannot name a directory.
var ErrInvalidBookID = errors.New("invalid book id")

var bookIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidBookID reports whether id is safe to use as a path segment: letters,
// digits, '-' and '_' only.
func ValidBookID(id string) bool {
	return bookIDRe.MatchString(id)
}

// CheckBookID returns an error wrapping ErrInvalidBookID for unsafe IDs.
func CheckBookID(id string) error {
	if !ValidBookID(id) {
		return fmt.Errorf("%w %q: use letters, digits, '-' and '_'", ErrInvalidBookID, id)
	}
	return nil
}

// Dir represents the problembook home directory structure.
//
//	~/.problembook/
//	  config.yaml
//	  data/books/{book}/pages/page_0001.md   OCR text per page
//	  data/books/{book}/originals/*.pdf      source PDF (optional)
//	  cache/                                  badger extraction cache
//	  store/                                  badger result store
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.problembook).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// CachePath returns the directory of the persistent extraction cache.
func (d *Dir) CachePath() string {
	return filepath.Join(d.path, "cache")
}

// StorePath returns the directory of the persistent result store.
func (d *Dir) StorePath() string {
	return filepath.Join(d.path, "store")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.BooksDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// BooksDir returns the directory holding all books.
func (d *Dir) BooksDir() string {
	return filepath.Join(d.DataPath(), "books")
}

// BookDir returns the directory for a single book. Characters outside the
// ValidBookID set are replaced, so the result always stays under BooksDir.
func (d *Dir) BookDir(bookID string) string {
	return filepath.Join(d.BooksDir(), safeSegment(bookID))
}

func safeSegment(id string) string {
	if ValidBookID(id) {
		return id
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	if safe == "" {
		return "_"
	}
	return safe
}

// PagesDir returns the directory of OCR page text for a book.
func (d *Dir) PagesDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), "pages")
}

// PageTextPath returns the path to the OCR text of a page.
// Page numbers are 1-indexed.
func (d *Dir) PageTextPath(bookID string, pageNum int) string {
	return filepath.Join(d.PagesDir(bookID), fmt.Sprintf("page_%04d.md", pageNum))
}

// OriginalsDir returns the directory for original PDF files of a book.
func (d *Dir) OriginalsDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), "originals")
}

// EnsurePagesDir creates the page text directory for a book.
func (d *Dir) EnsurePagesDir(bookID string) error {
	return os.MkdirAll(d.PagesDir(bookID), 0o755)
}
