// Package filestore keeps uploaded files on the local filesystem, placed in
// one subfolder per category. Names never collide: a file that would land on
// an existing name is stored as "base(n).ext" instead.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DateLayout is how modification times are rendered in listings.
const DateLayout = "2006-01-02 15:04:05"

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
	ErrMissingName = errors.New("missing names")
)

// maxSuffix bounds the collision search so a pathological folder cannot spin forever.
const maxSuffix = 10000

// File describes one stored file.
type File struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size_bytes"`
	SizeKB    int64     `json:"size"`
	ModTime   time.Time `json:"-"`
	Date      string    `json:"date"`
	Type      Category  `json:"type"`
	Subfolder string    `json:"subfolder"`
}

// Ref addresses a stored file by folder and name.
type Ref struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

// Store manages the storage root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Store{root: dir, logger: slog.Default()}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// List scans every subfolder of the root and returns its files, newest first.
// Entries that disappear during the scan are skipped.
func (s *Store) List(ctx context.Context) ([]File, error) {
	subs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading storage root: %w", err)
	}

	files := []File{}
	for _, sub := range subs {
		if !sub.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(filepath.Join(s.root, sub.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", sub.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			files = append(files, newFile(sub.Name(), info))
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Stat returns the listing entry for one file.
func (s *Store) Stat(sub, name string) (File, error) {
	path, err := s.path(sub, name)
	if err != nil {
		return File{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, ErrNotFound
		}
		return File{}, err
	}
	if info.IsDir() {
		return File{}, ErrNotFound
	}
	return newFile(sub, info), nil
}

// Open opens a stored file for reading. The caller closes it.
func (s *Store) Open(sub, name string) (*os.File, File, error) {
	f, err := s.Stat(sub, name)
	if err != nil {
		return nil, File{}, err
	}
	path, _ := s.path(sub, name)
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, File{}, ErrNotFound
		}
		return nil, File{}, err
	}
	return fh, f, nil
}

// Save writes r under the sanitized name in the folder for its category.
// An existing file is never overwritten.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (File, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return File{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	sub := SubfolderFor(clean)
	dir := filepath.Join(s.root, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("creating %s: %w", sub, err)
	}

	fh, final, err := createUnique(dir, clean)
	if err != nil {
		return File{}, err
	}

	if _, err := io.Copy(fh, &ctxReader{ctx: ctx, r: r}); err != nil {
		fh.Close()
		os.Remove(filepath.Join(dir, final))
		return File{}, fmt.Errorf("writing %s: %w", final, err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(filepath.Join(dir, final))
		return File{}, fmt.Errorf("closing %s: %w", final, err)
	}

	s.logger.Info("file stored", "sub", sub, "name", final, "requested", name)
	return s.Stat(sub, final)
}

// Delete removes the referenced files, skipping ones that do not exist.
// It returns how many files were removed.
func (s *Store) Delete(ctx context.Context, refs []Ref) (int, error) {
	removed := make([]bool, len(refs))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ref := range refs {
		g.Go(func() error {
			path, err := s.path(ref.Sub, ref.Name)
			if err != nil {
				s.logger.Warn("skipping delete of invalid path", "sub", ref.Sub, "name", ref.Name)
				return nil
			}
			if err := os.Remove(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return fmt.Errorf("removing %s/%s: %w", ref.Sub, ref.Name, err)
			}
			removed[i] = true
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, ok := range removed {
		if ok {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("files deleted", "count", n)
	}
	return n, err
}

// Rename moves a file to its new sanitized name, in the folder the new name's
// category maps to. Collisions at the destination are suffixed like uploads.
func (s *Store) Rename(ctx context.Context, sub, oldName, newName string) (File, error) {
	if sub == "" || oldName == "" || newName == "" {
		return File{}, ErrMissingName
	}
	oldPath, err := s.path(sub, oldName)
	if err != nil {
		return File{}, err
	}
	if _, err := os.Stat(oldPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, ErrNotFound
		}
		return File{}, err
	}

	clean := SanitizeName(newName)
	if clean == "" {
		return File{}, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	newSub := SubfolderFor(clean)
	if newSub == sub && clean == oldName {
		return s.Stat(sub, oldName)
	}

	dir := filepath.Join(s.root, newSub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("creating %s: %w", newSub, err)
	}

	// Reserve the destination name first so a concurrent upload cannot take it.
	fh, final, err := createUnique(dir, clean)
	if err != nil {
		return File{}, err
	}
	fh.Close()

	newPath := filepath.Join(dir, final)
	if err := os.Rename(oldPath, newPath); err != nil {
		os.Remove(newPath)
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, ErrNotFound
		}
		return File{}, fmt.Errorf("renaming %s/%s: %w", sub, oldName, err)
	}

	s.logger.Info("file renamed", "from", sub+"/"+oldName, "to", newSub+"/"+final)
	return s.Stat(newSub, final)
}

func (s *Store) path(sub, name string) (string, error) {
	if !validSegment(sub) || !validSegment(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, sub, name), nil
}

// createUnique exclusively creates name in dir, or the first free
// "base(n).ext" variant of it.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxSuffix; i++ {
		fh, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return fh, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("creating %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s(%d)%s", base, i, ext)
	}
	return nil, "", fmt.Errorf("no free name for %q after %d attempts", name, maxSuffix)
}

func newFile(sub string, info fs.FileInfo) File {
	mod := info.ModTime()
	return File{
		Name:      info.Name(),
		Size:      info.Size(),
		SizeKB:    info.Size() / 1024,
		ModTime:   mod,
		Date:      mod.Format(DateLayout),
		Type:      Classify(info.Name()),
		Subfolder: sub,
	}
}

// ctxReader stops a copy once the request context is done.
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
