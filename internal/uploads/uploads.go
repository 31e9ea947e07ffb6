// Package uploads manages the directory that holds uploaded files.
//
// Names are reduced to their base name before use, so a client cannot reach
// outside the directory. Hidden names are rejected and hidden files are never
// listed.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/dateprobe/internal/core"
)

// maxCollisions bounds the "name (n).ext" search in Save.
const maxCollisions = 10000

// Entry describes one stored file.
type Entry struct {
	Name    string    `json:"filename"`
	Size    int64     `json:"file_size"`
	ModTime time.Time `json:"modified"`
}

// Dir is an uploads directory. It is safe for concurrent use.
type Dir struct {
	root string
	mu   sync.Mutex // serializes name reservation in Save
}

// New returns a Dir rooted at root, creating it if needed.
func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("uploads dir %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// CleanName reduces a client-supplied name to a safe base name.
// Empty and hidden names are rejected with core.ErrInvalidFilename.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(path.Base(name))
	switch {
	case name == "", name == ".", name == "/", name == "..":
		return "", fmt.Errorf("%w: empty name", core.ErrInvalidFilename)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: %q is hidden", core.ErrInvalidFilename, name)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: %q", core.ErrInvalidFilename, name)
	}
	return name, nil
}

// Save copies r into the directory under name and returns the name actually
// used with the number of bytes written. An existing file is never replaced:
// "report.csv" becomes "report (1).csv", then "report (2).csv".
func (d *Dir) Save(name string, r io.Reader) (string, int64, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", 0, err
	}

	f, final, err := d.reserve(clean)
	if err != nil {
		return "", 0, err
	}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(d.root, final))
		return "", 0, fmt.Errorf("save %s: %w", final, err)
	}
	return final, n, nil
}

// reserve creates the first free variant of name exclusively.
func (d *Dir) reserve(name string) (*os.File, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxCollisions; i++ {
		f, err := os.OpenFile(filepath.Join(d.root, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("save %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	return nil, "", fmt.Errorf("save %s: too many files with this name", name)
}

// List returns the stored files, newest first. Hidden files and
// subdirectories are skipped.
func (d *Dir) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Files lists the stored files for reconciliation.
func (d *Dir) Files() ([]core.StoredFile, error) {
	entries, err := d.List()
	if err != nil {
		return nil, err
	}
	files := make([]core.StoredFile, len(entries))
	for i, e := range entries {
		files[i] = core.StoredFile{Name: e.Name, Size: e.Size}
	}
	return files, nil
}

// Path returns the on-disk path of a stored file.
// A missing file yields core.ErrFileNotFound.
func (d *Dir) Path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	p := filepath.Join(d.root, clean)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", core.ErrFileNotFound, clean)
		}
		return "", fmt.Errorf("stat %s: %w", clean, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", core.ErrFileNotFound, clean)
	}
	return p, nil
}

// Delete removes a stored file. A missing file yields core.ErrFileNotFound.
func (d *Dir) Delete(name string) error {
	p, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", core.ErrFileNotFound, name)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
