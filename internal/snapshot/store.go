// Package snapshot manages the dated snapshot directories kept for each
// backup set under the destination directory:
//
//	<dest>/<set>/2024-01-05/
//	<dest>/<set>/2024-01-10/
//	<dest>/<set>/current -> 2024-01-10
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// DateLayout is the name format of snapshot directories.
	DateLayout = "2006-01-02"
	// CurrentLink is the name of the pointer to the newest snapshot.
	CurrentLink = "current"
)

// DefaultIgnoreList names directories that are never treated as snapshots.
var DefaultIgnoreList = []string{"lost+found"}

// Snapshot is one dated directory of a backup set.
type Snapshot struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Date time.Time `json:"date"`
}

// Listing is the content of a set's storage root.
type Listing struct {
	Snapshots []Snapshot `json:"snapshots"`
	// Skipped holds entries that are not dated snapshot directories.
	Skipped []string `json:"skipped,omitempty"`
}

// Store is the snapshot storage used by the scheduler and the GC sweep.
type Store interface {
	Root(set string) string
	CurrentPath(set string) string
	DatedPath(set string, day time.Time) string
	List(set string) (*Listing, error)
	Resolve(set string) (string, error)
	Prepare(set string, day time.Time) (string, error)
	Remove(path string) error
}

// LocalStore keeps snapshots on the local filesystem.
type LocalStore struct {
	basePath    string
	permissions os.FileMode
	ignore      map[string]bool
}

// NewLocalStore creates a store rooted at basePath. The directory must
// already exist: without it nothing useful can be done.
func NewLocalStore(basePath string, ignore []string) (*LocalStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("snapshot base path is required")
	}

	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("snapshot base directory %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot base path %s is not a directory", basePath)
	}

	if ignore == nil {
		ignore = DefaultIgnoreList
	}
	ignored := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignored[name] = true
	}

	return &LocalStore{
		basePath:    basePath,
		permissions: 0755,
		ignore:      ignored,
	}, nil
}

// BasePath returns the destination directory
func (s *LocalStore) BasePath() string {
	return s.basePath
}

// Root returns the storage root of a set
func (s *LocalStore) Root(set string) string {
	return filepath.Join(s.basePath, set)
}

// CurrentPath returns the path of the set's current pointer
func (s *LocalStore) CurrentPath(set string) string {
	return filepath.Join(s.Root(set), CurrentLink)
}

// DatedPath returns the snapshot directory for day
func (s *LocalStore) DatedPath(set string, day time.Time) string {
	return filepath.Join(s.Root(set), FormatDate(day))
}

// FormatDate returns the directory name for day
func FormatDate(day time.Time) string {
	return day.Format(DateLayout)
}

// ParseDate parses a snapshot directory name
func ParseDate(name string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, name)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns the dated snapshots of a set sorted oldest first. A set whose
// root does not exist yet has no snapshots.
func (s *LocalStore) List(set string) (*Listing, error) {
	root := s.Root(set)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return &Listing{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	listing := &Listing{}
	for _, entry := range entries {
		name := entry.Name()
		// entry.IsDir() is false for symlinks, so current is skipped here too
		if !entry.IsDir() || s.ignore[name] {
			listing.Skipped = append(listing.Skipped, name)
			continue
		}

		date, ok := ParseDate(name)
		if !ok {
			listing.Skipped = append(listing.Skipped, name)
			continue
		}

		listing.Snapshots = append(listing.Snapshots, Snapshot{
			Name: name,
			Path: filepath.Join(root, name),
			Date: date,
		})
	}

	sort.Slice(listing.Snapshots, func(i, j int) bool {
		return listing.Snapshots[i].Date.Before(listing.Snapshots[j].Date)
	})

	return listing, nil
}

// Resolve returns the snapshot name current points at, or "" if the set has
// no current pointer.
func (s *LocalStore) Resolve(set string) (string, error) {
	target, err := os.Readlink(s.CurrentPath(set))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", s.CurrentPath(set), err)
	}
	return filepath.Base(target), nil
}

// Prepare creates the snapshot directory for day and repoints current at it.
// It returns the snapshot directory path.
func (s *LocalStore) Prepare(set string, day time.Time) (string, error) {
	dated := s.DatedPath(set, day)
	if err := os.MkdirAll(dated, s.permissions); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", dated, err)
	}

	if err := s.repoint(set, FormatDate(day)); err != nil {
		return "", err
	}
	return dated, nil
}

// repoint atomically replaces the current symlink: the new link is created
// under a unique name in the same directory and renamed over current.
func (s *LocalStore) repoint(set, target string) error {
	link := s.CurrentPath(set)

	if info, err := os.Lstat(link); err == nil && info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%s exists and is not a symlink", link)
	}

	tmp := filepath.Join(s.Root(set), ".current-"+uuid.NewString())
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed creating symlink %s -> %s: %w", link, target, err)
	}

	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed creating symlink %s -> %s: %w", link, target, err)
	}
	return nil
}

// Remove deletes a snapshot directory recursively
func (s *LocalStore) Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
