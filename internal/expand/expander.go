// Package expand turns a backup set name into the source directories that
// make it up.
package expand

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	apperrors "flexbackup-manager/internal/errors"
)

// DefaultIgnoreList names subdirectories that are never backed up.
var DefaultIgnoreList = []string{"lost+found"}

// Expander resolves backup sets under a root directory.
type Expander struct {
	rootDir    string
	expansions map[string]bool
	ignore     map[string]bool
}

// NewExpander creates an expander. expansions maps each known set name to
// whether its first-level subdirectories are listed individually.
func NewExpander(rootDir string, expansions map[string]bool, ignore []string) *Expander {
	if ignore == nil {
		ignore = DefaultIgnoreList
	}
	ignored := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignored[name] = true
	}

	return &Expander{
		rootDir:    rootDir,
		expansions: expansions,
		ignore:     ignored,
	}
}

// Expand returns the directories to include for set, sorted by name.
func (e *Expander) Expand(set string) ([]string, error) {
	expand, known := e.expansions[set]
	if !known {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("Backup set %s not found", set), nil)
	}

	path := filepath.Join(e.rootDir, set)
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewFilesystemError(fmt.Sprintf("Directory not found: %s", path), err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewFilesystemError(fmt.Sprintf("Not a directory: %s", path), nil)
	}

	if !expand {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, apperrors.NewFilesystemError(fmt.Sprintf("Failed to list %s", path), err)
	}

	var dirs []string
	for _, entry := range entries {
		if e.ignore[entry.Name()] {
			continue
		}
		full := filepath.Join(path, entry.Name())
		// follow symlinks so linked directories are included
		if fi, err := os.Stat(full); err == nil && fi.IsDir() {
			dirs = append(dirs, full)
		}
	}
	sort.Strings(dirs)

	return dirs, nil
}
