package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Wrapper is a generated shell script standing in for a program the
// executor calls, so extra arguments can be injected.
type Wrapper struct {
	Name    string
	Content string
}

// DefaultWrappers returns the gzip and tar wrappers: pigz limited to threads
// CPUs, and tar run under nocache to avoid polluting the page cache.
func DefaultWrappers(threads int, useNocache bool) []Wrapper {
	if threads <= 0 {
		threads = 1
	}
	tar := `exec /bin/tar --numeric-owner "$@"`
	if useNocache {
		tar = `exec /usr/bin/env nocache -n 2 /bin/tar --numeric-owner "$@"`
	}
	return []Wrapper{
		{Name: "gzip", Content: fmt.Sprintf(`exec /usr/bin/env pigz -p %d -f "$@"`, threads)},
		{Name: "tar", Content: tar},
	}
}

// Workspace owns the temporary files of one run: wrapper scripts and the
// generated executor configuration. Close removes all of them.
type Workspace struct {
	mu       sync.Mutex
	dir      string
	wrappers map[string]string
	config   string
	closed   bool
}

// NewWorkspace creates a private temporary directory and writes the wrapper
// scripts into it.
func NewWorkspace(prefix string, wrappers []Wrapper) (*Workspace, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}

	ws := &Workspace{
		dir:      dir,
		wrappers: make(map[string]string, len(wrappers)),
		config:   filepath.Join(dir, "flexbackup.conf"),
	}

	for _, w := range wrappers {
		path := filepath.Join(dir, w.Name)
		// written and closed before it is ever executed, otherwise exec
		// fails with "text file busy"
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+w.Content+"\n"), 0755); err != nil {
			ws.Close()
			return nil, fmt.Errorf("failed to write wrapper %s: %w", w.Name, err)
		}
		ws.wrappers[w.Name] = path
	}

	return ws, nil
}

// Dir returns the workspace directory
func (ws *Workspace) Dir() string {
	return ws.dir
}

// WrapperPath returns the path of a generated wrapper, or "" if none exists.
func (ws *Workspace) WrapperPath(name string) string {
	return ws.wrappers[name]
}

// ConfigPath returns where WriteConfig puts the executor configuration
func (ws *Workspace) ConfigPath() string {
	return ws.config
}

// WriteConfig replaces the executor configuration file
func (ws *Workspace) WriteConfig(content string) (string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return "", fmt.Errorf("workspace %s is closed", ws.dir)
	}
	if err := os.WriteFile(ws.config, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write executor config: %w", err)
	}
	return ws.config, nil
}

// Close removes the workspace. It is safe to call more than once and from
// the interrupt handler concurrently with a deferred call.
func (ws *Workspace) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return nil
	}
	ws.closed = true

	if err := os.RemoveAll(ws.dir); err != nil {
		return fmt.Errorf("failed to remove temporary directory %s: %w", ws.dir, err)
	}
	return nil
}
