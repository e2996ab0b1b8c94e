package library

import (
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one item returned by Browse: either a subdirectory or a
// supported media/subtitle file.
type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  *int64 `json:"size,omitempty"`
}

// BrowseResult is the flat, single-level directory listing behind
// GET /api/files/browse: the resolved directory plus its parent and
// the directories/media files immediately inside it.
type BrowseResult struct {
	CurrentPath string  `json:"current_path"`
	ParentPath  string  `json:"parent_path,omitempty"`
	Items       []Entry `json:"items"`
}

var browsableExts = map[string]bool{".mkv": true, ".srt": true, ".ass": true}

// Browse lists path non-recursively, expanding a leading "~" to the
// process user's home directory, skipping dotfiles, and keeping only
// subdirectories and browsableExts files. Directories sort before
// files; each group sorts case-insensitively by name.
func Browse(path string) (BrowseResult, error) {
	if path == "" || path == "~" {
		path = homeDir()
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir(), path[2:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return BrowseResult{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return BrowseResult{}, err
	}
	if !info.IsDir() {
		return BrowseResult{}, &os.PathError{Op: "browse", Path: abs, Err: os.ErrInvalid}
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return BrowseResult{}, err
	}

	items := make([]Entry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		isDir := e.IsDir()
		if !isDir && !browsableExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		item := Entry{Name: name, Path: filepath.Join(abs, name), IsDir: isDir}
		if !isDir {
			if fi, err := e.Info(); err == nil {
				size := fi.Size()
				item.Size = &size
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	result := BrowseResult{CurrentPath: abs, Items: items}
	if parent := filepath.Dir(abs); parent != abs {
		result.ParentPath = parent
	}
	return result, nil
}

func homeDir() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "/"
}
