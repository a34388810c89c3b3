// Package fs maps bundle filenames to paths on disk.
package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentflux/fluxdiff/internal/ui"
	"github.com/agentflux/fluxdiff/model"
)

// PathResolver finds absolute paths for files.
type PathResolver struct {
	lookupDirs []string
}

// NewPathResolver creates a PathResolver. Without lookup directories the
// working directory is used.
func NewPathResolver(lookupDirs []string) (*PathResolver, error) {
	var absDirs []string
	for _, dir := range lookupDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			ui.Warning("Invalid lookup directory '%s', ignoring: %v", dir, err)
			continue
		}
		absDirs = append(absDirs, abs)
	}
	if len(absDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		absDirs = []string{wd}
	}
	return &PathResolver{lookupDirs: absDirs}, nil
}

// Root is the first lookup directory.
func (r *PathResolver) Root() string {
	return r.lookupDirs[0]
}

// Resolve finds an absolute path, assuming a new file in the first lookup
// directory if it doesn't exist.
func (r *PathResolver) Resolve(relativePath string) string {
	if existing := r.ResolveExisting(relativePath); existing != "" {
		return existing
	}
	return filepath.Join(r.lookupDirs[0], relativePath)
}

// ResolveExisting finds an absolute path only if the file exists.
func (r *PathResolver) ResolveExisting(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		if _, err := os.Stat(relativePath); err == nil {
			return relativePath
		}
		return ""
	}
	for _, dir := range r.lookupDirs {
		absPath := filepath.Join(dir, relativePath)
		if _, err := os.Stat(absPath); err == nil {
			return absPath
		}
	}
	return ""
}

// bundleName is the slash separated name a file gets inside a bundle.
func (r *PathResolver) bundleName(absPath string) string {
	for _, dir := range r.lookupDirs {
		if rel, err := filepath.Rel(dir, absPath); err == nil && filepath.IsLocal(rel) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(absPath)
}

// ReadBundle reads the given files into a bundle. Directories are walked
// recursively and filtered by extensions; an empty list accepts every file.
// Names are relative to the lookup directory that contains them.
func (r *PathResolver) ReadBundle(paths []string, extensions []string) (model.Bundle, error) {
	bundle := make(model.Bundle)
	add := func(absPath string) error {
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", absPath, err)
		}
		bundle[r.bundleName(absPath)] = string(content)
		return nil
	}

	for _, p := range paths {
		absPath := r.ResolveExisting(p)
		if absPath == "" {
			return nil, fmt.Errorf("file not found in lookup directories: %s", p)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(absPath); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(absPath, func(path string, d iofs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != absPath && d.Name()[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if !hasExtension(path, extensions) {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// GetFileActionsAndDirs determines which files are new vs. modified and
// which directories need to be created.
func GetFileActionsAndDirs(targetPaths []string) (map[string]string, map[string]struct{}) {
	fileActions := make(map[string]string)
	dirsToCreate := make(map[string]struct{})

	for _, path := range targetPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fileActions[path] = "create"
			dir := filepath.Dir(path)
			if dir != "." && dir != "/" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					dirsToCreate[dir] = struct{}{}
				}
			}
		} else {
			fileActions[path] = "modify"
		}
	}
	return fileActions, dirsToCreate
}

// WriteBundle writes every file of the bundle below the first lookup
// directory and returns the created and modified paths, sorted. Names that
// would escape the directory are rejected.
func (r *PathResolver) WriteBundle(bundle model.Bundle) (created, modified []string, err error) {
	targets := make(map[string]string, len(bundle))
	paths := make([]string, 0, len(bundle))
	for _, name := range bundle.Names() {
		local := filepath.FromSlash(name)
		if !filepath.IsLocal(local) {
			return nil, nil, fmt.Errorf("refusing to write outside %s: %s", r.Root(), name)
		}
		path := filepath.Join(r.Root(), local)
		targets[path] = bundle[name]
		paths = append(paths, path)
	}

	actions, dirs := GetFileActionsAndDirs(paths)
	sortedDirs := make([]string, 0, len(dirs))
	for dir := range dirs {
		sortedDirs = append(sortedDirs, dir)
	}
	sort.Strings(sortedDirs)
	for _, dir := range sortedDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("error creating directory '%s': %w", dir, err)
		}
	}

	for _, path := range paths {
		if err := os.WriteFile(path, []byte(targets[path]), 0o644); err != nil {
			return created, modified, fmt.Errorf("failed to write %s: %w", path, err)
		}
		if actions[path] == "create" {
			created = append(created, path)
		} else {
			modified = append(modified, path)
		}
	}
	return created, modified, nil
}
