package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/traceroot-ai/traceroot-sdk/internal/constants"
)

// LocateConfigFile discovers .traceroot-config.yaml on disk. It checks the
// start directory first, then its subdirectories, then its parents, each
// bounded by depth levels. The first hit wins; ok is false when nothing was
// found within the bounds.
func LocateConfigFile(start string, depth int) (string, bool) {
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", false
		}

		start = cwd
	}

	candidate := filepath.Join(start, constants.ConfigFileName)
	if fileExists(candidate) {
		return candidate, true
	}

	if found, ok := searchSubdirs(start, depth); ok {
		return found, true
	}

	return searchParents(start, depth)
}

func searchSubdirs(start string, depth int) (string, bool) {
	var found string

	_ = filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(start, path)
		if relErr != nil {
			return nil
		}

		if entry.IsDir() {
			if rel != "." && strings.Count(rel, string(filepath.Separator)) >= depth {
				return fs.SkipDir
			}

			return nil
		}

		if entry.Name() != constants.ConfigFileName {
			return nil
		}

		found = path

		return fs.SkipAll
	})

	return found, found != ""
}

func searchParents(start string, depth int) (string, bool) {
	dir := start

	for level := 0; level < depth; level++ {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		candidate := filepath.Join(parent, constants.ConfigFileName)
		if fileExists(candidate) {
			return candidate, true
		}

		dir = parent
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
