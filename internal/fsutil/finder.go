// Package fsutil provides file system helpers shared by the stores.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// ErrEmptyExtension is returned when no extension is given.
var ErrEmptyExtension = errors.New("extension must not be empty")

// FindFilesByExtension walks root and returns the sorted paths of all regular
// files whose name ends with extension. A missing root yields no files.
func FindFilesByExtension(root, extension string) ([]string, error) {
	if extension == "" {
		return nil, ErrEmptyExtension
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}
