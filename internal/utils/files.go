package utils

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// ModelExtensions are the file extensions recognized as model files
var ModelExtensions = []string{".yaml", ".yml", ".json"}

// IsModelFile reports whether path has a model file extension
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ModelExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FindModelFiles recursively finds all model files in the specified directory.
// Hidden directories are skipped.
func FindModelFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if IsModelFile(path) {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}
