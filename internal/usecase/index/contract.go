package index

import (
	"os"
	"path/filepath"
)

// ImageSource reads a flag's reference image.
type ImageSource interface {
	ReadImage(path string) ([]byte, error)
}

// DirSource reads images from disk, resolving relative paths against the directory it names.
type DirSource string

// ReadImage implements ImageSource.
func (d DirSource) ReadImage(path string) ([]byte, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(string(d), path)
	}
	return os.ReadFile(filepath.Clean(path))
}
