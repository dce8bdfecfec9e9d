package images

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Library manages the on-disk image folder: scanning for reviewable images,
// persisting uploads, and reading image bytes for serving and captioning.
// Image identity is the slash-separated path relative to the root.
type Library struct {
	root string
}

// NewLibrary creates a library rooted at dir, creating it if needed.
func NewLibrary(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create image root: %w", err)
	}
	return &Library{root: dir}, nil
}

// Root returns the library's root directory.
func (l *Library) Root() string {
	return l.root
}

// IsImage reports whether the filename has a supported image extension.
func IsImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// MediaType returns the MIME type for a supported image filename.
func MediaType(name string) string {
	if strings.ToLower(filepath.Ext(name)) == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Pending returns the relative paths of all images not in the reviewed set,
// sorted so the head of the queue is stable across calls.
func (l *Library) Pending(reviewed map[string]bool) ([]string, error) {
	var pending []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImage(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !reviewed[rel] {
			pending = append(pending, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan image root: %w", err)
	}
	sort.Strings(pending)
	return pending, nil
}

// resolve maps a relative image path to an absolute path under the root,
// rejecting anything that would escape it.
func (l *Library) resolve(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" {
		return "", fmt.Errorf("invalid image path: %q", rel)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Read returns the bytes and media type of an image by its relative path.
func (l *Library) Read(rel string) ([]byte, string, error) {
	abs, err := l.resolve(rel)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", rel, err)
	}
	return data, MediaType(rel), nil
}

// Path returns the absolute on-disk path for a relative image path, or an
// error if the path would escape the root.
func (l *Library) Path(rel string) (string, error) {
	return l.resolve(rel)
}

// SaveUpload writes one uploaded file under the root, preserving its relative
// folder structure. Non-image filenames are rejected by the caller.
func (l *Library) SaveUpload(rel string, r io.Reader) error {
	abs, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write upload %s: %w", rel, err)
	}
	return nil
}
