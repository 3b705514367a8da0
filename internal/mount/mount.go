// Package mount resolves client-supplied filenames against a mount root and
// rejects any name that would land outside it.
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Root struct {
	dir string
}

// New returns a Root for dir, creating the directory if needed.
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string {
	return r.dir
}

// Clean normalizes name to a slash-separated path relative to the root.
func Clean(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, name)
	}

	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == "." {
		return "", ErrInvalidName
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, name)
	}
	return filepath.ToSlash(cleaned), nil
}

// Resolve returns the absolute path of name under the root.
func (r *Root) Resolve(name string) (string, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(r.dir, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(r.dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, name)
	}
	return full, nil
}

// Name maps an absolute path under the root back to its relative name.
func (r *Root) Name(path string) (string, error) {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathEscapesRoot, err)
	}
	return Clean(filepath.ToSlash(rel))
}
