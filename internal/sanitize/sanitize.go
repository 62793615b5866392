// Package sanitize validates operator-supplied identifiers before they
// become filesystem path components.
package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrPathTraversal indicates a path escapes its root.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrInvalidProjectID indicates the project ID format is invalid.
	ErrInvalidProjectID = errors.New("invalid project ID format")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// MaxProjectIDLength bounds project IDs.
const MaxProjectIDLength = 128

// projectIDPattern allows letters, digits, dot, dash and underscore, and
// must start with a letter or digit.
var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateProjectID checks that id is safe to use as a single directory
// name. The empty string is valid and means "no project scope".
func ValidateProjectID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxProjectIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidProjectID, MaxProjectIDLength)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: %w", ErrInvalidProjectID, ErrPathTraversal)
	}
	if !projectIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectID, id)
	}
	return nil
}

// Within joins elems onto root and verifies the result stays inside root.
// The returned path is absolute.
func Within(root string, elems ...string) (string, error) {
	if root == "" {
		return "", ErrEmptyPath
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	joined := filepath.Join(append([]string{absRoot}, elems...)...)

	rel, err := filepath.Rel(absRoot, joined)
	if err != nil {
		return "", fmt.Errorf("%w: path outside root", ErrPathTraversal)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes root", ErrPathTraversal)
	}
	return joined, nil
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
