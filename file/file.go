package file

import (
	"errors"
	"path"
	"regexp"
	"strings"
)

var (
	ErrEmptyPath   = errors.New("empty path")
	ErrEscapesRoot = errors.New("path escapes project root")
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizePath turns a generated file location into a clean, relative,
// slash separated path. Backslashes are treated as separators and any ".."
// segment is rejected.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrEscapesRoot
		}
	}

	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "", ErrEmptyPath
	}
	return p, nil
}

// Slug lower-cases name and replaces whitespace runs with a hyphen.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return whitespace.ReplaceAllString(s, "-")
}
