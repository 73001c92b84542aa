// Package fimopath validates and resolves the relative resource paths a
// module declares. The contract is intentionally small: validate that a
// declared path is relative, and resolve it against a module's installed
// directory at publication time.
package fimopath

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/nmxmxh/fimod/internal/fimoerr"
)

// ValidateRelative reports an error if p is not valid UTF-8, is empty,
// begins with a path separator, or escapes the module directory via "..".
func ValidateRelative(p string) error {
	if p == "" {
		return fimoerr.New(fimoerr.Malformed, "resource path must not be empty")
	}
	if !utf8.ValidString(p) {
		return fimoerr.New(fimoerr.Malformed, "resource path must be valid UTF-8")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fimoerr.Newf(fimoerr.Malformed, "resource path %q must not begin with a path separator", p)
	}
	clean := path.Clean(filepathToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fimoerr.Newf(fimoerr.Malformed, "resource path %q must not escape the module directory", p)
	}
	return nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Resolve joins a resource path onto a module's installed directory.
// Callers must have already validated p with ValidateRelative.
func Resolve(moduleDir, p string) string {
	return path.Join(filepathToSlash(moduleDir), filepathToSlash(p))
}
