// Package pathutil implements the folder-path and basename normalization
// and validation rules used throughout the catalog.
package pathutil

import (
	"strings"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
)

const maxBasenameLength = 255

// Normalize trims a leading/trailing "/" and collapses the result. The
// empty string always denotes the root folder.
func Normalize(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	segments := splitNonEmpty(path)
	return strings.Join(segments, "/")
}

func splitNonEmpty(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParentAndName splits a normalized, non-root path into its parent path
// (possibly "") and final segment name.
func ParentAndName(path string) (parent, name string) {
	path = Normalize(path)
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// Join builds a child path from a (possibly empty) parent path and a name.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// ValidateName enforces the folder-name grammar `[^/\x00]+`: non-empty,
// no slash, no NUL.
func ValidateName(name string) error {
	if name == "" {
		return apperror.New(apperror.KindInvalidPath, "folder name must not be empty")
	}
	if strings.ContainsRune(name, '/') {
		return apperror.New(apperror.KindInvalidPath, "folder name must not contain '/'")
	}
	if strings.ContainsRune(name, 0) {
		return apperror.New(apperror.KindInvalidPath, "folder name must not contain NUL")
	}
	return nil
}

// ValidatePath validates every segment of a (pre-normalization) folder
// path. The root path ("" after normalization) is always valid.
func ValidatePath(path string) error {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	for _, seg := range strings.Split(path, "/") {
		if err := ValidateName(seg); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBasename enforces the basename rules: non-empty, no "/", no
// NUL, bounded length.
func ValidateBasename(basename string) error {
	if basename == "" {
		return apperror.New(apperror.KindInvalidBasename, "basename must not be empty")
	}
	if strings.ContainsRune(basename, '/') {
		return apperror.New(apperror.KindInvalidBasename, "basename must not contain '/'")
	}
	if strings.ContainsRune(basename, 0) {
		return apperror.New(apperror.KindInvalidBasename, "basename must not contain NUL")
	}
	if len(basename) > maxBasenameLength {
		return apperror.New(apperror.KindBasenameTooLong, "basename exceeds maximum length")
	}
	return nil
}

// Ancestors returns every ancestor path of a normalized path, root-most
// first, not including the path itself. Used by createFolderByPath to
// build the missing-parent chain.
func Ancestors(path string) []string {
	path = Normalize(path)
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	out := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		out = append(out, strings.Join(segments[:i], "/"))
	}
	return out
}
