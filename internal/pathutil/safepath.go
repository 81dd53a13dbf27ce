// Package pathutil holds path predicates used wherever a file name derived
// from request or release input is turned into a filesystem path.
package pathutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// maxLinks bounds symlink expansion, matching the usual ELOOP limit.
const maxLinks = 40

var errTooManyLinks = errors.New("too many levels of symbolic links")

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// IsPathInside reports whether candidate, once made absolute and resolved,
// is root itself or lies below it. Components are resolved in order the way
// the kernel would, so "link/.." follows the link before stepping up. Once a
// component does not exist the remainder is applied lexically. Any failure to
// resolve yields false.
func IsPathInside(candidate, root string) bool {
	c, err := Resolve(candidate)
	if err != nil {
		return false
	}
	r, err := Resolve(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(r, c)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// Resolve returns the absolute, symlink-free form of p without requiring
// that p exists.
func Resolve(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty path")
	}
	if !filepath.IsAbs(p) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		p = wd + string(filepath.Separator) + p
	}
	links := 0
	return walk(p, &links)
}

func walk(p string, links *int) (string, error) {
	vol := filepath.VolumeName(p)
	cur := vol + string(filepath.Separator)
	missing := false

	for _, comp := range strings.Split(filepath.ToSlash(p[len(vol):]), "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, comp)
		if missing {
			cur = next
			continue
		}

		fi, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				missing = true
				cur = next
				continue
			}
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}

		*links++
		if *links > maxLinks {
			return "", errTooManyLinks
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = cur + string(filepath.Separator) + target
		}
		if cur, err = walk(target, links); err != nil {
			return "", err
		}
	}
	return cur, nil
}
