// Package fsutil contains utilities for the file paths given by users in settings and flags.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to check whether %q exists", path)
}

// ExpandPath replaces a leading "~" or "~user" by the corresponding home directory and cleans the path.
// Paths not starting with "~" are only cleaned. An empty path is returned as is.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return filepath.Clean(path), nil
	}
	userName, rest, _ := strings.Cut(path[1:], string(filepath.Separator))
	var (
		usr *user.User
		err error
	)
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to find the home directory for path %q", path)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// EnsureDir expands the path (see ExpandPath) and creates the directory, with any missing parents.
// It returns the expanded path.
func EnsureDir(dir string) (string, error) {
	dir, err := ExpandPath(dir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", errors.New("EnsureDir: empty directory path")
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory %q", dir)
	}
	return dir, nil
}
