package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem marks a state database placed on a remote mount.
// SQLite's file locks are unreliable there and plugins may lose writes.
var ErrNetworkFilesystem = errors.New("state database on network filesystem")

var errNoFSDetect = errors.New("filesystem type unavailable on this platform")

var remoteMounts = []string{"afpfs", "cifs", "nfs", "nfs4", "smb2", "smbfs", "webdav"}

type fsDetector func(dir string) (string, error)

// FilesystemType names the filesystem that holds path, or would hold it once
// created. The empty string means the platform cannot tell.
func FilesystemType(path string) (string, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return "", err
	}
	kind, err := detectFilesystemType(dir)
	if errors.Is(err, errNoFSDetect) {
		return "", nil
	}
	return kind, err
}

// CheckLocalFilesystem returns an error wrapping ErrNetworkFilesystem when
// path sits on a remote mount.
func CheckLocalFilesystem(path string) error {
	return checkLocal(path, detectFilesystemType)
}

func checkLocal(path string, detect fsDetector) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("sqlite path is empty")
	}
	dir, err := existingAncestor(path)
	if err != nil {
		return err
	}
	kind, err := detect(dir)
	switch {
	case errors.Is(err, errNoFSDetect):
		return nil
	case err != nil:
		return fmt.Errorf("filesystem of %s: %w", dir, err)
	}
	if isRemote(kind) {
		return fmt.Errorf("%w: %s is on %s; point state.path at local disk or use state.backend: redis",
			ErrNetworkFilesystem, path, kind)
	}
	return nil
}

// existingAncestor climbs from path until it reaches something that exists,
// so a database that has not been created yet is judged by its directory.
func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for dir := abs; ; {
		_, err := os.Stat(dir)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", dir, err)
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", fmt.Errorf("resolve %s: no existing ancestor", abs)
		}
		dir = up
	}
}

func isRemote(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, m := range remoteMounts {
		if kind == m {
			return true
		}
	}
	return false
}
