//go:build darwin

package storage

import (
	"bytes"
	"syscall"
)

func detectFilesystemType(dir string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return "", err
	}
	raw := make([]byte, len(st.Fstypename))
	for i, c := range st.Fstypename {
		raw[i] = byte(c)
	}
	if n := bytes.IndexByte(raw, 0); n >= 0 {
		raw = raw[:n]
	}
	return string(raw), nil
}
