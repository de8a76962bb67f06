//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

const (
	nfsSuperMagic  = 0x6969
	smbSuperMagic  = 0x517B
	cifsSuperMagic = 0xFF534D42
	smb2SuperMagic = 0xFE534D42
)

func detectFilesystemType(dir string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return "", err
	}
	switch magic := uint64(st.Type); magic {
	case nfsSuperMagic:
		return "nfs", nil
	case smbSuperMagic:
		return "smbfs", nil
	case cifsSuperMagic:
		return "cifs", nil
	case smb2SuperMagic:
		return "smb2", nil
	default:
		return fmt.Sprintf("0x%x", magic), nil
	}
}
