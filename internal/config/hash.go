package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumsFile is written next to locked config files.
const ChecksumsFile = ".checksums"

const checksumsVersion = 1

var (
	// ErrNoChecksums means the directory was never locked.
	ErrNoChecksums = errors.New("no checksums file (run 'brickhost config lock')")
	// ErrChecksumMismatch means a locked file changed after locking.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNotLocked means a directory is locked but this file is not listed.
	ErrNotLocked = errors.New("file not listed in checksums")
)

// Checksums is the on-disk form of a .checksums file.
type Checksums struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockedFile is one file considered by Lock. Hash is empty when the file
// does not exist.
type LockedFile struct {
	Name string
	Path string
	Hash string
}

// LockReport describes one directory processed by Lock.
type LockReport struct {
	Dir          string
	ChecksumPath string
	Written      bool
	Files        []LockedFile
}

// HashFile returns the hex BLAKE3-256 digest of the file at path.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ReadChecksums loads dir/.checksums. A missing file yields ErrNoChecksums.
func ReadChecksums(dir string) (*Checksums, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoChecksums
	}
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	var c Checksums
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, ChecksumsFile), err)
	}
	if c.Version != checksumsVersion {
		return nil, fmt.Errorf("unsupported checksums version %d in %s", c.Version, dir)
	}
	return &c, nil
}

// Verify checks path against the recorded hash for its base name.
func (c *Checksums) Verify(path string) error {
	want, ok := c.Hashes[filepath.Base(path)]
	if !ok {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotLocked)
	}
	got, err := HashFile(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%s: %w: locked %s, found %s", filepath.Base(path), ErrChecksumMismatch, want, got)
	}
	return nil
}

// Lock writes a .checksums file into every directory of the include tree
// rooted at configPath. Load refuses files that no longer match. With dryRun
// the hashes are computed and reported but nothing is written.
func Lock(configPath string, dryRun bool) ([]*LockReport, error) {
	files, err := DiscoverAllConfigFiles(configPath)
	if err != nil {
		return nil, err
	}

	byDir := make(map[string][]string)
	for _, path := range files {
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], filepath.Base(path))
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	reports := make([]*LockReport, 0, len(dirs))
	for _, dir := range dirs {
		report, err := lockDir(dir, byDir[dir], dryRun)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func lockDir(dir string, names []string, dryRun bool) (*LockReport, error) {
	sums := Checksums{
		Version:     checksumsVersion,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string, len(names)),
	}
	report := &LockReport{
		Dir:          dir,
		ChecksumPath: filepath.Join(dir, ChecksumsFile),
		Files:        make([]LockedFile, 0, len(names)),
	}

	for _, name := range names {
		f := LockedFile{Name: name, Path: filepath.Join(dir, name)}
		if _, err := os.Stat(f.Path); err == nil {
			if f.Hash, err = HashFile(f.Path); err != nil {
				return nil, err
			}
			sums.Hashes[name] = f.Hash
		}
		report.Files = append(report.Files, f)
	}
	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(sums)
	if err != nil {
		return nil, fmt.Errorf("encode checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}
