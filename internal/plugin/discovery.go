package plugin

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Fixed names of the two files that make a directory a plugin.
const (
	ManifestFilename   = "manifest.yaml"
	EntrypointFilename = "plugin"
)

// Definition is a plugin directory that satisfies the directory contract.
type Definition struct {
	Name        string    // manifest name, or the directory name when empty
	Dir         string    // absolute plugin directory
	Entrypoint  string    // absolute path of the executable
	Manifest    *Manifest // parsed manifest.yaml
	Fingerprint string    // BLAKE3 of the manifest bytes, hex
}

// LoadDefinition checks the directory contract for dir and parses its manifest.
func LoadDefinition(dir string) (*Definition, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin dir %q: %w", dir, err)
	}

	data, err := os.ReadFile(filepath.Join(absDir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	entrypoint := filepath.Join(absDir, EntrypointFilename)
	if err := validateTrust(entrypoint, absDir); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	name := manifest.Name
	if name == "" {
		name = filepath.Base(absDir)
	}
	sum := blake3.Sum256(data)

	return &Definition{
		Name:        name,
		Dir:         absDir,
		Entrypoint:  entrypoint,
		Manifest:    manifest,
		Fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

// Discover scans the immediate subdirectories of each root for plugins.
// Directories failing the contract are logged and skipped. Duplicate names
// keep the first discovered plugin; roots are processed in input order.
func Discover(roots []string, logger func(level, msg string, args ...any)) ([]*Definition, error) {
	if logger == nil {
		logger = func(level, msg string, args ...any) {}
	}

	var out []*Definition
	seen := make(map[string]*Definition)
	scanned := 0
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin root %q: %w", root, err)
		}
		entries, err := os.ReadDir(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("plugin root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to scan plugin root %s: %w", absRoot, err)
		}
		scanned++

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(absRoot, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, ManifestFilename)); err != nil {
				continue
			}

			def, err := LoadDefinition(dir)
			if err != nil {
				logger("warn", "failed to load plugin", "root", absRoot, "path", dir, "error", err.Error())
				continue
			}
			if existing, ok := seen[def.Name]; ok {
				logger(
					"warn",
					"duplicate plugin ignored (keeping first discovered)",
					"plugin", def.Name,
					"ignored_path", def.Dir,
					"kept_path", existing.Dir,
				)
				continue
			}
			seen[def.Name] = def
			out = append(out, def)
			logger("info", "discovered plugin", "plugin", def.Name, "path", def.Dir, "version", def.Manifest.Version)
		}
	}
	if scanned == 0 {
		return nil, fmt.Errorf("at least one plugin root is required")
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// validateTrust refuses entrypoints that escape the plugin dir, are not
// executable, or live in a world-writable directory.
func validateTrust(entrypointPath, pluginPath string) error {
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint: %w", err)
	}
	resolvedPluginPath, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path: %w", err)
	}

	if !strings.HasPrefix(resolvedEntrypoint, resolvedPluginPath+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under plugin directory %s", resolvedEntrypoint, resolvedPluginPath)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("entrypoint is a directory: %s", resolvedEntrypoint)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	pluginInfo, err := os.Stat(resolvedPluginPath)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}
	if pluginInfo.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPluginPath)
	}

	return nil
}
