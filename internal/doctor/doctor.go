// Package doctor cross-checks a loaded brickhost config against the plugins
// actually present on disk.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/brickhost/internal/config"
	"github.com/mattjoyce/brickhost/internal/plugin"
	"github.com/mattjoyce/brickhost/internal/storage"
)

// Plugin timeouts outside these bounds are almost always typos.
const (
	minSaneTimeout = 100 * time.Millisecond
	maxSaneTimeout = 2 * time.Minute
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against discovered plugins.
type Doctor struct {
	cfg     *config.Config
	plugins map[string]*plugin.Definition
}

// New creates a Doctor from a loaded config and the discovered plugins.
func New(cfg *config.Config, defs []*plugin.Definition) *Doctor {
	plugins := make(map[string]*plugin.Definition, len(defs))
	for _, def := range defs {
		plugins[def.Name] = def
	}
	return &Doctor{cfg: cfg, plugins: plugins}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validatePluginRefs(r)
	d.validatePluginTimeouts(r)
	d.validateServer(r)
	d.validateState(r)
	d.warnUndocumentedConfig(r)
	d.warnCommandOverlap(r)
	d.warnNoAutoload(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) configuredNames() []string {
	names := make([]string, 0, len(d.cfg.Plugins))
	for name := range d.cfg.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validatePluginRefs checks that configured plugins exist in plugins_dir.
func (d *Doctor) validatePluginRefs(r *Result) {
	for _, name := range d.configuredNames() {
		if _, ok := d.plugins[name]; ok {
			continue
		}
		field := fmt.Sprintf("plugins.%s", name)
		msg := fmt.Sprintf("plugin %q in config but not found in plugins_dir", name)
		if d.cfg.Plugins[name].IsEnabled() {
			d.addError(r, "plugin_refs", field, msg)
		} else {
			d.addWarning(r, "plugin_refs", field, msg)
		}
	}
}

func (d *Doctor) validatePluginTimeouts(r *Result) {
	for _, name := range d.configuredNames() {
		pc := d.cfg.Plugin(name)
		field := fmt.Sprintf("plugins.%s", name)
		if pc.Timeout < minSaneTimeout || pc.Timeout > maxSaneTimeout {
			d.addWarning(r, "timeouts", field+".timeout",
				fmt.Sprintf("timeout %s is outside %s..%s", pc.Timeout, minSaneTimeout, maxSaneTimeout))
		}
		if pc.KillGrace > pc.Timeout {
			d.addWarning(r, "timeouts", field+".kill_grace",
				fmt.Sprintf("kill_grace %s exceeds timeout %s", pc.KillGrace, pc.Timeout))
		}
	}
}

// validateState rejects a SQLite store that would live on a network mount.
func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Backend != config.BackendSQLite {
		return
	}
	if err := storage.CheckLocalFilesystem(d.cfg.State.Path); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	}
}

// validateServer checks the game server paths the console host functions use.
func (d *Doctor) validateServer(r *Result) {
	if d.cfg.Server.Console == "" {
		d.addWarning(r, "server", "server.console",
			"no console configured; plugin console calls will fail")
	}
	if d.cfg.Server.DataDir == "" {
		d.addWarning(r, "server", "server.data_dir",
			"no data_dir configured; role setup, ban list and saves are unavailable")
		return
	}
	info, err := os.Stat(d.cfg.Server.DataDir)
	switch {
	case err != nil:
		d.addError(r, "server", "server.data_dir",
			fmt.Sprintf("data_dir %s is not accessible: %v", d.cfg.Server.DataDir, err))
	case !info.IsDir():
		d.addError(r, "server", "server.data_dir",
			fmt.Sprintf("data_dir %s is not a directory", d.cfg.Server.DataDir))
	}
}

// warnUndocumentedConfig flags config keys the plugin's manifest does not
// mention. Plugins without a documented config are skipped.
func (d *Doctor) warnUndocumentedConfig(r *Result) {
	for _, name := range d.configuredNames() {
		def, ok := d.plugins[name]
		if !ok || len(def.Manifest.Config) == 0 {
			continue
		}
		keys := make([]string, 0, len(d.cfg.Plugins[name].Config))
		for key := range d.cfg.Plugins[name].Config {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, documented := def.Manifest.Config[key]; !documented {
				d.addWarning(r, "plugin_config", fmt.Sprintf("plugins.%s.config.%s", name, key),
					fmt.Sprintf("plugin %q does not document config key %q", name, key))
			}
		}
	}
}

// warnCommandOverlap flags chat commands documented by more than one
// enabled plugin; both will receive the command.
func (d *Doctor) warnCommandOverlap(r *Result) {
	owners := make(map[string][]string)
	names := make([]string, 0, len(d.plugins))
	for name := range d.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !d.cfg.Plugin(name).IsEnabled() {
			continue
		}
		for _, cmd := range d.plugins[name].Manifest.CommandNames() {
			owners[cmd] = append(owners[cmd], name)
		}
	}

	cmds := make([]string, 0, len(owners))
	for cmd, who := range owners {
		if len(who) > 1 {
			cmds = append(cmds, cmd)
		}
	}
	sort.Strings(cmds)
	for _, cmd := range cmds {
		d.addWarning(r, "commands", "",
			fmt.Sprintf("command %q is registered by %s", cmd, strings.Join(owners[cmd], ", ")))
	}
}

func (d *Doctor) warnNoAutoload(r *Result) {
	if len(d.plugins) == 0 {
		d.addWarning(r, "plugin_refs", "plugins_dir",
			fmt.Sprintf("no plugins found in %s", d.cfg.PluginsDir))
		return
	}
	for name := range d.plugins {
		if d.cfg.Plugin(name).ShouldAutoload() {
			return
		}
	}
	d.addWarning(r, "plugin_refs", "plugins",
		"no plugin is autoloaded; the host will start idle")
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
