package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/brickhost/internal/config"
	"github.com/mattjoyce/brickhost/internal/doctor"
	"github.com/mattjoyce/brickhost/internal/lock"
	"github.com/mattjoyce/brickhost/internal/plugin"
)

func quietDiscovery(level, msg string, args ...any) {}

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	path, err := resolveConfigFlag(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	defs, err := plugin.Discover([]string{cfg.PluginsDir}, quietDiscovery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, defs).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Show what would be written")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	path, err := resolveConfigFlag(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	reports, err := config.Lock(path, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	for _, report := range reports {
		if isVerbose {
			fmt.Printf("Processing directory: %s\n", report.Dir)
			for _, f := range report.Files {
				if f.Hash == "" {
					fmt.Printf("  SKIP  %s (missing)\n", f.Name)
					continue
				}
				fmt.Printf("  HASH  %s %s\n", f.Name, f.Hash)
			}
		}
		switch {
		case dryRun:
			fmt.Printf("Dry run: would write %s\n", report.ChecksumPath)
		case report.Written:
			fmt.Printf("Locked %s\n", report.ChecksumPath)
		}
	}
	return 0
}

type pluginRow struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Dir         string   `json:"dir"`
	Enabled     bool     `json:"enabled"`
	Autoload    bool     `json:"autoload"`
	Commands    []string `json:"commands"`
	Fingerprint string   `json:"fingerprint"`
}

func runPluginList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigFlag(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	defs, err := plugin.Discover([]string{cfg.PluginsDir}, quietDiscovery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery error: %v\n", err)
		return 1
	}

	rows := make([]pluginRow, 0, len(defs))
	for _, def := range defs {
		pc := cfg.Plugin(def.Name)
		rows = append(rows, pluginRow{
			Name:        def.Name,
			Version:     def.Manifest.Version,
			Description: def.Manifest.Description,
			Dir:         def.Dir,
			Enabled:     pc.IsEnabled(),
			Autoload:    pc.ShouldAutoload(),
			Commands:    def.Manifest.CommandNames(),
			Fingerprint: def.Fingerprint,
		})
	}

	if *jsonOut {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(rows) == 0 {
		fmt.Printf("No plugins found in %s\n", cfg.PluginsDir)
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tENABLED\tAUTOLOAD\tCOMMANDS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", r.Name, orDash(r.Version), r.Enabled, r.Autoload, orDash(strings.Join(r.Commands, ",")))
	}
	_ = tw.Flush()
	return 0
}

func runPluginCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: brickhost plugin check <dir> [--json]")
		return 1
	}

	def, err := plugin.LoadDefinition(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin check failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("Plugin %s OK\n", def.Name)
	fmt.Printf("  dir:         %s\n", def.Dir)
	fmt.Printf("  entrypoint:  %s\n", def.Entrypoint)
	fmt.Printf("  version:     %s\n", orDash(def.Manifest.Version))
	fmt.Printf("  fingerprint: %s\n", def.Fingerprint)
	fmt.Printf("  commands:    %s\n", orDash(strings.Join(def.Manifest.CommandNames(), ", ")))
	fmt.Printf("  config keys: %s\n", orDash(strings.Join(def.Manifest.ConfigKeys(), ", ")))
	return 0
}

type statusCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	ActivePID int    `json:"active_pid,omitempty"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Running bool          `json:"running"`
	Checks  []statusCheck `json:"checks"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := collectStatus(*configPath)

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		for _, c := range report.Checks {
			result := "OK"
			if !c.OK {
				result = "FAIL"
			}
			if c.Detail != "" {
				fmt.Printf("%s: %s (%s)\n", c.Name, result, c.Detail)
			} else {
				fmt.Printf("%s: %s\n", c.Name, result)
			}
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}

func collectStatus(configPath string) statusReport {
	var report statusReport

	path, err := resolveConfigFlag(configPath)
	var cfg *config.Config
	if err == nil {
		cfg, err = config.Load(path)
	}
	if err != nil {
		report.Checks = append(report.Checks,
			statusCheck{Name: "config_load", Detail: err.Error()},
			statusCheck{Name: "plugins_dir", Detail: "config not loaded"},
			statusCheck{Name: "state", Detail: "config not loaded"},
			statusCheck{Name: "pid_lock", Detail: "config not loaded"},
		)
		return report
	}
	report.Checks = append(report.Checks, statusCheck{Name: "config_load", OK: true, Detail: path})

	if defs, err := plugin.Discover([]string{cfg.PluginsDir}, quietDiscovery); err != nil {
		report.Checks = append(report.Checks, statusCheck{Name: "plugins_dir", Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, statusCheck{Name: "plugins_dir", OK: true, Detail: fmt.Sprintf("%d plugin(s)", len(defs))})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, closeBackend, err := openBackend(ctx, cfg.State); err != nil {
		report.Checks = append(report.Checks, statusCheck{Name: "state", Detail: err.Error()})
	} else {
		closeBackend()
		report.Checks = append(report.Checks, statusCheck{Name: "state", OK: true, Detail: cfg.State.Backend})
	}

	report.Checks = append(report.Checks, pidStatus(cfg.Service.PIDFile, &report))

	report.Healthy = true
	for _, c := range report.Checks {
		if !c.OK {
			report.Healthy = false
		}
	}
	return report
}

// pidStatus reports whether a host already runs. A running host is not a
// failure; an unreadable PID file is.
func pidStatus(path string, report *statusReport) statusCheck {
	check := statusCheck{Name: "pid_lock"}
	pid, err := lock.ReadPID(path)
	switch {
	case os.IsNotExist(err):
		check.OK = true
		check.Detail = "not running"
	case err != nil:
		check.Detail = err.Error()
	case processAlive(pid):
		check.OK = true
		check.ActivePID = pid
		check.Detail = fmt.Sprintf("running as pid %d", pid)
		report.Running = true
	default:
		check.OK = true
		check.Detail = fmt.Sprintf("stale pid file %s", filepath.Base(path))
	}
	return check
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
