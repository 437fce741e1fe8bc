// Package supervisor implements the filesystem preparation, child-process
// spawn, and eviction primitives of §4.4. The orchestration that strings
// these together with the proxy loop and HTTP router lives in
// cmd/supervisor, mirroring how the teacher keeps subsystem wiring in
// cmd/gameserver/main.go rather than in a single god-object.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/udisondev/mc-ondemand/internal/config"
)

const (
	eulaFileName             = "eula.txt"
	serverPropertiesFileName = "server.properties"
	errorLogFileName         = "mc_error.log"
)

// Baseline captures the names present in dir before the child runs, so
// Evict later only moves entries created during this run (§4.4 step 2).
func Baseline(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("supervisor: reading baseline dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// ReplaySymlinks creates a same-name symlink in workDir for every entry of
// persistentDir except "world" (§4.4 step 3, §6 "Filesystem layout").
// Pre-existing links and individual failures are warned, not fatal — a
// missing persistentDir (first-ever run) is not an error either.
func ReplaySymlinks(workDir, persistentDir string) error {
	entries, err := os.ReadDir(persistentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("supervisor: reading persistent dir %s: %w", persistentDir, err)
	}

	for _, e := range entries {
		if e.Name() == "world" {
			continue
		}

		target := filepath.Join(persistentDir, e.Name())
		link := filepath.Join(workDir, e.Name())

		if _, err := os.Lstat(link); err == nil {
			slog.Warn("symlink replay: entry already exists, skipping", "name", e.Name())
			continue
		}

		if err := os.Symlink(target, link); err != nil {
			slog.Warn("symlink replay failed", "name", e.Name(), "err", err)
		}
	}
	return nil
}

// EnsureEULA creates eula.txt with "eula=true" in workDir when accept is
// true and the file doesn't already exist (§4.4 step 5).
func EnsureEULA(workDir string, accept bool) error {
	if !accept {
		return nil
	}

	path := filepath.Join(workDir, eulaFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte("eula=true\n"), 0o644); err != nil {
		return fmt.Errorf("supervisor: writing %s: %w", eulaFileName, err)
	}
	return nil
}

// serverPropertiesTemplate holds the static keys every launch needs,
// independent of runtime configuration (§4.4 step 6).
const serverPropertiesTemplate = `#Minecraft server properties
enable-command-block=false
spawn-protection=0
network-compression-threshold=256
online-mode=false
enable-query=true
query.port=25566
enable-rcon=true
rcon.port=25567
rcon.password=M1n3cr@ft
`

// WriteServerProperties concatenates serverPropertiesTemplate with cfg's
// runtime-derived keys and writes server.properties to workDir. A no-op if
// the file already exists (§4.4 step 6).
func WriteServerProperties(workDir string, cfg config.Config) error {
	path := filepath.Join(workDir, serverPropertiesFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	content := serverPropertiesTemplate + cfg.ServerProperties()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("supervisor: writing %s: %w", serverPropertiesFileName, err)
	}
	return nil
}

// Evict moves every workDir entry absent from baseline and not a symlink
// into persistentDir, and deletes any symlink left behind (§4.4 shutdown).
func Evict(workDir, persistentDir string, baseline []string) error {
	known := make(map[string]bool, len(baseline))
	for _, n := range baseline {
		known[n] = true
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		return fmt.Errorf("supervisor: reading work dir %s for eviction: %w", workDir, err)
	}

	if err := os.MkdirAll(persistentDir, 0o755); err != nil {
		return fmt.Errorf("supervisor: creating persistent dir %s: %w", persistentDir, err)
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(workDir, name)

		info, err := os.Lstat(path)
		if err != nil {
			slog.Warn("eviction: stat failed, skipping", "name", name, "err", err)
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(path); err != nil {
				slog.Warn("eviction: removing symlink failed", "name", name, "err", err)
			}
			continue
		}

		if known[name] {
			continue
		}

		dest := filepath.Join(persistentDir, name)
		if err := os.Rename(path, dest); err != nil {
			slog.Warn("eviction: moving entry failed", "name", name, "err", err)
		}
	}

	return nil
}

// WriteErrorLog writes the child's captured stderr and exit status to
// mc_error.log in workDir, when there is anything to report (§4.4 shutdown).
func WriteErrorLog(workDir string, stderr []byte, exitErr error) error {
	if len(stderr) == 0 && exitErr == nil {
		return nil
	}

	content := append([]byte{}, stderr...)
	if exitErr != nil {
		content = append(content, []byte(fmt.Sprintf("\nexit status: %v\n", exitErr))...)
	}

	path := filepath.Join(workDir, errorLogFileName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("supervisor: writing %s: %w", errorLogFileName, err)
	}
	return nil
}
