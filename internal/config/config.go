// Package config reads the project's optional config.yml and knows the
// well-known paths under the .beadloom configuration directory.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigDirName is the well-known configuration directory under a project root.
const ConfigDirName = ".beadloom"

// DefaultScanPaths is used when config.yml omits scan_paths.
var DefaultScanPaths = []string{"src", "lib", "app"}

// DefaultImportAliases is used when config.yml omits import_aliases.
var DefaultImportAliases = map[string]string{"@/": "src/", "~/": "src/"}

// Config mirrors the recognized config.yml keys.
type Config struct {
	ScanPaths []string `yaml:"scan_paths"`
	DocsDir   string   `yaml:"docs_dir"`
	MCP       struct {
		AutoReindex bool `yaml:"auto_reindex"`
	} `yaml:"mcp"`
	DocsAudit struct {
		ExcludePaths []string `yaml:"exclude_paths"`
	} `yaml:"docs_audit"`

	// ImportAliases maps a TS/JS import prefix to the project-root-relative
	// path it resolves to. Only consulted by the Import Resolver.
	ImportAliases map[string]string `yaml:"import_aliases"`

	// Logging gates the per-category debug log files.
	Logging struct {
		DebugMode  bool `yaml:"debug_mode"`
		JSONFormat bool `yaml:"json_format"`
	} `yaml:"logging"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{
		ScanPaths:     append([]string(nil), DefaultScanPaths...),
		DocsDir:       "docs",
		ImportAliases: copyAliases(DefaultImportAliases),
	}
	c.MCP.AutoReindex = true
	return c
}

func copyAliases(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ConfigPath returns the path to config.yml under the project's config dir.
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDirName, "config.yml")
}

// Load reads config.yml from the project's config directory. A missing file
// is not an error: Default() is returned unchanged.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()
	path := ConfigPath(projectRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.ScanPaths) == 0 {
		cfg.ScanPaths = append([]string(nil), DefaultScanPaths...)
	}
	if cfg.DocsDir == "" {
		cfg.DocsDir = "docs"
	}
	if len(cfg.ImportAliases) == 0 {
		cfg.ImportAliases = copyAliases(DefaultImportAliases)
	}
	return cfg, nil
}

// DBPath returns the well-known SQLite database path under the config dir.
func DBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDirName, "beadloom.db")
}

// GraphDir returns the directory holding *.yml graph files and rules.yml.
func GraphDir(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDirName, "_graph")
}

// LogDir returns the directory logging writes per-category files to.
func LogDir(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDirName, "logs")
}
