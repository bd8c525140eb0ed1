package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigDirEnv overrides the directory searched for <env>.yaml.
const ConfigDirEnv = "CVCONTEXT_CONFIG_DIR"

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads, expands, defaults and validates a configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration with ${VAR} substitution.
func Parse(data []byte) (Config, error) {
	data, err := expandEnvVars(data)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

func findConfigPath(env string) string {
	filename := env + ".yaml"

	var dirs []string
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, "config")

	// рядом с исходниками, для go test из любого пакета
	if _, src, _, ok := runtime.Caller(0); ok {
		dirs = append(dirs, filepath.Join(filepath.Dir(filepath.Dir(filepath.Dir(src))), "config"))
	}

	for _, dir := range dirs {
		if path := filepath.Join(dir, filename); fileExists(path) {
			return path
		}
	}
	return filepath.Join(dirs[0], filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars substitutes ${VAR}, ${VAR:-default} and ${VAR:?message}.
// A ${VAR:?message} reference to an unset variable is an error.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []error
	out := envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		if name, msg, ok := strings.Cut(expr, ":?"); ok {
			val := os.Getenv(name)
			if val == "" {
				if msg == "" {
					msg = "is required"
				}
				missing = append(missing, fmt.Errorf("%s %s", name, msg))
			}
			return []byte(val)
		}
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("config env: %w", errors.Join(missing...))
	}
	return out, nil
}
