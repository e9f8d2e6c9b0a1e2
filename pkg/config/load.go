package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned by Find when a directory has no config file.
var ErrNoConfig = errors.New("no devserve config file found")

// FileNames are the config file names Find looks for, in order.
var FileNames = []string{
	"devserve.config.toml",
	"devserve.config.jsonc",
	"devserve.config.json",
	"devserve.config.yaml",
	"devserve.config.yml",
}

// Find returns the path of the first config file present in dir.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}

	return "", fmt.Errorf("%w in %s", ErrNoConfig, dir)
}

// Load reads and validates the config file at path. The format is chosen
// by extension. Root is set to the file's absolute directory and .env
// files next to it are loaded into Env.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.Root = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", path, err)
	}

	env, err := LoadEnv(cfg.Root, cfg.Mode, cfg.EnvPrefix)
	if err != nil {
		return nil, err
	}
	cfg.Env = env

	return cfg, nil
}

// LoadOrDefault loads path when given, otherwise the config found in dir,
// otherwise Default(dir).
func LoadOrDefault(path, dir string) (*Config, string, error) {
	if path == "" {
		found, err := Find(dir)
		if errors.Is(err, ErrNoConfig) {
			cfg := Default(dir)
			env, err := LoadEnv(cfg.Root, cfg.Mode, cfg.EnvPrefix)
			if err != nil {
				return nil, "", err
			}
			cfg.Env = env
			return cfg, "", nil
		}
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Parse decodes a config from data in the format named by ext
// (".toml", ".json", ".jsonc", ".yaml" or ".yml"). Root is left empty.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing toml: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg.applyDefaults()
	return &cfg, nil
}
