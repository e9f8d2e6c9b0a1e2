package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFiles returns the .env file names for mode, lowest priority first.
func EnvFiles(mode string) []string {
	files := []string{".env", ".env.local"}
	if mode != "" {
		files = append(files, ".env."+mode, ".env."+mode+".local")
	}
	return files
}

// LoadEnv reads the .env files for mode from dir and returns the variables
// whose names start with prefix. Later files override earlier ones and
// process environment variables override all files. Missing files are
// skipped.
func LoadEnv(dir, mode, prefix string) (map[string]string, error) {
	merged := make(map[string]string)

	for _, name := range EnvFiles(mode) {
		path := filepath.Join(dir, name)
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			if _, fromFile := merged[k]; fromFile || strings.HasPrefix(k, prefix) {
				merged[k] = v
			}
		}
	}

	env := make(map[string]string)
	for k, v := range merged {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			env[k] = v
		}
	}

	return env, nil
}
