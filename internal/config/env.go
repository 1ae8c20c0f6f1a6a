package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// loadEnvFile populates the process environment from paths.env_file before
// secrets are resolved. Variables already set in the environment win.
func (c *Config) loadEnvFile() error {
	path := strings.TrimSpace(c.Paths.EnvFile)
	if path == "" {
		if value, ok := os.LookupEnv("LINKER_ENV_FILE"); ok {
			path = strings.TrimSpace(value)
		}
	}
	if path == "" {
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if err := godotenv.Load(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("paths.env_file %q does not exist", expanded)
		}
		return fmt.Errorf("load env file: %w", err)
	}
	c.Paths.EnvFile = expanded
	return nil
}
