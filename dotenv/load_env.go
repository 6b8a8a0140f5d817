package dotenv

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"
)

const defaultEnvFile = ".env"

// LoadEnv loads KEY=VALUE pairs into the process environment.
// With no arguments it reads ./.env and silently ignores a missing file;
// explicitly named files must exist.
func LoadEnv(envPath ...string) error {
	if len(envPath) == 0 {
		err := loadFile(defaultEnvFile)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, filename := range envPath {
		if err := loadFile(filename); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return LoadEnvFromString(string(content))
}

// LoadEnvFromString parses env-file content. Values keep any '=' after the first one.
func LoadEnvFromString(content string) error {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}
