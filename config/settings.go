package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-ini/ini"
	"github.com/nsa-yoda/ReplyXL/dotenv"
)

// SectionName is the INI section every config file must carry.
const SectionName = "config"

const DefaultPort = 9005

// Generator backends understood by imagize.Provide.
const (
	GeneratorAnthropic = "anthropic"
	GeneratorOllama    = "ollama"
)

// Settings is built once at startup and then only read. Pass it by value.
//
// Config values can be committed to version control. Secrets such as
// ANTHROPIC_API_KEY are never part of Settings and are read from the
// environment (optionally filled from a key vault, see package secrets).
type Settings struct {
	Environment string `ini:"environment" env:"IMAGIZE_ENVIRONMENT"`
	Port        int    `ini:"port" env:"IMAGIZE_PORT"`

	// static mounts
	StaticDir    string `ini:"static_dir" env:"IMAGIZE_STATIC_DIR"`
	TemplateDir  string `ini:"template_dir" env:"IMAGIZE_TEMPLATE_DIR"`
	RootFilesDir string `ini:"root_files_dir" env:"IMAGIZE_ROOT_FILES_DIR"`

	// generation
	Generator         string  `ini:"generator" env:"IMAGIZE_GENERATOR"`
	Model             string  `ini:"model" env:"IMAGIZE_MODEL"` // empty selects the backend default
	MaxTokens         int     `ini:"max_tokens" env:"IMAGIZE_MAX_TOKENS"`
	Temperature       float64 `ini:"temperature" env:"IMAGIZE_TEMPERATURE"`
	GenerationRetries int     `ini:"generation_retries" env:"IMAGIZE_GENERATION_RETRIES"`

	// serving
	MetricsPort        int           `ini:"metrics_port" env:"IMAGIZE_METRICS_PORT"`
	MaxConnections     int           `ini:"max_connections" env:"IMAGIZE_MAX_CONNECTIONS"`
	CorsAllowedOrigins []string      `ini:"cors_allowed_origins" delim:"," env:"IMAGIZE_CORS_ALLOWED_ORIGINS"`
	ReadTimeout        time.Duration `ini:"read_timeout" env:"IMAGIZE_READ_TIMEOUT"`
	WriteTimeout       time.Duration `ini:"write_timeout" env:"IMAGIZE_WRITE_TIMEOUT"`
	IdleTimeout        time.Duration `ini:"idle_timeout" env:"IMAGIZE_IDLE_TIMEOUT"`
	ShutdownTimeout    time.Duration `ini:"shutdown_timeout" env:"IMAGIZE_SHUTDOWN_TIMEOUT"`

	// secret sources
	AzureKeyVaultName string `ini:"azure_key_vault_name" env:"AZURE_KEY_VAULT_NAME"`
	GcpProjectId      string `ini:"gcp_project_id" env:"GCP_PROJECT_ID"`
}

// LoadError reports a config file that was named but could not be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Default returns the built-in settings used when no config file is given.
func Default() Settings {
	return Settings{
		Environment:       "DEVELOPMENT",
		Port:              DefaultPort,
		StaticDir:         "static",
		TemplateDir:       "templates",
		RootFilesDir:      "static/root",
		Generator:         GeneratorAnthropic,
		MaxTokens:         512,
		Temperature:       0.7,
		GenerationRetries: 3,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		ShutdownTimeout:   15 * time.Second,
	}
}

// Load builds Settings from defaults, then the [config] section of the INI
// file at path (skipped when path is empty), then .env and the process
// environment.
func Load(path string) (Settings, error) {
	settings := Default()

	if path != "" {
		file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
		if err != nil {
			return Settings{}, &LoadError{Path: path, Err: err}
		}

		section, err := file.GetSection(SectionName)
		if err != nil {
			return Settings{}, &LoadError{Path: path, Err: err}
		}

		known := knownKeys()
		for _, key := range section.KeyStrings() {
			if !known[key] {
				return Settings{}, &LoadError{Path: path, Err: fmt.Errorf("unknown key %q in [%s]", key, SectionName)}
			}
		}

		if err := section.StrictMapTo(&settings); err != nil {
			return Settings{}, &LoadError{Path: path, Err: err}
		}
	}

	if err := dotenv.LoadEnv(); err != nil {
		return Settings{}, &LoadError{Path: ".env", Err: err}
	}

	if err := env.Parse(&settings); err != nil {
		return Settings{}, &LoadError{Path: path, Err: err}
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, &LoadError{Path: path, Err: err}
	}

	return settings, nil
}

// knownKeys lists the ini names declared on Settings.
func knownKeys() map[string]bool {
	t := reflect.TypeOf(Settings{})
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("ini"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

// Restricted reports whether generation must be refused in this environment.
func (s Settings) Restricted() bool {
	switch strings.ToUpper(strings.TrimSpace(s.Environment)) {
	case "PRODUCTION", "STAGING":
		return true
	default:
		return false
	}
}

// WithPort returns a copy of s listening on port.
func (s Settings) WithPort(port int) Settings {
	s.Port = port
	return s
}

func (s Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.MetricsPort < 0 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port %d out of range", s.MetricsPort)
	}
	if s.MetricsPort != 0 && s.MetricsPort == s.Port {
		return fmt.Errorf("metrics_port must differ from port %d", s.Port)
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if s.GenerationRetries < 1 {
		return fmt.Errorf("generation_retries must be at least 1")
	}

	switch s.Generator {
	case GeneratorAnthropic, GeneratorOllama:
	default:
		return fmt.Errorf("unknown generator %q", s.Generator)
	}

	return nil
}
