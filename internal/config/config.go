package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type OutputConfig struct {
	Format string `yaml:"format"` // human, json, plain
}

type AudioConfig struct {
	BlockSize int `yaml:"block_size"` // playback callback size in frames
	SettleMS  int `yaml:"settle_ms"`  // extra wait after draining playback
}

type BackendConfig struct {
	Mode       string `yaml:"mode"` // runner, remote, mock
	Command    string `yaml:"command"`
	Endpoint   string `yaml:"endpoint"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	SampleRate int    `yaml:"sample_rate"` // used by the mock backend only
}

type EventLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type ServeConfig struct {
	Bind      string          `yaml:"bind"`
	Port      int             `yaml:"port"`
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type Config struct {
	DataDir         string         `yaml:"data_dir"`
	DefaultVoice    string         `yaml:"default_voice"`
	DefaultLanguage string         `yaml:"default_language"`
	DefaultModel    string         `yaml:"default_model"`
	LogLevel        string         `yaml:"log_level"`
	Output          OutputConfig   `yaml:"output"`
	Audio           AudioConfig    `yaml:"audio"`
	Backend         BackendConfig  `yaml:"backend"`
	EventLog        EventLogConfig `yaml:"event_log"`
	Serve           ServeConfig    `yaml:"serve"`
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mimic", "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./mimic-data"
	}
	return filepath.Join(home, "mimic")
}

func Default() Config {
	return Config{
		DataDir:         defaultDataDir(),
		DefaultVoice:    "",
		DefaultLanguage: "en",
		DefaultModel:    "1.7B",
		LogLevel:        "warn",
		Output: OutputConfig{
			Format: "human",
		},
		Audio: AudioConfig{
			BlockSize: 1024,
			SettleMS:  100,
		},
		Backend: BackendConfig{
			Mode:       "runner",
			Command:    "mimic-runner",
			TimeoutMS:  120000,
			SampleRate: 24000,
		},
		EventLog: EventLogConfig{
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Serve: ServeConfig{
			Bind: "0.0.0.0",
			Port: 8080,
			Bus: BusConfig{
				Embedded:       true,
				Port:           4222,
				Servers:        []string{"nats://localhost:4222"},
				ConnectTimeout: 2000,
			},
			Telemetry: TelemetryConfig{
				OTLPEndpoint:   "",
				OTLPInsecure:   true,
				PrometheusBind: ":9091",
			},
		},
	}
}

// Load reads the config file at path (optional), applies MIMIC_* env
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDefault loads DefaultPath when it exists, otherwise the defaults.
func LoadDefault() (Config, error) {
	path := DefaultPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Load("")
}

// Save writes the config as YAML, creating parent directories as needed.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.DataDir, "MIMIC_DATA_DIR")
	overrideString(&cfg.DefaultVoice, "MIMIC_DEFAULT_VOICE")
	overrideString(&cfg.DefaultLanguage, "MIMIC_DEFAULT_LANGUAGE")
	overrideString(&cfg.DefaultModel, "MIMIC_DEFAULT_MODEL")
	overrideString(&cfg.LogLevel, "MIMIC_LOG_LEVEL")
	overrideString(&cfg.Output.Format, "MIMIC_OUTPUT_FORMAT")
	overrideInt(&cfg.Audio.BlockSize, "MIMIC_AUDIO_BLOCK_SIZE")
	overrideInt(&cfg.Audio.SettleMS, "MIMIC_AUDIO_SETTLE_MS")
	overrideString(&cfg.Backend.Mode, "MIMIC_BACKEND_MODE")
	overrideString(&cfg.Backend.Command, "MIMIC_BACKEND_COMMAND")
	overrideString(&cfg.Backend.Endpoint, "MIMIC_BACKEND_ENDPOINT")
	overrideInt(&cfg.Backend.TimeoutMS, "MIMIC_BACKEND_TIMEOUT_MS")
	overrideInt(&cfg.Backend.SampleRate, "MIMIC_BACKEND_SAMPLE_RATE")
	overrideString(&cfg.EventLog.Path, "MIMIC_EVENT_LOG_PATH")
	overrideString(&cfg.EventLog.RetentionMode, "MIMIC_EVENT_LOG_RETENTION_MODE")
	overrideInt(&cfg.EventLog.RetentionDays, "MIMIC_EVENT_LOG_RETENTION_DAYS")
	overrideInt(&cfg.EventLog.MaxSessions, "MIMIC_EVENT_LOG_MAX_SESSIONS")
	overrideBool(&cfg.EventLog.VacuumOnStart, "MIMIC_EVENT_LOG_VACUUM_ON_START")
	overrideString(&cfg.Serve.Bind, "MIMIC_SERVE_BIND")
	overrideInt(&cfg.Serve.Port, "MIMIC_SERVE_PORT")
	overrideBool(&cfg.Serve.Bus.Embedded, "MIMIC_BUS_EMBEDDED")
	overrideInt(&cfg.Serve.Bus.Port, "MIMIC_BUS_PORT")
	overrideStringSlice(&cfg.Serve.Bus.Servers, "MIMIC_BUS_SERVERS")
	overrideString(&cfg.Serve.Bus.Username, "MIMIC_BUS_USERNAME")
	overrideString(&cfg.Serve.Bus.Password, "MIMIC_BUS_PASSWORD")
	overrideString(&cfg.Serve.Bus.Token, "MIMIC_BUS_TOKEN")
	overrideBool(&cfg.Serve.Bus.TLSInsecure, "MIMIC_BUS_TLS_INSECURE")
	overrideInt(&cfg.Serve.Bus.ConnectTimeout, "MIMIC_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Serve.Telemetry.OTLPEndpoint, "MIMIC_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Serve.Telemetry.OTLPInsecure, "MIMIC_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Serve.Telemetry.PrometheusBind, "MIMIC_TELEMETRY_PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate checks a config mutated outside of Load.
func Validate(cfg Config) error { return validate(cfg) }

func validate(cfg Config) error {
	if cfg.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	switch cfg.Output.Format {
	case "human", "json", "plain":
	default:
		return errors.New("output.format must be one of human|json|plain")
	}
	if cfg.Audio.BlockSize <= 0 {
		return errors.New("audio.block_size must be positive")
	}
	if cfg.Audio.SettleMS < 0 {
		return errors.New("audio.settle_ms must be >= 0")
	}
	switch cfg.Backend.Mode {
	case "runner", "remote", "mock":
	default:
		return errors.New("backend.mode must be one of runner|remote|mock")
	}
	if cfg.Backend.Mode == "runner" && cfg.Backend.Command == "" {
		return errors.New("backend.command must be set when mode=runner")
	}
	if cfg.Backend.Mode == "remote" && cfg.Backend.Endpoint == "" {
		return errors.New("backend.endpoint must be set when mode=remote")
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return errors.New("backend.timeout_ms must be positive")
	}
	if cfg.Backend.SampleRate <= 0 {
		return errors.New("backend.sample_rate must be positive")
	}
	switch cfg.EventLog.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("event_log.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventLog.RetentionMode == "persistent" && cfg.EventLog.Path == "" {
		return errors.New("event_log.path must not be empty when retention_mode=persistent")
	}
	if cfg.EventLog.RetentionDays < 0 {
		return errors.New("event_log.retention_days must be >= 0")
	}
	if cfg.Serve.Port <= 0 || cfg.Serve.Port > 65535 {
		return errors.New("serve.port must be between 1 and 65535")
	}
	if cfg.Serve.Bus.Embedded {
		if cfg.Serve.Bus.Port <= 0 || cfg.Serve.Bus.Port > 65535 {
			return errors.New("serve.bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Serve.Bus.Servers) == 0 {
			return errors.New("serve.bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Serve.Telemetry.PrometheusBind == "" {
		return errors.New("serve.telemetry.prometheus_bind must not be empty")
	}
	return nil
}
