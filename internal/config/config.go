package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INTERVIEWREC_"

type Config struct {
	OutputDir string `validate:"required"`

	FFmpegPath     string
	FFprobePath    string
	PactlPath      string
	RecognizerPath string

	Model    string `validate:"required"`
	Language string `validate:"required"`
	Mode     string `validate:"oneof=local remote"`

	RemoteEndpoint string `validate:"omitempty,url"`
	CredentialEnv  string `validate:"required"`
	MinSpeakers    int    `validate:"gte=0"`
	MaxSpeakers    int    `validate:"gte=0"`

	KeepAudio      bool
	AutoTranscribe bool

	PollInterval   time.Duration `validate:"gt=0"`
	PollAttempts   int           `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	StopGrace      time.Duration `validate:"gt=0"`

	HTTPAddr string `validate:"omitempty,hostname_port"`
	GRPCAddr string

	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	// Path is the config file that was read, if any.
	Path string `validate:"-"`
}

type fileConfig struct {
	OutputDir      string `toml:"output_dir"`
	FFmpegPath     string `toml:"ffmpeg_path"`
	FFprobePath    string `toml:"ffprobe_path"`
	PactlPath      string `toml:"pactl_path"`
	RecognizerPath string `toml:"recognizer_path"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	Mode           string `toml:"mode"`
	RemoteEndpoint string `toml:"remote_endpoint"`
	CredentialEnv  string `toml:"credential_env"`
	MinSpeakers    int    `toml:"min_speakers"`
	MaxSpeakers    int    `toml:"max_speakers"`
	KeepAudio      *bool  `toml:"keep_audio"`
	AutoTranscribe *bool  `toml:"auto_transcribe"`
	PollInterval   string `toml:"poll_interval"`
	PollAttempts   int    `toml:"poll_attempts"`
	RequestTimeout string `toml:"request_timeout"`
	StopGrace      string `toml:"stop_grace"`
	HTTPAddr       string `toml:"http_addr"`
	GRPCAddr       string `toml:"grpc_addr"`
	LogLevel       string `toml:"log_level"`
	LogFile        string `toml:"log_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputDir:      defaultOutputDir(),
		Model:          "medium",
		Language:       "en",
		Mode:           "local",
		CredentialEnv:  "RUNPOD_API_KEY",
		KeepAudio:      true,
		AutoTranscribe: true,
		PollInterval:   5 * time.Second,
		PollAttempts:   120,
		RequestTimeout: 30 * time.Second,
		StopGrace:      10 * time.Second,
		HTTPAddr:       "127.0.0.1:8765",
		GRPCAddr:       defaultGRPCAddr(),
		LogLevel:       "info",
	}
}

// Load reads the default config file and ./.env.
func Load() (*Config, error) {
	return LoadFrom(FilePath(), ".env")
}

// LoadFrom applies, in order: defaults, the TOML file at configPath, the
// dotenv file at envFile, INTERVIEWREC_* environment overrides. The result
// is validated. Missing files are skipped.
func LoadFrom(configPath, envFile string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		var fc fileConfig
		_, err := toml.DecodeFile(configPath, &fc)
		switch {
		case err == nil:
			if err := fc.apply(cfg); err != nil {
				return nil, fmt.Errorf("config %s: %w", configPath, err)
			}
			cfg.Path = configPath
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
	}

	if envFile != "" {
		// Values already in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Mode == "remote" && c.RemoteEndpoint == "" {
		return errors.New("invalid config: remote mode needs remote_endpoint")
	}
	if c.MaxSpeakers > 0 && c.MinSpeakers > c.MaxSpeakers {
		return fmt.Errorf("invalid config: min_speakers %d > max_speakers %d", c.MinSpeakers, c.MaxSpeakers)
	}
	return nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.OutputDir, expandTilde(fc.OutputDir))
	setString(&cfg.FFmpegPath, expandTilde(fc.FFmpegPath))
	setString(&cfg.FFprobePath, expandTilde(fc.FFprobePath))
	setString(&cfg.PactlPath, expandTilde(fc.PactlPath))
	setString(&cfg.RecognizerPath, expandTilde(fc.RecognizerPath))
	setString(&cfg.Model, fc.Model)
	setString(&cfg.Language, fc.Language)
	setString(&cfg.Mode, fc.Mode)
	setString(&cfg.RemoteEndpoint, fc.RemoteEndpoint)
	setString(&cfg.CredentialEnv, fc.CredentialEnv)
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.GRPCAddr, fc.GRPCAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFile, expandTilde(fc.LogFile))

	if fc.MinSpeakers != 0 {
		cfg.MinSpeakers = fc.MinSpeakers
	}
	if fc.MaxSpeakers != 0 {
		cfg.MaxSpeakers = fc.MaxSpeakers
	}
	if fc.PollAttempts != 0 {
		cfg.PollAttempts = fc.PollAttempts
	}
	if fc.KeepAudio != nil {
		cfg.KeepAudio = *fc.KeepAudio
	}
	if fc.AutoTranscribe != nil {
		cfg.AutoTranscribe = *fc.AutoTranscribe
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &cfg.PollInterval},
		{"request_timeout", fc.RequestTimeout, &cfg.RequestTimeout},
		{"stop_grace", fc.StopGrace, &cfg.StopGrace},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"OUTPUT_DIR":      &cfg.OutputDir,
		"FFMPEG_PATH":     &cfg.FFmpegPath,
		"FFPROBE_PATH":    &cfg.FFprobePath,
		"PACTL_PATH":      &cfg.PactlPath,
		"RECOGNIZER_PATH": &cfg.RecognizerPath,
		"MODEL":           &cfg.Model,
		"LANGUAGE":        &cfg.Language,
		"MODE":            &cfg.Mode,
		"REMOTE_ENDPOINT": &cfg.RemoteEndpoint,
		"CREDENTIAL_ENV":  &cfg.CredentialEnv,
		"HTTP_ADDR":       &cfg.HTTPAddr,
		"GRPC_ADDR":       &cfg.GRPCAddr,
		"LOG_LEVEL":       &cfg.LogLevel,
		"LOG_FILE":        &cfg.LogFile,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = expandTilde(v)
		}
	}

	bools := map[string]*bool{
		"KEEP_AUDIO":      &cfg.KeepAudio,
		"AUTO_TRANSCRIBE": &cfg.AutoTranscribe,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"POLL_ATTEMPTS": &cfg.PollAttempts,
		"MIN_SPEAKERS":  &cfg.MinSpeakers,
		"MAX_SPEAKERS":  &cfg.MaxSpeakers,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL":   &cfg.PollInterval,
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"STOP_GRACE":      &cfg.StopGrace,
	}
	for key, dst := range durations {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Dir returns the directory holding config.toml.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "interviewrec")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "interviewrec")
	}
	return ""
}

// FilePath returns the default config file location.
func FilePath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

func defaultOutputDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "interviews")
	}
	return filepath.Join(".", "interviews")
}

func defaultGRPCAddr() string {
	if runtime.GOOS == "windows" {
		return `npipe:\\.\pipe\interviewrec-grpc`
	}
	return "unix:" + filepath.Join(os.TempDir(), "interviewrec-grpc.sock")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
