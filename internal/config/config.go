package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/wb-go/wbf/retry"

	"imgworker/internal/store"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains runtime file locations.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
}

// Worker seeds the runtime settings observers may later replace.
type Worker struct {
	CodecsPath         string `toml:"codecs_path"`
	ImageListURL       string `toml:"image_list_url"`
	ImageUploadURL     string `toml:"image_upload_url"`
	MaxFileUploads     int    `toml:"max_file_uploads"`
	ProcessedRetention int    `toml:"processed_retention"`
}

// Poll controls the adaptive poll loop.
type Poll struct {
	IntervalFloorSeconds int `toml:"interval_floor_seconds"`
	IntervalStepSeconds  int `toml:"interval_step_seconds"`
	ConfigTimeoutSeconds int `toml:"config_timeout_seconds"`
	UpdateTimeoutSeconds int `toml:"update_timeout_seconds"`
}

// Codec controls output encoding.
type Codec struct {
	JPEGQuality int    `toml:"jpeg_quality"`
	WebPQuality int    `toml:"webp_quality"`
	CWebPBinary string `toml:"cwebp_binary"`
}

// Upload controls the multipart upload client.
type Upload struct {
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	RetryAttempts         int     `toml:"retry_attempts"`
	RetryDelayMS          int     `toml:"retry_delay_ms"`
	RetryBackoff          float64 `toml:"retry_backoff"`
}

// Storage configures the optional S3-compatible variant archive.
type Storage struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Events configures the Kafka event mirror. It is off when no brokers are set.
type Events struct {
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for imgworker.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Worker        Worker        `toml:"worker"`
	Poll          Poll          `toml:"poll"`
	Codec         Codec         `toml:"codec"`
	Upload        Upload        `toml:"upload"`
	Storage       Storage       `toml:"storage"`
	Events        Events        `toml:"events"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imgworker.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.RuntimeDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.RuntimeDir, err)
	}
	return nil
}

// SocketPath is where the active worker serves IPC.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "imgworker.sock")
}

// WaitingSocketPath is where a waiting worker serves IPC until activated.
func (c *Config) WaitingSocketPath() string {
	return c.SocketPath() + ".next"
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "imgworker.lock")
}

// PIDPath records the active worker's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "imgworker.pid")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "imgworker.log")
}

// Settings converts the [worker] section into runtime settings.
func (c *Config) Settings() store.Settings {
	return store.Settings{
		CodecsPath:         c.Worker.CodecsPath,
		ImageListURL:       c.Worker.ImageListURL,
		ImageUploadURL:     c.Worker.ImageUploadURL,
		MaxFileUploads:     c.Worker.MaxFileUploads,
		ProcessedRetention: c.Worker.ProcessedRetention,
	}
}

// PollFloor returns the shortest poll interval.
func (c *Config) PollFloor() time.Duration {
	return time.Duration(c.Poll.IntervalFloorSeconds) * time.Second
}

// PollStep returns the backoff increment.
func (c *Config) PollStep() time.Duration {
	return time.Duration(c.Poll.IntervalStepSeconds) * time.Second
}

// ConfigTimeout bounds the get-config handshake.
func (c *Config) ConfigTimeout() time.Duration {
	return time.Duration(c.Poll.ConfigTimeoutSeconds) * time.Second
}

// UpdateTimeout bounds the wait for a waiting worker during upgrade.
func (c *Config) UpdateTimeout() time.Duration {
	return time.Duration(c.Poll.UpdateTimeoutSeconds) * time.Second
}

// RequestTimeout bounds each upload attempt.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Upload.RequestTimeoutSeconds) * time.Second
}

// RetryStrategy returns the upload transport retry policy.
func (c *Config) RetryStrategy() retry.Strategy {
	return retry.Strategy{
		Attempts: c.Upload.RetryAttempts,
		Delay:    time.Duration(c.Upload.RetryDelayMS) * time.Millisecond,
		Backoff:  c.Upload.RetryBackoff,
	}
}

// EventsEnabled reports whether the Kafka mirror is configured.
func (c *Config) EventsEnabled() bool {
	return len(c.Events.KafkaBrokers) > 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
