package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envImageListURL     = "IMGWORKER_IMAGE_LIST_URL"
	envImageUploadURL   = "IMGWORKER_IMAGE_UPLOAD_URL"
	envStorageSecretKey = "IMGWORKER_STORAGE_SECRET_KEY"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	c.normalizePoll()
	c.normalizeCodec()
	c.normalizeUpload()
	c.normalizeStorage()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir
	}
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorker() error {
	c.Worker.ImageListURL = strings.TrimSpace(c.Worker.ImageListURL)
	if c.Worker.ImageListURL == "" {
		if value, ok := os.LookupEnv(envImageListURL); ok {
			c.Worker.ImageListURL = strings.TrimSpace(value)
		}
	}
	c.Worker.ImageUploadURL = strings.TrimSpace(c.Worker.ImageUploadURL)
	if c.Worker.ImageUploadURL == "" {
		if value, ok := os.LookupEnv(envImageUploadURL); ok {
			c.Worker.ImageUploadURL = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Worker.CodecsPath) != "" {
		var err error
		if c.Worker.CodecsPath, err = expandPath(strings.TrimSpace(c.Worker.CodecsPath)); err != nil {
			return fmt.Errorf("worker.codecs_path: %w", err)
		}
	}
	if c.Worker.MaxFileUploads < 0 {
		c.Worker.MaxFileUploads = 0
	}
	if c.Worker.ProcessedRetention <= 0 {
		c.Worker.ProcessedRetention = Default().Worker.ProcessedRetention
	}
	return nil
}

func (c *Config) normalizePoll() {
	if c.Poll.IntervalFloorSeconds <= 0 {
		c.Poll.IntervalFloorSeconds = defaultPollFloorSeconds
	}
	if c.Poll.IntervalStepSeconds < 0 {
		c.Poll.IntervalStepSeconds = 0
	}
	if c.Poll.ConfigTimeoutSeconds <= 0 {
		c.Poll.ConfigTimeoutSeconds = defaultConfigTimeoutSeconds
	}
	if c.Poll.UpdateTimeoutSeconds <= 0 {
		c.Poll.UpdateTimeoutSeconds = defaultUpdateTimeoutSeconds
	}
}

func (c *Config) normalizeCodec() {
	c.Codec.CWebPBinary = strings.TrimSpace(c.Codec.CWebPBinary)
	if c.Codec.CWebPBinary == "" {
		c.Codec.CWebPBinary = defaultCWebPBinary
	}
	if c.Codec.JPEGQuality == 0 {
		c.Codec.JPEGQuality = defaultJPEGQuality
	}
	if c.Codec.WebPQuality == 0 {
		c.Codec.WebPQuality = defaultWebPQuality
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.RequestTimeoutSeconds <= 0 {
		c.Upload.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Upload.RetryDelayMS < 0 {
		c.Upload.RetryDelayMS = 0
	}
	if c.Upload.RetryBackoff <= 0 {
		c.Upload.RetryBackoff = 1
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv(envStorageSecretKey); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultStorageBucket
	}
}

func (c *Config) normalizeEvents() {
	brokers := make([]string, 0, len(c.Events.KafkaBrokers))
	seen := make(map[string]struct{}, len(c.Events.KafkaBrokers))
	for _, broker := range c.Events.KafkaBrokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		if _, exists := seen[broker]; exists {
			continue
		}
		seen[broker] = struct{}{}
		brokers = append(brokers, broker)
	}
	c.Events.KafkaBrokers = brokers
	c.Events.KafkaTopic = strings.TrimSpace(c.Events.KafkaTopic)
	if c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = defaultKafkaTopic
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
