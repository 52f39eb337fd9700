package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateCodec(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorker() error {
	if err := validateHTTPURL("worker.image_list_url", c.Worker.ImageListURL); err != nil {
		return err
	}
	if err := validateHTTPURL("worker.image_upload_url", c.Worker.ImageUploadURL); err != nil {
		return err
	}
	return nil
}

// validateHTTPURL accepts an empty value; observers may supply URLs later.
func validateHTTPURL(key, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", key)
	}
	return nil
}

func (c *Config) validateCodec() error {
	if c.Codec.JPEGQuality < 1 || c.Codec.JPEGQuality > 100 {
		return errors.New("codec.jpeg_quality must be between 1 and 100")
	}
	if c.Codec.WebPQuality < 1 || c.Codec.WebPQuality > 100 {
		return errors.New("codec.webp_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.RetryAttempts < 1 {
		return errors.New("upload.retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set when storage.enabled is true")
	}
	if c.Storage.AccessKey == "" {
		return errors.New("storage.access_key must be set when storage.enabled is true")
	}
	if c.Storage.SecretKey == "" {
		return fmt.Errorf("storage.secret_key must be set when storage.enabled is true (or set %s)", envStorageSecretKey)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	topic := strings.TrimSpace(c.Notifications.NtfyTopic)
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be a full http(s) topic URL")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
