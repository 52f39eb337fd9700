package config

import "imgworker/internal/store"

const (
	defaultConfigPath            = "~/.config/imgworker/config.toml"
	defaultRuntimeDir            = "~/.local/share/imgworker"
	defaultPollFloorSeconds      = 5
	defaultPollStepSeconds       = 5
	defaultConfigTimeoutSeconds  = 5
	defaultUpdateTimeoutSeconds  = 10
	defaultJPEGQuality           = 75
	defaultWebPQuality           = 75
	defaultCWebPBinary           = "cwebp"
	defaultRequestTimeoutSeconds = 30
	defaultRetryAttempts         = 3
	defaultRetryDelayMS          = 500
	defaultRetryBackoff          = 2
	defaultStorageBucket         = "imgworker"
	defaultKafkaTopic            = "imgworker.events"
	defaultNotifyTimeout         = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir,
		},
		Worker: Worker{
			ProcessedRetention: store.DefaultProcessedRetention,
		},
		Poll: Poll{
			IntervalFloorSeconds: defaultPollFloorSeconds,
			IntervalStepSeconds:  defaultPollStepSeconds,
			ConfigTimeoutSeconds: defaultConfigTimeoutSeconds,
			UpdateTimeoutSeconds: defaultUpdateTimeoutSeconds,
		},
		Codec: Codec{
			JPEGQuality: defaultJPEGQuality,
			WebPQuality: defaultWebPQuality,
			CWebPBinary: defaultCWebPBinary,
		},
		Upload: Upload{
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			RetryAttempts:         defaultRetryAttempts,
			RetryDelayMS:          defaultRetryDelayMS,
			RetryBackoff:          defaultRetryBackoff,
		},
		Storage: Storage{
			Bucket: defaultStorageBucket,
			UseSSL: true,
		},
		Events: Events{
			KafkaTopic: defaultKafkaTopic,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
