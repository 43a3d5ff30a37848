// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pi2rec/vadrec/internal/audio"
	"github.com/pi2rec/vadrec/internal/delivery"
	"github.com/pi2rec/vadrec/internal/dsp"
	"github.com/pi2rec/vadrec/internal/notify"
	"github.com/pi2rec/vadrec/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultSampleRate       = 44100
	DefaultChannels         = 4
	DefaultBlockSeconds     = 0.1
	DefaultThreshold        = 10000
	DefaultSilenceSeconds   = 2.0
	DefaultMinRecordSeconds = 0.7
	DefaultDeliveryTimeout  = 30
	DefaultStatusPort       = 8080
	DefaultRecordingsDir    = "recordings"
)

// Environment variables that override the delivery section.
const (
	EnvWebhookURL     = "WEBHOOK_URL"
	EnvWebhookEnabled = "WEBHOOK_ENABLED"
)

// AudioConfig holds audio input settings.
type AudioConfig struct {
	SampleRate   int     `json:"sample_rate" validate:"omitempty,gt=0"`
	Channels     int     `json:"channels" validate:"omitempty,gte=1,lte=8"`
	Device       string  `json:"device"`
	BlockSeconds float64 `json:"block_seconds" validate:"omitempty,gt=0,lte=1"`
}

// DetectionConfig holds the voice-activity trigger parameters.
type DetectionConfig struct {
	Threshold        int     `json:"threshold" validate:"omitempty,gt=0,lt=32768"`
	SilenceSeconds   float64 `json:"silence_seconds" validate:"omitempty,gt=0"`
	MinRecordSeconds float64 `json:"min_record_seconds" validate:"omitempty,gte=0"`
}

// ProcessingConfig holds the mix-down and normalization settings.
type ProcessingConfig struct {
	MixPolicy string `json:"mix_policy" validate:"omitempty,oneof=average sum"`
	Normalize *bool  `json:"normalize"`
}

// DeliveryConfig holds the collector webhook settings.
type DeliveryConfig struct {
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url" validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"omitempty,gt=0"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Email  notify.GraphConfig  `json:"email"`
	Zabbix notify.ZabbixConfig `json:"zabbix"`
}

// StatusConfig holds the status server settings.
type StatusConfig struct {
	Port int `json:"port" validate:"omitempty,gt=0,lte=65535"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	RecordingsDir string `json:"recordings_dir"`
	EventLog      string `json:"event_log"`
}

// Config holds all application configuration. It is loaded once at startup
// and treated as read-only afterwards.
type Config struct {
	Audio         AudioConfig            `json:"audio"`
	Detection     DetectionConfig        `json:"detection"`
	Processing    ProcessingConfig       `json:"processing"`
	Delivery      DeliveryConfig         `json:"delivery"`
	Archive       delivery.ArchiveConfig `json:"archive"`
	Notifications NotificationsConfig    `json:"notifications"`
	Status        StatusConfig           `json:"status"`
	Paths         PathsConfig            `json:"paths"`
}

// Load reads config from file, creating a default one if none exists.
// Environment overrides are applied after the file is parsed.
func Load(filePath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(filePath)
	missing := os.IsNotExist(err)
	if err != nil && !missing {
		return nil, util.WrapError("read config", err)
	}

	if !missing {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, util.WrapError("parse config", err)
		}
	}

	cfg.applyDefaults()

	if missing {
		if err := cfg.save(filePath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = DefaultChannels
	}
	if c.Audio.BlockSeconds == 0 {
		c.Audio.BlockSeconds = DefaultBlockSeconds
	}
	if c.Detection.Threshold == 0 {
		c.Detection.Threshold = DefaultThreshold
	}
	if c.Detection.SilenceSeconds == 0 {
		c.Detection.SilenceSeconds = DefaultSilenceSeconds
	}
	if c.Detection.MinRecordSeconds == 0 {
		c.Detection.MinRecordSeconds = DefaultMinRecordSeconds
	}
	if c.Processing.MixPolicy == "" {
		c.Processing.MixPolicy = string(dsp.MixAverage)
	}
	if c.Processing.Normalize == nil {
		normalize := true
		c.Processing.Normalize = &normalize
	}
	if c.Delivery.TimeoutSeconds == 0 {
		c.Delivery.TimeoutSeconds = DefaultDeliveryTimeout
	}
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
	if c.Paths.RecordingsDir == "" {
		c.Paths.RecordingsDir = DefaultRecordingsDir
	}
	if c.Paths.EventLog == "" {
		c.Paths.EventLog = filepath.Join(c.Paths.RecordingsDir, "events.jsonl")
	}
}

// applyEnvOverrides lets deployment tooling point the recorder at a
// collector without editing the config file.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv(EnvWebhookURL); url != "" {
		c.Delivery.URL = url
		c.Delivery.Enabled = true
	}
	if raw := os.Getenv(EnvWebhookEnabled); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			c.Delivery.Enabled = enabled
		}
	}
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return util.WrapError("validate config", err)
	}

	if c.Delivery.Enabled && c.Delivery.URL == "" {
		return fmt.Errorf("delivery is enabled but no URL is configured")
	}

	// Block size must land on a whole number of frames. The epsilon absorbs
	// float artifacts like 44100*0.1 = 4410.000000000001.
	samples := float64(c.Audio.SampleRate) * c.Audio.BlockSeconds
	if math.Abs(samples-math.Round(samples)) > 1e-6 {
		return fmt.Errorf("block_seconds %.3f does not yield a whole number of samples at %dHz", c.Audio.BlockSeconds, c.Audio.SampleRate)
	}

	return nil
}

// save persists the configuration as indented JSON.
func (c *Config) save(filePath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Derived values ---

// BlockSize returns the number of frames per capture block.
func (c *Config) BlockSize() int {
	return int(math.Round(float64(c.Audio.SampleRate) * c.Audio.BlockSeconds))
}

// BlockDuration returns the audio time covered by one block.
func (c *Config) BlockDuration() time.Duration {
	return time.Duration(c.Audio.BlockSeconds * float64(time.Second))
}

// SilenceTimeout returns the silence span that closes a segment.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.Detection.SilenceSeconds * float64(time.Second))
}

// MinRecordDuration returns the shortest segment worth keeping.
func (c *Config) MinRecordDuration() time.Duration {
	return time.Duration(c.Detection.MinRecordSeconds * float64(time.Second))
}

// DeliveryTimeout returns the per-request delivery deadline.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Delivery.TimeoutSeconds) * time.Second
}

// Format returns the capture format derived from the audio section.
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		BlockSize:  c.BlockSize(),
	}
}

// MixPolicy returns the configured mix-down policy.
func (c *Config) MixPolicy() dsp.MixPolicy {
	return dsp.MixPolicy(c.Processing.MixPolicy)
}

// Normalize reports whether loudness normalization is enabled.
func (c *Config) Normalize() bool {
	return c.Processing.Normalize == nil || *c.Processing.Normalize
}
