package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/flagx"
	"github.com/dmitrijs2005/relaypacs/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent
// fields leave the current value untouched.
type JsonConfig struct {
	ServerURL       string   `json:"server_url"`
	DatabasePath    string   `json:"database_path"`
	Username        string   `json:"username"`
	SessionKeyFile  string   `json:"session_key_file"`
	Cipher          string   `json:"cipher"`
	EncryptedFields []string `json:"encrypted_fields"`

	Retention        *timex.Duration `json:"retention"`
	HistoryRetention *timex.Duration `json:"history_retention"`
	SyncRetention    *timex.Duration `json:"sync_retention"`
	SweepInterval    *timex.Duration `json:"sweep_interval"`
	CacheMaxItems    *int            `json:"cache_max_items"`

	RefreshSkew         *timex.Duration `json:"refresh_skew"`
	AdaptiveChunkSize   *bool           `json:"adaptive_chunk_size"`
	StagingQuotaBytes   *int64          `json:"staging_quota_bytes"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	HTTPTimeout         *timex.Duration `json:"http_timeout"`
	MaxRetries          *int            `json:"max_retries"`

	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"`
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

// parseJSON overlays cfg with the file named by -c/--config in args. No
// flag means no file.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.Username, jc.Username)
	setString(&cfg.SessionKeyFile, jc.SessionKeyFile)
	setString(&cfg.Cipher, jc.Cipher)
	if jc.EncryptedFields != nil {
		cfg.EncryptedFields = jc.EncryptedFields
	}

	setDuration(&cfg.Retention, jc.Retention)
	setDuration(&cfg.HistoryRetention, jc.HistoryRetention)
	setDuration(&cfg.SyncRetention, jc.SyncRetention)
	setDuration(&cfg.SweepInterval, jc.SweepInterval)
	setDuration(&cfg.RefreshSkew, jc.RefreshSkew)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.HTTPTimeout, jc.HTTPTimeout)

	if jc.CacheMaxItems != nil {
		cfg.CacheMaxItems = *jc.CacheMaxItems
	}
	if jc.AdaptiveChunkSize != nil {
		cfg.AdaptiveChunkSize = *jc.AdaptiveChunkSize
	}
	if jc.StagingQuotaBytes != nil {
		cfg.StagingQuotaBytes = *jc.StagingQuotaBytes
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}

	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.SentryDSN, jc.SentryDSN)
	setString(&cfg.Environment, jc.Environment)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
