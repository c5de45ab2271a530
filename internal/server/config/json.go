package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/relaypacs/internal/flagx"
	"github.com/dmitrijs2005/relaypacs/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations
// use timex.Duration, so both "30m" and a number of seconds are accepted.
// Absent fields keep their current value.
type JsonConfig struct {
	HTTPAddr       string          `json:"http_addr"`
	DatabaseDSN    string          `json:"database_dsn"`
	SecretKey      string          `json:"secret_key"`
	AccessTokenTTL *timex.Duration `json:"access_token_ttl"`
	UploadTokenTTL *timex.Duration `json:"upload_token_ttl"`
	MaxUploadBytes int64           `json:"max_upload_bytes"`
	ChunkSize      int64           `json:"chunk_size"`
	SessionTTL     *timex.Duration `json:"session_ttl"`
	ChunkStore     string          `json:"chunk_store"`
	DataDir        string          `json:"data_dir"`
	S3AccessKey    string          `json:"s3_access_key"`
	S3SecretKey    string          `json:"s3_secret_key"`
	S3Bucket       string          `json:"s3_bucket"`
	S3Region       string          `json:"s3_region"`
	S3BaseEndpoint string          `json:"s3_base_endpoint"`
	Users          []string        `json:"users"`
	LogLevel       string          `json:"log_level"`
	LogFormat      string          `json:"log_format"`
}

// parseJson loads the file named by -c/-config in args into config. No
// flag means no file.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&config.HTTPAddr, c.HTTPAddr)
	str(&config.DatabaseDSN, c.DatabaseDSN)
	str(&config.SecretKey, c.SecretKey)
	str(&config.ChunkStore, c.ChunkStore)
	str(&config.DataDir, c.DataDir)
	str(&config.S3AccessKey, c.S3AccessKey)
	str(&config.S3SecretKey, c.S3SecretKey)
	str(&config.S3Bucket, c.S3Bucket)
	str(&config.S3Region, c.S3Region)
	str(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	str(&config.LogLevel, c.LogLevel)
	str(&config.LogFormat, c.LogFormat)

	if c.AccessTokenTTL != nil {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.UploadTokenTTL != nil {
		config.UploadTokenTTL = c.UploadTokenTTL.Duration
	}
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	if c.ChunkSize > 0 {
		config.ChunkSize = c.ChunkSize
	}
	if c.Users != nil {
		config.Users = c.Users
	}
	return nil
}
