// Package config handles configuration for the reference upload server,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the upload server.
//
// Fields:
//   - HTTPAddr: bind address of the HTTP API.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps sessions in memory.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - AccessTokenTTL / UploadTokenTTL: token lifetimes.
//   - MaxUploadBytes: ceiling for total_size_bytes; larger inits get 413.
//   - ChunkSize: chunk size handed to clients at init.
//   - ChunkStore: "fs" keeps chunks under DataDir, "s3" in S3Bucket.
//   - Users: "name:password" pairs seeded at start.
type Config struct {
	HTTPAddr       string
	DatabaseDSN    string
	SecretKey      string
	AccessTokenTTL time.Duration
	UploadTokenTTL time.Duration
	MaxUploadBytes int64
	ChunkSize      int64
	// SessionTTL is how long an unfinished upload is kept.
	SessionTTL time.Duration

	ChunkStore     string
	DataDir        string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	Users []string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.AccessTokenTTL = 8 * time.Hour
	c.UploadTokenTTL = time.Hour
	c.MaxUploadBytes = 5 << 30
	c.ChunkSize = 1 << 20
	c.SessionTTL = 24 * time.Hour

	c.ChunkStore = "fs"
	c.DataDir = "data"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3Bucket = "relaypacs"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"

	c.Users = []string{"radiographer:radiographer"}

	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
