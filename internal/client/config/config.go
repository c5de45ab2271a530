package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/cryptox"
)

// Config holds runtime settings for the uploader CLI.
type Config struct {
	ServerURL    string
	DatabasePath string

	Username    string
	Password    string
	AccessToken string

	// SessionKeyFile holds the field encryption key for the current session.
	// It lives outside the staging database and is removed by end-session.
	// Empty means the key is kept in process memory only.
	SessionKeyFile  string
	Cipher          string
	EncryptedFields []string

	Retention        time.Duration
	HistoryRetention time.Duration
	SyncRetention    time.Duration
	SweepInterval    time.Duration
	CacheMaxItems    int

	RefreshSkew         time.Duration
	AdaptiveChunkSize   bool
	StagingQuotaBytes   int64
	OnlineCheckInterval time.Duration
	HTTPTimeout         time.Duration
	MaxRetries          int

	LogLevel    string
	LogFormat   string
	SentryDSN   string
	Environment string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.DatabasePath = "relaypacs.db"
	c.SessionKeyFile = defaultKeyFile()
	c.Cipher = string(cryptox.SuiteAESGCM)
	c.EncryptedFields = []string{"clinical_history", "study_description"}

	c.Retention = 24 * time.Hour
	c.HistoryRetention = 30 * 24 * time.Hour
	c.SyncRetention = 30 * 24 * time.Hour
	c.SweepInterval = time.Hour
	c.CacheMaxItems = 1000

	c.RefreshSkew = 2 * time.Minute
	c.AdaptiveChunkSize = false
	c.StagingQuotaBytes = 0
	c.OnlineCheckInterval = 3 * time.Second
	c.HTTPTimeout = 60 * time.Second
	c.MaxRetries = 3

	c.LogLevel = "info"
	c.LogFormat = "text"
	c.Environment = "development"
}

// defaultKeyFile places the key in XDG_RUNTIME_DIR, which is tmpfs and is
// cleared at logout. Without it there is no session-scoped volatile
// directory, so no file is used at all.
func defaultKeyFile() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "relaypacs", "session.key")
}

// KeyStore returns where the field encryption key is kept.
func (c *Config) KeyStore() cryptox.KeyStore {
	if c.SessionKeyFile == "" {
		return cryptox.NewMemoryKeyStore()
	}
	return cryptox.NewSessionKeyFile(c.SessionKeyFile)
}

// Load builds a Config from defaults, the environment and the JSON file
// named by -c/--config in args. Flags are applied later by BindFlags and
// the command line parser.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	loadEnv(cfg)
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid server url %q", c.ServerURL))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if _, err := cryptox.ParseSuite(c.Cipher); err != nil {
		errs = append(errs, err)
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries must not be negative"))
	}
	return errors.Join(errs...)
}
