package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "RELAYPACS_"

// loadEnv overlays cfg with RELAYPACS_* variables. A .env file in the
// working directory is read first when present; real environment variables
// win over it.
func loadEnv(cfg *Config) {
	_ = godotenv.Load()

	cfg.ServerURL = envString("SERVER_URL", cfg.ServerURL)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.Username = envString("USERNAME", cfg.Username)
	cfg.Password = envString("PASSWORD", cfg.Password)
	cfg.AccessToken = envString("ACCESS_TOKEN", cfg.AccessToken)
	cfg.SessionKeyFile = envString("SESSION_KEY_FILE", cfg.SessionKeyFile)
	cfg.Cipher = envString("CIPHER", cfg.Cipher)
	cfg.EncryptedFields = envList("ENCRYPTED_FIELDS", cfg.EncryptedFields)

	cfg.Retention = envDuration("RETENTION", cfg.Retention)
	cfg.HistoryRetention = envDuration("HISTORY_RETENTION", cfg.HistoryRetention)
	cfg.SyncRetention = envDuration("SYNC_RETENTION", cfg.SyncRetention)
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.CacheMaxItems = int(envInt("CACHE_MAX_ITEMS", int64(cfg.CacheMaxItems)))

	cfg.RefreshSkew = envDuration("REFRESH_SKEW", cfg.RefreshSkew)
	cfg.AdaptiveChunkSize = envBool("ADAPTIVE_CHUNK_SIZE", cfg.AdaptiveChunkSize)
	cfg.StagingQuotaBytes = envInt("STAGING_QUOTA_BYTES", cfg.StagingQuotaBytes)
	cfg.OnlineCheckInterval = envDuration("ONLINE_CHECK_INTERVAL", cfg.OnlineCheckInterval)
	cfg.HTTPTimeout = envDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.MaxRetries = int(envInt("MAX_RETRIES", int64(cfg.MaxRetries)))

	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)
	cfg.SentryDSN = envString("SENTRY_DSN", cfg.SentryDSN)
	cfg.Environment = envString("ENVIRONMENT", cfg.Environment)
}

func envString(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int64) int64 {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
