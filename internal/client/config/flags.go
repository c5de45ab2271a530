package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers the command-line flags on fs, using the current values
// of cfg as defaults and writing parsed values back into cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringP("config", "c", "", "path to a JSON config file")

	fs.StringVarP(&cfg.ServerURL, "server", "s", cfg.ServerURL, "base URL of the upload server")
	fs.StringVarP(&cfg.DatabasePath, "db", "d", cfg.DatabasePath, "path of the staging database")
	fs.StringVarP(&cfg.Username, "user", "u", cfg.Username, "user name for login")
	fs.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "access token; skips login when set")
	fs.StringVar(&cfg.SessionKeyFile, "key-file", cfg.SessionKeyFile, "session key file for field encryption")
	fs.StringVar(&cfg.Cipher, "cipher", cfg.Cipher, "field cipher: aes-gcm or chacha20-poly1305")
	fs.StringSliceVar(&cfg.EncryptedFields, "encrypt-fields", cfg.EncryptedFields, "metadata fields encrypted at rest")

	fs.DurationVar(&cfg.Retention, "retention", cfg.Retention, "age after which unfinished studies are deleted")
	fs.DurationVar(&cfg.HistoryRetention, "history-retention", cfg.HistoryRetention, "age after which completed studies are deleted")
	fs.DurationVar(&cfg.RefreshSkew, "refresh-skew", cfg.RefreshSkew, "refresh upload tokens this long before expiry")
	fs.BoolVar(&cfg.AdaptiveChunkSize, "adaptive-chunks", cfg.AdaptiveChunkSize, "pick chunk size from measured network quality")
	fs.Int64Var(&cfg.StagingQuotaBytes, "quota", cfg.StagingQuotaBytes, "staging quota in bytes, 0 for none")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "timeout of one HTTP request")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
}
