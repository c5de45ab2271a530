// Package config loads runtime configuration for the RelayPACS uploader.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed RELAYPACS_, optionally read from a
//     .env file in the working directory.
//  3. Optional JSON file selected with -c or --config.
//  4. Command-line flags bound with BindFlags, which override earlier values.
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "24h" or a
// number of seconds:
//
//	{
//	  "server_url": "https://pacs.example.org",
//	  "database_path": "relaypacs.db",
//	  "retention": "24h",
//	  "encrypted_fields": ["clinical_history", "study_description"]
//	}
package config
