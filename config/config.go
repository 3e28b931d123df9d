// Package config loads every runtime setting from the environment. There are
// no config files: the ingestion entry points run under an external
// scheduler, and the environment is the only contract they share.
package config

import (
	"os"
	"strconv"
	"time"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Config holds the environment-provided configuration. A source whose
// credential configuration is incomplete is skipped by ingestion, never an
// error.
type Config struct {
	AppEnv string

	StoreBackend string
	TableName    string

	ShortcutToken string
	SlackToken    string
	ZendeskDomain string
	ZendeskEmail  string
	ZendeskToken  string

	HTTPTimeout  time.Duration
	CronSchedule string

	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDatabase string
	PGSSLMode  string
	PGTable    string
}

// Load reads the configuration from the environment, applying defaults for
// everything that is not credential material.
func Load() Config {
	return Config{
		AppEnv: getenv("APP_ENV", "dev"),

		StoreBackend: getenv("STORE_BACKEND", BackendDynamoDB),
		TableName:    getenv("DYNAMODB_TABLE", ""),

		ShortcutToken: getenv("SHORTCUT_API_TOKEN", ""),
		SlackToken:    getenv("SLACK_BOT_TOKEN", ""),
		ZendeskDomain: getenv("ZENDESK_DOMAIN", ""),
		ZendeskEmail:  getenv("ZENDESK_EMAIL", ""),
		ZendeskToken:  getenv("ZENDESK_API_TOKEN", ""),

		HTTPTimeout:  dur("HTTP_TIMEOUT", 15*time.Second),
		CronSchedule: getenv("CRON_SCHEDULE", "@hourly"),

		PGHost:     getenv("PG_HOST", "localhost"),
		PGPort:     atoi("PG_PORT", 5432),
		PGUser:     getenv("PG_USER", ""),
		PGPassword: getenv("PG_PASSWORD", ""),
		PGDatabase: getenv("PG_DATABASE", ""),
		PGSSLMode:  getenv("PG_SSLMODE", "prefer"),
		PGTable:    getenv("PG_TABLE", "bugs"),
	}
}

// ShortcutEnabled reports whether the Shortcut source has its credential.
func (c Config) ShortcutEnabled() bool {
	return c.ShortcutToken != ""
}

// SlackEnabled reports whether the Slack source has its credential.
func (c Config) SlackEnabled() bool {
	return c.SlackToken != ""
}

// ZendeskEnabled reports whether the Zendesk source has its full credential
// configuration: domain, account email and API token.
func (c Config) ZendeskEnabled() bool {
	return c.ZendeskDomain != "" && c.ZendeskEmail != "" && c.ZendeskToken != ""
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	return v
}

func atoi(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return i
}

func dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}

	return d
}
