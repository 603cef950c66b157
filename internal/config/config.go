// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Merge strategies for answers submitted across partial submissions
// under the same visit.
const (
	MergeAppend  = "append"
	MergeReplace = "replace"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName         string   `mapstructure:"appname"`
	AppPort         string   `mapstructure:"appport"`
	Environment     string   `mapstructure:"environment"`
	LogLevel        LogLevel `mapstructure:"loglevel"`
	PrivateKey      string   `mapstructure:"privatekey"`
	TokenTTLSeconds int      `mapstructure:"tokenttlseconds"`
	AdminEmail      string   `mapstructure:"adminemail"`
	PublicBaseURL   string   `mapstructure:"publicbaseurl"`

	// Response merge behavior: "append" preserves duplicate fieldId answers
	// across partial submissions, "replace" keeps the last answer per fieldId.
	AnswerMergeStrategy string `mapstructure:"answermergestrategy"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Blob store (OSS) settings for uploaded files
	OSSEndpoint        string `mapstructure:"ossendpoint"`
	OSSBucket          string `mapstructure:"ossbucket"`
	OSSAccessKeyID     string `mapstructure:"ossaccesskeyid"`
	OSSAccessKeySecret string `mapstructure:"ossaccesskeysecret"`
	UploadMaxBytes     int64  `mapstructure:"uploadmaxbytes"`

	// Days an abandoned partial response is kept before the cleanup job
	// removes it. Zero disables the sweep.
	IncompleteRetentionDays int `mapstructure:"incompleteretentiondays"`

	// SMTP settings for the password-reset side channel
	SMTPHost string `mapstructure:"smtphost"`
	SMTPPort string `mapstructure:"smtpport"`
	SMTPFrom string `mapstructure:"smtpfrom"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "formlane")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("tokenttlseconds", 2592000) // 30 days
		v.SetDefault("answermergestrategy", MergeAppend)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "web/dist/assets")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("uploadmaxbytes", int64(10*1024*1024))
		v.SetDefault("incompleteretentiondays", 30)
		v.SetDefault("smtpport", "25")

		v.BindEnv("appname", "FORMLANE_APP_NAME")
		v.BindEnv("appport", "FORMLANE_APP_PORT")
		v.BindEnv("environment", "FORMLANE_ENV")
		v.BindEnv("loglevel", "FORMLANE_LOG_LEVEL")
		v.BindEnv("privatekey", "FORMLANE_PRIVATE_KEY")
		v.BindEnv("tokenttlseconds", "FORMLANE_TOKEN_TTL_SECONDS")
		v.BindEnv("adminemail", "FORMLANE_ADMIN_EMAIL")
		v.BindEnv("publicbaseurl", "FORMLANE_PUBLIC_BASE_URL")
		v.BindEnv("answermergestrategy", "FORMLANE_ANSWER_MERGE_STRATEGY")
		v.BindEnv("storagepath", "FORMLANE_STORAGE_PATH")
		v.BindEnv("publicdir", "FORMLANE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "FORMLANE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "FORMLANE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FORMLANE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FORMLANE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FORMLANE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FORMLANE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FORMLANE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FORMLANE_DB_MAX_IDLE_CONNS")
		v.BindEnv("ossendpoint", "FORMLANE_OSS_ENDPOINT")
		v.BindEnv("ossbucket", "FORMLANE_OSS_BUCKET")
		v.BindEnv("ossaccesskeyid", "FORMLANE_OSS_ACCESS_KEY_ID")
		v.BindEnv("ossaccesskeysecret", "FORMLANE_OSS_ACCESS_KEY_SECRET")
		v.BindEnv("uploadmaxbytes", "FORMLANE_UPLOAD_MAX_BYTES")
		v.BindEnv("incompleteretentiondays", "FORMLANE_INCOMPLETE_RETENTION_DAYS")
		v.BindEnv("smtphost", "FORMLANE_SMTP_HOST")
		v.BindEnv("smtpport", "FORMLANE_SMTP_PORT")
		v.BindEnv("smtpfrom", "FORMLANE_SMTP_FROM")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		// The private key signs auth tokens - production must not run on the default
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique FORMLANE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	validMerge := map[string]bool{
		MergeAppend:  true,
		MergeReplace: true,
	}
	if !validMerge[c.AnswerMergeStrategy] {
		return fmt.Errorf("invalid answer merge strategy: %s", c.AnswerMergeStrategy)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the signing key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for E2E test stability)
// - Development/Production: 10 (allows concurrent reads for parallel analytics queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
