// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	_ = pflag.Bool("reindex", false, "Runs the bulk reindex job once and exits")

	validLogLevels        = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes     = []string{"s3", "local"}
	validDatabaseDrivers  = []string{"sqlite", "postgres"}
	validPersistentCaches = []string{"badger", "redis", "none"}
)

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// SetDefaults registers env bindings and default values. It is split from
// Setup so tools and tests can run without a config file.
func SetDefaults() {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.domain", "host_domain")
	v.BindEnv("host.cors", "host_cors")
	v.BindEnv("host.ssl.enabled", "host_ssl_enabled")
	v.BindEnv("host.ssl.certificate_path", "host_ssl_certificate_path")
	v.BindEnv("host.ssl.certificate_key_path", "host_ssl_certificate_key_path")

	v.BindEnv("site.url", "site_url")
	v.BindEnv("uploads.dir", "uploads_dir")
	v.BindEnv("uploads.base_url", "uploads_base_url")

	v.BindEnv("protected.dir", "protected_dir")
	v.BindEnv("protected.path", "protected_path")
	v.BindEnv("protected.legacy_urls", "protected_legacy_urls")
	v.BindEnv("protected.show_indicator", "protected_show_indicator")

	v.BindEnv("jwt.secret", "jwt_secret")
	v.BindEnv("security.hash_salt", "security_hash_salt")
	v.BindEnv("security.rate_limit", "security_rate_limit")

	v.BindEnv("database.driver", "database_driver")
	v.BindEnv("database.dsn", "database_dsn")

	v.BindEnv("storage.type", "storage_type")
	v.BindEnv("s3.access_key_id", "s3_access_key_id")
	v.BindEnv("s3.secret_access_key", "s3_secret_access_key")
	v.BindEnv("s3.region", "s3_region")
	v.BindEnv("s3.bucket", "s3_bucket")
	v.BindEnv("s3.endpoint", "s3_endpoint")
	v.BindEnv("s3.prefix", "s3_prefix")
	v.BindEnv("cloudflare.account_id", "cloudflare_account_id")

	v.BindEnv("cache.persistent", "cache_persistent")
	v.BindEnv("cache.badger_path", "cache_badger_path")
	v.BindEnv("cache.redis_addr", "cache_redis_addr")
	v.BindEnv("cache.redis_password", "cache_redis_password")

	v.BindEnv("reindex.interval", "reindex_interval")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.domain", "localhost")
	v.SetDefault("host.cors", []string{"http://localhost:5173"})
	v.SetDefault("host.ssl.enabled", false)

	v.SetDefault("site.url", "http://localhost:8080")
	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.base_url", "http://localhost:8080/uploads")

	v.SetDefault("protected.dir", ".protected")
	v.SetDefault("protected.path", "protected-files")
	v.SetDefault("protected.legacy_urls", true)
	v.SetDefault("protected.show_indicator", true)

	v.SetDefault("security.rate_limit", 20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("storage.type", "local")
	v.SetDefault("s3.region", "auto")

	v.SetDefault("cache.persistent", "badger")
	v.SetDefault("cache.badger_path", "./cache")
	v.SetDefault("cache.fast_ttl", time.Minute)
	v.SetDefault("cache.persistent_ttl", 7*24*time.Hour)

	v.SetDefault("reindex.batch_size", 50)
	v.SetDefault("reindex.content_types", []string{"post", "page"})
	v.SetDefault("reindex.pause", 100*time.Millisecond)
	v.SetDefault("reindex.interval", time.Duration(0))

	v.SetDefault("upload.max_size", 50)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf", "video/mp4"})
}

// Setup prepares everything config-related so that the server can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	if err := Load(); err != nil {
		return err
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	return nil
}

// Load reads config.toml from the working directory on top of the defaults
// and validates the result. Command line flags are left to the caller.
func Load() error {
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	SetDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		zap.L().Warn("config.toml file is missing, using defaults and environment")
	}

	if err := Validate(); err != nil {
		return err
	}

	if v.GetString("security.hash_salt") == "" {
		zap.L().Info("No security.hash_salt set, a salt will be generated and stored in the database")
	}

	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}

// Validate checks the loaded values
func Validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetBool("host.ssl.enabled") {
		if v.GetString("host.ssl.certificate_path") == "" {
			return errors.New("no ssl certificate path provided")
		}

		if v.GetString("host.ssl.certificate_key_path") == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if v.GetString("site.url") == "" {
		return errors.New("site.url can't be empty")
	}

	if v.GetString("uploads.base_url") == "" {
		return errors.New("uploads.base_url can't be empty")
	}

	dir := strings.Trim(v.GetString("protected.dir"), "/")
	if dir == "" || strings.Contains(dir, "..") {
		return errors.New("invalid protected.dir provided")
	}

	if strings.Trim(v.GetString("protected.path"), "/") == "" {
		return errors.New("protected.path can't be empty")
	}

	if !slices.Contains(validDatabaseDrivers, v.GetString("database.driver")) {
		return errors.New("invalid database driver provided")
	}

	if !slices.Contains(validPersistentCaches, v.GetString("cache.persistent")) {
		return errors.New("invalid persistent cache provided")
	}

	if v.GetString("cache.persistent") == "redis" && v.GetString("cache.redis_addr") == "" {
		return errors.New("cache.redis_addr can't be empty")
	}

	if bs := v.GetInt("reindex.batch_size"); bs < 1 || bs > 1000 {
		return errors.New("reindex.batch_size must be between 1 and 1000")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	switch v.GetString("storage.type") {
	case "s3":
		{
			// Cloudflare R2 only needs the account id to build the endpoint
			if id := v.GetString("cloudflare.account_id"); id != "" && v.GetString("s3.endpoint") == "" {
				v.Set("s3.endpoint", fmt.Sprintf("https://%s.r2.cloudflarestorage.com", id))
			}

			if v.GetString("s3.access_key_id") == "" {
				return errors.New("access key id can't be empty")
			}
			if v.GetString("s3.secret_access_key") == "" {
				return errors.New("secret access key can't be empty")
			}
			if v.GetString("s3.bucket") == "" {
				return errors.New("bucket can't be empty")
			}
		}
	case "local":
		{
			if v.GetString("uploads.dir") == "" {
				return errors.New("uploads.dir can't be empty")
			}
		}
	}

	if !slices.Contains(validStorageTypes, v.GetString("storage.type")) {
		return errors.New("invalid storage type provided")
	}

	return nil
}
