package config

import (
	"github.com/dmitrijs2005/fleetzen/internal/filex"
	"github.com/dmitrijs2005/fleetzen/internal/flagx"
	"github.com/dmitrijs2005/fleetzen/internal/timex"
)

// FileConfig is the on-disk shape of the server configuration. Only the keys
// present in the file override the current values.
type FileConfig struct {
	HTTPAddr                    *string         `json:"http_addr" toml:"http_addr"`
	DatabaseDSN                 *string         `json:"database_dsn" toml:"database_dsn"`
	SecretKey                   *string         `json:"secret_key" toml:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration" toml:"access_token_validity_duration"`
	RedisAddr                   *string         `json:"redis_addr" toml:"redis_addr"`
	LockTTL                     *timex.Duration `json:"lock_ttl" toml:"lock_ttl"`
	S3RootUser                  *string         `json:"s3_root_user" toml:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password" toml:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket" toml:"s3_bucket"`
	S3Region                    *string         `json:"s3_region" toml:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint" toml:"s3_base_endpoint"`
	PresignTTL                  *timex.Duration `json:"presign_ttl" toml:"presign_ttl"`
	MaxUploadBytes              *int64          `json:"max_upload_bytes" toml:"max_upload_bytes"`
	PhotoMaxDimension           *int            `json:"photo_max_dimension" toml:"photo_max_dimension"`
	PhotoTargetBytes            *int            `json:"photo_target_bytes" toml:"photo_target_bytes"`
	CORSAllowedOrigins          []string        `json:"cors_allowed_origins" toml:"cors_allowed_origins"`
	LogLevel                    *string         `json:"log_level" toml:"log_level"`
}

// parseFile overlays cfg with the file selected by -c/-config.
// It panics when the file cannot be read or decoded.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	var fc FileConfig
	if err := filex.DecodeConfigFile(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.SecretKey, fc.SecretKey)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setString(&cfg.S3RootUser, fc.S3RootUser)
	setString(&cfg.S3RootPassword, fc.S3RootPassword)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.AccessTokenValidityDuration != nil {
		cfg.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	}
	if fc.LockTTL != nil {
		cfg.LockTTL = fc.LockTTL.Duration
	}
	if fc.PresignTTL != nil {
		cfg.PresignTTL = fc.PresignTTL.Duration
	}
	if fc.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *fc.MaxUploadBytes
	}
	if fc.PhotoMaxDimension != nil {
		cfg.PhotoMaxDimension = *fc.PhotoMaxDimension
	}
	if fc.PhotoTargetBytes != nil {
		cfg.PhotoTargetBytes = *fc.PhotoTargetBytes
	}
	if fc.CORSAllowedOrigins != nil {
		cfg.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
