// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads hyperfetch.Options from a YAML file or the
// environment, and can watch a file for changes to push live updates
// through Engine.UpdateOptions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"hyperfetch"
	"hyperfetch/internal/credentials"
	"hyperfetch/internal/pathplan"
)

// Config is the on-disk/environment shape; ToOptions converts it to the
// engine's runtime Options.
type Config struct {
	SavePath   string `yaml:"save_path"`
	CreateDirs bool   `yaml:"create_dirs"`

	Timeout      time.Duration `yaml:"timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	TLSVerify    bool          `yaml:"tls_verify"`

	Concurrency int    `yaml:"concurrency"`
	ChunkSize   int    `yaml:"chunk_size"`
	EnableRange bool   `yaml:"enable_range"`
	MaxRetries  int    `yaml:"max_retries"`
	Proxy       string `yaml:"proxy"`

	ResumeDownload   bool          `yaml:"resume_download"`
	BufferSize       int           `yaml:"buffer_size"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	UserAgent        string        `yaml:"user_agent"`

	LogLevel   string `yaml:"log_level"`
	DaemonAddr string `yaml:"daemon_addr"`

	PathPolicy PathPolicyConfig `yaml:"path_policy"`
	RateLimit  *RateLimitConfig `yaml:"rate_limit"`

	S3     *S3Config     `yaml:"s3"`
	Azure  *AzureConfig  `yaml:"azure"`
	GCS    *GCSConfig    `yaml:"gcs"`
	Vault  *VaultConfig  `yaml:"vault"`
	Redis  *RedisConfig  `yaml:"redis"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// PathPolicyConfig mirrors pathplan.Policy with string-valued modes so
// the YAML file reads naturally ("naming: auto" rather than "naming: 0").
type PathPolicyConfig struct {
	Naming           string `yaml:"naming"`
	FilenameTemplate string `yaml:"filename_template"`
	Organization     string `yaml:"organization"`
	DirTemplate      string `yaml:"dir_template"`
	Conflict         string `yaml:"conflict"`
	Sanitize         bool   `yaml:"sanitize"`
	MaxLength        int    `yaml:"max_length"`
}

// RateLimitConfig configures the engine's optional best-effort pacing
// pass; BytesPerSecond <= 0 leaves the corresponding limiter nil.
type RateLimitConfig struct {
	BytesPerSecond           int `yaml:"bytes_per_second"`
	PerConnectionBytesPerSec int `yaml:"per_connection_bytes_per_second"`
}

// S3Config, AzureConfig, GCSConfig name the resolver credentials a
// deployment wires in; CredentialsName, when set, is resolved through
// Vault instead of the inline fields.
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CredentialsName string `yaml:"credentials_name"`
	ExpiresSeconds  int    `yaml:"expires_seconds"`
	Enabled         bool   `yaml:"enabled"`
}

type AzureConfig struct {
	AccountName     string `yaml:"account_name"`
	Container       string `yaml:"container"`
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	CredentialsName string `yaml:"credentials_name"`
	ExpiresSeconds  int    `yaml:"expires_seconds"`
	Enabled         bool   `yaml:"enabled"`
}

type GCSConfig struct {
	Bucket             string `yaml:"bucket"`
	ServiceAccountFile string `yaml:"service_account_file"`
	CredentialsName    string `yaml:"credentials_name"`
	ExpiresSeconds     int    `yaml:"expires_seconds"`
	Enabled            bool   `yaml:"enabled"`
}

type VaultConfig struct {
	Address       string `yaml:"address"`
	Token         string `yaml:"token"`
	Namespace     string `yaml:"namespace"`
	Mount         string `yaml:"mount"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	Enabled   bool   `yaml:"enabled"`
}

// WebhookConfig describes an external endpoint for reporter events. It is
// parsed from the config file only; no reporter in this module reads it or
// sends requests to it.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Events  []string          `yaml:"events"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
	Retry   int               `yaml:"retry"`
	Enabled bool              `yaml:"enabled"`
}

// FromEnvironment builds a Config from environment variables, mirroring
// the field set Load reads from YAML.
func FromEnvironment() *Config {
	concurrency, _ := strconv.Atoi(getEnv("HYPERFETCH_CONCURRENCY", "4"))
	retries, _ := strconv.Atoi(getEnv("HYPERFETCH_MAX_RETRIES", "3"))
	chunkSize, _ := strconv.Atoi(getEnv("HYPERFETCH_CHUNK_SIZE", "0"))
	timeoutSecs, _ := strconv.Atoi(getEnv("HYPERFETCH_TIMEOUT", "30"))

	return &Config{
		SavePath:       getEnv("HYPERFETCH_SAVE_PATH", "downloads"),
		CreateDirs:     getEnv("HYPERFETCH_CREATE_DIRS", "1") == "1",
		Timeout:        time.Duration(timeoutSecs) * time.Second,
		MaxRedirects:   5,
		TLSVerify:      getEnv("HYPERFETCH_TLS_VERIFY", "1") == "1",
		Concurrency:    concurrency,
		ChunkSize:      chunkSize,
		EnableRange:    getEnv("HYPERFETCH_ENABLE_RANGE", "1") == "1",
		MaxRetries:     retries,
		Proxy:          os.Getenv("HYPERFETCH_PROXY"),
		ResumeDownload: getEnv("HYPERFETCH_RESUME", "0") == "1",
		UserAgent:      getEnv("HYPERFETCH_USER_AGENT", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DaemonAddr:     getEnv("DAEMON_ADDR", "localhost:8080"),
		PathPolicy: PathPolicyConfig{
			Naming:       "auto",
			Organization: "flat",
			Conflict:     "rename",
			Sanitize:     true,
			MaxLength:    255,
		},
	}
}

// Load reads and parses a YAML config file, applying the same defaults
// FromEnvironment does for anything left zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	d := FromEnvironment()

	if cfg.SavePath == "" {
		cfg.SavePath = d.SavePath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 8192
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DaemonAddr == "" {
		cfg.DaemonAddr = "localhost:8080"
	}
	if cfg.PathPolicy.Naming == "" {
		cfg.PathPolicy.Naming = "auto"
	}
	if cfg.PathPolicy.Organization == "" {
		cfg.PathPolicy.Organization = "flat"
	}
	if cfg.PathPolicy.Conflict == "" {
		cfg.PathPolicy.Conflict = "rename"
	}
	if cfg.PathPolicy.MaxLength == 0 {
		cfg.PathPolicy.MaxLength = 255
	}
}

// ToOptions converts the loaded Config into hyperfetch.Options, building
// the rate limiters the corresponding RateLimit fields describe.
func (c *Config) ToOptions() (hyperfetch.Options, error) {
	opts := hyperfetch.DefaultOptions()
	opts.SavePath = c.SavePath
	opts.CreateDirs = c.CreateDirs
	opts.Timeout = c.Timeout
	opts.MaxRedirects = c.MaxRedirects
	opts.TLSVerify = c.TLSVerify
	opts.Concurrency = c.Concurrency
	opts.ChunkSize = c.ChunkSize
	opts.EnableRange = c.EnableRange
	opts.MaxRetries = c.MaxRetries
	opts.Proxy = c.Proxy
	opts.ResumeDownload = c.ResumeDownload
	opts.UserAgent = c.UserAgent
	if c.BufferSize > 0 {
		opts.BufferSize = c.BufferSize
	}
	if c.ProgressInterval > 0 {
		opts.ProgressInterval = c.ProgressInterval
	}

	policy, err := c.PathPolicy.toPolicy()
	if err != nil {
		return hyperfetch.Options{}, err
	}
	opts.PathPolicy = policy

	if c.RateLimit != nil {
		if c.RateLimit.BytesPerSecond > 0 {
			opts.RateLimiter = rate.NewLimiter(rate.Limit(c.RateLimit.BytesPerSecond), c.RateLimit.BytesPerSecond)
		}
		if c.RateLimit.PerConnectionBytesPerSec > 0 {
			opts.PerConnectionRateLimiter = rate.NewLimiter(rate.Limit(c.RateLimit.PerConnectionBytesPerSec), c.RateLimit.PerConnectionBytesPerSec)
		}
	}

	return opts, nil
}

func (p PathPolicyConfig) toPolicy() (pathplan.Policy, error) {
	policy := pathplan.DefaultPolicy()
	policy.FilenameTemplate = p.FilenameTemplate
	policy.DirTemplate = p.DirTemplate
	policy.Sanitize = p.Sanitize
	if p.MaxLength > 0 {
		policy.MaxLength = p.MaxLength
	}

	switch p.Naming {
	case "", "auto":
		policy.Naming = pathplan.NamingAuto
	case "custom":
		policy.Naming = pathplan.NamingCustom
	default:
		return pathplan.Policy{}, fmt.Errorf("unknown path_policy.naming %q", p.Naming)
	}

	switch p.Organization {
	case "", "flat":
		policy.Organization = pathplan.OrgFlat
	case "by_type":
		policy.Organization = pathplan.OrgByType
	case "by_domain":
		policy.Organization = pathplan.OrgByDomain
	case "custom":
		policy.Organization = pathplan.OrgCustom
	default:
		return pathplan.Policy{}, fmt.Errorf("unknown path_policy.organization %q", p.Organization)
	}

	switch p.Conflict {
	case "", "rename":
		policy.Conflict = pathplan.ConflictRename
	case "overwrite":
		policy.Conflict = pathplan.ConflictOverwrite
	case "error":
		policy.Conflict = pathplan.ConflictError
	default:
		return pathplan.Policy{}, fmt.Errorf("unknown path_policy.conflict %q", p.Conflict)
	}

	return policy, nil
}

// VaultStore builds a credentials.VaultStore from the Vault block, or
// returns nil if no Vault configuration was supplied.
func (c *Config) VaultStore() (credentials.Store, error) {
	if c.Vault == nil {
		return nil, nil
	}
	return credentials.NewVaultStore(credentials.VaultConfig{
		Address:       c.Vault.Address,
		Token:         c.Vault.Token,
		Namespace:     c.Vault.Namespace,
		Mount:         c.Vault.Mount,
		TLSSkipVerify: c.Vault.TLSSkipVerify,
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
