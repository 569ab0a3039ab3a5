package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName     string `mapstructure:"app_name"`
	Env         string `mapstructure:"app_env"`
	LogLevel    string `mapstructure:"log_level"`
	TargetsFile string `mapstructure:"targets_file"`

	RunTimeoutSeconds int64         `mapstructure:"run_timeout_seconds"`
	RunTimeout        time.Duration `mapstructure:"-"`

	StorageType      string  `mapstructure:"storage_type"`
	BBoltPath        string  `mapstructure:"bbolt_path"`
	SQLitePath       string  `mapstructure:"sqlite_path"`
	LedgerSimilarity float64 `mapstructure:"ledger_similarity"`
	LedgerRecent     int     `mapstructure:"ledger_recent"`
	TopicRetries     int     `mapstructure:"topic_retries"`
	LedgerTTLDays    int     `mapstructure:"ledger_ttl_days"`

	OpenAIAPIKey     string   `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string   `mapstructure:"openai_base_url"`
	ChatModel        string   `mapstructure:"openai_chat_model"`
	ImageModel       string   `mapstructure:"openai_image_model"`
	ImageSize        string   `mapstructure:"openai_image_size"`
	GenerationPrompt string   `mapstructure:"generation_prompt"`
	LabelPoolRaw     string   `mapstructure:"label_pool"`
	AvoidPhrasesRaw  string   `mapstructure:"avoid_phrases"`
	LabelPool        []string `mapstructure:"-"`
	AvoidPhrases     []string `mapstructure:"-"`
	SignatureHTML    string   `mapstructure:"signature_html"`
	GenerateAttempts int      `mapstructure:"generate_attempts"`

	GenerateTimeoutSeconds int64         `mapstructure:"generate_timeout_seconds"`
	GenerateTimeout        time.Duration `mapstructure:"-"`

	ImageGenAttempts       int           `mapstructure:"image_gen_attempts"`
	ImageGenTimeoutSeconds int64         `mapstructure:"image_gen_timeout_seconds"`
	ImageGenTimeout        time.Duration `mapstructure:"-"`
	FallbackDir            string        `mapstructure:"fallback_dir"`
	ImageMaxBytes          int           `mapstructure:"image_max_bytes"`
	ImageMaxWidth          int           `mapstructure:"image_max_width"`
	ImageMaxHeight         int           `mapstructure:"image_max_height"`
	ImageMinQuality        int           `mapstructure:"image_min_quality"`

	MediaDir           string `mapstructure:"media_dir"`
	MediaRetentionDays int    `mapstructure:"media_retention_days"`

	ImageHostType     string `mapstructure:"image_host_type"`
	ImageHostAttempts int    `mapstructure:"image_host_attempts"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Region          string `mapstructure:"s3_region"`
	S3Prefix          string `mapstructure:"s3_prefix"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3PathStyle       bool   `mapstructure:"s3_path_style"`
	S3PublicBaseURL   string `mapstructure:"s3_public_base_url"`
	DriveCredentials  string `mapstructure:"gdrive_credentials_file"`
	DriveFolderID     string `mapstructure:"gdrive_folder_id"`

	CMSType                string `mapstructure:"cms_type"`
	CMSTimeoutSeconds      int64  `mapstructure:"cms_timeout_seconds"`
	BloggerBlogID          string `mapstructure:"blogger_blog_id"`
	BloggerCredentialsFile string `mapstructure:"blogger_credentials_file"`
	BloggerTokenFile       string `mapstructure:"blogger_token_file"`
	CMSHTTPURL             string `mapstructure:"cms_http_url"`
	CMSHTTPToken           string `mapstructure:"cms_http_token"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-blog-pipeline")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("targets_file", "./configs/targets.yaml")
	v.SetDefault("run_timeout_seconds", 600)

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/ledger.db")
	v.SetDefault("sqlite_path", "./data/ledger.sqlite")
	v.SetDefault("ledger_similarity", 0.8)
	v.SetDefault("ledger_recent", 30)
	v.SetDefault("topic_retries", 5)
	v.SetDefault("ledger_ttl_days", 0)

	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("openai_chat_model", "gpt-4o")
	v.SetDefault("openai_image_model", "dall-e-3")
	v.SetDefault("openai_image_size", "1024x1024")
	v.SetDefault("generation_prompt", "AI, cybersecurity, IT leadership, servant leadership, mentoring, or collaboration")
	v.SetDefault("label_pool", "")
	v.SetDefault("avoid_phrases", "")
	v.SetDefault("signature_html", "")
	v.SetDefault("generate_attempts", 3)
	v.SetDefault("generate_timeout_seconds", 120)

	v.SetDefault("image_gen_attempts", 2)
	v.SetDefault("image_gen_timeout_seconds", 90)
	v.SetDefault("fallback_dir", "./media/fallback_images")
	v.SetDefault("image_max_bytes", 976*1024)
	v.SetDefault("image_max_width", 720)
	v.SetDefault("image_max_height", 720)
	v.SetDefault("image_min_quality", 20)

	v.SetDefault("media_dir", "./media/archive")
	v.SetDefault("media_retention_days", 90)

	v.SetDefault("image_host_type", "s3")
	v.SetDefault("image_host_attempts", 3)
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_prefix", "blog-images")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_path_style", false)
	v.SetDefault("s3_public_base_url", "")
	v.SetDefault("gdrive_credentials_file", "")
	v.SetDefault("gdrive_folder_id", "")

	v.SetDefault("cms_type", "blogger")
	v.SetDefault("cms_timeout_seconds", 30)
	v.SetDefault("blogger_blog_id", "")
	v.SetDefault("blogger_credentials_file", "")
	v.SetDefault("blogger_token_file", "")
	v.SetDefault("cms_http_url", "")
	v.SetDefault("cms_http_token", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates numeric settings and derives durations and lists.
func (cfg *Config) finalize() error {
	if cfg.RunTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid run_timeout_seconds (must be positive seconds)")
	}
	cfg.RunTimeout = time.Duration(cfg.RunTimeoutSeconds) * time.Second

	if cfg.ImageGenTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid image_gen_timeout_seconds (must be positive seconds)")
	}
	cfg.ImageGenTimeout = time.Duration(cfg.ImageGenTimeoutSeconds) * time.Second

	if cfg.GenerateTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid generate_timeout_seconds (must be positive seconds)")
	}
	cfg.GenerateTimeout = time.Duration(cfg.GenerateTimeoutSeconds) * time.Second

	if cfg.LedgerTTLDays < 0 {
		return fmt.Errorf("invalid ledger_ttl_days (must not be negative)")
	}

	if cfg.ImageGenAttempts < 1 {
		return fmt.Errorf("invalid image_gen_attempts (must be at least 1)")
	}
	if cfg.ImageHostAttempts < 1 {
		return fmt.Errorf("invalid image_host_attempts (must be at least 1)")
	}
	if cfg.GenerateAttempts < 1 {
		return fmt.Errorf("invalid generate_attempts (must be at least 1)")
	}
	if cfg.TopicRetries < 0 {
		return fmt.Errorf("invalid topic_retries (must not be negative)")
	}
	if cfg.ImageMaxBytes <= 0 || cfg.ImageMaxWidth <= 0 || cfg.ImageMaxHeight <= 0 {
		return fmt.Errorf("invalid image ceilings (image_max_bytes, image_max_width and image_max_height must be positive)")
	}
	if cfg.ImageMinQuality < 1 || cfg.ImageMinQuality > 95 {
		return fmt.Errorf("invalid image_min_quality (must be between 1 and 95)")
	}
	if cfg.LedgerSimilarity < 0 || cfg.LedgerSimilarity > 1 {
		return fmt.Errorf("invalid ledger_similarity (must be between 0 and 1)")
	}
	if cfg.CMSTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid cms_timeout_seconds (must be positive seconds)")
	}

	cfg.ImageHostType = strings.ToLower(strings.TrimSpace(cfg.ImageHostType))
	cfg.CMSType = strings.ToLower(strings.TrimSpace(cfg.CMSType))
	cfg.LabelPool = splitList(cfg.LabelPoolRaw)
	cfg.AvoidPhrases = splitList(cfg.AvoidPhrasesRaw)
	return nil
}

// CMSTimeout returns the CMS request timeout.
func (cfg *Config) CMSTimeout() time.Duration {
	return time.Duration(cfg.CMSTimeoutSeconds) * time.Second
}

// LedgerTTL returns how long recorded topics are remembered. Zero means forever.
func (cfg *Config) LedgerTTL() time.Duration {
	return time.Duration(cfg.LedgerTTLDays) * 24 * time.Hour
}

// ImageConstraints returns the ceilings for the hosted post image.
func (cfg *Config) ImageConstraints() domain.Constraints {
	return domain.Constraints{
		MaxBytes:  cfg.ImageMaxBytes,
		MaxWidth:  cfg.ImageMaxWidth,
		MaxHeight: cfg.ImageMaxHeight,
	}
}

// MediaRetention returns the archive retention window.
func (cfg *Config) MediaRetention() time.Duration {
	return time.Duration(cfg.MediaRetentionDays) * 24 * time.Hour
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
