package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// PlaceholderPlatformURL is used when MEDVAULT_PLATFORM_URL is missing.
	PlaceholderPlatformURL = "http://placeholder.medvault.local"
	// PlaceholderPlatformKey is used when MEDVAULT_PLATFORM_KEY is missing.
	PlaceholderPlatformKey = "placeholder-key"
)

type Config struct {
	Listen     string
	AppBaseURL string
	CORSOrigin string
	LogLevel   string
	LogFormat  string

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string

	JWTSecret          string
	JWTTTL             time.Duration
	jwtSecretGenerated bool

	DBHost                string
	DBPort                string
	DBUser                string
	DBPass                string
	DBName                string
	InstallShareProcedure bool

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// PlatformURL is the public object store endpoint, PlatformKey its access key.
	PlatformURL        string
	PlatformKey        string
	PlatformSecret     string
	platformConfigured bool
	BucketName         string
	StorageRegion      string
	SignedURLExpiry    time.Duration
	AnonSignedURLs     bool
	ProbeTimeout       time.Duration

	ShareDefaultDays     int
	ShareAtomicIncrement bool
	ShareCacheTTL        time.Duration
	ShareRate            float64
	ShareBurst           int

	UploadMaxBytes   int64
	RecordCacheTTL   time.Duration
	AccessLogMode    string // direct / queue
	AccessLogTimeout time.Duration

	RabbitMQURL       string
	RabbitMQPrefetch  int
	WorkerConcurrency int
	WorkerRate        float64
	WorkerBurst       int
	WorkerRetryMax    int
	WorkerRetryDelays []time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPTLS      bool
	SMTPStartTLS bool
}

// PlatformConfigured reports whether both platform connection parameters were provided.
func (c *Config) PlatformConfigured() bool {
	return c.platformConfigured
}

// JWTSecretGenerated reports whether JWT_SECRET was missing and a per-process secret is in use.
func (c *Config) JWTSecretGenerated() bool {
	return c.jwtSecretGenerated
}

// SMTPConfigured reports whether activation mail can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.SMTPFrom != ""
}

// MinioEndpoint returns host:port and TLS flag derived from PlatformURL.
func (c *Config) MinioEndpoint() (string, bool, error) {
	u, err := url.Parse(c.PlatformURL)
	if err != nil {
		return "", false, fmt.Errorf("invalid platform url: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid platform url: missing host")
	}
	return u.Host, u.Scheme == "https", nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8000")
	v.SetDefault("app_base_url", "")
	v.SetDefault("cors_origin", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("trusted_proxies", "")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", "24h")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "3306")
	v.SetDefault("db_user", "root")
	v.SetDefault("db_pass", "root")
	v.SetDefault("db_name", "medvault")
	v.SetDefault("install_share_procedure", true)

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("medvault_platform_url", "")
	v.SetDefault("medvault_platform_key", "")
	v.SetDefault("medvault_platform_secret", "minioadmin")
	v.SetDefault("bucket_name", "medical-records")
	v.SetDefault("storage_region", "us-east-1")
	v.SetDefault("signed_url_expiry", "3600s")
	v.SetDefault("storage_anon_signed_urls", true)
	v.SetDefault("storage_probe_timeout", "5s")

	v.SetDefault("share_default_days", 7)
	v.SetDefault("share_atomic_increment", true)
	v.SetDefault("share_cache_ttl", "24h")
	v.SetDefault("share_rate", 5)
	v.SetDefault("share_burst", 10)

	v.SetDefault("upload_max_bytes", 10*1024*1024)
	v.SetDefault("record_cache_ttl", "5m")
	v.SetDefault("access_log_mode", "direct")
	v.SetDefault("access_log_timeout", "10s")

	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("rabbitmq_host", "localhost")
	v.SetDefault("rabbitmq_port", "5672")
	v.SetDefault("rabbitmq_user", "guest")
	v.SetDefault("rabbitmq_password", "guest")
	v.SetDefault("rabbitmq_vhost", "/")
	v.SetDefault("rabbitmq_prefetch", 8)
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("worker_rate", 50)
	v.SetDefault("worker_burst", 20)
	v.SetDefault("worker_retry_max", 5)
	v.SetDefault("worker_retry_delays", "10s,30s,2m,10m")

	v.SetDefault("smtp_tls", false)
	v.SetDefault("smtp_starttls", false)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":     "listen",
		"log-level":  "log_level",
		"log-format": "log_format",
	}
	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads defaults, an optional config file, environment variables and cobra flags.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cmd != nil {
		if err := bindFlags(cmd, v); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
		if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	retryDelays, err := parseDurationList(v.GetString("worker_retry_delays"))
	if err != nil {
		return nil, fmt.Errorf("invalid worker_retry_delays: %w", err)
	}

	cfg := &Config{
		Listen:     v.GetString("listen"),
		AppBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("app_base_url")), "/"),
		CORSOrigin: strings.TrimSpace(v.GetString("cors_origin")),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  v.GetString("log_format"),

		TrustedProxies: splitList(v.GetString("trusted_proxies")),

		JWTSecret: strings.TrimSpace(v.GetString("jwt_secret")),
		JWTTTL:    v.GetDuration("jwt_ttl"),

		DBHost:                v.GetString("db_host"),
		DBPort:                v.GetString("db_port"),
		DBUser:                v.GetString("db_user"),
		DBPass:                v.GetString("db_pass"),
		DBName:                v.GetString("db_name"),
		InstallShareProcedure: v.GetBool("install_share_procedure"),

		RedisHost:     v.GetString("redis_host"),
		RedisPort:     v.GetString("redis_port"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		PlatformURL:     strings.TrimRight(strings.TrimSpace(v.GetString("medvault_platform_url")), "/"),
		PlatformKey:     strings.TrimSpace(v.GetString("medvault_platform_key")),
		PlatformSecret:  v.GetString("medvault_platform_secret"),
		BucketName:      v.GetString("bucket_name"),
		StorageRegion:   v.GetString("storage_region"),
		SignedURLExpiry: v.GetDuration("signed_url_expiry"),
		AnonSignedURLs:  v.GetBool("storage_anon_signed_urls"),
		ProbeTimeout:    v.GetDuration("storage_probe_timeout"),

		ShareDefaultDays:     v.GetInt("share_default_days"),
		ShareAtomicIncrement: v.GetBool("share_atomic_increment"),
		ShareCacheTTL:        v.GetDuration("share_cache_ttl"),
		ShareRate:            v.GetFloat64("share_rate"),
		ShareBurst:           v.GetInt("share_burst"),

		UploadMaxBytes:   v.GetInt64("upload_max_bytes"),
		RecordCacheTTL:   v.GetDuration("record_cache_ttl"),
		AccessLogMode:    strings.ToLower(strings.TrimSpace(v.GetString("access_log_mode"))),
		AccessLogTimeout: v.GetDuration("access_log_timeout"),

		RabbitMQURL:       rabbitURL(v),
		RabbitMQPrefetch:  v.GetInt("rabbitmq_prefetch"),
		WorkerConcurrency: v.GetInt("worker_concurrency"),
		WorkerRate:        v.GetFloat64("worker_rate"),
		WorkerBurst:       v.GetInt("worker_burst"),
		WorkerRetryMax:    v.GetInt("worker_retry_max"),
		WorkerRetryDelays: retryDelays,

		SMTPHost:     v.GetString("smtp_host"),
		SMTPPort:     v.GetString("smtp_port"),
		SMTPUser:     v.GetString("smtp_user"),
		SMTPPass:     v.GetString("smtp_pass"),
		SMTPFrom:     v.GetString("smtp_from"),
		SMTPTLS:      v.GetBool("smtp_tls"),
		SMTPStartTLS: v.GetBool("smtp_starttls"),
	}

	applyPlatformFallback(cfg)
	if err := applyJWTSecretFallback(cfg); err != nil {
		return nil, err
	}

	if cfg.AccessLogMode != "direct" && cfg.AccessLogMode != "queue" {
		return nil, fmt.Errorf("invalid access_log_mode %q: want direct or queue", cfg.AccessLogMode)
	}
	if cfg.ShareDefaultDays <= 0 {
		cfg.ShareDefaultDays = 7
	}
	if cfg.SignedURLExpiry <= 0 {
		cfg.SignedURLExpiry = time.Hour
	}
	return cfg, nil
}

// applyPlatformFallback keeps the process alive with placeholder values when the
// platform parameters are missing. Calls against the placeholder endpoint fail.
func applyPlatformFallback(cfg *Config) {
	cfg.platformConfigured = true
	if cfg.PlatformURL == "" {
		cfg.platformConfigured = false
		cfg.PlatformURL = PlaceholderPlatformURL
	}
	if cfg.PlatformKey == "" {
		cfg.platformConfigured = false
		cfg.PlatformKey = PlaceholderPlatformKey
	}
	if !cfg.platformConfigured {
		logrus.WithFields(logrus.Fields{
			"platform_url": cfg.PlatformURL,
		}).Error("platform not configured: set MEDVAULT_PLATFORM_URL and MEDVAULT_PLATFORM_KEY")
	}
}

// applyJWTSecretFallback signs sessions with a random secret when JWT_SECRET is unset.
// Sessions then do not survive a restart and are not shared between instances.
func applyJWTSecretFallback(cfg *Config) error {
	if cfg.JWTSecret != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate jwt secret: %w", err)
	}
	cfg.JWTSecret = hex.EncodeToString(buf)
	cfg.jwtSecretGenerated = true
	logrus.Error("jwt secret not configured: set JWT_SECRET, using a random per-process secret")
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func rabbitURL(v *viper.Viper) string {
	if raw := strings.TrimSpace(v.GetString("rabbitmq_url")); raw != "" {
		return raw
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/%s",
		url.PathEscape(v.GetString("rabbitmq_user")),
		url.PathEscape(v.GetString("rabbitmq_password")),
		v.GetString("rabbitmq_host"),
		v.GetString("rabbitmq_port"),
		url.PathEscape(v.GetString("rabbitmq_vhost")),
	)
}

func parseDurationList(raw string) ([]time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
