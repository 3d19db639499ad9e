package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	GeoIP     GeoIPConfig     `mapstructure:"geoip"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Scans     ScansConfig     `mapstructure:"scans"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Domains   DomainsConfig   `mapstructure:"domains"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// RedisConfig switches usage-limit counters to Redis when Enabled.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type CacheConfig struct {
	QRCodeTTL  time.Duration `mapstructure:"qr_code_ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type RateLimitConfig struct {
	ScansPerMinute int `mapstructure:"scans_per_minute"`
	Burst          int `mapstructure:"burst"`
}

type GeoIPConfig struct {
	DatabasePath  string        `mapstructure:"database_path"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	DefaultLocale string        `mapstructure:"default_locale"`
}

type ResolverConfig struct {
	APICallTimeout time.Duration `mapstructure:"api_call_timeout"`
}

type WebhooksConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout"`
	Endpoints []WebhookEndpoint `mapstructure:"endpoints"`
}

type WebhookEndpoint struct {
	URL    string   `mapstructure:"url"`
	Secret string   `mapstructure:"secret"`
	Events []string `mapstructure:"events"`
}

type ScansConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type DomainsConfig struct {
	ShortDomain string `mapstructure:"short_domain"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.path", "data/smartqr.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("cache.qr_code_ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("jwt.access_token_ttl", time.Hour)
	v.SetDefault("rate_limit.scans_per_minute", 600)
	v.SetDefault("rate_limit.burst", 60)
	v.SetDefault("geoip.lookup_timeout", 5*time.Second)
	v.SetDefault("geoip.default_locale", "en-US")
	v.SetDefault("resolver.api_call_timeout", 5*time.Second)
	v.SetDefault("webhooks.timeout", 10*time.Second)
	v.SetDefault("scans.retention_days", 365)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
