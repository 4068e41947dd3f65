package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/AfshinJalili/rentabili/libs/config"
)

const (
	AuthStrategyPassword = "password"
	AuthStrategyStatic   = "static"
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type DBConfig struct {
	Host        string
	Port        int
	Name        string
	User        string
	Password    string
	SSLMode     string
	AutoMigrate bool
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WindowConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
}

type RateLimitConfig struct {
	General WindowConfig
	Auth    WindowConfig
}

type CacheConfig struct {
	Prefix       string
	DashboardTTL time.Duration
}

type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

// StaticAccount is a login accepted by the static authentication strategy.
type StaticAccount struct {
	UserID   string
	Email    string
	Name     string
	Password string
}

type AuthConfig struct {
	Strategy string
	Static   StaticAccount
}

type RoutesConfig struct {
	// PublicUsers exposes GET/POST /users without a bearer token.
	PublicUsers bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type Config struct {
	App             base.AppConfig
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Argon2          Argon2Params
	DB              DBConfig
	Redis           RedisConfig
	RateLimit       RateLimitConfig
	Cache           CacheConfig
	Cookie          CookieConfig
	Auth            AuthConfig
	Routes          RoutesConfig
	Kafka           KafkaConfig
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("RENTABILI_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:             *appCfg,
		JWTSecret:       envString("RENTABILI_JWT_SECRET", ""),
		JWTIssuer:       envString("RENTABILI_JWT_ISSUER", "rentabili"),
		AccessTokenTTL:  envDuration("RENTABILI_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: envDuration("RENTABILI_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		Argon2: Argon2Params{
			Memory:      uint32(envInt("RENTABILI_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("RENTABILI_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("RENTABILI_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("RENTABILI_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("RENTABILI_ARGON2_KEY_LENGTH", 32)),
		},
		DB: DBConfig{
			Host:        envString("POSTGRES_HOST", "localhost"),
			Port:        envInt("POSTGRES_PORT", 5432),
			Name:        envString("POSTGRES_DB", "rentabili"),
			User:        envString("POSTGRES_USER", "rentabili"),
			Password:    envString("POSTGRES_PASSWORD", "rentabili"),
			SSLMode:     envString("POSTGRES_SSLMODE", "disable"),
			AutoMigrate: envBool("RENTABILI_DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     envString("RENTABILI_REDIS_ADDR", ""),
			Password: envString("RENTABILI_REDIS_PASSWORD", ""),
			DB:       envInt("RENTABILI_REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			General: WindowConfig{
				Limit:  envInt("RENTABILI_RATE_LIMIT", 100),
				Window: envDuration("RENTABILI_RATE_WINDOW", 15*time.Minute),
				Prefix: envString("RENTABILI_RATE_PREFIX", "rentabili:rl:api:"),
			},
			Auth: WindowConfig{
				Limit:  envInt("RENTABILI_LOGIN_RATE_LIMIT", 5),
				Window: envDuration("RENTABILI_LOGIN_RATE_WINDOW", 5*time.Minute),
				Prefix: envString("RENTABILI_LOGIN_RATE_PREFIX", "rentabili:rl:auth:"),
			},
		},
		Cache: CacheConfig{
			Prefix:       envString("RENTABILI_CACHE_PREFIX", "rentabili:cache:"),
			DashboardTTL: envDuration("RENTABILI_DASHBOARD_CACHE_TTL", 60*time.Second),
		},
		Cookie: CookieConfig{
			Name:   envString("RENTABILI_REFRESH_COOKIE_NAME", "refresh_token"),
			Path:   envString("RENTABILI_REFRESH_COOKIE_PATH", "/auth"),
			Domain: envString("RENTABILI_REFRESH_COOKIE_DOMAIN", ""),
			Secure: envBool("RENTABILI_REFRESH_COOKIE_SECURE", true),
		},
		Auth: AuthConfig{
			Strategy: strings.ToLower(envString("RENTABILI_AUTH_STRATEGY", AuthStrategyPassword)),
			Static: StaticAccount{
				UserID:   envString("RENTABILI_STATIC_USER_ID", "00000000-0000-0000-0000-000000000001"),
				Email:    strings.ToLower(envString("RENTABILI_STATIC_USER_EMAIL", "demo@rentabili.dev")),
				Name:     envString("RENTABILI_STATIC_USER_NAME", "Demo"),
				Password: envString("RENTABILI_STATIC_USER_PASSWORD", ""),
			},
		},
		Routes: RoutesConfig{
			PublicUsers: envBool("RENTABILI_PUBLIC_USER_ROUTES", true),
		},
		Kafka: KafkaConfig{
			Brokers: envList("RENTABILI_KAFKA_BROKERS"),
			Topic:   envString("RENTABILI_KAFKA_AUTH_TOPIC", "auth.events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("RENTABILI_JWT_SECRET must be set")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttls must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("access token ttl must be shorter than refresh token ttl")
	}
	for name, w := range map[string]WindowConfig{"general": c.RateLimit.General, "auth": c.RateLimit.Auth} {
		if w.Limit <= 0 || w.Window <= 0 {
			return fmt.Errorf("%s rate limit must have positive limit and window", name)
		}
	}
	switch c.Auth.Strategy {
	case AuthStrategyPassword:
	case AuthStrategyStatic:
		if c.Auth.Static.Password == "" {
			return fmt.Errorf("RENTABILI_STATIC_USER_PASSWORD must be set for the static auth strategy")
		}
		if !c.App.IsDev() {
			return fmt.Errorf("static auth strategy is only allowed in dev or test")
		}
	default:
		return fmt.Errorf("unknown auth strategy %q", c.Auth.Strategy)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
