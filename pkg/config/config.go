package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration, read from the environment
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Store     StoreConfig
	Recovery  RecoveryConfig
	Notifx    NotifxConfig
	Bootstrap BootstrapConfig
	OAuth     OAuthConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
	BodyLimit   int
	PublicURL   string
	Debug       bool
}

type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
	TfaIssuer       string
	ThrottleDelay   time.Duration
	CookieDomain    string
	CookieSecure    bool

	// Roles extends or overrides the built-in roles, as
	// "NAME=PERM,PERM;NAME=PERM".
	Roles map[string][]string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StoreConfig selects the record store backend: "memory" or "postgres"
type StoreConfig struct {
	Mode string
}

// RecoveryConfig configures password recovery tokens. Mode is "memory" or
// "redis".
type RecoveryConfig struct {
	Mode     string
	TTL      time.Duration
	LinkBase string
}

type BootstrapConfig struct {
	OrganizationID   string
	OrganizationName string
	Description      string
	AdminEmail       string
	AdminPassword    string
	AdminFirstName   string
	AdminLastName    string
	// AdminRoles maps organization id to role, as "ORG=ROLE;ORG=ROLE"
	AdminRoles map[string]string
	ReadOnly   bool
}

type OAuthConfig struct {
	Google GoogleOAuthConfig
}

type GoogleOAuthConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		Server:    loadServerConfig(),
		Auth:      loadAuthConfig(),
		Database:  loadDatabaseConfig(),
		Redis:     loadRedisConfig(),
		Store:     StoreConfig{Mode: getEnv("STORE_MODE", "memory")},
		Recovery:  loadRecoveryConfig(),
		Notifx:    loadNotifxConfig(),
		Bootstrap: loadBootstrapConfig(),
		OAuth:     loadOAuthConfig(),
	}
}

// Validate reports configuration that cannot start a server
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Store.Mode {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_MODE %q (use 'memory' or 'postgres')", c.Store.Mode)
	}
	switch c.Recovery.Mode {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown RECOVERY_MODE %q (use 'memory' or 'redis')", c.Recovery.Mode)
	}
	if c.OAuth.Google.Enabled && c.OAuth.Google.ClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required when Google OAuth is enabled")
	}
	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		BodyLimit:   getEnvInt("BODY_LIMIT", 1024*1024),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080"),
		Debug:       getEnvBool("DEBUG", false),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:       getEnv("JWT_SECRET", ""),
		Issuer:          getEnv("JWT_ISSUER", "keystone"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 2*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		BcryptCost:      getEnvInt("BCRYPT_COST", 10),
		TfaIssuer:       getEnv("TFA_ISSUER", "keystone"),
		ThrottleDelay:   getEnvDuration("LOGIN_THROTTLE_DELAY", time.Second),
		CookieDomain:    getEnv("COOKIE_DOMAIN", ""),
		CookieSecure:    getEnvBool("COOKIE_SECURE", false),
		Roles:           parseRoles(getEnv("ROLE_DEFINITIONS", "")),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Name:            getEnv("DB_NAME", "keystone"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func loadRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Mode:     getEnv("RECOVERY_MODE", "memory"),
		TTL:      getEnvDuration("RECOVERY_TTL", 30*time.Minute),
		LinkBase: getEnv("RECOVERY_LINK_BASE", "http://localhost:8080/recover?token="),
	}
}

func loadBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		OrganizationID:   getEnv("BOOTSTRAP_ORGANIZATION_ID", "DEFAULT"),
		OrganizationName: getEnv("BOOTSTRAP_ORGANIZATION_NAME", "Default"),
		Description:      getEnv("BOOTSTRAP_ORGANIZATION_DESCRIPTION", ""),
		AdminEmail:       getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		AdminPassword:    getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		AdminFirstName:   getEnv("BOOTSTRAP_ADMIN_FIRST_NAME", "System"),
		AdminLastName:    getEnv("BOOTSTRAP_ADMIN_LAST_NAME", "Administrator"),
		AdminRoles:       parsePairs(getEnv("BOOTSTRAP_ADMIN_ROLES", "")),
		ReadOnly:         getEnvBool("BOOTSTRAP_READ_ONLY", false),
	}
}

func loadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		Google: GoogleOAuthConfig{
			Enabled:      getEnvBool("GOOGLE_OAUTH_ENABLED", false),
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
	}
}

// parseRoles reads "ADMIN=A,B;AUDITOR=C" into a role table
func parseRoles(raw string) map[string][]string {
	roles := make(map[string][]string)
	for name, perms := range parsePairs(raw) {
		roles[name] = splitList(perms, ",")
	}
	return roles
}

// parsePairs reads "K=V;K=V". Entries without "=" are skipped.
func parsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, entry := range splitList(raw, ";") {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			pairs[k] = strings.TrimSpace(v)
		}
	}
	return pairs
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitList(value, ","); len(parts) > 0 {
			return parts
		}
	}
	return fallback
}
