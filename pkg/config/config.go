// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Chain    ChainConfig
	Backend  BackendConfig
	Session  SessionConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ChainConfig struct {
	RPCURL          string
	WSURL           string
	ChainID         int64
	ChainName       string
	NativeSymbol    string
	ExplorerURL     string
	KeystoreFile    string
	SaleContract    string
	TokenContract   string
	StableContract  string
	TokenDecimals   int
	StableDecimals  int
	RequestTimeout  time.Duration
	ConfirmTimeout  time.Duration
	ConfirmInterval time.Duration
}

type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	TokenStore     string // "file" or "redis"
	TokenFile      string
}

type SessionConfig struct {
	AutoAuthenticate bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "127.0.0.1"),
			Port:         getEnv("SERVER_PORT", "8790"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("CHAIN_RPC_URL", "https://polygon-rpc.com"),
			WSURL:           getEnv("CHAIN_WS_URL", ""),
			ChainID:         getInt64Env("CHAIN_ID", 137),
			ChainName:       getEnv("CHAIN_NAME", "Polygon Mainnet"),
			NativeSymbol:    getEnv("CHAIN_NATIVE_SYMBOL", "MATIC"),
			ExplorerURL:     getEnv("CHAIN_EXPLORER_URL", "https://polygonscan.com"),
			KeystoreFile:    getEnv("CHAIN_KEYSTORE_FILE", ""),
			SaleContract:    getEnv("SALE_CONTRACT", "0x8008A571414ebAF2f965a5a8d34D78cEfa8BD8bD"),
			TokenContract:   getEnv("CFD_TOKEN_CONTRACT", "0x7fE9eE1975263998D7BfD7ed46CAD44Ee62A63bE"),
			StableContract:  getEnv("USDT_CONTRACT", "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
			TokenDecimals:   getIntEnv("CFD_TOKEN_DECIMALS", 18),
			StableDecimals:  getIntEnv("USDT_DECIMALS", 6),
			RequestTimeout:  getDurationEnv("CHAIN_REQUEST_TIMEOUT", 30*time.Second),
			ConfirmTimeout:  getDurationEnv("CHAIN_CONFIRM_TIMEOUT", 3*time.Minute),
			ConfirmInterval: getDurationEnv("CHAIN_CONFIRM_INTERVAL", 3*time.Second),
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("BACKEND_URL", "http://localhost:5000/api"),
			RequestTimeout: getDurationEnv("BACKEND_REQUEST_TIMEOUT", 15*time.Second),
			TokenStore:     getEnv("TOKEN_STORE", "file"),
			TokenFile:      getEnv("TOKEN_FILE", ""),
		},
		Session: SessionConfig{
			AutoAuthenticate: getBoolEnv("SESSION_AUTO_AUTHENTICATE", true),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
	}
}

// ValidateCore checks the settings the daemon cannot run without.
func (c *Config) ValidateCore() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("CHAIN_RPC_URL is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	if c.Chain.SaleContract == "" {
		return fmt.Errorf("SALE_CONTRACT is required")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	switch c.Backend.TokenStore {
	case "file", "redis":
	default:
		return fmt.Errorf("TOKEN_STORE must be \"file\" or \"redis\", got %q", c.Backend.TokenStore)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
