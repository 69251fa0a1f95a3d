// Package config loads application configuration from environment variables.
// A .env file, when present, is loaded by main before any Load call.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the process-level settings.  Each field corresponds to an
// environment variable.
type Config struct {
	Env            string        // APP_ENV (dev, test, prod)
	Port           string        // APP_PORT
	DBUser         string        // DB_USER
	DBPass         string        // DB_PASS, empty allowed
	DBHost         string        // DB_HOST
	DBPort         string        // DB_PORT
	DBName         string        // DB_NAME
	DBMaxOpen      int           // DB_MAX_OPEN_CONNS
	DBMaxIdle      int           // DB_MAX_IDLE_CONNS
	JWTSecret      string        // JWT_SECRET, shared with the auth service
	LogLevel       string        // LOG_LEVEL
	StoreDriver    string        // STORE_DRIVER: mysql or memory
	RequestTimeout time.Duration // REQUEST_TIMEOUT, deadline for one service call
}

// Load reads Config from the environment.  JWT_SECRET is always required;
// the DB_* variables are required only for the mysql store.  Missing
// required values stop the program.
func Load() Config {
	c := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("APP_PORT", "8080"),
		DBPass:         os.Getenv("DB_PASS"),
		DBMaxOpen:      envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdle:      envInt("DB_MAX_IDLE_CONNS", 25),
		JWTSecret:      must("JWT_SECRET"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		StoreDriver:    strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
		RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),
	}
	switch c.StoreDriver {
	case StoreMySQL:
		c.DBUser = must("DB_USER")
		c.DBHost = must("DB_HOST")
		c.DBPort = must("DB_PORT")
		c.DBName = must("DB_NAME")
	case StoreMemory:
	default:
		log.Fatalf("invalid STORE_DRIVER %q: want %s or %s", c.StoreDriver, StoreMySQL, StoreMemory)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	return c
}

// Development reports whether the process runs outside production.
func (c Config) Development() bool {
	return c.Env != "prod" && c.Env != "production"
}

// must retrieves a required environment variable.  If the variable is unset
// or empty the program logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
