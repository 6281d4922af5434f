package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppPort           = "8443"
	defaultAppEnv            = "local"
	defaultTLSKeyFile        = "other/localhost-key.pem"
	defaultTLSCertFile       = "other/localhost-cert.pem"
	defaultAllowHTTP1        = "true"
	defaultAbortDelayMS      = "5000"
	defaultHealthcheckPath   = "/healthcheck"
	defaultHealthcheckHeader = "x-from-healthcheck"
	defaultRateLimit         = "0"
	defaultRedisAddr         = "localhost:6379"
	defaultLogMongoDB        = "kashvi"
	defaultLogMongoColl      = "access_logs"
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

// Load reads config/app.json, then .env, then the process environment.
// Later sources win. Missing files are not an error.
func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles("config/app.json", ".env")
	})
	return loadErr
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_PORT":             defaultAppPort,
		"APP_ENV":              defaultAppEnv,
		"TLS_KEY_FILE":         defaultTLSKeyFile,
		"TLS_CERT_FILE":        defaultTLSCertFile,
		"ALLOW_HTTP1":          defaultAllowHTTP1,
		"ABORT_DELAY_MS":       defaultAbortDelayMS,
		"HEALTHCHECK_PATH":     defaultHealthcheckPath,
		"HEALTHCHECK_HEADER":   defaultHealthcheckHeader,
		"RATE_LIMIT":           defaultRateLimit,
		"REDIS_ADDR":           defaultRedisAddr,
		"REDIS_PASSWORD":       "",
		"LOG_MONGO_URI":        "",
		"LOG_MONGO_DB":         defaultLogMongoDB,
		"LOG_MONGO_COLLECTION": defaultLogMongoColl,
	}
}

func AppPort() string {
	_ = Load()
	return get("APP_PORT", defaultAppPort)
}

func AppEnv() string {
	_ = Load()
	return get("APP_ENV", defaultAppEnv)
}

// IsProduction reports whether APP_ENV names a production deployment.
func IsProduction() bool {
	switch strings.ToLower(AppEnv()) {
	case "production", "prod":
		return true
	}
	return false
}

// ── TLS ──────────────────────────────────────────────────────────────────────

func TLSKeyFile() string {
	_ = Load()
	return get("TLS_KEY_FILE", defaultTLSKeyFile)
}

func TLSCertFile() string {
	_ = Load()
	return get("TLS_CERT_FILE", defaultTLSCertFile)
}

// AllowHTTP1 controls whether clients without h2 support may fall back
// to HTTP/1.1 during ALPN negotiation.
func AllowHTTP1() bool {
	_ = Load()
	v, err := strconv.ParseBool(get("ALLOW_HTTP1", defaultAllowHTTP1))
	if err != nil {
		return true
	}
	return v
}

// ── Rendering ────────────────────────────────────────────────────────────────

// AbortDelay bounds how long a single render may stream before it is aborted.
func AbortDelay() time.Duration {
	_ = Load()
	ms, err := strconv.Atoi(get("ABORT_DELAY_MS", defaultAbortDelayMS))
	if err != nil || ms <= 0 {
		ms, _ = strconv.Atoi(defaultAbortDelayMS)
	}
	return time.Duration(ms) * time.Millisecond
}

// ── Access log ───────────────────────────────────────────────────────────────

func HealthcheckPath() string {
	_ = Load()
	return get("HEALTHCHECK_PATH", defaultHealthcheckPath)
}

func HealthcheckHeader() string {
	_ = Load()
	return get("HEALTHCHECK_HEADER", defaultHealthcheckHeader)
}

// RateLimit is the number of requests one client may make per minute.
// Zero disables limiting.
func RateLimit() int {
	_ = Load()
	n, err := strconv.Atoi(get("RATE_LIMIT", defaultRateLimit))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func LogMongoURI() string        { _ = Load(); return get("LOG_MONGO_URI", "") }
func LogMongoDB() string         { _ = Load(); return get("LOG_MONGO_DB", defaultLogMongoDB) }
func LogMongoCollection() string { _ = Load(); return get("LOG_MONGO_COLLECTION", defaultLogMongoColl) }

// ── Redis ────────────────────────────────────────────────────────────────────

func RedisAddr() string {
	_ = Load()
	return get("REDIS_ADDR", defaultRedisAddr)
}

func RedisPassword() string {
	_ = Load()
	return get("REDIS_PASSWORD", "")
}

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	if err := mergeDotEnv(envPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	mergeEnviron(loaded)

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		var s string
		switch v := val.(type) {
		case string:
			s = v
		case bool:
			s = strconv.FormatBool(v)
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			continue
		}

		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(s)
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for key, value := range env {
		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(value)
	}
	return nil
}

// mergeEnviron lets the process environment override any known key.
func mergeEnviron(out map[string]string) {
	for key := range defaultValues() {
		if v, ok := os.LookupEnv(key); ok {
			out[key] = strings.TrimSpace(v)
		}
	}
}

func get(key, fallback string) string {
	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}

	return fallback
}

// Set overrides a key in memory. Intended for tests and CLI flags.
func Set(key, value string) {
	_ = Load()
	mu.Lock()
	values[strings.ToUpper(key)] = value
	mu.Unlock()
}
