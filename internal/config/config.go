package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Input
	InputPath string
	RulesFile string

	// Output
	ReportFormat string
	LogLevel     string

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64
	FetchRetries int

	// Server
	ServerPort        string
	RateLimitGeneral  int
	CORSAllowedOrigin string
}

var (
	reportFormats = []string{"text", "json"}
	logLevels     = []string{"debug", "info", "warn", "error"}
)

// Load は環境変数からConfigを読み込む。
// 列挙値や数値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{
		InputPath:         getEnvString("INPUT_PATH", "user.json"),
		RulesFile:         getEnvString("RULES_FILE", ""),
		ReportFormat:      strings.ToLower(getEnvString("REPORT_FORMAT", "text")),
		LogLevel:          strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxSize:      getEnvInt64("FETCH_MAX_SIZE", 5242880),
		FetchRetries:      getEnvInt("FETCH_RETRIES", 2),
		ServerPort:        getEnvString("SERVER_PORT", "8080"),
		RateLimitGeneral:  getEnvInt("RATE_LIMIT_GENERAL", 120),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}

	var invalid []string
	if !contains(reportFormats, cfg.ReportFormat) {
		invalid = append(invalid, fmt.Sprintf("REPORT_FORMAT=%q (allowed: %v)", cfg.ReportFormat, reportFormats))
	}
	if !contains(logLevels, cfg.LogLevel) {
		invalid = append(invalid, fmt.Sprintf("LOG_LEVEL=%q (allowed: %v)", cfg.LogLevel, logLevels))
	}
	if cfg.FetchTimeout <= 0 {
		invalid = append(invalid, fmt.Sprintf("FETCH_TIMEOUT=%s (must be positive)", cfg.FetchTimeout))
	}
	if cfg.FetchMaxSize <= 0 {
		invalid = append(invalid, fmt.Sprintf("FETCH_MAX_SIZE=%d (must be positive)", cfg.FetchMaxSize))
	}
	if cfg.FetchRetries < 0 {
		invalid = append(invalid, fmt.Sprintf("FETCH_RETRIES=%d (must not be negative)", cfg.FetchRetries))
	}
	if cfg.RateLimitGeneral <= 0 {
		invalid = append(invalid, fmt.Sprintf("RATE_LIMIT_GENERAL=%d (must be positive)", cfg.RateLimitGeneral))
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
