package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ConfigPath      string
	DatabaseURL     string
	RecorderDB      string
	NATSURL         string
	StatePrefix     string
	ScanInterval    time.Duration
	RequestTimeout  time.Duration
	Location        *time.Location
	LogNATSSubjects bool
	MetricsAddr     string
	Debug           bool
	LogJSON         bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.ConfigPath = getenvDefault("BRIDGE_CONFIG", "configuration.yaml")

	// Recorder DSN: prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// An empty result disables the recorder.
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	cfg.DatabaseURL = dsn

	// Optional database name override for the recorder (applied to the DSN)
	cfg.RecorderDB = strings.TrimSpace(os.Getenv("RECORDER_DB"))

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")

	// Subject prefix for published entity states
	cfg.StatePrefix = getenvDefault("NATS_STATE_PREFIX", "states")
	if strings.ContainsAny(cfg.StatePrefix, " *>") {
		return nil, fmt.Errorf("invalid NATS_STATE_PREFIX: %q", cfg.StatePrefix)
	}

	// Scan interval (seconds)
	if v := os.Getenv("SCAN_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid SCAN_INTERVAL_SEC: %q", v)
		}
		cfg.ScanInterval = time.Duration(sec) * time.Second
	} else {
		cfg.ScanInterval = 30 * time.Second
	}

	// HTTP request timeout for polled APIs
	cfg.RequestTimeout = 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %q", v)
		}
		cfg.RequestTimeout = d
	}

	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.Debug = os.Getenv("BRIDGE_DEBUG") == "YES"
	cfg.LogJSON = os.Getenv("BRIDGE_LOG_FORMAT") == "JSON"

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if cfg.ConfigPath == "" {
		return nil, errors.New("BRIDGE_CONFIG must not be empty")
	}
	return cfg, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
