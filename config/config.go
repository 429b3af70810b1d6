// Package config holds the validated process configuration and the
// environment-variable expansion helper the teacher's main.go and
// controller/cors init() functions read ad hoc via os.Getenv. Grounded in
// that same read-from-env style, generalized into one validated struct so
// the server has a single place to fail fast on misconfiguration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration, assembled by Load.
type Config struct {
	HostURL           *url.URL
	TileDir           string
	DatabaseURL       string
	CORSAllowedOrigins []string

	CacheMaxBytes  int64
	CacheEmptyTile bool

	RequestTimeout time.Duration
	SourceTimeout  time.Duration

	AutoReloadInterval time.Duration
}

// Load reads and validates configuration from the environment, matching
// the teacher's variable names where it already defined an equivalent
// (HOST_URL, TILE_DIR, CORS_ALLOWED_ORIGINS) and adding the ones the
// expanded source set needs.
func Load() (*Config, error) {
	cfg := &Config{
		TileDir:            getEnv("TILE_DIR", "./tilesets"),
		DatabaseURL:        ExpandEnv(os.Getenv("DATABASE_URL")),
		CacheMaxBytes:      getEnvInt64("CACHE_MAX_BYTES", 256<<20),
		CacheEmptyTile:     getEnvBool("CACHE_EMPTY_TILE", false),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		SourceTimeout:      getEnvDuration("SOURCE_TIMEOUT", 10*time.Second),
		AutoReloadInterval: getEnvDuration("AUTO_RELOAD_INTERVAL", 60*time.Second),
	}

	hostEnv := os.Getenv("HOST_URL")
	if hostEnv == "" {
		return nil, fmt.Errorf("config: HOST_URL not set")
	}
	host, err := url.Parse(hostEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parsing HOST_URL: %w", err)
	}
	cfg.HostURL = host

	origins, err := parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if err != nil {
		return nil, fmt.Errorf("config: CORS_ALLOWED_ORIGINS: %w", err)
	}
	cfg.CORSAllowedOrigins = origins

	return cfg, nil
}

func parseCORSOrigins(originsStr string) ([]string, error) {
	var origins []string
	if originsStr == "" {
		return origins, nil
	}
	for _, origin := range strings.Split(originsStr, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		u, err := url.ParseRequestURI(origin)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("invalid URL scheme %q in origin %q", u.Scheme, origin)
		}
		origins = append(origins, origin)
	}
	return origins, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return ExpandEnv(v)
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ExpandEnv expands `${NAME}` and `${NAME:-default}` references in s
// against the process environment. Unset variables with no default expand
// to the empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], ""
		if len(groups[2]) > 2 {
			def = groups[2][2:]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}
