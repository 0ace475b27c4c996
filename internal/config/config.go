package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// DefaultJWTSecret is only acceptable when Env is dev.
const DefaultJWTSecret = "dev-secret-change-me"

const defaultDSN = "host=localhost user=postgres password=postgres dbname=messagely port=5432 sslmode=disable TimeZone=UTC"

type Config struct {
	Port        string
	DatabaseDSN string
	JWTSecret   string
	Env         string
	LogLevel    string
	// TokenTTLMinutes of 0 issues tokens that never expire.
	TokenTTLMinutes  int
	BcryptWorkFactor int
	HashWorkers      int
}

// Load reads defaults, then the YAML file named by CONFIG_FILE if set, then
// the environment. Keys are the environment variable names; YAML files use
// the same names in lower case.
func Load() (Config, error) {
	k := koanf.New(".")
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
	}
	err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, v string) (string, any) {
			return strings.ToLower(key), v
		},
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "load env variables")
	}

	return Config{
		Port:             str(k, "app_port", "8080"),
		DatabaseDSN:      str(k, "database_dsn", defaultDSN),
		JWTSecret:        str(k, "jwt_secret", DefaultJWTSecret),
		Env:              str(k, "app_env", "dev"),
		LogLevel:         str(k, "log_level", "info"),
		TokenTTLMinutes:  num(k, "token_ttl_minutes", 0, 0),
		BcryptWorkFactor: num(k, "bcrypt_work_factor", 12, 4),
		HashWorkers:      num(k, "hash_workers", runtime.NumCPU(), 1),
	}, nil
}

// Validate rejects configs the server must not start with.
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == DefaultJWTSecret {
		return errors.Errorf("JWT_SECRET must be changed from the default in %s", cfg.Env)
	}
	if cfg.BcryptWorkFactor > 31 {
		return errors.Errorf("BCRYPT_WORK_FACTOR %d exceeds bcrypt's maximum of 31", cfg.BcryptWorkFactor)
	}
	return nil
}

func str(k *koanf.Koanf, key, def string) string {
	if v := strings.TrimSpace(k.String(key)); v != "" {
		return v
	}
	return def
}

// num falls back to def when the value is missing, not a number, or below min.
func num(k *koanf.Koanf, key string, def, min int) int {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return def
	}
	return n
}
