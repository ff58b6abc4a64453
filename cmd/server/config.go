package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"dbconn-gateway/dbconn"
	"dbconn-gateway/dbconn/infra"
	"dbconn-gateway/middleware/ratelimit"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	algoFixedWindow = "fixed-window"
	algoTokenBucket = "token-bucket"

	backendMemory = "memory"
	backendRedis  = "redis"
)

type config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log         logConfig         `yaml:"log"`
	DB          dbConfig          `yaml:"db"`
	RateLimit   rateLimitConfig   `yaml:"rate_limit"`
	Redis       redisConfig       `yaml:"redis"`
	Stats       statsConfig       `yaml:"stats"`
	Concurrency concurrencyConfig `yaml:"concurrency"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type dbConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MultiStatements bool          `yaml:"multi_statements"`
	InsecureAuth    bool          `yaml:"insecure_auth"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	PoolCapacity    int           `yaml:"pool_capacity"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	UsersQuery      string        `yaml:"users_query"`
}

func (c dbConfig) dsnConfig() infra.DSNConfig {
	return infra.DSNConfig{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Name,
		MultiStatements: c.MultiStatements,
		InsecureAuth:    c.InsecureAuth,
		ConnectTimeout:  c.ConnectTimeout,
	}
}

type rateLimitConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Algorithm  string        `yaml:"algorithm"`
	Store      string        `yaml:"store"`
	Max        int           `yaml:"max"`
	Window     time.Duration `yaml:"window"`
	Message    string        `yaml:"message"`
	Status     int           `yaml:"status"`
	KeyHeader  string        `yaml:"key_header"`
	TrustXFF   bool          `yaml:"trust_xff"`
	FailOpen   bool          `yaml:"fail_open"`
	AddHeaders bool          `yaml:"add_headers"`
}

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type statsConfig struct {
	Backend   string        `yaml:"backend"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	TrackKeys bool          `yaml:"track_keys"`
}

type concurrencyConfig struct {
	Max     int           `yaml:"max"`
	Timeout time.Duration `yaml:"timeout"`
}

func defaultConfig() config {
	return config{
		ListenAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
		Log:             logConfig{Level: "info", Format: "json"},
		DB: dbConfig{
			Driver:          infra.DriverMySQL,
			Host:            "localhost",
			Port:            3308,
			User:            "testuser",
			Password:        "testpass",
			Name:            "aliconcon",
			MultiStatements: true,
			InsecureAuth:    true,
			ConnectTimeout:  5 * time.Second,
			PoolCapacity:    10,
			AcquireTimeout:  5 * time.Second,
			UsersQuery:      dbconn.DefaultUsersQuery,
		},
		RateLimit: rateLimitConfig{
			Enabled:    true,
			Algorithm:  algoFixedWindow,
			Store:      backendMemory,
			Max:        ratelimit.DefaultMax,
			Window:     ratelimit.DefaultWindow,
			Status:     429,
			FailOpen:   true,
			AddHeaders: true,
		},
		Stats: statsConfig{
			Prefix: "ratelimit:stats",
			TTL:    24 * time.Hour,
		},
	}
}

// loadConfig aplica, em ordem: defaults, arquivo YAML (CONFIG_FILE), .env e
// variáveis de ambiente. O .env nunca sobrescreve o ambiente do processo.
func loadConfig(lookup func(string) (string, bool)) (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := envReader{lookup: lookup}
	env.str("LISTEN_ADDR", &cfg.ListenAddr)
	env.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	env.str("LOG_LEVEL", &cfg.Log.Level)
	env.str("LOG_FORMAT", &cfg.Log.Format)

	env.str("DB_DRIVER", &cfg.DB.Driver)
	env.str("DB_HOST", &cfg.DB.Host)
	env.integer("DB_PORT", &cfg.DB.Port)
	env.str("DB_USER", &cfg.DB.User)
	env.str("DB_PASSWORD", &cfg.DB.Password)
	env.str("DB_NAME", &cfg.DB.Name)
	env.boolean("DB_MULTI_STATEMENTS", &cfg.DB.MultiStatements)
	env.boolean("DB_INSECURE_AUTH", &cfg.DB.InsecureAuth)
	env.duration("DB_CONNECT_TIMEOUT", &cfg.DB.ConnectTimeout)
	env.integer("DB_POOL_CAPACITY", &cfg.DB.PoolCapacity)
	env.duration("DB_ACQUIRE_TIMEOUT", &cfg.DB.AcquireTimeout)
	env.duration("DB_IDLE_TIMEOUT", &cfg.DB.IdleTimeout)
	env.str("DB_USERS_QUERY", &cfg.DB.UsersQuery)

	env.boolean("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	env.str("RATE_LIMIT_ALGORITHM", &cfg.RateLimit.Algorithm)
	env.str("RATE_LIMIT_STORE", &cfg.RateLimit.Store)
	env.integer("RATE_LIMIT_MAX", &cfg.RateLimit.Max)
	env.duration("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	env.str("RATE_LIMIT_MESSAGE", &cfg.RateLimit.Message)
	env.integer("RATE_LIMIT_STATUS", &cfg.RateLimit.Status)
	env.str("RATE_KEY_HEADER", &cfg.RateLimit.KeyHeader)
	env.boolean("TRUST_XFF", &cfg.RateLimit.TrustXFF)
	env.boolean("RATE_LIMIT_FAIL_OPEN", &cfg.RateLimit.FailOpen)
	env.boolean("ADD_RATELIMIT_HEADERS", &cfg.RateLimit.AddHeaders)

	env.str("REDIS_ADDR", &cfg.Redis.Addr)
	env.str("REDIS_PASSWORD", &cfg.Redis.Password)
	env.integer("REDIS_DB", &cfg.Redis.DB)

	env.str("RATE_STATS_BACKEND", &cfg.Stats.Backend)
	env.str("RATE_STATS_PREFIX", &cfg.Stats.Prefix)
	env.duration("RATE_STATS_TTL", &cfg.Stats.TTL)
	env.boolean("RATE_STATS_TRACK_KEYS", &cfg.Stats.TrackKeys)

	env.integer("CONCURRENCY_MAX", &cfg.Concurrency.Max)
	env.duration("CONCURRENCY_TIMEOUT", &cfg.Concurrency.Timeout)

	if err := errors.Join(env.errs...); err != nil {
		return config{}, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) normalize() {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.RateLimit.Algorithm = strings.ToLower(strings.TrimSpace(c.RateLimit.Algorithm))
	c.RateLimit.Store = strings.ToLower(strings.TrimSpace(c.RateLimit.Store))
	c.Stats.Backend = strings.ToLower(strings.TrimSpace(c.Stats.Backend))
	if c.RateLimit.Message == "" {
		c.RateLimit.Message = ratelimit.LimitMessage(c.RateLimit.Max, c.RateLimit.Window)
	}
}

func (c config) validate() error {
	var errs []error
	if _, err := c.DB.dsnConfig().DriverName(); err != nil {
		errs = append(errs, fmt.Errorf("DB_DRIVER: %w", err))
	}
	if c.DB.PoolCapacity <= 0 {
		errs = append(errs, errors.New("DB_POOL_CAPACITY must be > 0"))
	}
	if c.DB.AcquireTimeout < 0 || c.DB.IdleTimeout < 0 {
		errs = append(errs, errors.New("DB_ACQUIRE_TIMEOUT and DB_IDLE_TIMEOUT must be >= 0"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Max <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_MAX must be > 0"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
		}
		if c.RateLimit.Status < 400 || c.RateLimit.Status > 599 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_STATUS must be a 4xx/5xx code, got %d", c.RateLimit.Status))
		}
		switch c.RateLimit.Algorithm {
		case algoFixedWindow:
		case algoTokenBucket:
			if c.RateLimit.Store == backendRedis {
				errs = append(errs, errors.New("RATE_LIMIT_STORE=redis is only supported with the fixed-window algorithm"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_ALGORITHM %q", c.RateLimit.Algorithm))
		}
		if c.RateLimit.Store != backendMemory && c.RateLimit.Store != backendRedis {
			errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_STORE %q", c.RateLimit.Store))
		}
	}
	switch c.Stats.Backend {
	case "", backendMemory, backendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_STATS_BACKEND %q", c.Stats.Backend))
	}
	if c.needsRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when a redis backend is selected"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	return errors.Join(errs...)
}

func (c config) needsRedis() bool {
	return (c.RateLimit.Enabled && c.RateLimit.Store == backendRedis) || c.Stats.Backend == backendRedis
}

// envReader sobrescreve campos com variáveis de ambiente não vazias e
// acumula erros de parse em vez de cair no default em silêncio.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(k string, dst *string) {
	if v, ok := e.get(k); ok {
		*dst = v
	}
}

func (e *envReader) integer(k string, dst *int) {
	v, ok := e.get(k)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", k, v))
		return
	}
	*dst = i
}

func (e *envReader) boolean(k string, dst *bool) {
	v, ok := e.get(k)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", k, v))
		return
	}
	*dst = b
}

func (e *envReader) duration(k string, dst *time.Duration) {
	v, ok := e.get(k)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", k, v))
		return
	}
	*dst = d
}
