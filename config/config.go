package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds file and environment driven configuration values.
// Secrets have no defaults and must come from config/config.json or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	SessionTTL         time.Duration
	RateLimitPerMinute int
	AllowedOrigins     []string
	AvatarMaxBytes     int64
	BcryptCost         int
	QueryTimeout       time.Duration
	// Database
	DBDriver string
	DBDSN    string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis for session revocation and caching; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load reads the configuration once during boot.
// Precedence: defaults < config file < FORUM_* environment variables.
func Load(paths ...string) AppConfig {
	if loaded {
		return cfg
	}

	path := "config/config.json"
	if len(paths) > 0 && paths[0] != "" {
		path = paths[0]
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		log.Printf("config file %s not loaded (%v); using defaults and environment", path, err)
	}

	cfg = fromViper(v)
	if cfg.JWTSecret == "" {
		log.Fatal("app.jwt_secret (FORUM_APP_JWT_SECRET) must be set")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Intended for tests and embedding.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("FORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.port", "8080")
	v.SetDefault("app.jwt_secret", "")
	v.SetDefault("app.session_ttl", "720h")
	v.SetDefault("app.rate_limit_per_minute", 60)
	v.SetDefault("app.allowed_origins", []string{"*"})
	v.SetDefault("app.avatar_max_bytes", 2<<20)
	v.SetDefault("app.bcrypt_cost", 10)
	v.SetDefault("app.query_timeout", "5s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "forum.db")
	v.SetDefault("gin.mode", "release")
	v.SetDefault("gin.log_path", "logs/gin.log")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)
	return v
}

func fromViper(v *viper.Viper) AppConfig {
	var origins []string
	// env overrides arrive as one comma separated string
	if raw, ok := v.Get("app.allowed_origins").(string); ok {
		origins = strings.Split(raw, ",")
	} else {
		origins = v.GetStringSlice("app.allowed_origins")
	}
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return AppConfig{
		AppPort:            v.GetString("app.port"),
		JWTSecret:          v.GetString("app.jwt_secret"),
		SessionTTL:         v.GetDuration("app.session_ttl"),
		RateLimitPerMinute: v.GetInt("app.rate_limit_per_minute"),
		AllowedOrigins:     origins,
		AvatarMaxBytes:     v.GetInt64("app.avatar_max_bytes"),
		BcryptCost:         v.GetInt("app.bcrypt_cost"),
		QueryTimeout:       v.GetDuration("app.query_timeout"),
		DBDriver:           strings.ToLower(v.GetString("database.driver")),
		DBDSN:              v.GetString("database.dsn"),
		GinMode:            v.GetString("gin.mode"),
		GinPath:            v.GetString("gin.log_path"),
		RedisHost:          v.GetString("redis.host"),
		RedisPort:          v.GetInt("redis.port"),
		RedisDB:            v.GetInt("redis.db"),
		RedisPassword:      v.GetString("redis.password"),
		LogLevel:           v.GetString("log.level"),
		LogPath:            v.GetString("log.path"),
		LogMaxSizeMB:       v.GetInt("log.max_size_mb"),
		LogMaxBackups:      v.GetInt("log.max_backups"),
		LogMaxAgeDays:      v.GetInt("log.max_age_days"),
		LogCompress:        v.GetBool("log.compress"),
	}
}
