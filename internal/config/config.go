package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	Env                 string
	DatabaseDSN         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	JWTSecret           string
	ServiceToken        string
	AllowedOrigins      []string
	HistoryLimit        int
	RetentionDays       int
	GeneralHistoryLimit int
}

const (
	defaultJWTSecret    = "dev-secret-change-me"
	defaultServiceToken = "dev-service-token"
)

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Load 从环境变量读取配置，本地开发时支持 .env 文件。
func Load() Config {
	_ = godotenv.Load()
	redisDB, _ := strconv.Atoi(getenv("REDIS_DB", "0"))
	var origins []string
	for _, o := range strings.Split(getenv("CORS_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Port:                getenv("APP_PORT", "8080"),
		Env:                 getenv("APP_ENV", "dev"),
		DatabaseDSN:         getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=shopchat port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		RedisDB:             redisDB,
		JWTSecret:           getenv("JWT_SECRET", defaultJWTSecret),
		ServiceToken:        getenv("SERVICE_TOKEN", defaultServiceToken),
		AllowedOrigins:      origins,
		HistoryLimit:        getint("HISTORY_LIMIT", 50),
		RetentionDays:       getint("RETENTION_DAYS", 14),
		GeneralHistoryLimit: getint("GENERAL_HISTORY_LIMIT", 100),
	}
}

// Validate 校验配置是否可用于启动；dev 以外的环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.Env != "dev" {
		if cfg.JWTSecret == defaultJWTSecret {
			return errors.New("default jwt secret is not allowed outside dev")
		}
		if cfg.ServiceToken == defaultServiceToken {
			return errors.New("default service token is not allowed outside dev")
		}
	}
	return nil
}
