package config

import (
	"fmt"
	"time"

	pkgconfig "webmail/pkg/config"
)

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type CacheConfig struct {
	SummaryTTL time.Duration `yaml:"summary_ttl"`
}

type WorkerConfig struct {
	DedupTTL    time.Duration `yaml:"dedup_ttl"`
	RetryTTL    time.Duration `yaml:"retry_ttl"`
	MaxRetries  int64         `yaml:"max_retries"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

type Config struct {
	Env    string                 `yaml:"-"`
	DB     pkgconfig.DBConfig     `yaml:"db"`
	MQ     pkgconfig.MQConfig     `yaml:"mq"`
	Redis  pkgconfig.RedisConfig  `yaml:"redis"`
	JWT    pkgconfig.JWTConfig    `yaml:"jwt"`
	Server pkgconfig.ServerConfig `yaml:"server"`
	Otel   pkgconfig.OtelConfig   `yaml:"otel"`
	Outbox OutboxConfig           `yaml:"outbox"`
	Cache  CacheConfig            `yaml:"cache"`
	Worker WorkerConfig           `yaml:"worker"`
}

// Load 读取 config/base.yaml 与 CONFIG_ENV 覆盖文件，再应用环境变量
func Load(configDir string) (*Config, error) {
	env := pkgconfig.GetConfigEnv()

	var cfg Config
	if err := pkgconfig.LoadInto(env, configDir, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideOtelFromEnv(&cfg.Otel)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = 2 * time.Second
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.Cache.SummaryTTL <= 0 {
		c.Cache.SummaryTTL = 10 * time.Minute
	}
	if c.Worker.DedupTTL <= 0 {
		c.Worker.DedupTTL = 24 * time.Hour
	}
	if c.Worker.RetryTTL <= 0 {
		c.Worker.RetryTTL = time.Hour
	}
	if c.Worker.MaxRetries <= 0 {
		c.Worker.MaxRetries = 3
	}
	if c.Worker.MetricsAddr == "" {
		c.Worker.MetricsAddr = ":9091"
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = "webmail"
	}
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Env == "production" && c.JWT.Secret == "change-me" {
		return fmt.Errorf("jwt.secret must be overridden in production")
	}
	return nil
}
