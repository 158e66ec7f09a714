package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pawcare/pkg/config"
)

type Config struct {
	DB      config.DBConfig      `yaml:"db"`
	Redis   config.RedisConfig   `yaml:"redis"`
	MQ      config.MQConfig      `yaml:"mq"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Server  config.ServerConfig  `yaml:"server"`
	Feed    config.FeedConfig    `yaml:"feed"`
	Notify  config.NotifyConfig  `yaml:"notify"`
	Breaker config.BreakerConfig `yaml:"breaker"`
}

func Load() *Config {
	// 本地开发可用 .env 注入环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if missing := config.Unresolved(cfgMap); len(missing) > 0 {
		log.Printf("config placeholders without a value: %v", missing)
	}

	cfg, err := decode(cfgMap)
	if err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideFeedFromEnv(&cfg.Feed)

	return cfg
}

// decode 将合并后的 map 转换为 Config 结构并补全默认值
func decode(cfgMap map[string]interface{}) (*Config, error) {
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Feed.Driver == "" {
		c.Feed.Driver = config.FeedDriverPostgres
	}
	if c.DB.MaxConns <= 0 {
		c.DB.MaxConns = 10
	}
	if c.DB.MinConns <= 0 {
		c.DB.MinConns = 2
	}
	if c.Notify.ResubscribeMinMs <= 0 {
		c.Notify.ResubscribeMinMs = 500
	}
	if c.Notify.ResubscribeMaxMs <= 0 {
		c.Notify.ResubscribeMaxMs = 30000
	}
	if c.Notify.WriteTimeoutMs <= 0 {
		c.Notify.WriteTimeoutMs = 10000
	}
	if c.Notify.BulkConcurrency <= 0 {
		c.Notify.BulkConcurrency = 8
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold <= 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.TimeoutSeconds <= 0 {
		c.Breaker.TimeoutSeconds = 30
	}
}

func (c *Config) ResubscribeBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Notify.ResubscribeMinMs) * time.Millisecond,
		time.Duration(c.Notify.ResubscribeMaxMs) * time.Millisecond
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Notify.WriteTimeoutMs) * time.Millisecond
}

func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Breaker.TimeoutSeconds) * time.Second
}

// WorkerPort 返回 worker 健康检查端口（WORKER_PORT，默认 8085）
func WorkerPort() string {
	return config.GetEnv("WORKER_PORT", "8085")
}
