package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
)

// DBConfig 通知存储（Postgres）配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	// SlowQueryMs 慢查询阈值，0 表示使用默认 100ms
	SlowQueryMs int `yaml:"slow_query_ms"`
}

// DSN 拼出 pgx 连接串，用户名和密码会被转义
func (c DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// MQConfig RabbitMQ 配置，producer 事件经此投递
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis 配置，承载变更信号、去重和重试计数
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

// FeedConfig 通知数据源配置
// Driver: postgres（Postgres + Redis 变更信号）或 memory（单进程内存源）
type FeedConfig struct {
	Driver string `yaml:"driver"`
}

const (
	FeedDriverPostgres = "postgres"
	FeedDriverMemory   = "memory"
)

// NotifyConfig 订阅与已读写入配置
type NotifyConfig struct {
	ResubscribeMinMs int `yaml:"resubscribe_min_ms"`
	ResubscribeMaxMs int `yaml:"resubscribe_max_ms"`
	WriteTimeoutMs   int `yaml:"write_timeout_ms"`
	BulkConcurrency  int `yaml:"bulk_concurrency"`
}

// BreakerConfig 写入熔断配置
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt 忽略无法解析的值，保留配置文件中的设置
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func OverrideDBFromEnv(cfg *DBConfig) {
	setString(&cfg.Host, "DB_HOST")
	setInt(&cfg.Port, "DB_PORT")
	setString(&cfg.User, "DB_USER")
	setString(&cfg.Password, "DB_PASSWORD")
	setString(&cfg.Name, "DB_NAME")
	setString(&cfg.SSLMode, "DB_SSLMODE")
}

func OverrideMQFromEnv(cfg *MQConfig) {
	setString(&cfg.URL, "MQ_URL")
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	setString(&cfg.Addr, "REDIS_ADDR")
	setString(&cfg.Password, "REDIS_PASSWORD")
	setInt(&cfg.DB, "REDIS_DB")
}

func OverrideJWTFromEnv(cfg *JWTConfig) {
	setString(&cfg.Secret, "JWT_SECRET")
}

func OverrideServerFromEnv(cfg *ServerConfig) {
	setString(&cfg.Port, "SERVER_PORT")
}

// OverrideFeedFromEnv FEED_DRIVER=memory 可在本地不依赖 Postgres/Redis 启动
func OverrideFeedFromEnv(cfg *FeedConfig) {
	setString(&cfg.Driver, "FEED_DRIVER")
}
