package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env          string `yaml:"env" env-default:"local"`
	HTTPServer   `yaml:"http_server"`
	Storage      PostgresStorage `yaml:"storage"`
	RedisStorage RedisStorage    `yaml:"redis"`
	Kafka        KafkaConfig     `yaml:"kafka"`
	Shortener    ShortenerConfig `yaml:"shortener"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type PostgresStorage struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-default:"postgres"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DbName   string `yaml:"dbname" env-default:"shortener"`
	SslMode  string `yaml:"sslmode" env-default:"disable"`
}

type RedisStorage struct {
	Addr     string        `yaml:"addr" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	LinkTTL  time.Duration `yaml:"link_ttl" env-default:"5m"`
}

type KafkaConfig struct {
	Brokers     []string      `yaml:"brokers" env-default:"localhost:9092"`
	TopicClicks string        `yaml:"topic_clicks" env-default:"click-events"`
	TopicLinks  string        `yaml:"topic_links" env-default:"link-events"`
	TopicDLQ    string        `yaml:"topic_dlq" env-default:"click-events-dlq"`
	GroupID     string        `yaml:"group_id" env-default:"analytics"`
	PublishTTL  time.Duration `yaml:"publish_ttl" env-default:"5s"`
}

type ShortenerConfig struct {
	CodeLength int `yaml:"code_length" env-default:"8"`
	MaxRetries int `yaml:"max_retries" env-default:"10"`
}

// AnalyticsConfig is the config of the analytics consumer service.
type AnalyticsConfig struct {
	Env        string            `yaml:"env" env-default:"local"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	Storage    PostgresStorage   `yaml:"storage"`
	Clickhouse ClickhouseStorage `yaml:"clickhouse"`
	Consumer   ConsumerConfig    `yaml:"consumer"`
}

type ClickhouseStorage struct {
	Addr     string `yaml:"addr" env-default:"localhost:8123"`
	Database string `yaml:"database" env-default:"default"`
	Username string `yaml:"username" env-default:"default"`
	Password string `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
}

type ConsumerConfig struct {
	MaxBatchSize int           `yaml:"max_batch_size" env-default:"1000"`
	MaxBatchAge  time.Duration `yaml:"max_batch_age" env-default:"10s"`
	MaxAttempts  int           `yaml:"max_attempts" env-default:"5"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env-default:"2s"`
}

func MustLoad() *Config {
	var cfg Config
	mustLoadByPath(configPath(), &cfg)
	return &cfg
}

func MustLoadAnalytics() *AnalyticsConfig {
	var cfg AnalyticsConfig
	mustLoadByPath(configPath(), &cfg)
	return &cfg
}

func configPath() string {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	return path
}

func mustLoadByPath(configPath string, cfg interface{}) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}
}
