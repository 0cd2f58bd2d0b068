package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	Development         bool   `mapstructure:"development"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaCfg struct {
	Brokers    []string `mapstructure:"brokers"`
	EventTopic string   `mapstructure:"event_topic"`
}

type JwtCfg struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type S3Cfg struct {
	Region     string `mapstructure:"region"`
	Bucket     string `mapstructure:"bucket"`
	Endpoint   string `mapstructure:"endpoint"`
	PublicRead bool   `mapstructure:"public_read"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Mongo  MongoCfg  `mapstructure:"mongo"`
	Redis  RedisCfg  `mapstructure:"redis"`
	Kafka  KafkaCfg  `mapstructure:"kafka"`
	JWT    JwtCfg    `mapstructure:"jwt"`
	S3     S3Cfg     `mapstructure:"s3"`
	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("server.port", "8084")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "conversations")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "convo")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.event_topic", "conversation.events")
	v.SetDefault("s3.region", "eu-central-1")

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			// config file is optional; env + defaults carry dev setups
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	return &cfg, nil
}
