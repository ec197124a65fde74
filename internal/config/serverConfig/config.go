package serverConfig

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log/slog"
	"os"
	"time"
)

const (
	CONFIG_SERVER_PATH = "CONFIG_SERVER_PATH"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Pricing PricingConfig `yaml:"pricing"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Nats    NatsConfig    `yaml:"nats"`
}

type ServerConfig struct {
	Address      string        `yaml:"address" env-default:"localhost:8080"`
	PingInterval time.Duration `yaml:"ping_interval" env-default:"30s"`
	ItemCount    int           `yaml:"item_count" env-default:"3030"`
}

type PricingConfig struct {
	DefaultPrice string        `yaml:"default_price" env-default:"1"`
	DecayWindow  time.Duration `yaml:"decay_window" env-default:"60s"`
}

type KafkaConfig struct {
	Broker        string `yaml:"broker"`
	PurchaseTopic string `yaml:"purchase_topic" env-default:"pixel_purchases"`
}

type NatsConfig struct {
	URL string `yaml:"url"`
}

func MustLoadServerConfig() (*Config, error) {

	slog.Debug("Loading server config")

	configPath := os.Getenv(CONFIG_SERVER_PATH)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set", CONFIG_SERVER_PATH)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s does not exist %s", CONFIG_SERVER_PATH, configPath)
	}

	var config Config

	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, fmt.Errorf("cannot load config file: %s", err)
	}

	return &config, nil
}
