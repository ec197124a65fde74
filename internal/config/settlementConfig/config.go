package settlementConfig

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"os"
	"time"
)

const (
	CONFIG_SETTLEMENT_PATH = "CONFIG_SETTLEMENT_PATH"
)

type Config struct {
	URL         string        `yaml:"url" env-required:"true"`
	Protocol    string        `yaml:"protocol" env-default:"NitroRPC/0.2"`
	Asset       string        `yaml:"asset" env-default:"usdc"`
	Challenge   int           `yaml:"challenge" env-default:"86400"`
	CallTimeout time.Duration `yaml:"call_timeout" env-default:"10s"`

	// PrivateKey is the engine's counter-signing key, hex encoded. Comes from
	// the environment, never from the yaml file.
	PrivateKey string `env:"SETTLEMENT_PRIVATE_KEY" env-required:"true"`
}

func MustLoadSettlementConfig() (*Config, error) {

	configPath := os.Getenv(CONFIG_SETTLEMENT_PATH)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set", CONFIG_SETTLEMENT_PATH)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s does not exist %s", CONFIG_SETTLEMENT_PATH, configPath)
	}

	var config Config

	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, fmt.Errorf("cannot load settlement config file: %s", err)
	}

	return &config, nil
}
