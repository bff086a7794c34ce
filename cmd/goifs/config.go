package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "GOIFS"

// Config holds the defaults of all commands. Values are read from the yaml
// file named by GOIFS_CONFIG_FILE, then from the environment. Command line
// flags override both.
type Config struct {
	Volume     string `envconfig:"VOLUME"      yaml:"volume"`
	BlockSize  uint64 `envconfig:"BLOCK_SIZE"  yaml:"blockSize"`
	BlockCount uint64 `envconfig:"BLOCK_COUNT" yaml:"blockCount"`
	LogLevel   string `envconfig:"LOG_LEVEL"   yaml:"logLevel"`
}

// DefaultConfig is used for everything neither the file nor the environment sets.
func DefaultConfig() Config {
	return Config{
		Volume:     "volume.img",
		BlockSize:  512,
		BlockCount: 2048,
		LogLevel:   "warning",
	}
}

func LoadConfig() (*Config, error) {
	c := DefaultConfig()

	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		data, err := ioutil.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}
