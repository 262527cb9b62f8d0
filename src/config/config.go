package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"cropbot/src/datamodels"
	"cropbot/src/utils/general"
)

func Load() (*datamodels.CropbotConfig, error) {
	// read config path from env var
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		currentDir := general.GetCurrentDir()
		// go up two levels to the repo root
		configPath = filepath.Join(currentDir, "..", "..", "config.local.yaml")
	}

	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cropbotConfig datamodels.CropbotConfig
	if err := viper.Unmarshal(&cropbotConfig); err != nil {
		return nil, err
	}

	if err := cropbotConfig.Validate(); err != nil {
		return nil, err
	}

	return &cropbotConfig, nil
}
