package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/erc7824/tokenkit/pkg/journal"
	"github.com/erc7824/tokenkit/pkg/log"
	"github.com/erc7824/tokenkit/pkg/txsigner"
)

const (
	configDirPathEnv     = "TOKENKIT_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
	// signerConfigFileEnv names a YAML signer profile, relative to the
	// config dir. When unset the signer is configured from the environment.
	signerConfigFileEnv = "SIGNER_CONFIG_FILE"
)

type Config struct {
	Log      log.Config
	Signer   txsigner.Config
	Database journal.DatabaseConfig

	dir          string
	dotEnvLoaded bool
}

// LoadConfig reads <TOKENKIT_CONFIG_DIR_PATH>/.env, if present, and then the
// environment.
func LoadConfig() (*Config, error) {
	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	config := Config{dir: configDirPath}
	if err := godotenv.Load(filepath.Join(configDirPath, ".env")); err == nil {
		config.dotEnvLoaded = true
	}

	if err := cleanenv.ReadEnv(&config.Log); err != nil {
		return nil, fmt.Errorf("failed to read log config: %w", err)
	}
	if err := cleanenv.ReadEnv(&config.Database); err != nil {
		return nil, fmt.Errorf("failed to read database config: %w", err)
	}

	var err error
	if file := os.Getenv(signerConfigFileEnv); file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(configDirPath, file)
		}
		config.Signer, err = txsigner.LoadConfigFile(file)
	} else {
		config.Signer, err = txsigner.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}

	return &config, nil
}
