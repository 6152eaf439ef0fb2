package app

import (
	"fmt"
	"os"
	"path/filepath"

	"vj-go/internal/config"
)

// Environment variables that relocate vj's files.
const (
	EnvConfigPath = "VJ_CONFIG_PATH" // config file (default ~/.config/vj.toml)
	EnvHome       = "VJ_HOME"        // data directory (default ~/.local/share/vj)
	EnvPassphrase = "VJ_PASSPHRASE"  // unlocks stored credentials without a prompt
)

// GetDefaults returns application default paths, checking environment variables first.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"audio_dir":   filepath.Join(baseDir, "audio"),
	}, nil
}

// DefaultConfig returns the config written by `vj config init`.
func DefaultConfig() (*config.Config, error) {
	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}
	return config.NewConfig(baseDir), nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vj.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "vj"), nil
}
