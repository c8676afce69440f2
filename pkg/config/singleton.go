package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig holds the process-wide configuration.
	globalConfig *Config

	// globalPath is the file globalConfig was loaded from.
	globalPath string

	// configMutex protects globalConfig and globalPath.
	configMutex sync.RWMutex

	// initOnce ensures configuration is initialized only once.
	initOnce sync.Once
)

// Initialize resolves the configuration file with ResolvePath, loads it with
// environment overrides and stores the result process-wide. Only the first
// call has an effect.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		resolved := ResolvePath(path)
		cfg, err := LoadConfigWithEnvOverrides(resolved)
		if err != nil {
			initErr = err
			return
		}

		configMutex.Lock()
		globalConfig = cfg
		globalPath = resolved
		configMutex.Unlock()
	})

	return initErr
}

// GetConfig returns the process-wide configuration, or nil before a
// successful Initialize. The returned value must be treated as read-only.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// Path returns the file the configuration was loaded from. It is empty when
// only defaults and environment overrides were used.
func Path() string {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalPath
}

// SetConfig replaces the process-wide configuration. It is meant for tests.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig reloads the configuration from the file it was initialized
// from. The current configuration is kept when loading fails. Running
// engines do not pick up the new values; they read the configuration once
// at startup.
func ReloadConfig() error {
	cfg, err := LoadConfigWithEnvOverrides(Path())
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	return nil
}

// MustGetConfig returns the process-wide configuration and panics if it has
// not been initialized.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
