package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings holds tool-level configuration: knobs that belong to the
// pipewright installation rather than to any one pipeline definition.
//
// Settings are resolved from (highest precedence first) environment
// variables with the PIPEWRIGHT_ prefix, an optional config file at
// $XDG_CONFIG_HOME/pipewright/config.yaml, and built-in defaults.
type Settings struct {
	// CacheRoot is the directory holding persisted cache entries for
	// all pipelines.
	CacheRoot string

	// DefaultImage is the container image used for --container runs
	// when neither the flag nor the pipeline names one.
	DefaultImage string

	// TokenEnv is the fallback token variable name for deploys.
	TokenEnv string
}

// LoadSettings resolves the tool settings. Missing config files are not
// errors; defaults cover everything.
func LoadSettings() (*Settings, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("cache_root", defaultCacheRoot())
	v.SetDefault("default_image", "debian:stable-slim")
	v.SetDefault("token_env", DefaultTokenEnv)

	// Optional config file: ~/.config/pipewright/config.yaml.
	if dir, err := os.UserConfigDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(dir, "pipewright"))
		// A missing file is fine; a malformed one is not.
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	// Env: PIPEWRIGHT_CACHE_ROOT, PIPEWRIGHT_DEFAULT_IMAGE, ...
	v.SetEnvPrefix("PIPEWRIGHT")
	v.AutomaticEnv()

	return &Settings{
		CacheRoot:    v.GetString("cache_root"),
		DefaultImage: v.GetString("default_image"),
		TokenEnv:     v.GetString("token_env"),
	}, nil
}

// defaultCacheRoot returns ~/.cache/pipewright (or the platform
// equivalent), falling back to a relative directory when the home
// directory cannot be determined.
func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pipewright")
	}
	return ".pipewright-cache"
}
