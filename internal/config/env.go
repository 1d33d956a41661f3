package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvProxy         = "CRAWLKIT_PROXY"
	EnvUserAgent     = "CRAWLKIT_USER_AGENT"
	EnvCheckpointDir = "CRAWLKIT_CHECKPOINT_DIR"
)

// DefaultEnvFile is the dotenv file read from the current directory.
const DefaultEnvFile = ".env"

// ApplyEnv overrides cfg with CRAWLKIT_* variables.
// Values from envFile are used only where the process environment does
// not set the variable. A missing envFile is not an error.
func ApplyEnv(cfg *Config, envFile string) error {
	fileEnv := map[string]string{}
	if envFile != "" {
		env, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileEnv = env
		case errors.Is(err, os.ErrNotExist):
		default:
			return err
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok && v != ""
	}

	if v, ok := lookup(EnvProxy); ok {
		cfg.ProxyAddress = v
	}
	if v, ok := lookup(EnvUserAgent); ok {
		cfg.UserAgent = v
	}
	if v, ok := lookup(EnvCheckpointDir); ok {
		cfg.CheckpointDir = v
	}
	return nil
}
