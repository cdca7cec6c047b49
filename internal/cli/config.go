package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/internal/paths"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Configuration keys in config.yaml.
const (
	keyDataDir     = "data_dir"
	keyDatabase    = "database"
	keyBusyTimeout = "busy_timeout"
	keyBusyRetries = "busy_retries"
	keyLogLevel    = "log.level"
	keyLogFormat   = "log.format"
	keyLogFile     = "log.file"
)

// EnvDatabase overrides the database file name.
const EnvDatabase = "BROWSERDB_DATABASE"

// fileConfig is the layout of config.yaml written by init and on first run.
type fileConfig struct {
	DataDir     string    `yaml:"data_dir,omitempty"`
	Database    string    `yaml:"database"`
	BusyTimeout string    `yaml:"busy_timeout"`
	BusyRetries int       `yaml:"busy_retries"`
	Log         logConfig `yaml:"log"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

func defaultFileConfig(dataDir string) fileConfig {
	return fileConfig{
		DataDir:     dataDir,
		Database:    types.DefaultDatabase,
		BusyTimeout: types.DefaultBusyTimeout.String(),
		BusyRetries: types.DefaultBusyRetries,
		Log:         logConfig{Level: "info", Format: "console"},
	}
}

// loadConfig reads config.yaml from configDir, creating the directory and
// a default file on first run. Log settings may be overridden by the
// BROWSERDB_LOG_* variables and the file name by BROWSERDB_DATABASE.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := writeConfigIfMissing(configDir, defaultFileConfig("")); err != nil {
		return nil, sysError(err)
	}

	v := viper.New()
	def := defaultFileConfig("")
	v.SetDefault(keyDatabase, def.Database)
	v.SetDefault(keyBusyTimeout, types.DefaultBusyTimeout)
	v.SetDefault(keyBusyRetries, def.BusyRetries)
	v.SetDefault(keyLogLevel, def.Log.Level)
	v.SetDefault(keyLogFormat, def.Log.Format)

	for key, env := range map[string]string{
		keyDatabase:  EnvDatabase,
		keyLogLevel:  log.EnvLevel,
		keyLogFormat: log.EnvFormat,
		keyLogFile:   log.EnvFile,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, userError(fmt.Errorf("read config: %w", err))
	}
	return v, nil
}

// writeConfigIfMissing writes cfg to config.yaml in configDir unless the
// file already exists.
func writeConfigIfMissing(configDir string, cfg fileConfig) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(paths.ConfigFile(configDir)); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return writeFileConfig(configDir, cfg)
}

const configHeader = "# browserdb configuration\n# data_dir is overridden by --data-dir.\n"

// writeFileConfig replaces config.yaml in configDir with cfg.
func writeFileConfig(configDir string, cfg fileConfig) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(paths.ConfigFile(configDir), append([]byte(configHeader), data...), 0o644)
}

// readFileConfig decodes config.yaml without defaults or environment.
func readFileConfig(configDir string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(paths.ConfigFile(configDir))
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", paths.ConfigFile(configDir), err)
	}
	return cfg, nil
}
