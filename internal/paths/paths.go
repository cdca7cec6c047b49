// Package paths resolves the configuration and data directories of the
// browserdb command.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "browserdb"

const (
	// DefaultDataDirName is the data directory created under the working
	// directory when nothing else is configured.
	DefaultDataDirName = ".browserdb"
	// ConfigFileName is the configuration file inside the config directory.
	ConfigFileName = "config.yaml"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "BROWSERDB_CONFIG_DIR"
	EnvDataDir   = "BROWSERDB_DATA_DIR"
)

// platform captures what directory lookup needs from the host so tests can
// substitute another OS.
type platform struct {
	goos          string
	getenv        func(string) string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}

var host = platform{
	goos:          runtime.GOOS,
	getenv:        os.Getenv,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// appDir returns the per-user directory for AppName. On Linux it honors
// xdgVar and falls back to $HOME joined with linuxDefault; elsewhere it uses
// the OS configuration directory.
func (p platform) appDir(xdgVar string, linuxDefault ...string) (string, error) {
	if p.goos != "linux" {
		dir, err := p.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := p.getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := p.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, linuxDefault...), AppName)...), nil
}

// DefaultConfigDir returns the platform configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/browserdb (fallback ~/.config/browserdb)
// macOS:   ~/Library/Application Support/browserdb
// Windows: %APPDATA%/browserdb
func DefaultConfigDir() (string, error) {
	return host.appDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform data directory.
//
// Linux:   $XDG_DATA_HOME/browserdb (fallback ~/.local/share/browserdb)
// macOS and Windows: same as DefaultConfigDir.
func DefaultDataDir() (string, error) {
	return host.appDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir picks the configuration directory:
// flag > BROWSERDB_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if dir := firstSet(flag, host.getenv(EnvConfigDir)); dir != "" {
		return filepath.Abs(dir)
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory:
// flag > config file value > BROWSERDB_DATA_DIR > $(CWD)/.browserdb.
func ResolveDataDir(flag, configValue string) (string, error) {
	if dir := firstSet(flag, configValue, host.getenv(EnvDataDir)); dir != "" {
		return filepath.Abs(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the configuration file path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
