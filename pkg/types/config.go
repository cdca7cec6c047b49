package types

import (
	"errors"
	"time"
)

// Config holds the storage location and engine parameters for a browser
// profile database.
type Config struct {
	DataDir     string        `json:"data_dir" yaml:"data_dir"`
	Database    string        `json:"database" yaml:"database"`
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
	BusyRetries int           `json:"busy_retries" yaml:"busy_retries"`
}

// Defaults applied by Normalize.
const (
	DefaultDatabase    = "browser.db"
	DefaultBusyTimeout = 5 * time.Second
	DefaultBusyRetries = 3
)

// Config validation errors.
var (
	ErrDatabaseName       = errors.New("database name must be a plain file name")
	ErrBusyTimeoutInvalid = errors.New("busy timeout must not be negative")
	ErrBusyRetriesInvalid = errors.New("busy retries must not be negative")
)

// Validate checks that the Config is well-formed. An empty DataDir means
// the current directory.
func (c Config) Validate() error {
	if c.Database != "" && !isPlainFileName(c.Database) {
		return ErrDatabaseName
	}
	if c.BusyTimeout < 0 {
		return ErrBusyTimeoutInvalid
	}
	if c.BusyRetries < 0 {
		return ErrBusyRetriesInvalid
	}
	return nil
}

// Normalize returns a copy of c with zero values replaced by defaults.
func (c Config) Normalize() Config {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	return c
}

func isPlainFileName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 {
			return false
		}
	}
	return true
}
