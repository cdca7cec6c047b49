package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "zero config is valid",
			config:  Config{},
			wantErr: nil,
		},
		{
			name:    "database with path separator returns ErrDatabaseName",
			config:  Config{Database: "../browser.db"},
			wantErr: ErrDatabaseName,
		},
		{
			name:    "dot database returns ErrDatabaseName",
			config:  Config{Database: ".."},
			wantErr: ErrDatabaseName,
		},
		{
			name:    "negative busy timeout returns ErrBusyTimeoutInvalid",
			config:  Config{BusyTimeout: -time.Second},
			wantErr: ErrBusyTimeoutInvalid,
		},
		{
			name:    "negative retries returns ErrBusyRetriesInvalid",
			config:  Config{BusyRetries: -1},
			wantErr: ErrBusyRetriesInvalid,
		},
		{
			name:    "explicit values are valid",
			config:  Config{DataDir: "/tmp/data", Database: "history.db", BusyTimeout: time.Second, BusyRetries: 5},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigNormalize(t *testing.T) {
	got := Config{}.Normalize()
	if got.DataDir != "." {
		t.Errorf("DataDir = %q, want .", got.DataDir)
	}
	if got.Database != DefaultDatabase {
		t.Errorf("Database = %q, want %q", got.Database, DefaultDatabase)
	}
	if got.BusyTimeout != DefaultBusyTimeout {
		t.Errorf("BusyTimeout = %v, want %v", got.BusyTimeout, DefaultBusyTimeout)
	}
	if got.BusyRetries != 0 {
		t.Errorf("BusyRetries = %d, want 0 (explicitly no retries)", got.BusyRetries)
	}

	kept := Config{DataDir: "/x", Database: "a.db", BusyTimeout: time.Second}.Normalize()
	if kept.DataDir != "/x" || kept.Database != "a.db" || kept.BusyTimeout != time.Second {
		t.Errorf("Normalize overwrote explicit values: %+v", kept)
	}
}
