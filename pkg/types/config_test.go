package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "postgres", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "unknown log level returns ErrLogLevelUnknown",
			config:  Config{Backend: "sqlite", LogLevel: "loud"},
			wantErr: ErrLogLevelUnknown,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: nil,
		},
		{
			name:    "explicit log level is valid",
			config:  Config{Backend: "sqlite", LogLevel: "debug"},
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
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigDatabasePath(t *testing.T) {
	c := Config{Backend: BackendSQLite}
	if got := c.DatabasePath(); got != DefaultDatabaseFile {
		t.Errorf("DatabasePath() = %q, want default %q", got, DefaultDatabaseFile)
	}
	c.DatabaseFile = "graphs.db"
	if got := c.DatabasePath(); got != "graphs.db" {
		t.Errorf("DatabasePath() = %q, want graphs.db", got)
	}
}
