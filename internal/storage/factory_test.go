package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bleepstore/objio/internal/config"
)

func TestNewSelectsBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name  string
		setup func(*config.Config)
		check func(IOManager) bool
	}{
		{
			name:  "inmemory",
			setup: func(c *config.Config) {},
			check: func(m IOManager) bool { _, ok := m.(*InMemoryManager); return ok },
		},
		{
			name: "file",
			setup: func(c *config.Config) {
				c.Connection.Type = config.File
				c.Connection.File.RootDir = t.TempDir()
			},
			check: func(m IOManager) bool { _, ok := m.(*FileManager); return ok },
		},
		{
			name: "http",
			setup: func(c *config.Config) {
				c.Connection.Type = config.HTTP
				c.Connection.HTTP.URL = "http://127.0.0.1:1/objects"
			},
			check: func(m IOManager) bool { _, ok := m.(*HTTPManager); return ok },
		},
		{
			name: "aws",
			setup: func(c *config.Config) {
				c.Connection.Type = config.AWS
				c.Connection.AWS.Bucket = "b"
				c.Connection.AWS.AccessKeyID = "AKID"
				c.Connection.AWS.SecretAccessKey = "secret"
			},
			check: func(m IOManager) bool { _, ok := m.(*S3Manager); return ok },
		},
		{
			name: "azure",
			setup: func(c *config.Config) {
				c.Connection.Type = config.Azure
				c.Connection.Azure.Container = "c"
				c.Connection.Azure.AccountName = "acct"
				c.Connection.Azure.AccountKey = devAccountKey
			},
			check: func(m IOManager) bool { _, ok := m.(*AzureManager); return ok },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.setup(cfg)
			m, err := New(context.Background(), cfg, logger)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			closeManager(t, m)
			if !tt.check(m) {
				t.Errorf("New returned %T", m)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Connection.Type = config.AWS
	m, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		m.Close()
		t.Fatal("expected error for aws without bucket")
	}
	if m != nil {
		t.Errorf("New returned non-nil manager %T with error", m)
	}
}
