package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bleepstore/objio/internal/config"
)

// New validates cfg and creates the IOManager for its connection type.
// The returned manager's engine is already running; callers must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (IOManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	opts := EngineOptions(cfg, logger)
	conn := cfg.Connection

	switch conn.Type {
	case config.AWS:
		return checked(NewS3Manager(ctx, conn.AWS, opts))
	case config.Azure:
		return checked(NewAzureManager(conn.Azure, opts))
	case config.AzurePresigned:
		return checked(NewAzurePresignedManager(conn.AzurePresigned, opts))
	case config.GoogleStorage:
		return checked(NewGCSManager(ctx, conn.GCS, opts))
	case config.HTTP:
		return NewHTTPManager(conn.HTTP, opts), nil
	case config.InMemory:
		return checked(NewInMemoryManager(conn.InMemory, opts))
	case config.File:
		return checked(NewFileManager(conn.File, opts))
	}
	return nil, fmt.Errorf("unknown connection type %q", conn.Type)
}

// checked converts a constructor result to IOManager without producing a
// non-nil interface around a nil pointer.
func checked[M IOManager](m M, err error) (IOManager, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}
