package journal

import (
	"context"
	"strings"
)

// NewStore picks a backend: PostgreSQL when databaseURL is set, SQLite when
// sqlitePath is set, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL, sqlitePath string) (Store, string, error) {
	if strings.TrimSpace(databaseURL) != "" {
		s, err := NewPostgresStore(ctx, databaseURL)
		return s, "postgres", err
	}
	if strings.TrimSpace(sqlitePath) != "" {
		s, err := NewSQLiteStore(ctx, sqlitePath)
		return s, "sqlite", err
	}
	return NewInMemoryStore(), "memory", nil
}
