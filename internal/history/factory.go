package history

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise a bounded in-memory ring.
func NewStore(ctx context.Context, databaseURL string, maxInMemory int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(maxInMemory), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
