package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/persistence/file"
	"github.com/quorumlabs/warden/pkg/persistence/postgresql"
)

// NewPersistence selects a persistence implementation from the database
// URL scheme. "postgres://" and "postgresql://" select PostgreSQL;
// everything else falls back to file persistence.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return persist
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	return parts[0]
}
