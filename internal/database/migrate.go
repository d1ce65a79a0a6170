package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/eapproval/internal/logger"
)

// MigrationFiles returns the .sql files of dir sorted by name (001, 002, ...).
func MigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}

// Migrate executes every migration of dir in order. Migrations are written
// to be idempotent (IF NOT EXISTS), so running it on a migrated database is a
// no-op. It returns the number of files applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir string) (int, error) {
	files, err := MigrationFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", dir)
	}

	log := logger.FromContext(ctx)
	for i, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return i, fmt.Errorf("failed to read migration %s: %w", filepath.Base(file), err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return i, fmt.Errorf("failed to apply migration %s: %w", filepath.Base(file), err)
		}
		log.Info("migration applied", slog.String("file", filepath.Base(file)))
	}

	return len(files), nil
}
