// Package store owns the inventory schema and its migrations.
package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationURL rewrites a postgres connection URL to the scheme understood by
// the pgx/v5 migrate driver.
func MigrationURL(databaseURL string) (string, error) {
	trimmed := strings.TrimSpace(databaseURL)
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(trimmed, scheme) {
			return "pgx5://" + strings.TrimPrefix(trimmed, scheme), nil
		}
	}
	if strings.HasPrefix(trimmed, "pgx5://") {
		return trimmed, nil
	}
	return "", fmt.Errorf("store: unsupported database url scheme in %q", redact(trimmed))
}

// Migrate applies the embedded migrations. A schema that is already current is
// not an error. The returned version is the schema version afterwards.
func Migrate(databaseURL string, dir Direction) (uint, error) {
	url, err := MigrationURL(databaseURL)
	if err != nil {
		return 0, err
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("store: open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return 0, fmt.Errorf("store: init migrate: %w", err)
	}
	defer m.Close()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return 0, fmt.Errorf("store: unknown direction %q", dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("store: migrate %s: %w", dir, err)
	}

	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read version: %w", err)
	}
	return version, nil
}

func redact(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
		return url[:scheme+3] + "***" + url[at:]
	}
	return "***" + url[at:]
}
