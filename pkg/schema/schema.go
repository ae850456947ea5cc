package schema

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsTable records the applied version
const MigrationsTable = "schema_migrations"

// Source returns the embedded migrations as a golang-migrate source.
// Files are named <version>_<description>.{up,down}.sql.
func Source() (source.Driver, error) {
	return newSource(migrationFiles, "migrations")
}

func newSource(fsys fs.FS, dir string) (source.Driver, error) {
	driver, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	return driver, nil
}

// Apply migrates db to the latest embedded version. It is safe to run on
// every boot; concurrent callers serialize on a Postgres advisory lock.
func Apply(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	src, err := Source()
	if err != nil {
		return err
	}

	// A dedicated connection keeps the driver's Close away from the shared pool
	conn, err := db.Conn(ctx)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	target, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		src.Close()
		conn.Close()
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		src.Close()
		target.Close()
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	from, err := currentVersion(m)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	to, err := currentVersion(m)
	if err != nil {
		return err
	}

	log := logger.WithFields(logrus.Fields{"from": from, "to": to})
	if from == to {
		log.Debug("Schema is up to date")
	} else {
		log.Info("Schema migrated")
	}
	return nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty, fix it manually and force the version", version)
	}
	return version, nil
}

// migrateLogger adapts logrus to migrate.Logger
type migrateLogger struct {
	logger logrus.FieldLogger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(strings.TrimSpace(format), v...)
}

func (l migrateLogger) Verbose() bool {
	return false
}
