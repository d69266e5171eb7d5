package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Migration System Overview:
//
// The schema version is an integer stored in system_setting under schemaVersionKey.
//
// Migration Flow:
// 1. preMigrate: if the database is not initialized, apply LATEST.sql and record the
//    current schema version.
// 2. Migrate: apply every incremental file newer than the recorded version, in one
//    transaction, then record the new version.
//
// Migration Files:
// - Location: store/migration/{driver}/NN__description.sql
// - NN is the schema version the file upgrades to.
// - LATEST.sql: full schema for new installations, equivalent to all incremental files.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the version and the description in the migration file name.
	// For example, "01__create_table.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	schemaVersionKey = "schema_version"
)

// Migrate brings the database schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	recorded, err := s.getRecordedSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get recorded schema version")
	}
	current, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}

	if recorded > current {
		slog.Error("cannot downgrade schema version",
			slog.Int("databaseVersion", recorded),
			slog.Int("currentVersion", current),
		)
		return errors.Errorf("cannot downgrade schema version from %d to %d", recorded, current)
	}
	if recorded < current {
		if err := s.applyMigrations(ctx, recorded, current); err != nil {
			return errors.Wrap(err, "failed to apply migrations")
		}
	}
	return nil
}

// applyMigrations applies all migration files in (currentSchemaVersion, targetSchemaVersion].
// It runs all migrations in a single transaction for atomicity.
func (s *Store) applyMigrations(ctx context.Context, currentSchemaVersion, targetSchemaVersion int) error {
	filePaths, err := s.listMigrationFiles()
	if err != nil {
		return err
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("start migration",
		slog.Int("currentSchemaVersion", currentSchemaVersion),
		slog.Int("targetSchemaVersion", targetSchemaVersion))

	migrationsApplied := 0
	for _, filePath := range filePaths {
		fileSchemaVersion, err := getSchemaVersionOfMigrateScript(filePath)
		if err != nil {
			return err
		}
		if fileSchemaVersion <= currentSchemaVersion || fileSchemaVersion > targetSchemaVersion {
			continue
		}

		slog.Info("applying migration",
			slog.String("file", filePath),
			slog.Int("version", fileSchemaVersion))

		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		migrationsApplied++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}

	slog.Info("migration completed", slog.Int("migrationsApplied", migrationsApplied))

	return s.driver.UpsertSystemSetting(ctx, schemaVersionKey, strconv.Itoa(targetSchemaVersion))
}

// preMigrate checks if the database is initialized and applies the latest schema if not.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Errorf("failed to read latest schema file: %s", err)
	}
	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()
	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Errorf("failed to execute SQL file %s, err %s", filePath, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	schemaVersion, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}
	slog.Info("database initialized successfully", slog.Int("schemaVersion", schemaVersion))
	return s.driver.UpsertSystemSetting(ctx, schemaVersionKey, strconv.Itoa(schemaVersion))
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

func (s *Store) listMigrationFiles() ([]string, error) {
	filePaths, err := fs.Glob(migrationFS, s.getMigrationBasePath()+"*"+MigrateFileNameSplit+"*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)
	return filePaths, nil
}

// GetCurrentSchemaVersion returns the version of the newest migration file, 0 if none.
func (s *Store) GetCurrentSchemaVersion() (int, error) {
	filePaths, err := s.listMigrationFiles()
	if err != nil {
		return 0, err
	}
	if len(filePaths) == 0 {
		return 0, nil
	}
	return getSchemaVersionOfMigrateScript(filePaths[len(filePaths)-1])
}

func (s *Store) getRecordedSchemaVersion(ctx context.Context) (int, error) {
	raw, err := s.driver.GetSystemSetting(ctx, schemaVersionKey)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid recorded schema version %q", raw)
	}
	return v, nil
}

// getSchemaVersionOfMigrateScript extracts the schema version from a file name like
// "migration/sqlite/02__add_index.sql".
func getSchemaVersionOfMigrateScript(filePath string) (int, error) {
	filename := filepath.Base(filepath.ToSlash(filePath))
	parts := strings.SplitN(filename, MigrateFileNameSplit, 2)
	if len(parts) < 2 {
		return 0, errors.Errorf("invalid migration filename format (missing %s): %s", MigrateFileNameSplit, filename)
	}
	v, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Wrapf(err, "migration filename must start with a number: %s", filename)
	}
	return v, nil
}

// execute executes a SQL script within a transaction.
// PostgreSQL needs one statement per ExecContext call.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if s.profile.Driver == "postgres" {
		for i, single := range splitSQL(stmt) {
			if _, err := tx.ExecContext(ctx, single); err != nil {
				return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, single)
			}
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}

// splitSQL splits a script into statements on semicolons outside quotes and comments.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder
	inSingleQuote := false

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inSingleQuote && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			if ch == '\'' {
				inSingleQuote = !inSingleQuote
			}
			if !inSingleQuote && ch == '-' && i+1 < len(line) && line[i+1] == '-' {
				break
			}
			current.WriteByte(ch)
			if ch == ';' && !inSingleQuote {
				if stmt := strings.TrimSpace(current.String()); stmt != "" {
					statements = append(statements, stmt)
				}
				current.Reset()
			}
		}
		current.WriteByte('\n')
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
