package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store wraps the GORM connection over a single SQLite file.
type Store struct {
	DB    *gorm.DB
	sqlDB *sql.DB
}

// Config holds database configuration.
type Config struct {
	Path     string          // Path to SQLite database file
	MaxConns int             // Maximum number of open connections (default: 1)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// NewStore opens the database, runs pending migrations and applies the
// durability pragmas. Safe to call more than once on the same path: the
// migration runner only applies versions beyond the recorded maximum.
func NewStore(cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := cfg.Path + "?_foreign_keys=ON"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := gorm.Open(sqlite.Dialector{
		Conn: sqlDB,
	}, &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	// The store is a single-writer engine and every operation funnels
	// through one connection. A known bottleneck, accepted for simplicity
	// at this request volume.
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Migrations run before the pragmas so a half-created schema never
	// reaches WAL mode. Failure here is fatal to the caller.
	if err := runMigrations(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	journalMode := "WAL"
	if !localFilesystem(cfg.Path) {
		// WAL on a network mount corrupts under concurrent mappers.
		journalMode = "TRUNCATE"
		log.Info().Str("path", cfg.Path).Msg("network-looking path, using TRUNCATE journal mode")
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=" + journalMode); err != nil {
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	log.Debug().Str("path", cfg.Path).Str("journal_mode", journalMode).Msg("database initialized")

	return &Store{DB: db, sqlDB: sqlDB}, nil
}

// localFilesystem reports whether path looks like a local mount. The probe
// is a heuristic: macOS network shares live under /Volumes, and nfs/smb
// mounts usually announce themselves in the path.
func localFilesystem(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	lower := strings.ToLower(abs)
	if strings.Contains(abs, "/Volumes/") {
		return false
	}
	if strings.Contains(lower, "/nfs/") || strings.Contains(lower, "/smb/") {
		return false
	}
	return true
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	return currentVersion(s.DB)
}
