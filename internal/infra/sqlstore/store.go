// Package sqlstore keeps transcripts in MySQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"michi-relay/internal/application"
	"michi-relay/internal/domain"
	"michi-relay/internal/infra"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Path is the database file for the sqlite driver.
	Path string
}

// DSN builds the driver specific data source name.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Timeout = 5 * time.Second
		return mc.FormatDSN(), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite driver needs a path")
		}
		return c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", c.Driver)
	}
}

type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database, retrying while it comes up, and creates
// the transcripts table when missing.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	retry := infra.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error) {
		logger.Warn("database not ready", "driver", cfg.Driver, "attempt", attempt, "error", err)
	}
	if err := infra.WithRetry(ctx, retry, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", cfg.Driver, err)
	}

	s := &Store{db: db, driver: cfg.Driver, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("transcript store ready", "driver", cfg.Driver)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var ddl string
	switch s.driver {
	case DriverMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS transcripts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			transcript TEXT NOT NULL,
			created_at DATETIME(6) NOT NULL
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transcript TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Record(ctx context.Context, text string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transcripts (transcript, created_at) VALUES (?, ?)",
		text, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting transcript: %v", domain.ErrPersistenceFailed, err)
	}
	return nil
}

// Recent returns up to limit transcripts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]application.Transcript, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT transcript, created_at FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying transcripts: %v", domain.ErrPersistenceFailed, err)
	}
	defer rows.Close()

	var out []application.Transcript
	for rows.Next() {
		var (
			text string
			raw  any
		)
		if err := rows.Scan(&text, &raw); err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		at, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, application.Transcript{Text: text, CreatedAt: at})
	}
	return out, rows.Err()
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return parseTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", t)
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ServerVersion reports the database engine version.
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	query := "SELECT VERSION()"
	if s.driver == DriverSQLite {
		query = "SELECT sqlite_version()"
	}

	var version string
	if err := s.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("reading server version: %w", err)
	}
	return version, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
