package authstore

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// L2 is the optional SQLite-backed persistent tier of the auth store. A nil
// *L2 is a first-class, explicitly-checked variant of the store (see §9):
// every call site that touches L2 checks for nil before use.
type L2 struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// OpenL2 opens or creates a SQLite database at path and runs its migrations.
func OpenL2(path string) (*L2, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("authstore l2 open: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	l2 := &L2{conn: conn}
	if err := l2.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authstore l2 migrate: %w", err)
	}
	return l2, nil
}

func (l2 *L2) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("authstore l2 migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(l2.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("authstore l2 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("authstore l2 migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("authstore l2 migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (l2 *L2) Close() error {
	return l2.conn.Close()
}

// Get reads a live row for key, returning (value, residual TTL, found).
// Expired rows are treated as misses and lazily deleted.
func (l2 *L2) Get(key string) (string, time.Duration, bool) {
	l2.mu.RLock()
	defer l2.mu.RUnlock()

	var value string
	var expiresAt int64
	err := l2.conn.QueryRow(
		`SELECT value, expires_at FROM auth_cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		return "", 0, false
	}

	residual := time.Until(time.Unix(expiresAt, 0))
	if residual <= 0 {
		go l2.delete(key)
		return "", 0, false
	}
	return value, residual, true
}

// Set upserts key->value with the given TTL.
func (l2 *L2) Set(key, value string, ttl time.Duration) error {
	l2.mu.Lock()
	defer l2.mu.Unlock()

	now := time.Now()
	expiresAt := now.Add(ttl).Unix()
	_, err := l2.conn.Exec(`
		INSERT INTO auth_cache (key, value, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, expiresAt, now.Unix())
	if err != nil {
		return fmt.Errorf("authstore l2 set %q: %w", key, err)
	}
	return nil
}

// delete removes key from L2, used for lazy expiry cleanup.
func (l2 *L2) delete(key string) {
	l2.mu.Lock()
	defer l2.mu.Unlock()
	_, _ = l2.conn.Exec(`DELETE FROM auth_cache WHERE key = ?`, key)
}

// Health checks database connectivity with a ping.
func (l2 *L2) Health() error {
	return l2.conn.Ping()
}
