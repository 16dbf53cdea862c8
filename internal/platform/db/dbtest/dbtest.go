// Package dbtest provides a throwaway MySQL instance for integration tests.
// One container is started per test binary and shared across tests; call
// Reset to start a test from an empty database.
package dbtest

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"biblio-backend/internal/platform/db"
)

var (
	once    sync.Once
	shared  *sql.DB
	initErr error
)

// New returns a connection to a migrated MySQL container. Tests are skipped
// when no container runtime is available.
func New(t *testing.T) *sql.DB {
	t.Helper()

	once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		container, err := tcmysql.Run(ctx, "mysql:8.0",
			tcmysql.WithDatabase("biblio_test"),
			tcmysql.WithUsername("biblio"),
			tcmysql.WithPassword("biblio"),
		)
		if err != nil {
			initErr = err
			return
		}

		dsn, err := container.ConnectionString(ctx, "parseTime=true", "loc=UTC")
		if err != nil {
			initErr = err
			return
		}

		conn, err := sql.Open("mysql", dsn)
		if err != nil {
			initErr = err
			return
		}
		conn.SetMaxOpenConns(10)
		if err := conn.PingContext(ctx); err != nil {
			initErr = err
			return
		}
		if err := db.Migrate(ctx, conn); err != nil {
			initErr = err
			return
		}
		shared = conn
	})

	if initErr != nil {
		t.Skipf("mysql container unavailable: %v", initErr)
	}
	return shared
}

// Reset truncates every table.
func Reset(t *testing.T, conn *sql.DB) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`SET FOREIGN_KEY_CHECKS = 0`,
		`TRUNCATE TABLE notifications`,
		`TRUNCATE TABLE emprunt_exemplaire`,
		`TRUNCATE TABLE emprunts`,
		`TRUNCATE TABLE exemplaires`,
		`TRUNCATE TABLE documents`,
		`TRUNCATE TABLE membres`,
		`TRUNCATE TABLE admins`,
		`SET FOREIGN_KEY_CHECKS = 1`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("reset database: %v", err)
		}
	}
}
