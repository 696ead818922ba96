// Package dbtest opens throwaway in-memory SQLite databases carrying the
// bizdir schema, so repository tests exercise real SQL without a server.
package dbtest

import (
	"testing"

	"github.com/jmoiron/sqlx"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// schema mirrors db/migrations in SQLite syntax.
var schema = []string{
	`CREATE TABLE person (
		id         TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name  TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		is_active  BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE role (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT 1,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE permission (
		id         TEXT PRIMARY KEY,
		code       TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE role_permission (
		role_id       TEXT NOT NULL REFERENCES role (id) ON DELETE CASCADE,
		permission_id TEXT NOT NULL REFERENCES permission (id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE app_user (
		id                    TEXT PRIMARY KEY,
		person_id             TEXT NOT NULL UNIQUE REFERENCES person (id) ON DELETE CASCADE,
		password_hash         TEXT NOT NULL,
		user_type             TEXT NOT NULL DEFAULT 'internal',
		is_active             BOOLEAN NOT NULL DEFAULT 1,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until          DATETIME NULL,
		created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE app_user_role (
		app_user_id TEXT NOT NULL REFERENCES app_user (id) ON DELETE CASCADE,
		role_id     TEXT NOT NULL REFERENCES role (id) ON DELETE CASCADE,
		PRIMARY KEY (app_user_id, role_id)
	)`,
	`CREATE TABLE event_type (
		id         TEXT PRIMARY KEY,
		code       TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		is_active  BOOLEAN NOT NULL DEFAULT 1,
		created_by TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE audit_log (
		id              TEXT PRIMARY KEY,
		app_user_id     TEXT NULL,
		performed_by_id TEXT NULL,
		event_date      DATETIME NOT NULL,
		event_type_id   TEXT NULL REFERENCES event_type (id) ON DELETE SET NULL,
		table_name      TEXT NULL,
		record_id       TEXT NULL,
		event_details   TEXT NULL
	)`,
}

// Open returns a fresh in-memory database with the schema applied. The pool
// is pinned to one connection because each SQLite :memory: connection is
// its own database.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("applying schema: %v\n%s", err, stmt)
		}
	}
	return db
}

// MustExec runs a fixture statement, failing the test on error. Placeholders
// use '?' and are rebound for the test driver.
func MustExec(t testing.TB, db *sqlx.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(db.Rebind(query), args...); err != nil {
		t.Fatalf("fixture exec failed: %v\n%s", err, query)
	}
}
