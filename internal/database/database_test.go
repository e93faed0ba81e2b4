package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"pbi-sync-service/internal/config"
)

func TestExecTx(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase(config.StateStorage{Type: DriverSQLite, FilePath: filepath.Join(t.TempDir(), "nested", "tx.db")})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer db.Close()

	if _, err := db.DB.ExecContext(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err = db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES (1)`)
		return err
	})
	if err != nil {
		t.Fatalf("ExecTx commit: %v", err)
	}

	boom := errors.New("boom")
	err = db.ExecTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES (2)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ExecTx rollback error = %v, want boom", err)
	}

	var n int
	if err := db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1 (second insert rolled back)", n)
	}
}

func TestNewDatabaseRejectsUnknownType(t *testing.T) {
	if _, err := NewDatabase(config.StateStorage{Type: "oracle"}); err == nil {
		t.Fatal("NewDatabase(oracle) succeeded, want error")
	}
}
