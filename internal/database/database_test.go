package database

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/lesspay/internal/models"
)

func TestMigrateCreatesTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = Close(conn) })

	if err := Migrate(conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, model := range []interface{}{&models.User{}, &models.Transaction{}} {
		if !conn.Migrator().HasTable(model) {
			t.Errorf("table for %T was not created", model)
		}
	}
	if !conn.Migrator().HasIndex(&models.Transaction{}, "GatewayTxnID") {
		t.Error("expected unique index on gateway_txn_id")
	}
	if !conn.Migrator().HasColumn(&models.User{}, "bank_ifsc_code") {
		t.Error("expected embedded bank details columns on users")
	}
}

func TestEnsureDatabaseSkipsNonPostgresDSN(t *testing.T) {
	if err := ensureDatabase("file::memory:"); err != nil {
		t.Fatalf("ensureDatabase returned error for sqlite dsn: %v", err)
	}
	if err := ensureDatabase("postgres://localhost:5432"); err != nil {
		t.Fatalf("ensureDatabase returned error for dsn without a database name: %v", err)
	}
}

func TestGormLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug": logger.Info,
		"error": logger.Error,
		"info":  logger.Warn,
		"":      logger.Warn,
	}
	for input, want := range cases {
		if got := gormLogLevel(input); got != want {
			t.Errorf("gormLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
