package database

import (
	"testing"

	"github.com/igvedmak/parkspeak/internal/config"

	"go.uber.org/zap"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", SQLitePath: "file:migrate?mode=memory&cache=shared", LogLevel: "silent"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	for i := 0; i < 2; i++ {
		if err := Migrate(db, zap.NewNop()); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}
	for _, table := range []string{"hearing_tests", "hearing_trials"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s missing", table)
		}
	}
	if !db.Migrator().HasIndex("hearing_trials", "idx_hearing_trials_position") {
		t.Error("position index missing")
	}
}
