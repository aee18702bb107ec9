package storagetest

import (
	"fmt"
	"github.com/google/uuid"
	"osm4cities/storage"
	"testing"
)

// OpenRepository creates a migrated in-memory SQLite database which is only visible to the calling test.
func OpenRepository(t *testing.T) *storage.Repository {
	t.Helper()

	db, err := storage.Open(storage.DriverSqlite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("Unable to open test database: %+v", err)
	}

	sqlDb, err := db.DB()
	if err != nil {
		t.Fatalf("Unable to get test database handle: %+v", err)
	}
	// One connection serializes concurrent access, SQLite would otherwise report locked tables.
	sqlDb.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDb.Close()
	})

	err = storage.Migrate(db)
	if err != nil {
		t.Fatalf("Unable to migrate test database: %+v", err)
	}

	return storage.NewRepository(db)
}
