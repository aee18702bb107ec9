package storage

import (
	"fmt"
	"github.com/google/uuid"
	"testing"
)

// openTestRepository is the in-package counterpart of storagetest.OpenRepository, which can't be imported here.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := Open(DriverSqlite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("Unable to open test database: %+v", err)
	}

	sqlDb, err := db.DB()
	if err != nil {
		t.Fatalf("Unable to get test database handle: %+v", err)
	}
	sqlDb.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDb.Close()
	})

	err = Migrate(db)
	if err != nil {
		t.Fatalf("Unable to migrate test database: %+v", err)
	}

	return NewRepository(db)
}
