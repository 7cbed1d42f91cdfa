//go:build cgo

package sqlstore

import (
	"database/sql"
	"fmt"

	_ "github.com/dolthub/driver"
)

// openEmbeddedDB opens the embedded Dolt engine via dolthub/driver, which
// requires CGO. dbDir is an absolute path to the Dolt data directory;
// database is the schema name created within it.
func openEmbeddedDB(dbDir, database string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file://%s?commitname=stoneforge&commitemail=stoneforge@localhost&database=%s", dbDir, database)
	db, err := sql.Open("dolt", dsn)
	if err != nil {
		return nil, fmt.Errorf("open embedded dolt engine: %w", err)
	}
	db.SetMaxOpenConns(1) // the embedded engine is single-connection; dolthub/driver serializes internally
	return db, nil
}
