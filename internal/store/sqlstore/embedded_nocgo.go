//go:build !cgo

package sqlstore

import (
	"database/sql"
	"fmt"
)

// openEmbeddedDB fails on non-CGO builds: the embedded Dolt engine is only
// reachable through github.com/dolthub/driver, which requires CGO. Build
// with CGO_ENABLED=1 for embedded mode, or use Config.ServerMode against a
// running dolt sql-server instead.
func openEmbeddedDB(_, _ string) (*sql.DB, error) {
	return nil, fmt.Errorf("sqlstore: embedded mode requires CGO_ENABLED=1; use server mode instead")
}
