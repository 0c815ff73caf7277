// Package ledger provides the durable task stores behind task.Store.
package ledger

import (
	"fmt"

	"mediaproc/config"
	"mediaproc/task"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the store selected by LEDGER_DRIVER.
func Open(cfg *config.Config) (task.Store, error) {
	switch cfg.LedgerDriver {
	case DriverJSON, "":
		return NewFileStore(cfg.LedgerPath)
	case DriverSQLite:
		return NewSQLStore(cfg.LedgerPath)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.LedgerDriver)
	}
}
