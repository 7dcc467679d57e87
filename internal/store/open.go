package store

import (
	"fmt"
	"log/slog"

	"kitmsg/internal/domain"
)

// Open returns the ParameterStore for driver ("memory" or "sqlite").
func Open(driver, dbPath string, logger *slog.Logger) (domain.ParameterStore, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dbPath, logger)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}
