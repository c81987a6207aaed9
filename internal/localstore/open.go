package localstore

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open builds the named backend rooted at dataDir.
func Open(name, dataDir string, logger *zap.SugaredLogger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendBadger:
		return OpenBadger(WithBadgerDir(dataDir), WithBadgerLogger(logger))
	case BackendSQLite:
		return OpenSQLite(dataDir)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want badger, sqlite or memory)", name)
	}
}
