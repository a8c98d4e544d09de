package storage

import "fmt"

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend    string // "file", "sqlite" or "memory"
	Dir        string // directory for the file backend
	SQLitePath string // database path for the sqlite backend
}

// Open constructs the Store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
