// Package storage persists extracted records into SQL databases. Backends
// register themselves by kind; see the sqlite, postgres and mssql packages.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic write side used by the record sink.
//
// Each backend implements dedupe in its own idiomatic way (Postgres ON
// CONFLICT, SQLite OR IGNORE, SQL Server NOT EXISTS).
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureTables creates missing tables. It is safe to run on every load.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// InsertRows inserts rows aligned with columns. When dedupeColumns is
	// non-empty, rows whose dedupe key already exists are skipped. It returns
	// the number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init.
//
// Register panics if kind is empty, f is nil, or kind is already taken.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
