// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"fmt"
)

// OpenStore creates a Store for the configured backend, wrapped with
// operation metrics.
func OpenStore(backend, path string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory":
		return NewInstrumentedStore(NewMemoryStore(), backend), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		s, err := NewSqliteStore(path)
		if err != nil {
			return nil, err
		}
		return NewInstrumentedStore(s, backend), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
