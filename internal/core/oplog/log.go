// Package oplog keeps the append-only history of external calls made by a
// client instance.
package oplog

import (
	"sync"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// Log is an append-only, concurrency-safe sequence of operation log entries.
// The zero value is ready to use.
type Log struct {
	mu      sync.RWMutex
	entries []core.OperationLogEntry
}

// Append adds one entry. It never rejects.
func (l *Log) Append(entry core.OperationLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// All returns a copy of the entries in insertion order.
func (l *Log) All() []core.OperationLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]core.OperationLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log. Only call it between independent batches.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
