// Package recorder keeps process-wide snapshots of resolved configuration
// for debugging. The pipeline only ever writes to it.
package recorder

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Recorder accepts configuration snapshots keyed by namespace.
type Recorder interface {
	Record(namespace string, snapshot any)
}

// Entry is one recorded snapshot.
type Entry struct {
	Snapshot   any
	RecordedAt time.Time
}

// Memory keeps the latest snapshot per namespace.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *logrus.Logger
}

// NewMemory creates an in-memory recorder. logger may be nil.
func NewMemory(logger *logrus.Logger) *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Record stores snapshot under namespace, replacing any previous one
func (m *Memory) Record(namespace string, snapshot any) {
	m.mu.Lock()
	m.entries[namespace] = Entry{Snapshot: snapshot, RecordedAt: time.Now()}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"namespace": namespace,
			"snapshot":  snapshot,
		}).Debug("State recorded")
	}
}

// Snapshot returns the latest snapshot for namespace
func (m *Memory) Snapshot(namespace string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[namespace]
	return entry.Snapshot, ok
}

// Namespaces returns the number of recorded namespaces
func (m *Memory) Namespaces() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Nop discards every snapshot.
type Nop struct{}

// Record does nothing
func (Nop) Record(string, any) {}
