package state

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"flashvault/storage"
)

// Manager provides typed access to the key-value store backing the vault
// ledger. Values are RLP encoded. All writes are journaled so a caller can
// snapshot the state before a multi-step mutation and unwind every write if
// the sequence fails partway through.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	journal []journalEntry
}

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.db.Get(key)
	if err == storage.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and stores it under key, journaling the prior value.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.recordLocked(key); err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVDelete removes the value stored under key, journaling the prior value.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.recordLocked(key); err != nil {
		return err
	}
	return m.db.Delete(key)
}

// recordLocked journals the key's prior value. A read failure other than
// not-found aborts the write: journaling existed=false for a key that may
// hold a value would turn a later revert into a delete.
func (m *Manager) recordLocked(key []byte) error {
	entry := journalEntry{key: append([]byte(nil), key...)}
	prev, err := m.db.Get(key)
	switch {
	case err == nil:
		entry.prev = prev
		entry.existed = true
	case err != storage.ErrKeyNotFound:
		return fmt.Errorf("state: journal read %q: %w", key, err)
	}
	m.journal = append(m.journal, entry)
	return nil
}

// Snapshot marks the current journal position. The returned identifier can be
// handed to RevertToSnapshot to undo every write performed after this call.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journal)
}

// RevertToSnapshot unwinds all writes performed after the snapshot was taken,
// restoring each key to its prior value in reverse order.
func (m *Manager) RevertToSnapshot(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id > len(m.journal) {
		return fmt.Errorf("state: invalid snapshot id %d", id)
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		var err error
		if entry.existed {
			err = m.db.Put(entry.key, entry.prev)
		} else {
			err = m.db.Delete(entry.key)
		}
		if err != nil {
			return fmt.Errorf("state: revert %q: %w", entry.key, err)
		}
	}
	m.journal = m.journal[:id]
	return nil
}

// DiscardSnapshot drops the undo records accumulated since the snapshot was
// taken. Callers invoke it once a mutation sequence has fully succeeded so the
// journal does not grow without bound.
func (m *Manager) DiscardSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id > len(m.journal) {
		return
	}
	m.journal = m.journal[:id]
}
