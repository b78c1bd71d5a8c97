package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"yieldrouter/storage"
)

var errEmptyKey = errors.New("kv: key must not be empty")

// Manager provides typed access to the key/value state backing the native
// modules. Values are RLP encoded and keys are hashed with keccak256 before
// they reach the database.
//
// Writes made inside Atomic are buffered in a journal and flushed as a single
// storage batch when the unit succeeds. Manager is not safe for concurrent
// use; callers serialise units of work.
type Manager struct {
	db      storage.Database
	journal *journal
}

type journalEntry struct {
	value   []byte
	deleted bool
}

type journal struct {
	entries map[string]journalEntry
	order   []string
}

func newJournal() *journal {
	return &journal{entries: make(map[string]journalEntry)}
}

func (j *journal) record(key []byte, entry journalEntry) {
	k := string(key)
	if _, seen := j.entries[k]; !seen {
		j.order = append(j.order, k)
	}
	j.entries[k] = entry
}

func (j *journal) batch() *storage.Batch {
	batch := storage.NewBatch()
	for _, k := range j.order {
		entry := j.entries[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	return batch
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Atomic runs fn as one unit of work. Every write performed by fn is
// committed together when fn returns nil; on error or panic the writes are
// discarded and the database is left untouched. A nested call joins the
// enclosing unit.
func (m *Manager) Atomic(fn func() error) (err error) {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	if m.journal != nil {
		return fn()
	}
	m.journal = newJournal()
	defer func() {
		if r := recover(); r != nil {
			m.journal = nil
			panic(r)
		}
	}()
	if err = fn(); err != nil {
		m.journal = nil
		return err
	}
	batch := m.journal.batch()
	m.journal = nil
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// InAtomic reports whether a unit of work is currently open.
func (m *Manager) InAtomic() bool {
	return m != nil && m.journal != nil
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if m.journal != nil {
		if entry, ok := m.journal.entries[string(hashed)]; ok {
			if entry.deleted {
				return nil, nil
			}
			return entry.value, nil
		}
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) write(hashed, encoded []byte) error {
	if m.journal != nil {
		m.journal.record(hashed, journalEntry{value: encoded})
		return nil
	}
	return m.db.Put(hashed, encoded)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.write(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	hashed := kvKey(key)
	if m.journal != nil {
		m.journal.record(hashed, journalEntry{deleted: true})
		return nil
	}
	return m.db.Delete(hashed)
}

// ParamStoreSet writes a raw parameter blob.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	if name == "" {
		return fmt.Errorf("params: name must not be empty")
	}
	return m.KVPut(paramKey(name), value)
}

// ParamStoreGet reads a raw parameter blob.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("params: name must not be empty")
	}
	var value []byte
	ok, err := m.KVGet(paramKey(name), &value)
	if err != nil || !ok {
		return nil, ok, err
	}
	return value, true, nil
}
