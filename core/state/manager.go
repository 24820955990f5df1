package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"landescrow/native/escrow"
	"landescrow/storage"
)

var errTxClosed = errors.New("state: transaction closed")

// Manager persists ledger state in a key-value store. All writes go through a
// Tx so they land in the store as one atomic batch.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided store.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write overlay over the store.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string][]byte)}
}

// BeginLedger satisfies the escrow engine's state dependency.
func (m *Manager) BeginLedger() escrow.Ledger { return m.Begin() }

// KVPut RLP-encodes value and writes it straight to the store. Prefer a Tx for
// anything that must be atomic with other writes.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	tx := m.Begin()
	if err := tx.KVPut(key, value); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	tx := m.Begin()
	defer tx.Discard()
	return tx.KVGet(key, out)
}

// Tx buffers writes in memory. Reads observe the buffered writes first and
// fall through to the store. Commit applies every buffered write in a single
// storage batch; Discard drops them. A Tx is not safe for concurrent use.
type Tx struct {
	db     storage.Database
	writes map[string][]byte
	closed bool
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, errTxClosed
	}
	hashed := kvKey(key)
	if data, ok := tx.writes[string(hashed)]; ok {
		return data, true, nil
	}
	data, err := tx.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// KVPut RLP-encodes value into the overlay.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if tx.closed {
		return errTxClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.writes[string(kvKey(key))] = encoded
	return nil
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// kvAppendID appends id to the list stored under key. Duplicates are ignored
// to keep the index deterministic.
func (tx *Tx) kvAppendID(key []byte, id uint64) error {
	var list []uint64
	if _, err := tx.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if existing == id {
			return nil
		}
	}
	return tx.KVPut(key, append(list, id))
}

func (tx *Tx) kvGetIDs(key []byte) ([]uint64, error) {
	var list []uint64
	if _, err := tx.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Commit writes the overlay to the store atomically and closes the Tx.
func (tx *Tx) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := tx.db.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), tx.writes[k])
	}
	tx.writes = nil
	return tx.db.Write(batch)
}

// Discard drops all buffered writes. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
}
