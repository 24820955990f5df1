package state

import (
	"errors"
	"fmt"

	"landescrow/storage"
)

// CurrentSchema is the ledger layout this binary reads and writes. Bump it
// when an escrow, account or index record changes encoding.
const CurrentSchema uint32 = 1

// ErrSchemaMismatch is returned when the store was written by a different
// ledger layout.
var ErrSchemaMismatch = errors.New("state: ledger schema mismatch")

var schemaKey = []byte("meta/schema")

type schemaStamp struct {
	Version uint32
}

// SchemaVersion reads the stamped layout version. ok is false for a store
// that has never been stamped.
func (m *Manager) SchemaVersion() (version uint32, ok bool, err error) {
	if m == nil {
		return 0, false, errors.New("state: manager unavailable")
	}
	var stamp schemaStamp
	ok, err = m.KVGet(schemaKey, &stamp)
	if err != nil || !ok {
		return 0, ok, err
	}
	return stamp.Version, true, nil
}

func (m *Manager) stampSchema(version uint32) error {
	return m.KVPut(schemaKey, schemaStamp{Version: version})
}

// CheckSchema stamps an empty store with CurrentSchema and otherwise returns
// the stamped version. A different version fails with ErrSchemaMismatch
// unless allowMigrate is set.
func CheckSchema(db storage.Database, allowMigrate bool) (uint32, error) {
	if db == nil {
		return 0, errors.New("state: database must not be nil")
	}
	mgr := NewManager(db)
	stored, ok, err := mgr.SchemaVersion()
	if err != nil {
		return 0, err
	}
	if !ok {
		return CurrentSchema, mgr.stampSchema(CurrentSchema)
	}
	if stored != CurrentSchema && !allowMigrate {
		return stored, fmt.Errorf("%w: store has %d, binary expects %d", ErrSchemaMismatch, stored, CurrentSchema)
	}
	return stored, nil
}
