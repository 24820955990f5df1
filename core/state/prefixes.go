package state

import (
	"encoding/binary"
)

var (
	escrowRecordPrefix  = []byte("escrow/record/")
	escrowCustodyPrefix = []byte("escrow/custody/")
	escrowPartyPrefix   = []byte("escrow/index/party/")
	escrowLandPrefix    = []byte("escrow/index/land/")
	escrowNextIDKey     = []byte("escrow/next-id")
	escrowParamsKey     = []byte("escrow/params")
	accountPrefix       = []byte("account/")
)

func withUint64(prefix []byte, v uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], v)
	return buf
}

func withAddress(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(addr))
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return buf
}

// EscrowRecordKey returns the storage key for the escrow record.
func EscrowRecordKey(id uint64) []byte { return withUint64(escrowRecordPrefix, id) }

// EscrowCustodyKey returns the storage key for the vault balance held for id.
func EscrowCustodyKey(id uint64) []byte { return withUint64(escrowCustodyPrefix, id) }

// EscrowPartyIndexKey returns the key listing escrows where addr is a party.
func EscrowPartyIndexKey(addr [20]byte) []byte { return withAddress(escrowPartyPrefix, addr) }

// EscrowLandIndexKey returns the key listing escrows opened against landID.
func EscrowLandIndexKey(landID uint64) []byte { return withUint64(escrowLandPrefix, landID) }

// AccountKey returns the storage key for an account balance.
func AccountKey(addr [20]byte) []byte { return withAddress(accountPrefix, addr) }
