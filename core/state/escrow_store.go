package state

import (
	"fmt"
	"math"
	"math/big"

	"landescrow/native/escrow"
)

// storedEscrow is the RLP layout of an escrow record. rlp has no signed
// integers, so timestamps are stored unsigned.
type storedEscrow struct {
	ID              uint64
	LandID          uint64
	Buyer           [20]byte
	Seller          [20]byte
	Amount          *big.Int
	Deposit         *big.Int
	Refunded        *big.Int
	FeePaid         *big.Int
	SellerPaid      *big.Int
	State           uint8
	CreatedAt       uint64
	Deadline        uint64
	CompletedAt     uint64
	AgreementHash   string
	ContactInfo     string
	CancelReason    string
	DisputeReason   string
	ResolutionNotes string
}

type storedParams struct {
	FeeBps       uint32
	MaxFeeBps    uint32
	FeeCollector [20]byte
	Arbiter      [20]byte
}

func toUnix(v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("state: negative timestamp %d", v)
	}
	return uint64(v), nil
}

func fromUnix(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("state: timestamp overflow %d", v)
	}
	return int64(v), nil
}

func newStoredEscrow(e *escrow.Escrow) (*storedEscrow, error) {
	createdAt, err := toUnix(e.CreatedAt)
	if err != nil {
		return nil, err
	}
	deadline, err := toUnix(e.Deadline)
	if err != nil {
		return nil, err
	}
	completedAt, err := toUnix(e.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &storedEscrow{
		ID:              e.ID,
		LandID:          e.LandID,
		Buyer:           e.Buyer,
		Seller:          e.Seller,
		Amount:          e.Amount,
		Deposit:         e.Deposit,
		Refunded:        e.Refunded,
		FeePaid:         e.FeePaid,
		SellerPaid:      e.SellerPaid,
		State:           uint8(e.State),
		CreatedAt:       createdAt,
		Deadline:        deadline,
		CompletedAt:     completedAt,
		AgreementHash:   e.AgreementHash,
		ContactInfo:     e.ContactInfo,
		CancelReason:    e.CancelReason,
		DisputeReason:   e.DisputeReason,
		ResolutionNotes: e.ResolutionNotes,
	}, nil
}

func (s *storedEscrow) toEscrow() (*escrow.Escrow, error) {
	createdAt, err := fromUnix(s.CreatedAt)
	if err != nil {
		return nil, err
	}
	deadline, err := fromUnix(s.Deadline)
	if err != nil {
		return nil, err
	}
	completedAt, err := fromUnix(s.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &escrow.Escrow{
		ID:              s.ID,
		LandID:          s.LandID,
		Buyer:           s.Buyer,
		Seller:          s.Seller,
		Amount:          s.Amount,
		Deposit:         s.Deposit,
		Refunded:        s.Refunded,
		FeePaid:         s.FeePaid,
		SellerPaid:      s.SellerPaid,
		State:           escrow.EscrowState(s.State),
		CreatedAt:       createdAt,
		Deadline:        deadline,
		CompletedAt:     completedAt,
		AgreementHash:   s.AgreementHash,
		ContactInfo:     s.ContactInfo,
		CancelReason:    s.CancelReason,
		DisputeReason:   s.DisputeReason,
		ResolutionNotes: s.ResolutionNotes,
	}, nil
}

// EscrowPut validates and stores the escrow record.
func (tx *Tx) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	record, err := newStoredEscrow(sanitized)
	if err != nil {
		return err
	}
	return tx.KVPut(EscrowRecordKey(sanitized.ID), record)
}

// EscrowGet loads the escrow record. The boolean reports whether it exists.
func (tx *Tx) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	var record storedEscrow
	ok, err := tx.KVGet(EscrowRecordKey(id), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	esc, err := record.toEscrow()
	if err != nil {
		return nil, false, err
	}
	sanitized, err := escrow.SanitizeEscrow(esc)
	if err != nil {
		return nil, false, fmt.Errorf("state: escrow %d: %w", id, err)
	}
	return sanitized, true, nil
}

// NextEscrowID reserves and returns the next escrow identifier. Identifiers
// start at 1.
func (tx *Tx) NextEscrowID() (uint64, error) {
	var last uint64
	if _, err := tx.KVGet(escrowNextIDKey, &last); err != nil {
		return 0, err
	}
	if last == math.MaxUint64 {
		return 0, fmt.Errorf("state: escrow id space exhausted")
	}
	next := last + 1
	if err := tx.KVPut(escrowNextIDKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// IndexParty records id under the party index for addr.
func (tx *Tx) IndexParty(addr [20]byte, id uint64) error {
	return tx.kvAppendID(EscrowPartyIndexKey(addr), id)
}

// IndexLand records id under the land index for landID.
func (tx *Tx) IndexLand(landID uint64, id uint64) error {
	return tx.kvAppendID(EscrowLandIndexKey(landID), id)
}

// PartyEscrows lists escrows in which addr is buyer or seller.
func (tx *Tx) PartyEscrows(addr [20]byte) ([]uint64, error) {
	return tx.kvGetIDs(EscrowPartyIndexKey(addr))
}

// LandEscrows lists escrows opened against landID.
func (tx *Tx) LandEscrows(landID uint64) ([]uint64, error) {
	return tx.kvGetIDs(EscrowLandIndexKey(landID))
}

// EscrowBalance returns the custody balance held for escrow id.
func (tx *Tx) EscrowBalance(id uint64) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := tx.KVGet(EscrowCustodyKey(id), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// EscrowCredit increases the custody balance of escrow id.
func (tx *Tx) EscrowCredit(id uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid custody credit %v", amt)
	}
	balance, err := tx.EscrowBalance(id)
	if err != nil {
		return err
	}
	return tx.KVPut(EscrowCustodyKey(id), balance.Add(balance, amt))
}

// EscrowDebit decreases the custody balance of escrow id. The balance never
// goes negative.
func (tx *Tx) EscrowDebit(id uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid custody debit %v", amt)
	}
	balance, err := tx.EscrowBalance(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: custody for escrow %d holds %s, cannot debit %s", id, balance, amt)
	}
	return tx.KVPut(EscrowCustodyKey(id), balance.Sub(balance, amt))
}

// EscrowParams loads the persisted engine parameters.
func (tx *Tx) EscrowParams() (escrow.Params, bool, error) {
	var stored storedParams
	ok, err := tx.KVGet(escrowParamsKey, &stored)
	if err != nil || !ok {
		return escrow.Params{}, false, err
	}
	return escrow.Params{
		FeeBps:       stored.FeeBps,
		MaxFeeBps:    stored.MaxFeeBps,
		FeeCollector: stored.FeeCollector,
		Arbiter:      stored.Arbiter,
	}, true, nil
}

// PutEscrowParams persists the engine parameters.
func (tx *Tx) PutEscrowParams(p escrow.Params) error {
	if err := p.Policy().Validate(); err != nil {
		return err
	}
	return tx.KVPut(escrowParamsKey, &storedParams{
		FeeBps:       p.FeeBps,
		MaxFeeBps:    p.MaxFeeBps,
		FeeCollector: p.FeeCollector,
		Arbiter:      p.Arbiter,
	})
}
