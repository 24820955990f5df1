package state

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"landescrow/core/events"
	"landescrow/core/types"
	"landescrow/native/escrow"
	"landescrow/native/property"
	"landescrow/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestEscrowRecordRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	record := &escrow.Escrow{
		ID:              9,
		LandID:          4,
		Buyer:           addr(0x01),
		Seller:          addr(0x02),
		Amount:          big.NewInt(700),
		Deposit:         big.NewInt(1_000),
		Refunded:        big.NewInt(300),
		FeePaid:         big.NewInt(0),
		SellerPaid:      big.NewInt(0),
		State:           escrow.EscrowConfirmed,
		CreatedAt:       1_700_000_000,
		Deadline:        1_702_592_000,
		AgreementHash:   "blake3:ff",
		ContactInfo:     "+1 555 0100",
		DisputeReason:   "",
		ResolutionNotes: "",
	}

	tx := mgr.Begin()
	require.NoError(t, tx.EscrowPut(record))
	require.NoError(t, tx.Commit())

	tx = mgr.Begin()
	defer tx.Discard()
	got, ok, err := tx.EscrowGet(9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.LandID, got.LandID)
	require.Equal(t, record.Buyer, got.Buyer)
	require.Equal(t, record.Seller, got.Seller)
	require.Equal(t, "700", got.Amount.String())
	require.Equal(t, "1000", got.Deposit.String())
	require.Equal(t, "300", got.Refunded.String())
	require.Equal(t, record.Deadline, got.Deadline)
	require.Equal(t, record.State, got.State)
	require.Equal(t, record.ContactInfo, got.ContactInfo)

	_, ok, err = tx.EscrowGet(10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEscrowPutRejectsUnbalancedRecord(t *testing.T) {
	db := storage.NewMemDB()
	tx := NewManager(db).Begin()
	err := tx.EscrowPut(&escrow.Escrow{
		ID:      1,
		Amount:  big.NewInt(10),
		Deposit: big.NewInt(9),
	})
	require.Error(t, err)
	require.NoError(t, tx.Commit())
	require.Empty(t, db.Keys())
}

func TestNextEscrowIDAndIndices(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	tx := mgr.Begin()
	for want := uint64(1); want <= 3; want++ {
		id, err := tx.NextEscrowID()
		require.NoError(t, err)
		require.Equal(t, want, id)
		require.NoError(t, tx.IndexParty(addr(0x01), id))
		require.NoError(t, tx.IndexLand(5, id))
	}
	require.NoError(t, tx.IndexParty(addr(0x01), 2))
	require.NoError(t, tx.Commit())

	tx = mgr.Begin()
	defer tx.Discard()
	ids, err := tx.PartyEscrows(addr(0x01))
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	ids, err = tx.LandEscrows(5)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	ids, err = tx.LandEscrows(6)
	require.NoError(t, err)
	require.Empty(t, ids)

	id, err := tx.NextEscrowID()
	require.NoError(t, err)
	require.Equal(t, uint64(4), id)
}

func TestCustodyCreditDebit(t *testing.T) {
	tx := NewManager(storage.NewMemDB()).Begin()
	defer tx.Discard()

	require.NoError(t, tx.EscrowCredit(1, big.NewInt(50)))
	require.NoError(t, tx.EscrowCredit(1, big.NewInt(25)))
	require.NoError(t, tx.EscrowDebit(1, big.NewInt(70)))
	balance, err := tx.EscrowBalance(1)
	require.NoError(t, err)
	require.Equal(t, "5", balance.String())

	require.Error(t, tx.EscrowDebit(1, big.NewInt(6)))
	require.Error(t, tx.EscrowCredit(1, big.NewInt(-1)))
	require.Error(t, tx.EscrowDebit(1, nil))

	balance, err = tx.EscrowBalance(2)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestAccountsAndParams(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	tx := mgr.Begin()

	acc, err := tx.GetAccount(addr(0x07))
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Sign())

	acc.Balance.SetInt64(99)
	acc.Credited.SetInt64(100)
	require.NoError(t, tx.PutAccount(addr(0x07), acc))
	bad := types.NewAccount()
	bad.Balance.SetInt64(-1)
	require.Error(t, tx.PutAccount(addr(0x08), bad))
	require.Error(t, tx.PutAccount(addr(0x08), nil))

	_, ok, err := tx.EscrowParams()
	require.NoError(t, err)
	require.False(t, ok)
	params := escrow.Params{FeeBps: 150, MaxFeeBps: 500, FeeCollector: addr(0x0C), Arbiter: addr(0x0A)}
	require.NoError(t, tx.PutEscrowParams(params))
	require.Error(t, tx.PutEscrowParams(escrow.Params{FeeBps: 600, MaxFeeBps: 500}))
	require.NoError(t, tx.Commit())

	stored, err := mgr.Account(addr(0x07))
	require.NoError(t, err)
	require.Equal(t, "99", stored.Balance.String())
	require.Equal(t, "100", stored.Credited.String())

	tx = mgr.Begin()
	defer tx.Discard()
	got, ok, err := tx.EscrowParams()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, params, got)
}

// TestEngineAgainstPersistentStore drives a full escrow lifecycle through the
// engine with LevelDB underneath, reopening the store between steps.
func TestEngineAgainstPersistentStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	owner, buyer, seller, collector := addr(0xF0), addr(0x11), addr(0x22), addr(0xFC)
	lands := property.NewStatic(property.Land{ID: 1, Owner: seller, Price: big.NewInt(2_000), ForSale: true})

	var recorded []string
	open := func() (*escrow.Engine, func()) {
		db, err := storage.NewLevelDB(dir)
		require.NoError(t, err)
		_, err = CheckSchema(db, false)
		require.NoError(t, err)
		engine := escrow.NewEngine()
		engine.SetState(NewManager(db))
		engine.SetDirectory(lands)
		engine.SetOwner(owner)
		params := escrow.DefaultParams()
		params.FeeCollector = collector
		require.NoError(t, engine.SetDefaultParams(params))
		engine.SetNowFunc(func() int64 { return 1_700_000_000 })
		engine.SetEmitter(events.EmitterFunc(func(evt events.Event) {
			recorded = append(recorded, evt.EventType())
		}))
		return engine, db.Close
	}

	engine, closeDB := open()
	_, err := engine.Credit(owner, buyer, big.NewInt(2_000))
	require.NoError(t, err)
	esc, err := engine.Create(context.Background(), buyer, 1, 30, "", "", big.NewInt(2_000))
	require.NoError(t, err)
	require.Equal(t, uint64(1), esc.ID)

	_, err = engine.Create(context.Background(), buyer, 1, 30, "", "", big.NewInt(1))
	require.ErrorIs(t, err, escrow.ErrTransferFailed)
	require.NoError(t, engine.Confirm(seller, esc.ID))
	closeDB()

	engine, closeDB = open()
	defer closeDB()
	require.NoError(t, engine.IssuePartialRefund(seller, esc.ID, big.NewInt(500), "survey"))
	require.NoError(t, engine.IssuePartialRefund(seller, esc.ID, big.NewInt(500), "survey"))
	require.NoError(t, engine.Complete(buyer, esc.ID))

	stored, err := engine.Escrow(esc.ID)
	require.NoError(t, err)
	require.Equal(t, escrow.EscrowCompleted, stored.State)
	require.Equal(t, "0", stored.Amount.String())
	require.Equal(t, "1000", stored.Refunded.String())
	require.Equal(t, "990", stored.SellerPaid.String())
	require.Equal(t, "10", stored.FeePaid.String())

	for who, want := range map[[20]byte]string{buyer: "1000", seller: "990", collector: "10", escrow.VaultAddress: "0"} {
		balance, err := engine.Balance(who)
		require.NoError(t, err)
		require.Equal(t, want, balance.String(), "balance of %x", who)
	}
	custody, err := engine.CustodyBalance(esc.ID)
	require.NoError(t, err)
	require.Zero(t, custody.Sign())

	ids, err := engine.UserEscrows(seller)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	require.Equal(t, []string{
		escrow.EventTypeEscrowCreated,
		escrow.EventTypeEscrowConfirmed,
		escrow.EventTypePartialRefundIssued,
		escrow.EventTypePartialRefundIssued,
		escrow.EventTypeEscrowCompleted,
	}, recorded)
}
