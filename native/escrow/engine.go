package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"landescrow/core/events"
	"landescrow/core/types"
	"landescrow/native/property"
)

// VaultAddress is the custody account holding every escrowed deposit.
var VaultAddress = vaultAddress("landescrow/vault")

func vaultAddress(label string) [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte(label))[12:])
	return addr
}

// Ledger is a write overlay over persisted escrow state. Writes become visible
// only when Commit succeeds; Discard drops them.
type Ledger interface {
	EscrowGet(id uint64) (*Escrow, bool, error)
	EscrowPut(*Escrow) error
	NextEscrowID() (uint64, error)
	IndexParty(addr [20]byte, id uint64) error
	IndexLand(landID uint64, id uint64) error
	PartyEscrows(addr [20]byte) ([]uint64, error)
	LandEscrows(landID uint64) ([]uint64, error)
	EscrowCredit(id uint64, amt *big.Int) error
	EscrowDebit(id uint64, amt *big.Int) error
	EscrowBalance(id uint64) (*big.Int, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	EscrowParams() (Params, bool, error)
	PutEscrowParams(Params) error
	Commit() error
	Discard()
}

type engineState interface {
	BeginLedger() Ledger
}

// Engine runs the escrow state machine. Mutations are serialised by a single
// writer lock and each one executes inside its own ledger transaction; events
// are emitted only after the transaction commits.
type Engine struct {
	mu       sync.RWMutex
	state    engineState
	lands    property.Directory
	emitter  events.Emitter
	owner    [20]byte
	defaults Params
	nowFn    func() int64
}

// NewEngine creates an escrow engine with a no-op emitter and the default fee
// parameters.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		defaults: DefaultParams(),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetDirectory configures the property directory consulted at creation.
func (e *Engine) SetDirectory(dir property.Directory) { e.lands = dir }

// SetOwner configures the administrator address.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// Owner returns the administrator address.
func (e *Engine) Owner() [20]byte { return e.owner }

// SetDefaultParams sets the parameters used until an administrator persists
// new ones.
func (e *Engine) SetDefaultParams(params Params) error {
	if err := params.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFee, err)
	}
	e.defaults = params
	return nil
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// update runs fn inside a ledger transaction. The caller must hold the write
// lock. Any error discards every write made by fn.
func (e *Engine) update(fn func(tx Ledger) ([]*types.Event, error)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	tx := e.state.BeginLedger()
	emitted, err := fn(tx)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		tx.Discard()
		return fmt.Errorf("escrow: commit: %w", err)
	}
	for _, evt := range emitted {
		e.emit(evt)
	}
	return nil
}

// view runs fn against a read-only transaction. The caller must hold at least
// the read lock.
func (e *Engine) view(fn func(tx Ledger) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	tx := e.state.BeginLedger()
	defer tx.Discard()
	return fn(tx)
}

func (e *Engine) params(tx Ledger) (Params, error) {
	params, ok, err := tx.EscrowParams()
	if err != nil {
		return Params{}, err
	}
	if !ok {
		return e.defaults, nil
	}
	return params, nil
}

func loadEscrow(tx Ledger, id uint64) (*Escrow, error) {
	esc, ok, err := tx.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: escrow %d", ErrNotFound, id)
	}
	return esc, nil
}

func (e *Engine) transfer(tx Ledger, from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 || from == to {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer amount", ErrTransferFailed)
	}
	fromAcc, err := tx.GetAccount(from)
	if err != nil {
		return fmt.Errorf("%w: load %x: %v", ErrTransferFailed, from, err)
	}
	toAcc, err := tx.GetAccount(to)
	if err != nil {
		return fmt.Errorf("%w: load %x: %v", ErrTransferFailed, to, err)
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: insufficient balance: have %s, need %s", ErrTransferFailed, fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := tx.PutAccount(from, fromAcc); err != nil {
		return fmt.Errorf("%w: store %x: %v", ErrTransferFailed, from, err)
	}
	if err := tx.PutAccount(to, toAcc); err != nil {
		return fmt.Errorf("%w: store %x: %v", ErrTransferFailed, to, err)
	}
	return nil
}

// release moves amount out of the escrow's custody balance to recipient.
func (e *Engine) release(tx Ledger, esc *Escrow, recipient [20]byte, amount *big.Int) error {
	if cloneBigInt(amount).Sign() == 0 {
		return nil
	}
	if err := tx.EscrowDebit(esc.ID, amount); err != nil {
		return fmt.Errorf("%w: custody debit: %v", ErrTransferFailed, err)
	}
	return e.transfer(tx, VaultAddress, recipient, amount)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	if acc.Credited == nil {
		acc.Credited = big.NewInt(0)
	}
	return acc
}

// Create opens an escrow against landID and moves deposit from the caller's
// account into custody. The caller becomes the buyer and the directory owner
// the seller.
func (e *Engine) Create(ctx context.Context, caller [20]byte, landID uint64, durationDays int64, contactInfo, agreementHash string, deposit *big.Int) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.lands == nil {
		return nil, errNilDirectory
	}
	if caller == VaultAddress {
		return nil, fmt.Errorf("%w: custody vault cannot open escrows", ErrUnauthorized)
	}
	land, ok, err := e.lands.Land(ctx, landID)
	if err != nil {
		return nil, fmt.Errorf("escrow: property lookup %d: %w", landID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: land %d does not exist", ErrInvalidLand, landID)
	}
	if land.Owner == caller {
		return nil, fmt.Errorf("%w: land %d", ErrSelfDealing, landID)
	}
	if land.Owner == VaultAddress {
		return nil, fmt.Errorf("%w: land %d is held by the custody vault", ErrInvalidLand, landID)
	}
	amt := cloneBigInt(deposit)
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	if durationDays < MinDurationDays || durationDays > MaxDurationDays {
		return nil, fmt.Errorf("%w: %d days outside [%d, %d]", ErrInvalidDuration, durationDays, MinDurationDays, MaxDurationDays)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var created *Escrow
	err = e.update(func(tx Ledger) ([]*types.Event, error) {
		id, err := tx.NextEscrowID()
		if err != nil {
			return nil, err
		}
		now := e.now()
		esc := &Escrow{
			ID:            id,
			LandID:        landID,
			Buyer:         caller,
			Seller:        land.Owner,
			Amount:        amt,
			Deposit:       new(big.Int).Set(amt),
			Refunded:      big.NewInt(0),
			FeePaid:       big.NewInt(0),
			SellerPaid:    big.NewInt(0),
			State:         EscrowCreated,
			CreatedAt:     now,
			Deadline:      now + durationDays*secondsPerDay,
			AgreementHash: agreementHash,
			ContactInfo:   contactInfo,
		}
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		if err := tx.IndexParty(esc.Buyer, id); err != nil {
			return nil, err
		}
		if err := tx.IndexParty(esc.Seller, id); err != nil {
			return nil, err
		}
		if err := tx.IndexLand(landID, id); err != nil {
			return nil, err
		}
		if err := tx.EscrowCredit(id, amt); err != nil {
			return nil, fmt.Errorf("%w: custody credit: %v", ErrTransferFailed, err)
		}
		if err := e.transfer(tx, caller, VaultAddress, amt); err != nil {
			return nil, err
		}
		created = esc
		return []*types.Event{NewCreatedEvent(esc)}, nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// Confirm records the seller's acceptance of a created escrow.
func (e *Engine) Confirm(caller [20]byte, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		if !isSeller(esc, caller) {
			return nil, authError("confirm", caller, id)
		}
		if esc.State != EscrowCreated {
			return nil, stateError("confirm", esc)
		}
		esc.State = EscrowConfirmed
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		return []*types.Event{NewConfirmedEvent(esc)}, nil
	})
}

// Complete finalises a confirmed escrow. The remaining custody is split into
// the platform fee and the seller's net proceeds. Only the buyer may complete.
func (e *Engine) Complete(caller [20]byte, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		if !isBuyer(esc, caller) {
			return nil, authError("complete", caller, id)
		}
		if esc.State != EscrowConfirmed {
			return nil, stateError("complete", esc)
		}
		net, fee, err := e.settle(tx, esc, EscrowCompleted)
		if err != nil {
			return nil, err
		}
		return []*types.Event{NewCompletedEvent(esc, net, fee)}, nil
	})
}

// settle pays the remaining custody out to the seller and fee collector and
// moves the escrow into final. State is written before funds move.
func (e *Engine) settle(tx Ledger, esc *Escrow, final EscrowState) (*big.Int, *big.Int, error) {
	params, err := e.params(tx)
	if err != nil {
		return nil, nil, err
	}
	split := params.Policy().Compute(esc.Amount)
	collector := params.FeeCollector
	if collector == zeroAddress {
		collector = e.owner
	}
	if split.Fee.Sign() > 0 && collector == zeroAddress {
		return nil, nil, fmt.Errorf("%w: fee collector not configured", ErrTransferFailed)
	}

	esc.State = final
	if final == EscrowCompleted {
		esc.CompletedAt = e.now()
	}
	esc.Amount = big.NewInt(0)
	esc.SellerPaid = new(big.Int).Add(cloneBigInt(esc.SellerPaid), split.Net)
	esc.FeePaid = new(big.Int).Add(cloneBigInt(esc.FeePaid), split.Fee)
	if err := tx.EscrowPut(esc); err != nil {
		return nil, nil, err
	}
	if err := e.release(tx, esc, esc.Seller, split.Net); err != nil {
		return nil, nil, err
	}
	if err := e.release(tx, esc, collector, split.Fee); err != nil {
		return nil, nil, err
	}
	return split.Net, split.Fee, nil
}

// refundRemaining returns every unit still in custody to the buyer and moves
// the escrow into the refunded state.
func (e *Engine) refundRemaining(tx Ledger, esc *Escrow) (*big.Int, error) {
	amount := cloneBigInt(esc.Amount)
	esc.State = EscrowRefunded
	esc.Amount = big.NewInt(0)
	esc.Refunded = new(big.Int).Add(cloneBigInt(esc.Refunded), amount)
	if err := tx.EscrowPut(esc); err != nil {
		return nil, err
	}
	if err := e.release(tx, esc, esc.Buyer, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// Cancel withdraws an escrow and refunds the buyer in full. The buyer may
// cancel a created escrow; once confirmed either party may cancel. The escrow
// ends in the refunded state with the reason recorded.
func (e *Engine) Cancel(caller [20]byte, id uint64, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		if !isParty(esc, caller) {
			return nil, authError("cancel", caller, id)
		}
		switch esc.State {
		case EscrowCreated:
			if !isBuyer(esc, caller) {
				return nil, authError("cancel", caller, id)
			}
		case EscrowConfirmed:
		default:
			return nil, stateError("cancel", esc)
		}
		esc.CancelReason = reason
		refunded, err := e.refundRemaining(tx, esc)
		if err != nil {
			return nil, err
		}
		return []*types.Event{NewCancelledEvent(esc, reason), NewRefundedEvent(esc, refunded)}, nil
	})
}

// Expire refunds a created escrow whose deadline has passed. Anyone may
// trigger it.
func (e *Engine) Expire(caller [20]byte, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		if esc.State != EscrowCreated {
			return nil, stateError("expire", esc)
		}
		if now := e.now(); now < esc.Deadline {
			return nil, fmt.Errorf("%w: escrow %d deadline %d not reached at %d", ErrInvalidState, id, esc.Deadline, now)
		}
		esc.CancelReason = ExpiredReason
		refunded, err := e.refundRemaining(tx, esc)
		if err != nil {
			return nil, err
		}
		return []*types.Event{NewCancelledEvent(esc, ExpiredReason), NewRefundedEvent(esc, refunded)}, nil
	})
}

// RaiseDispute freezes a confirmed escrow pending arbitration.
func (e *Engine) RaiseDispute(caller [20]byte, id uint64, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		if !isParty(esc, caller) {
			return nil, authError("dispute", caller, id)
		}
		if esc.State != EscrowConfirmed {
			return nil, stateError("dispute", esc)
		}
		esc.State = EscrowDisputed
		esc.DisputeReason = reason
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		return []*types.Event{NewDisputeRaisedEvent(esc, reason)}, nil
	})
}

// ResolveDispute settles a disputed escrow. When refundToBuyer is set the
// buyer receives the remaining custody; otherwise it is released to the seller
// with the platform fee applied.
func (e *Engine) ResolveDispute(caller [20]byte, id uint64, refundToBuyer bool, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		params, err := e.params(tx)
		if err != nil {
			return nil, err
		}
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		// A party never arbitrates its own escrow, even as owner or arbiter.
		if isParty(esc, caller) {
			return nil, authError("resolve", caller, id)
		}
		if !e.isArbiterOrOwner(params, caller) {
			return nil, authError("resolve", caller, id)
		}
		if esc.State != EscrowDisputed {
			return nil, stateError("resolve", esc)
		}
		esc.ResolutionNotes = notes
		if refundToBuyer {
			refunded, err := e.refundRemaining(tx, esc)
			if err != nil {
				return nil, err
			}
			return []*types.Event{NewDisputeResolvedEvent(esc, true, notes), NewRefundedEvent(esc, refunded)}, nil
		}
		if _, _, err := e.settle(tx, esc, EscrowResolved); err != nil {
			return nil, err
		}
		return []*types.Event{NewDisputeResolvedEvent(esc, false, notes)}, nil
	})
}

// IssuePartialRefund lets the seller return part of a confirmed deposit. The
// escrow stays confirmed with the reduced custody amount.
func (e *Engine) IssuePartialRefund(caller [20]byte, id uint64, amount *big.Int, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return nil, err
		}
		if !isSeller(esc, caller) {
			return nil, authError("partially refund", caller, id)
		}
		if esc.State != EscrowConfirmed {
			return nil, stateError("partially refund", esc)
		}
		amt := cloneBigInt(amount)
		if amt.Sign() <= 0 {
			return nil, fmt.Errorf("%w: refund must be positive", ErrInvalidAmount)
		}
		if amt.Cmp(esc.Amount) > 0 {
			return nil, fmt.Errorf("%w: refund %s exceeds remaining %s", ErrInvalidAmount, amt, esc.Amount)
		}
		esc.Amount = new(big.Int).Sub(esc.Amount, amt)
		esc.Refunded = new(big.Int).Add(cloneBigInt(esc.Refunded), amt)
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		if err := e.release(tx, esc, esc.Buyer, amt); err != nil {
			return nil, err
		}
		return []*types.Event{NewPartialRefundEvent(esc, amt, notes)}, nil
	})
}

// UpdatePlatformFee sets the fee rate applied to future settlements.
func (e *Engine) UpdatePlatformFee(caller [20]byte, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isOwner(caller) {
		return fmt.Errorf("%w: %x is not the owner", ErrUnauthorized, caller)
	}
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		params, err := e.params(tx)
		if err != nil {
			return nil, err
		}
		policy, err := params.Policy().WithRate(bps)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFee, err)
		}
		old := params.FeeBps
		params.FeeBps = policy.FeeBps
		if err := tx.PutEscrowParams(params); err != nil {
			return nil, err
		}
		return []*types.Event{NewPlatformFeeUpdatedEvent(old, params.FeeBps)}, nil
	})
}

// UpdateFeeCollector changes the address credited with platform fees.
func (e *Engine) UpdateFeeCollector(caller [20]byte, collector [20]byte) error {
	if collector == zeroAddress {
		return fmt.Errorf("%w: fee collector must be set", ErrInvalidFee)
	}
	return e.updateParams(caller, "feeCollector", func(p *Params) { p.FeeCollector = collector }, collector)
}

// UpdateArbiter changes the dispute arbiter. The zero address leaves dispute
// resolution to the owner alone.
func (e *Engine) UpdateArbiter(caller [20]byte, arbiter [20]byte) error {
	return e.updateParams(caller, "arbiter", func(p *Params) { p.Arbiter = arbiter }, arbiter)
}

func (e *Engine) updateParams(caller [20]byte, field string, mutate func(*Params), value [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isOwner(caller) {
		return fmt.Errorf("%w: %x is not the owner", ErrUnauthorized, caller)
	}
	return e.update(func(tx Ledger) ([]*types.Event, error) {
		params, err := e.params(tx)
		if err != nil {
			return nil, err
		}
		mutate(&params)
		if err := tx.PutEscrowParams(params); err != nil {
			return nil, err
		}
		return []*types.Event{NewParamsUpdatedEvent(field, value)}, nil
	})
}

// Credit adds amount to an account balance. It is the owner-only on-ramp that
// funds buyers before they open escrows.
func (e *Engine) Credit(caller [20]byte, to [20]byte, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isOwner(caller) {
		return nil, fmt.Errorf("%w: %x is not the owner", ErrUnauthorized, caller)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: credit must be positive", ErrInvalidAmount)
	}
	if to == VaultAddress {
		return nil, fmt.Errorf("%w: cannot credit the custody vault", ErrUnauthorized)
	}
	var balance *big.Int
	err := e.update(func(tx Ledger) ([]*types.Event, error) {
		acc, err := tx.GetAccount(to)
		if err != nil {
			return nil, err
		}
		acc = ensureAccount(acc)
		acc.Balance = new(big.Int).Add(acc.Balance, amt)
		acc.Credited = new(big.Int).Add(acc.Credited, amt)
		if err := tx.PutAccount(to, acc); err != nil {
			return nil, err
		}
		balance = new(big.Int).Set(acc.Balance)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Escrow returns a copy of the escrow record.
func (e *Engine) Escrow(id uint64) (*Escrow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out *Escrow
	err := e.view(func(tx Ledger) error {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return err
		}
		out = esc.Clone()
		return nil
	})
	return out, err
}

// UserEscrows lists the ids of escrows where addr is buyer or seller, in
// creation order.
func (e *Engine) UserEscrows(addr [20]byte) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []uint64
	err := e.view(func(tx Ledger) error {
		var err error
		ids, err = tx.PartyEscrows(addr)
		return err
	})
	return ids, err
}

// LandEscrows lists the ids of escrows opened against landID, in creation
// order.
func (e *Engine) LandEscrows(landID uint64) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []uint64
	err := e.view(func(tx Ledger) error {
		var err error
		ids, err = tx.LandEscrows(landID)
		return err
	})
	return ids, err
}

// Params returns the effective engine parameters.
func (e *Engine) Params() (Params, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var params Params
	err := e.view(func(tx Ledger) error {
		var err error
		params, err = e.params(tx)
		return err
	})
	return params, err
}

// Balance returns the spendable balance of addr.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	balance := big.NewInt(0)
	err := e.view(func(tx Ledger) error {
		acc, err := tx.GetAccount(addr)
		if err != nil {
			return err
		}
		balance = cloneBigInt(ensureAccount(acc).Balance)
		return nil
	})
	return balance, err
}

// CustodyBalance returns the value the vault holds for escrow id.
func (e *Engine) CustodyBalance(id uint64) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var balance *big.Int
	err := e.view(func(tx Ledger) error {
		if _, err := loadEscrow(tx, id); err != nil {
			return err
		}
		var err error
		balance, err = tx.EscrowBalance(id)
		return err
	})
	return balance, err
}

// VerifyAgreement reports whether document matches the agreement hash recorded
// on escrow id.
func (e *Engine) VerifyAgreement(id uint64, document []byte) (bool, error) {
	esc, err := e.Escrow(id)
	if err != nil {
		return false, err
	}
	return MatchAgreement(esc.AgreementHash, document), nil
}
