package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"landescrow/core/types"
)

const (
	EventTypeEscrowCreated       = "escrow.created"
	EventTypeEscrowConfirmed     = "escrow.confirmed"
	EventTypeEscrowCompleted     = "escrow.completed"
	EventTypeEscrowCancelled     = "escrow.cancelled"
	EventTypeEscrowRefunded      = "escrow.refunded"
	EventTypeDisputeRaised       = "escrow.dispute_raised"
	EventTypeDisputeResolved     = "escrow.dispute_resolved"
	EventTypePartialRefundIssued = "escrow.partial_refund"
	EventTypePlatformFeeUpdated  = "escrow.fee_updated"
	EventTypeParamsUpdated       = "escrow.params_updated"
)

// EventTypes lists every event type the engine emits.
var EventTypes = []string{
	EventTypeEscrowCreated,
	EventTypeEscrowConfirmed,
	EventTypeEscrowCompleted,
	EventTypeEscrowCancelled,
	EventTypeEscrowRefunded,
	EventTypeDisputeRaised,
	EventTypeDisputeResolved,
	EventTypePartialRefundIssued,
	EventTypePlatformFeeUpdated,
	EventTypeParamsUpdated,
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload for a newly created escrow.
func NewCreatedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowCreated, e)
	if e == nil {
		return evt
	}
	evt.Attributes["landId"] = strconv.FormatUint(e.LandID, 10)
	evt.Attributes["buyer"] = hex.EncodeToString(e.Buyer[:])
	evt.Attributes["seller"] = hex.EncodeToString(e.Seller[:])
	evt.Attributes["amount"] = cloneBigInt(e.Amount).String()
	evt.Attributes["deadline"] = strconv.FormatInt(e.Deadline, 10)
	return evt
}

// NewConfirmedEvent returns the payload emitted when the seller confirms.
func NewConfirmedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowConfirmed, e) }

// NewCompletedEvent returns the payload for a completed sale with its fee split.
func NewCompletedEvent(e *Escrow, net, fee *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowCompleted, e)
	evt.Attributes["netAmount"] = cloneBigInt(net).String()
	evt.Attributes["fee"] = cloneBigInt(fee).String()
	return evt
}

// NewCancelledEvent returns the payload emitted when an escrow is cancelled or
// expires.
func NewCancelledEvent(e *Escrow, reason string) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowCancelled, e)
	evt.Attributes["reason"] = reason
	return evt
}

// NewRefundedEvent returns the payload for value returned to the buyer.
func NewRefundedEvent(e *Escrow, amount *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowRefunded, e)
	evt.Attributes["amount"] = cloneBigInt(amount).String()
	return evt
}

func NewDisputeRaisedEvent(e *Escrow, reason string) *types.Event {
	evt := newEscrowEvent(EventTypeDisputeRaised, e)
	evt.Attributes["reason"] = reason
	return evt
}

func NewDisputeResolvedEvent(e *Escrow, refundedToBuyer bool, notes string) *types.Event {
	evt := newEscrowEvent(EventTypeDisputeResolved, e)
	evt.Attributes["refundedToBuyer"] = strconv.FormatBool(refundedToBuyer)
	evt.Attributes["notes"] = notes
	return evt
}

func NewPartialRefundEvent(e *Escrow, amount *big.Int, notes string) *types.Event {
	evt := newEscrowEvent(EventTypePartialRefundIssued, e)
	evt.Attributes["amount"] = cloneBigInt(amount).String()
	evt.Attributes["notes"] = notes
	return evt
}

// NewPlatformFeeUpdatedEvent records a fee rate change.
func NewPlatformFeeUpdatedEvent(oldBps, newBps uint32) *types.Event {
	return &types.Event{
		Type: EventTypePlatformFeeUpdated,
		Attributes: map[string]string{
			"oldFeeBps": strconv.FormatUint(uint64(oldBps), 10),
			"newFeeBps": strconv.FormatUint(uint64(newBps), 10),
		},
	}
}

// NewParamsUpdatedEvent records a fee collector or arbiter change.
func NewParamsUpdatedEvent(field string, value [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeParamsUpdated,
		Attributes: map[string]string{
			"field": field,
			"value": hex.EncodeToString(value[:]),
		},
	}
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["escrowId"] = strconv.FormatUint(e.ID, 10)
	attrs["state"] = e.State.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
