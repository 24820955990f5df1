package escrow

var zeroAddress [20]byte

func isBuyer(esc *Escrow, caller [20]byte) bool {
	return esc != nil && esc.Buyer == caller
}

func isSeller(esc *Escrow, caller [20]byte) bool {
	return esc != nil && esc.Seller == caller
}

func isParty(esc *Escrow, caller [20]byte) bool {
	return isBuyer(esc, caller) || isSeller(esc, caller)
}

// isOwner reports whether caller is the configured administrator. A zero owner
// disables administrative operations.
func (e *Engine) isOwner(caller [20]byte) bool {
	return e.owner != zeroAddress && e.owner == caller
}

func (e *Engine) isArbiterOrOwner(params Params, caller [20]byte) bool {
	if e.isOwner(caller) {
		return true
	}
	return params.Arbiter != zeroAddress && params.Arbiter == caller
}
