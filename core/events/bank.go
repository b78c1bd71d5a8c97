package events

import "math/big"

// TypeTransfer is emitted for every non-zero balance movement made through the
// bank transfer capability.
const TypeTransfer = "bank.transfer"

// Transfer captures a fungible balance movement.
type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Memo   string
}

// EventType implements the Event interface.
func (Transfer) EventType() string { return TypeTransfer }
