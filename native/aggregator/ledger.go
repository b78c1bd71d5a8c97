package aggregator

import (
	"fmt"
	"math/big"

	"yieldrouter/crypto"
)

// Ledger owns the per-(user, protocol) position records. Positions are
// created on first deposit and never removed.
type Ledger struct {
	st store
}

func newLedger(st store) *Ledger {
	return &Ledger{st: st}
}

// Get returns the position for the pair, a zero position when none exists.
func (l *Ledger) Get(user crypto.Address, id ProtocolID) (*Position, error) {
	position, _, err := l.st.position(user, id)
	return position, err
}

// Credit adds amount to the position after folding pending rewards at the old
// principal, then restarts the principal basis at height. Earlier unclaimed
// rewards are kept.
func (l *Ledger) Credit(user crypto.Address, protocol *Protocol, amount *big.Int, height uint64) (*Position, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	position, err := l.Get(user, protocol.ID)
	if err != nil {
		return nil, err
	}
	settle(position, protocol.APY, height)
	position.Amount = new(big.Int).Add(position.Amount, amount)
	position.DepositHeight = height
	position.AccrualHeight = height
	if err := l.st.putPosition(position); err != nil {
		return nil, err
	}
	return position, nil
}

// Debit removes amount from the position. Rewards earned up to height are
// folded into the snapshot first so the reduced principal only affects future
// accrual.
func (l *Ledger) Debit(user crypto.Address, protocol *Protocol, amount *big.Int, height uint64) (*Position, *big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	position, err := l.Get(user, protocol.ID)
	if err != nil {
		return nil, nil, err
	}
	if position.Amount.Cmp(amount) < 0 {
		return nil, nil, fmt.Errorf("%w: have %s, requested %s", ErrInsufficientBalance, position.Amount, amount)
	}
	folded := settle(position, protocol.APY, height)
	position.Amount = new(big.Int).Sub(position.Amount, amount)
	if err := l.st.putPosition(position); err != nil {
		return nil, nil, err
	}
	return position, folded, nil
}

// Claim finalises the reward snapshot of the position. A zero claimable
// reward fails with ErrInvalidAmount.
func (l *Ledger) Claim(user crypto.Address, protocol *Protocol, height uint64) (*Position, *big.Int, error) {
	position, err := l.Get(user, protocol.ID)
	if err != nil {
		return nil, nil, err
	}
	settle(position, protocol.APY, height)
	if position.Rewards.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: no rewards accrued", ErrInvalidAmount)
	}
	claimed := finalizeClaim(position, height)
	if err := l.st.putPosition(position); err != nil {
		return nil, nil, err
	}
	return position, claimed, nil
}
