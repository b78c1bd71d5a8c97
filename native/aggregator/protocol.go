package aggregator

import (
	"math/big"
)

// ProtocolAdapter is the surface a yield protocol exposes to the aggregator.
// Deposit and Withdraw return the amount actually moved.
type ProtocolAdapter interface {
	Deposit(amount *big.Int) (*big.Int, error)
	Withdraw(amount *big.Int) (*big.Int, error)
	APY() uint64
	TVL() *big.Int
	ProtocolType() ProtocolType
}

// snapshotAdapter answers the adapter surface from a registry record. It does
// not move value; deposits and withdrawals echo the requested amount.
type snapshotAdapter struct {
	protocol *Protocol
}

var _ ProtocolAdapter = snapshotAdapter{}

func (s snapshotAdapter) Deposit(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !s.protocol.Active {
		return nil, ErrProtocolNotActive
	}
	return new(big.Int).Set(amount), nil
}

func (s snapshotAdapter) Withdraw(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !s.protocol.Active {
		return nil, ErrProtocolNotActive
	}
	if s.protocol.TVL.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	return new(big.Int).Set(amount), nil
}

func (s snapshotAdapter) APY() uint64 { return s.protocol.APY }

func (s snapshotAdapter) TVL() *big.Int { return cloneAmount(s.protocol.TVL) }

func (s snapshotAdapter) ProtocolType() ProtocolType { return s.protocol.Type }
