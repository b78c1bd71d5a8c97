package aggregator

import (
	"fmt"
	"math/big"

	"yieldrouter/crypto"
)

type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// store wraps the raw key/value state with typed accessors for the records
// owned by this module.
type store struct {
	kv kvState
}

func (s store) params() (*Params, error) {
	params := new(Params)
	ok, err := s.kv.KVGet(paramsKey, params)
	if err != nil {
		return nil, fmt.Errorf("aggregator: load params: %w", err)
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if params.MinDeposit == nil {
		params.MinDeposit = big.NewInt(0)
	}
	return params, nil
}

func (s store) putParams(params *Params) error {
	return s.kv.KVPut(paramsKey, params)
}

func (s store) protocol(id ProtocolID) (*Protocol, bool, error) {
	if !id.Valid() {
		return nil, false, nil
	}
	protocol := new(Protocol)
	ok, err := s.kv.KVGet(protocolKey(id), protocol)
	if err != nil {
		return nil, false, fmt.Errorf("aggregator: load protocol %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	if protocol.TVL == nil {
		protocol.TVL = big.NewInt(0)
	}
	return protocol, true, nil
}

func (s store) putProtocol(protocol *Protocol) error {
	return s.kv.KVPut(protocolKey(protocol.ID), protocol)
}

// position returns the stored position or a zero position when the pair has
// never been used. The boolean reports whether a record existed.
func (s store) position(user crypto.Address, id ProtocolID) (*Position, bool, error) {
	position := new(Position)
	ok, err := s.kv.KVGet(positionKey(user, id), position)
	if err != nil {
		return nil, false, fmt.Errorf("aggregator: load position: %w", err)
	}
	if !ok {
		position = &Position{User: user, ProtocolID: id}
	}
	position.ensureDefaults()
	return position, ok, nil
}

func (s store) putPosition(position *Position) error {
	return s.kv.KVPut(positionKey(position.User, position.ProtocolID), position)
}

func (s store) fees(id ProtocolID) (*FeeAccrual, error) {
	fees := new(FeeAccrual)
	ok, err := s.kv.KVGet(feesKey(id), fees)
	if err != nil {
		return nil, fmt.Errorf("aggregator: load fees: %w", err)
	}
	if !ok {
		fees = &FeeAccrual{ProtocolID: id}
	}
	if fees.Accrued == nil {
		fees.Accrued = big.NewInt(0)
	}
	if fees.Swept == nil {
		fees.Swept = big.NewInt(0)
	}
	return fees, nil
}

func (s store) putFees(fees *FeeAccrual) error {
	return s.kv.KVPut(feesKey(fees.ProtocolID), fees)
}
