package aggregator

import (
	"fmt"
	"math/big"
	"strings"

	"yieldrouter/crypto"
)

const maxOpaqueAddressLength = 128

// Registry owns the catalog of protocols and their reported stats. Owner-only
// operations check the caller before touching state.
type Registry struct {
	st store
}

func newRegistry(st store) *Registry {
	return &Registry{st: st}
}

func requireOwner(params *Params, caller crypto.Address) error {
	if caller.IsZero() || caller != params.Owner {
		return ErrNotAuthorized
	}
	return nil
}

// requireAccountHolder rejects callers that cannot hold positions: the empty
// address and the system accounts whose transfers would be self-transfers.
func requireAccountHolder(params *Params, user crypto.Address) error {
	if user.IsZero() || user == params.Custody {
		return ErrNotAuthorized
	}
	if !params.RewardPool.IsZero() && user == params.RewardPool {
		return ErrNotAuthorized
	}
	return nil
}

// Register adds a protocol and returns its identifier. Identifiers are
// assigned sequentially from 1 and never reused.
func (r *Registry) Register(caller crypto.Address, address string, label string, height uint64) (*Protocol, error) {
	params, err := r.st.params()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(params, caller); err != nil {
		return nil, err
	}
	if params.ProtocolCount >= MaxProtocols {
		return nil, ErrMaxProtocolsReached
	}
	ptype, err := ParseProtocolType(label)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeProtocolAddress(address, params.AllowOpaqueAddresses)
	if err != nil {
		return nil, err
	}

	protocol := &Protocol{
		ID:               ProtocolID(params.ProtocolCount + 1),
		Address:          normalized,
		Type:             ptype,
		Active:           true,
		TVL:              big.NewInt(0),
		APY:              0,
		RegisteredHeight: height,
	}
	if err := r.st.putProtocol(protocol); err != nil {
		return nil, err
	}
	params.ProtocolCount++
	if err := r.st.putParams(params); err != nil {
		return nil, err
	}
	return protocol, nil
}

func normalizeProtocolAddress(address string, allowOpaque bool) (string, error) {
	trimmed := strings.TrimSpace(address)
	if allowOpaque {
		if trimmed == "" || len(trimmed) > maxOpaqueAddressLength {
			return "", fmt.Errorf("%w: address must be 1-%d characters", ErrInvalidProtocol, maxOpaqueAddressLength)
		}
		return trimmed, nil
	}
	canonical, err := crypto.ValidateExternal(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProtocol, err)
	}
	return canonical, nil
}

// UpdateStats overwrites the reported apy and tvl of an active protocol. The
// write is authoritative and does not reconcile with ledger-derived TVL.
func (r *Registry) UpdateStats(caller crypto.Address, id ProtocolID, apy uint64, tvl *big.Int) (prev *Protocol, next *Protocol, err error) {
	params, err := r.st.params()
	if err != nil {
		return nil, nil, err
	}
	if err := requireOwner(params, caller); err != nil {
		return nil, nil, err
	}
	if tvl == nil || tvl.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: tvl must not be negative", ErrInvalidAmount)
	}
	protocol, err := r.requireActive(id)
	if err != nil {
		return nil, nil, err
	}
	prev = protocol.Clone()
	protocol.APY = apy
	protocol.TVL = new(big.Int).Set(tvl)
	if err := r.st.putProtocol(protocol); err != nil {
		return nil, nil, err
	}
	return prev, protocol, nil
}

// SetActive flips the activity flag. Protocols are never deleted, so
// deactivation is the only way to retire one.
func (r *Registry) SetActive(caller crypto.Address, id ProtocolID, active bool) (*Protocol, error) {
	params, err := r.st.params()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(params, caller); err != nil {
		return nil, err
	}
	protocol, ok, err := r.st.protocol(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProtocol, id)
	}
	protocol.Active = active
	if err := r.st.putProtocol(protocol); err != nil {
		return nil, err
	}
	return protocol, nil
}

// requireActive loads id and fails unless it exists and is active.
func (r *Registry) requireActive(id ProtocolID) (*Protocol, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProtocol, id)
	}
	protocol, ok, err := r.st.protocol(id)
	if err != nil {
		return nil, err
	}
	if !ok || !protocol.Active {
		return nil, fmt.Errorf("%w: %d", ErrProtocolNotActive, id)
	}
	return protocol, nil
}

// Count returns the number of registered protocols.
func (r *Registry) Count() (uint64, error) {
	params, err := r.st.params()
	if err != nil {
		return 0, err
	}
	return params.ProtocolCount, nil
}

// Get returns the protocol record for id. Unknown ids report false.
func (r *Registry) Get(id ProtocolID) (*Protocol, bool, error) {
	return r.st.protocol(id)
}

// IsActive reports whether id names an active protocol. Unknown ids and read
// failures report false.
func (r *Registry) IsActive(id ProtocolID) bool {
	protocol, ok, err := r.st.protocol(id)
	if err != nil || !ok {
		return false
	}
	return protocol.Active
}

// APY returns the reported apy of id, zero for unknown ids.
func (r *Registry) APY(id ProtocolID) uint64 {
	protocol, ok, err := r.st.protocol(id)
	if err != nil || !ok {
		return 0
	}
	return protocol.APY
}

// List returns every registered protocol ordered by id.
func (r *Registry) List() ([]*Protocol, error) {
	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	out := make([]*Protocol, 0, count)
	for id := ProtocolID(1); uint64(id) <= count; id++ {
		protocol, ok, err := r.st.protocol(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("aggregator: registry hole at id %d", id)
		}
		out = append(out, protocol)
	}
	return out, nil
}
