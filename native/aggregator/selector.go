package aggregator

// protocolReader is the registry surface the selector needs.
type protocolReader interface {
	Count() (uint64, error)
	Get(id ProtocolID) (*Protocol, bool, error)
}

// SelectBest scans ids 1..count and returns the active protocol with the
// strictly highest apy. Ties keep the lowest id. When nothing is active the
// call fails with ErrNoActiveProtocols; a zero id is never returned as a
// result.
func SelectBest(registry protocolReader) (*Protocol, error) {
	count, err := registry.Count()
	if err != nil {
		return nil, err
	}
	var best *Protocol
	for id := ProtocolID(1); uint64(id) <= count && uint64(id) <= MaxProtocols; id++ {
		candidate, ok, err := registry.Get(id)
		if err != nil {
			return nil, err
		}
		if !ok || !candidate.Active {
			continue
		}
		if best == nil || candidate.APY > best.APY {
			best = candidate
		}
	}
	if best == nil {
		return nil, ErrNoActiveProtocols
	}
	return best, nil
}
