package aggregator

import (
	"encoding/binary"

	"yieldrouter/crypto"
)

var (
	paramsKey      = []byte("aggregator/params")
	protocolPrefix = []byte("aggregator/protocol/")
	positionPrefix = []byte("aggregator/position/")
	feesPrefix     = []byte("aggregator/fees/")
)

func idKey(prefix []byte, id ProtocolID) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], uint64(id))
	return buf
}

func protocolKey(id ProtocolID) []byte { return idKey(protocolPrefix, id) }

func feesKey(id ProtocolID) []byte { return idKey(feesPrefix, id) }

func positionKey(user crypto.Address, id ProtocolID) []byte {
	base := idKey(positionPrefix, id)
	buf := make([]byte, len(base)+1+crypto.AddressLength)
	copy(buf, base)
	buf[len(base)] = '/'
	copy(buf[len(base)+1:], user[:])
	return buf
}
