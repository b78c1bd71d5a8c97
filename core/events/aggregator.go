package events

import "math/big"

const (
	// TypeProtocolRegistered is emitted when the owner registers a protocol.
	TypeProtocolRegistered = "aggregator.protocol.registered"
	// TypeProtocolStatsUpdated is emitted when the owner overwrites the
	// reported apy and tvl of a protocol.
	TypeProtocolStatsUpdated = "aggregator.protocol.stats"
	// TypeProtocolStatusChanged is emitted when a protocol is deactivated or
	// reactivated.
	TypeProtocolStatusChanged = "aggregator.protocol.status"
	// TypeDeposited is emitted after a deposit is routed to the best protocol.
	TypeDeposited = "aggregator.deposit"
	// TypeWithdrawn is emitted after principal leaves a protocol position.
	TypeWithdrawn = "aggregator.withdraw"
	// TypeRewardsClaimed is emitted when a position's reward snapshot is
	// claimed.
	TypeRewardsClaimed = "aggregator.rewards.claimed"
	// TypeFeesSwept is emitted when accrued platform fees move to the fee
	// collector.
	TypeFeesSwept = "aggregator.fees.swept"
	// TypeParamsUpdated is emitted when owner-tunable parameters change.
	TypeParamsUpdated = "aggregator.params.updated"
)

// ProtocolRegistered captures a newly registered protocol.
type ProtocolRegistered struct {
	ProtocolID   uint64
	Address      string
	ProtocolType string
}

// EventType implements the Event interface.
func (ProtocolRegistered) EventType() string { return TypeProtocolRegistered }

// ProtocolStatsUpdated captures an authoritative stats overwrite.
type ProtocolStatsUpdated struct {
	ProtocolID uint64
	APY        uint64
	TVL        *big.Int
	PrevAPY    uint64
	PrevTVL    *big.Int
}

// EventType implements the Event interface.
func (ProtocolStatsUpdated) EventType() string { return TypeProtocolStatsUpdated }

// ProtocolStatusChanged captures an activity transition.
type ProtocolStatusChanged struct {
	ProtocolID uint64
	Active     bool
}

// EventType implements the Event interface.
func (ProtocolStatusChanged) EventType() string { return TypeProtocolStatusChanged }

// Deposited captures a deposit routed to a protocol.
type Deposited struct {
	User       [20]byte
	ProtocolID uint64
	Amount     *big.Int
	APY        uint64
	Height     uint64
}

// EventType implements the Event interface.
func (Deposited) EventType() string { return TypeDeposited }

// Withdrawn captures a withdrawal and the fee retained from it.
type Withdrawn struct {
	User       [20]byte
	ProtocolID uint64
	Amount     *big.Int
	Fee        *big.Int
	Net        *big.Int
	Height     uint64
}

// EventType implements the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// RewardsClaimed captures a finalised reward claim.
type RewardsClaimed struct {
	User       [20]byte
	ProtocolID uint64
	Amount     *big.Int
	PaidOut    bool
	Height     uint64
}

// EventType implements the Event interface.
func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

// FeesSwept captures fees moved from custody to the collector.
type FeesSwept struct {
	ProtocolID uint64
	Amount     *big.Int
	Collector  [20]byte
}

// EventType implements the Event interface.
func (FeesSwept) EventType() string { return TypeFeesSwept }

// ParamsUpdated captures a change of owner-tunable parameters.
type ParamsUpdated struct {
	Field string
	Value string
}

// EventType implements the Event interface.
func (ParamsUpdated) EventType() string { return TypeParamsUpdated }
