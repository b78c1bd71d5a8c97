package aggregator

import (
	"fmt"
	"math/big"
	"strings"

	"yieldrouter/crypto"
)

// MaxProtocols caps the number of protocols the registry will ever hold.
const MaxProtocols = 50

// ProtocolID identifies a registered protocol. Valid identifiers start at 1;
// the zero value never names a protocol.
type ProtocolID uint64

// Valid reports whether id could name a registered protocol.
func (id ProtocolID) Valid() bool { return id > 0 }

// ProtocolType labels the kind of yield source behind a protocol.
type ProtocolType string

const (
	ProtocolTypeLending      ProtocolType = "LENDING"
	ProtocolTypeStaking      ProtocolType = "STAKING"
	ProtocolTypeYieldFarming ProtocolType = "YIELD_FARMING"
)

// ProtocolTypes lists the accepted labels.
var ProtocolTypes = []ProtocolType{ProtocolTypeLending, ProtocolTypeStaking, ProtocolTypeYieldFarming}

// ParseProtocolType normalises label (case-insensitive, '-' and ' ' treated as
// '_') and checks it against the closed set.
func ParseProtocolType(label string) (ProtocolType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, candidate := range ProtocolTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProtocolType, label)
}

// Protocol is the registry record of a yield source. Amount values are in the
// smallest token unit.
type Protocol struct {
	ID      ProtocolID
	Address string
	Type    ProtocolType
	Active  bool
	// TVL is either ledger-derived (deposits minus withdrawals) or the value
	// last pushed by a stats update.
	TVL *big.Int
	// APY is expressed in basis points applied per elapsed height unit.
	APY              uint64
	RegisteredHeight uint64
}

// Clone returns a deep copy of the protocol record.
func (p *Protocol) Clone() *Protocol {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TVL = cloneAmount(p.TVL)
	return &clone
}

// Position is a user's principal and reward-accrual state within one
// protocol. Positions are never removed; a zero amount is a quiescent state.
type Position struct {
	User       crypto.Address
	ProtocolID ProtocolID
	Amount     *big.Int
	// Rewards holds accrued rewards that have been folded into the snapshot
	// but not yet claimed.
	Rewards         *big.Int
	DepositHeight   uint64
	LastClaimHeight uint64
	// AccrualHeight is the height from which new rewards accrue.
	AccrualHeight uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = cloneAmount(p.Amount)
	clone.Rewards = cloneAmount(p.Rewards)
	return &clone
}

func (p *Position) ensureDefaults() {
	if p.Amount == nil {
		p.Amount = big.NewInt(0)
	}
	if p.Rewards == nil {
		p.Rewards = big.NewInt(0)
	}
}

// Params is the process-wide configuration persisted at initialisation. The
// owner may tune MinDeposit, PlatformFeeBps and MaxSlippageBps afterwards.
type Params struct {
	Owner          crypto.Address
	Custody        crypto.Address
	FeeCollector   crypto.Address
	RewardPool     crypto.Address
	ProtocolCount  uint64
	MinDeposit     *big.Int
	MaxSlippageBps uint64
	PlatformFeeBps uint64
	// AllowOpaqueAddresses accepts any non-empty protocol address instead of
	// requiring bech32.
	AllowOpaqueAddresses bool
}

// Clone returns a deep copy of the parameters.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	clone.MinDeposit = cloneAmount(p.MinDeposit)
	return &clone
}

// FeeAccrual tracks platform fees retained in custody for one protocol.
type FeeAccrual struct {
	ProtocolID ProtocolID
	Accrued    *big.Int
	Swept      *big.Int
}

// Clone returns a deep copy of the fee accrual.
func (f *FeeAccrual) Clone() *FeeAccrual {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Accrued = cloneAmount(f.Accrued)
	clone.Swept = cloneAmount(f.Swept)
	return &clone
}

// Quote is the caller's view of the best protocol when it decided to deposit.
// A zero APY disables the slippage check.
type Quote struct {
	ProtocolID ProtocolID
	APY        uint64
}

// DepositReceipt reports where a deposit was routed.
type DepositReceipt struct {
	ProtocolID ProtocolID
	Amount     *big.Int
	APY        uint64
	Height     uint64
}

// WithdrawReceipt reports the outcome of a withdrawal.
type WithdrawReceipt struct {
	ProtocolID ProtocolID
	Amount     *big.Int
	Fee        *big.Int
	Net        *big.Int
	Rewards    *big.Int
	Height     uint64
}

// ClaimReceipt reports a finalised reward claim.
type ClaimReceipt struct {
	ProtocolID ProtocolID
	Amount     *big.Int
	PaidOut    bool
	Height     uint64
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
