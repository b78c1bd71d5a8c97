package aggregator

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"yieldrouter/core/events"
	"yieldrouter/crypto"
	nativecommon "yieldrouter/native/common"
)

const moduleName = nativecommon.ModuleAggregator

// Operation names reported to metrics.
const (
	OpInitialize        = "initialize"
	OpRegisterProtocol  = "register_protocol"
	OpUpdateStats       = "update_protocol_stats"
	OpSetProtocolActive = "set_protocol_active"
	OpDeposit           = "deposit_to_best"
	OpWithdraw          = "withdraw"
	OpClaimRewards      = "claim_rewards"
	OpSweepFees         = "sweep_fees"
	OpSetParams         = "set_params"
	OpSetPause          = "set_pause"
)

type engineState interface {
	kvState
	Atomic(fn func() error) error
}

// TokenTransferer moves fungible balances. A returned error must mean no
// balance changed.
type TokenTransferer interface {
	Transfer(amount *big.Int, from, to crypto.Address, memo string) error
}

// Metrics receives per-call outcomes and routed volume.
type Metrics interface {
	ObserveCall(op string, err error)
	AddVolume(op string, amount *big.Int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCall(string, error)  {}
func (noopMetrics) AddVolume(string, *big.Int) {}

// PauseControl persists module pause toggles. Writes go through the same
// state as the engine so they join the call's unit of work.
type PauseControl interface {
	SetPaused(module string, paused bool) error
}

// Engine is the aggregator facade. Every public mutation runs as one unit of
// work: state writes and token transfers either all commit or none do, and
// events raised during the call are released only after commit. Calls are
// serialised; no two units interleave.
type Engine struct {
	mu           sync.Mutex
	state        engineState
	transferer   TokenTransferer
	emitter      events.Emitter
	pending      *events.Buffer
	pauses       nativecommon.PauseView
	pauseControl PauseControl
	blockHeight  uint64
	heightSource func() uint64
	metrics      Metrics
}

// NewEngine constructs an aggregator engine. State must be wired with
// SetState before use.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, metrics: noopMetrics{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

// SetTransferer configures the token transfer capability used for deposits,
// withdrawals, reward payouts and fee sweeps.
func (e *Engine) SetTransferer(t TokenTransferer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transferer = t
}

// SetEmitter configures the event emitter used to broadcast committed
// events. Passing nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

// SetPauseControl configures where SetModulePaused records toggles.
func (e *Engine) SetPauseControl(pc PauseControl) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseControl = pc
}

func (e *Engine) SetMetrics(m Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m == nil {
		e.metrics = noopMetrics{}
		return
	}
	e.metrics = m
}

// SetBlockHeight records the height used for accrual when no height source
// is configured.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blockHeight = height
}

// SetHeightSource installs a function consulted once per call for the
// current height. It takes precedence over SetBlockHeight.
func (e *Engine) SetHeightSource(source func() uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heightSource = source
}

// EventSink returns an emitter for collaborators invoked inside engine calls,
// such as the bank ledger. Events sent to it during a call share the call's
// fate; outside a call they go straight to the engine's emitter.
func (e *Engine) EventSink() events.Emitter {
	return engineSink{engine: e}
}

type engineSink struct {
	engine *Engine
}

func (s engineSink) Emit(evt events.Event) {
	if s.engine.pending != nil {
		s.engine.pending.Emit(evt)
		return
	}
	s.engine.emitter.Emit(evt)
}

func (e *Engine) height() uint64 {
	if e.heightSource != nil {
		return e.heightSource()
	}
	return e.blockHeight
}

// call is the per-unit context handed to mutation bodies.
type call struct {
	st       store
	registry *Registry
	ledger   *Ledger
	height   uint64
	events   *events.Buffer
	// volume is reported to metrics when the unit commits.
	volume *big.Int
}

// exec runs fn as a single unit of work.
func (e *Engine) exec(op string, guarded bool, fn func(c *call) error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.ObserveCall(op, err) }()
	if e.state == nil {
		return errNilState
	}
	if guarded {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
	}
	buf := &events.Buffer{}
	e.pending = buf
	defer func() { e.pending = nil }()

	st := store{kv: e.state}
	c := &call{
		st:       st,
		registry: newRegistry(st),
		ledger:   newLedger(st),
		height:   e.height(),
		events:   buf,
	}
	if err := e.state.Atomic(func() error { return fn(c) }); err != nil {
		buf.Discard()
		return err
	}
	buf.Flush(e.emitter)
	if c.volume != nil {
		e.metrics.AddVolume(op, c.volume)
	}
	return nil
}

// read runs fn against committed state under the engine lock.
func (e *Engine) read(fn func(st store) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	return fn(store{kv: e.state})
}

func (e *Engine) transfer(amount *big.Int, from, to crypto.Address, memo string) error {
	if e.transferer == nil {
		return ErrInvalidToken
	}
	if err := e.transferer.Transfer(amount, from, to, memo); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// Initialize persists the process-wide parameters. It succeeds once.
func (e *Engine) Initialize(params Params) error {
	return e.exec(OpInitialize, false, func(c *call) error {
		if _, err := c.st.params(); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		next := params.Clone()
		if err := validateParams(next); err != nil {
			return err
		}
		next.ProtocolCount = 0
		return c.st.putParams(next)
	})
}

func validateParams(p *Params) error {
	if p.Owner.IsZero() {
		return fmt.Errorf("%w: owner must be set", ErrInvalidParams)
	}
	if p.Custody.IsZero() {
		return fmt.Errorf("%w: custody must be set", ErrInvalidParams)
	}
	if p.Custody == p.Owner {
		return fmt.Errorf("%w: custody must differ from owner", ErrInvalidParams)
	}
	if p.FeeCollector.IsZero() {
		p.FeeCollector = p.Owner
	}
	if p.MinDeposit == nil {
		p.MinDeposit = big.NewInt(0)
	}
	if p.MinDeposit.Sign() < 0 {
		return fmt.Errorf("%w: min deposit must not be negative", ErrInvalidParams)
	}
	if p.PlatformFeeBps > MaxPlatformFeeBps {
		return fmt.Errorf("%w: platform fee exceeds 10000 bps", ErrInvalidParams)
	}
	if p.MaxSlippageBps > MaxPlatformFeeBps {
		return fmt.Errorf("%w: max slippage exceeds 10000 bps", ErrInvalidParams)
	}
	return nil
}

// RegisterProtocol adds a protocol to the registry. Only the owner may call
// it.
func (e *Engine) RegisterProtocol(caller crypto.Address, address string, protocolType string) (ProtocolID, error) {
	var id ProtocolID
	err := e.exec(OpRegisterProtocol, true, func(c *call) error {
		protocol, err := c.registry.Register(caller, address, protocolType, c.height)
		if err != nil {
			return err
		}
		id = protocol.ID
		c.events.Emit(events.ProtocolRegistered{
			ProtocolID:   uint64(protocol.ID),
			Address:      protocol.Address,
			ProtocolType: string(protocol.Type),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateProtocolStats overwrites the reported apy and tvl of an active
// protocol.
func (e *Engine) UpdateProtocolStats(caller crypto.Address, id ProtocolID, apy uint64, tvl *big.Int) error {
	return e.exec(OpUpdateStats, true, func(c *call) error {
		prev, next, err := c.registry.UpdateStats(caller, id, apy, tvl)
		if err != nil {
			return err
		}
		c.events.Emit(events.ProtocolStatsUpdated{
			ProtocolID: uint64(id),
			APY:        next.APY,
			TVL:        cloneAmount(next.TVL),
			PrevAPY:    prev.APY,
			PrevTVL:    cloneAmount(prev.TVL),
		})
		return nil
	})
}

// SetProtocolActive deactivates or reactivates a protocol.
func (e *Engine) SetProtocolActive(caller crypto.Address, id ProtocolID, active bool) error {
	return e.exec(OpSetProtocolActive, true, func(c *call) error {
		protocol, err := c.registry.SetActive(caller, id, active)
		if err != nil {
			return err
		}
		c.events.Emit(events.ProtocolStatusChanged{ProtocolID: uint64(protocol.ID), Active: protocol.Active})
		return nil
	})
}

func checkSlippage(selected uint64, quote *Quote, maxSlippageBps uint64) error {
	if quote == nil || quote.APY == 0 {
		return nil
	}
	tolerance := maxSlippageBps
	if tolerance > MaxPlatformFeeBps {
		tolerance = MaxPlatformFeeBps
	}
	floor := new(big.Int).SetUint64(quote.APY)
	floor.Mul(floor, new(big.Int).SetUint64(MaxPlatformFeeBps-tolerance))
	floor.Quo(floor, basisPoints)
	if new(big.Int).SetUint64(selected).Cmp(floor) < 0 {
		return fmt.Errorf("%w: quoted %d on protocol %d, selected %d", ErrSlippageTooHigh, quote.APY, quote.ProtocolID, selected)
	}
	return nil
}

// DepositToBest routes amount from user to the active protocol with the
// highest apy. When quote is non-nil the selected apy must stay within the
// configured slippage of the quoted apy.
func (e *Engine) DepositToBest(user crypto.Address, amount *big.Int, quote *Quote) (*DepositReceipt, error) {
	var receipt *DepositReceipt
	err := e.exec(OpDeposit, true, func(c *call) error {
		params, err := c.st.params()
		if err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 || amount.Cmp(params.MinDeposit) < 0 {
			return fmt.Errorf("%w: deposit below minimum %s", ErrInvalidAmount, params.MinDeposit)
		}
		if err := requireAccountHolder(params, user); err != nil {
			return err
		}
		if e.transferer == nil {
			return ErrInvalidToken
		}
		best, err := SelectBest(c.registry)
		if err != nil {
			return err
		}
		if !best.Active {
			return fmt.Errorf("%w: %d", ErrProtocolNotActive, best.ID)
		}
		if err := checkSlippage(best.APY, quote, params.MaxSlippageBps); err != nil {
			return err
		}
		memo := "aggregator deposit protocol " + strconv.FormatUint(uint64(best.ID), 10)
		if err := e.transfer(amount, user, params.Custody, memo); err != nil {
			return err
		}
		if _, err := c.ledger.Credit(user, best, amount, c.height); err != nil {
			return err
		}
		best.TVL = new(big.Int).Add(best.TVL, amount)
		if err := c.st.putProtocol(best); err != nil {
			return err
		}
		c.volume = amount
		receipt = &DepositReceipt{
			ProtocolID: best.ID,
			Amount:     new(big.Int).Set(amount),
			APY:        best.APY,
			Height:     c.height,
		}
		c.events.Emit(events.Deposited{
			User:       user,
			ProtocolID: uint64(best.ID),
			Amount:     new(big.Int).Set(amount),
			APY:        best.APY,
			Height:     c.height,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Withdraw removes amount of principal from the user's position in id. The
// platform fee stays in custody and the net amount returns to the user.
func (e *Engine) Withdraw(user crypto.Address, id ProtocolID, amount *big.Int) (*WithdrawReceipt, error) {
	var receipt *WithdrawReceipt
	err := e.exec(OpWithdraw, true, func(c *call) error {
		params, err := c.st.params()
		if err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
		}
		if err := requireAccountHolder(params, user); err != nil {
			return err
		}
		if e.transferer == nil {
			return ErrInvalidToken
		}
		protocol, err := c.registry.requireActive(id)
		if err != nil {
			return err
		}
		position, _, err := c.ledger.Debit(user, protocol, amount, c.height)
		if err != nil {
			return err
		}
		fee, net := Fee(amount, params.PlatformFeeBps)
		memo := "aggregator withdraw protocol " + strconv.FormatUint(uint64(id), 10)
		if err := e.transfer(net, params.Custody, user, memo); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			accrual, err := c.st.fees(id)
			if err != nil {
				return err
			}
			accrual.Accrued = new(big.Int).Add(accrual.Accrued, fee)
			if err := c.st.putFees(accrual); err != nil {
				return err
			}
		}
		protocol.TVL = new(big.Int).Sub(protocol.TVL, amount)
		if protocol.TVL.Sign() < 0 {
			protocol.TVL = big.NewInt(0)
		}
		if err := c.st.putProtocol(protocol); err != nil {
			return err
		}
		c.volume = amount
		receipt = &WithdrawReceipt{
			ProtocolID: id,
			Amount:     new(big.Int).Set(amount),
			Fee:        fee,
			Net:        net,
			Rewards:    cloneAmount(position.Rewards),
			Height:     c.height,
		}
		c.events.Emit(events.Withdrawn{
			User:       user,
			ProtocolID: uint64(id),
			Amount:     new(big.Int).Set(amount),
			Fee:        new(big.Int).Set(fee),
			Net:        new(big.Int).Set(net),
			Height:     c.height,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ClaimRewards finalises the user's reward snapshot in id. When a reward
// pool is configured the claimed amount is paid from it.
func (e *Engine) ClaimRewards(user crypto.Address, id ProtocolID) (*ClaimReceipt, error) {
	var receipt *ClaimReceipt
	err := e.exec(OpClaimRewards, true, func(c *call) error {
		params, err := c.st.params()
		if err != nil {
			return err
		}
		if err := requireAccountHolder(params, user); err != nil {
			return err
		}
		protocol, err := c.registry.requireActive(id)
		if err != nil {
			return err
		}
		_, claimed, err := c.ledger.Claim(user, protocol, c.height)
		if err != nil {
			return err
		}
		paidOut := false
		if !params.RewardPool.IsZero() {
			memo := "aggregator rewards protocol " + strconv.FormatUint(uint64(id), 10)
			if err := e.transfer(claimed, params.RewardPool, user, memo); err != nil {
				return err
			}
			paidOut = true
		}
		c.volume = claimed
		receipt = &ClaimReceipt{ProtocolID: id, Amount: claimed, PaidOut: paidOut, Height: c.height}
		c.events.Emit(events.RewardsClaimed{
			User:       user,
			ProtocolID: uint64(id),
			Amount:     new(big.Int).Set(claimed),
			PaidOut:    paidOut,
			Height:     c.height,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// SweepFees moves the fees accrued for id from custody to the fee collector
// and returns the amount moved.
func (e *Engine) SweepFees(caller crypto.Address, id ProtocolID) (*big.Int, error) {
	swept := big.NewInt(0)
	err := e.exec(OpSweepFees, true, func(c *call) error {
		params, err := c.st.params()
		if err != nil {
			return err
		}
		if err := requireOwner(params, caller); err != nil {
			return err
		}
		if _, ok, err := c.st.protocol(id); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: %d", ErrInvalidProtocol, id)
		}
		accrual, err := c.st.fees(id)
		if err != nil {
			return err
		}
		if accrual.Accrued.Sign() == 0 {
			return nil
		}
		memo := "aggregator fees protocol " + strconv.FormatUint(uint64(id), 10)
		if err := e.transfer(accrual.Accrued, params.Custody, params.FeeCollector, memo); err != nil {
			return err
		}
		swept = new(big.Int).Set(accrual.Accrued)
		accrual.Swept = new(big.Int).Add(accrual.Swept, accrual.Accrued)
		accrual.Accrued = big.NewInt(0)
		if err := c.st.putFees(accrual); err != nil {
			return err
		}
		c.events.Emit(events.FeesSwept{
			ProtocolID: uint64(id),
			Amount:     new(big.Int).Set(swept),
			Collector:  params.FeeCollector,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// ParamsUpdate names the owner-tunable parameters to change. Nil fields are
// left as they are.
type ParamsUpdate struct {
	MinDeposit     *big.Int
	PlatformFeeBps *uint64
	MaxSlippageBps *uint64
	Owner          *crypto.Address
}

// UpdateParams validates every field of update and applies them together.
// A single invalid field rejects the whole update.
func (e *Engine) UpdateParams(caller crypto.Address, update ParamsUpdate) error {
	return e.exec(OpSetParams, true, func(c *call) error {
		params, err := c.st.params()
		if err != nil {
			return err
		}
		if err := requireOwner(params, caller); err != nil {
			return err
		}
		changed, err := applyParamsUpdate(params, update)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			return fmt.Errorf("%w: no parameters to update", ErrInvalidParams)
		}
		if err := c.st.putParams(params); err != nil {
			return err
		}
		for _, ev := range changed {
			c.events.Emit(ev)
		}
		return nil
	})
}

func applyParamsUpdate(p *Params, update ParamsUpdate) ([]events.ParamsUpdated, error) {
	var changed []events.ParamsUpdated
	if update.MinDeposit != nil {
		if update.MinDeposit.Sign() < 0 {
			return nil, fmt.Errorf("%w: min deposit must not be negative", ErrInvalidParams)
		}
		p.MinDeposit = new(big.Int).Set(update.MinDeposit)
		changed = append(changed, events.ParamsUpdated{Field: "min_deposit", Value: update.MinDeposit.String()})
	}
	if update.PlatformFeeBps != nil {
		bps := *update.PlatformFeeBps
		if bps > MaxPlatformFeeBps {
			return nil, fmt.Errorf("%w: platform fee exceeds 10000 bps", ErrInvalidParams)
		}
		p.PlatformFeeBps = bps
		changed = append(changed, events.ParamsUpdated{Field: "platform_fee_bps", Value: strconv.FormatUint(bps, 10)})
	}
	if update.MaxSlippageBps != nil {
		bps := *update.MaxSlippageBps
		if bps > MaxPlatformFeeBps {
			return nil, fmt.Errorf("%w: max slippage exceeds 10000 bps", ErrInvalidParams)
		}
		p.MaxSlippageBps = bps
		changed = append(changed, events.ParamsUpdated{Field: "max_slippage_bps", Value: strconv.FormatUint(bps, 10)})
	}
	if update.Owner != nil {
		next := *update.Owner
		if next.IsZero() || next == p.Custody {
			return nil, fmt.Errorf("%w: invalid owner", ErrInvalidParams)
		}
		p.Owner = next
		changed = append(changed, events.ParamsUpdated{Field: "owner", Value: next.String()})
	}
	return changed, nil
}

// SetMinDeposit changes the floor on single deposits.
func (e *Engine) SetMinDeposit(caller crypto.Address, amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: min deposit must not be negative", ErrInvalidParams)
	}
	return e.UpdateParams(caller, ParamsUpdate{MinDeposit: amount})
}

// SetPlatformFee changes the withdrawal fee in basis points.
func (e *Engine) SetPlatformFee(caller crypto.Address, bps uint64) error {
	return e.UpdateParams(caller, ParamsUpdate{PlatformFeeBps: &bps})
}

// SetMaxSlippage changes the tolerance applied to quoted deposits.
func (e *Engine) SetMaxSlippage(caller crypto.Address, bps uint64) error {
	return e.UpdateParams(caller, ParamsUpdate{MaxSlippageBps: &bps})
}

// TransferOwnership hands owner rights to next.
func (e *Engine) TransferOwnership(caller crypto.Address, next crypto.Address) error {
	return e.UpdateParams(caller, ParamsUpdate{Owner: &next})
}

// SetModulePaused lets the owner pause or resume a module at runtime. It is
// not itself subject to the pause guard so a paused module can be resumed.
func (e *Engine) SetModulePaused(caller crypto.Address, module string, paused bool) error {
	return e.exec(OpSetPause, false, func(c *call) error {
		params, err := c.st.params()
		if err != nil {
			return err
		}
		if err := requireOwner(params, caller); err != nil {
			return err
		}
		if e.pauseControl == nil {
			return fmt.Errorf("%w: pause control not configured", ErrInvalidParams)
		}
		if err := e.pauseControl.SetPaused(module, paused); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		c.events.Emit(events.ParamsUpdated{Field: "pause." + strings.ToLower(strings.TrimSpace(module)), Value: strconv.FormatBool(paused)})
		return nil
	})
}

// Params returns the persisted parameters.
func (e *Engine) Params() (*Params, error) {
	var out *Params
	err := e.read(func(st store) error {
		params, err := st.params()
		out = params
		return err
	})
	return out, err
}

// Protocol returns the record for id. Unknown ids report false.
func (e *Engine) Protocol(id ProtocolID) (*Protocol, bool, error) {
	var (
		out *Protocol
		ok  bool
	)
	err := e.read(func(st store) error {
		var err error
		out, ok, err = st.protocol(id)
		return err
	})
	return out, ok, err
}

// Protocols lists every registered protocol ordered by id.
func (e *Engine) Protocols() ([]*Protocol, error) {
	var out []*Protocol
	err := e.read(func(st store) error {
		var err error
		out, err = newRegistry(st).List()
		return err
	})
	return out, err
}

// IsActive reports whether id names an active protocol.
func (e *Engine) IsActive(id ProtocolID) bool {
	active := false
	_ = e.read(func(st store) error {
		active = newRegistry(st).IsActive(id)
		return nil
	})
	return active
}

// APY returns the reported apy of id, zero for unknown ids.
func (e *Engine) APY(id ProtocolID) uint64 {
	var apy uint64
	_ = e.read(func(st store) error {
		apy = newRegistry(st).APY(id)
		return nil
	})
	return apy
}

// BestProtocol returns the protocol a deposit would currently be routed to.
func (e *Engine) BestProtocol() (*Protocol, error) {
	var out *Protocol
	err := e.read(func(st store) error {
		var err error
		out, err = SelectBest(newRegistry(st))
		return err
	})
	return out, err
}

// Position returns the user's position in id, a zero position when none
// exists.
func (e *Engine) Position(user crypto.Address, id ProtocolID) (*Position, error) {
	var out *Position
	err := e.read(func(st store) error {
		var err error
		out, err = newLedger(st).Get(user, id)
		return err
	})
	return out, err
}

// PendingRewards returns what ClaimRewards would finalise at the current
// height.
func (e *Engine) PendingRewards(user crypto.Address, id ProtocolID) (*big.Int, error) {
	var out *big.Int
	err := e.read(func(st store) error {
		position, err := newLedger(st).Get(user, id)
		if err != nil {
			return err
		}
		out = Claimable(position, newRegistry(st).APY(id), e.height())
		return nil
	})
	return out, err
}

// FeeAccrual returns the fee bookkeeping for id.
func (e *Engine) FeeAccrual(id ProtocolID) (*FeeAccrual, error) {
	var out *FeeAccrual
	err := e.read(func(st store) error {
		var err error
		out, err = st.fees(id)
		return err
	})
	return out, err
}

// ProtocolHandle returns a read-only adapter view of a registered protocol.
func (e *Engine) ProtocolHandle(id ProtocolID) (ProtocolAdapter, error) {
	protocol, ok, err := e.Protocol(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProtocol, id)
	}
	return snapshotAdapter{protocol: protocol}, nil
}
