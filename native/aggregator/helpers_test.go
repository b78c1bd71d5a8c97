package aggregator

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"yieldrouter/core/events"
	"yieldrouter/core/state"
	"yieldrouter/crypto"
	"yieldrouter/native/bank"
	"yieldrouter/storage"
)

func makeAddress(fill byte) crypto.Address {
	return crypto.NewAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

var (
	ownerAddr   = makeAddress(0x01)
	custodyAddr = makeAddress(0x02)
	feeAddr     = makeAddress(0x03)
	poolAddr    = makeAddress(0x04)
	aliceAddr   = makeAddress(0xA1)
	bobAddr     = makeAddress(0xB2)
)

func protocolAddress(n byte) string {
	return makeAddress(0x40 + n).String()
}

// failingTransferer rejects transfers while fail is set and otherwise
// delegates.
type failingTransferer struct {
	next TokenTransferer
	fail bool
}

func (f *failingTransferer) Transfer(amount *big.Int, from, to crypto.Address, memo string) error {
	if f.fail {
		return errors.New("transfer rejected")
	}
	return f.next.Transfer(amount, from, to, memo)
}

type fixture struct {
	t        *testing.T
	engine   *Engine
	manager  *state.Manager
	bank     *bank.Ledger
	transfer *failingTransferer
	recorder *events.Recorder
}

func newFixture(t *testing.T, mutate func(p *Params)) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	engine := NewEngine()
	engine.SetState(manager)
	ledger := bank.NewLedger(manager)
	ledger.SetEmitter(engine.EventSink())
	transfer := &failingTransferer{next: ledger}
	engine.SetTransferer(transfer)
	recorder := events.NewRecorder(0)
	engine.SetEmitter(recorder)

	params := Params{
		Owner:          ownerAddr,
		Custody:        custodyAddr,
		FeeCollector:   feeAddr,
		MinDeposit:     big.NewInt(1_000),
		MaxSlippageBps: 50,
		PlatformFeeBps: 10,
	}
	if mutate != nil {
		mutate(&params)
	}
	if err := engine.Initialize(params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	f := &fixture{t: t, engine: engine, manager: manager, bank: ledger, transfer: transfer, recorder: recorder}
	f.fund(aliceAddr, 10_000_000)
	f.fund(bobAddr, 10_000_000)
	return f
}

func (f *fixture) fund(addr crypto.Address, amount int64) {
	f.t.Helper()
	err := f.manager.Atomic(func() error {
		return f.bank.Credit(addr, big.NewInt(amount))
	})
	if err != nil {
		f.t.Fatalf("fund %s: %v", addr, err)
	}
}

func (f *fixture) balance(addr crypto.Address) *big.Int {
	f.t.Helper()
	balance, err := f.bank.BalanceOf(addr)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *fixture) register(apy uint64) ProtocolID {
	f.t.Helper()
	count := len(f.mustProtocols())
	id, err := f.engine.RegisterProtocol(ownerAddr, protocolAddress(byte(count+1)), "LENDING")
	if err != nil {
		f.t.Fatalf("register: %v", err)
	}
	if apy > 0 {
		if err := f.engine.UpdateProtocolStats(ownerAddr, id, apy, big.NewInt(0)); err != nil {
			f.t.Fatalf("update stats: %v", err)
		}
	}
	return id
}

func (f *fixture) mustProtocols() []*Protocol {
	f.t.Helper()
	protocols, err := f.engine.Protocols()
	if err != nil {
		f.t.Fatalf("protocols: %v", err)
	}
	return protocols
}

func (f *fixture) protocol(id ProtocolID) *Protocol {
	f.t.Helper()
	protocol, ok, err := f.engine.Protocol(id)
	if err != nil || !ok {
		f.t.Fatalf("protocol %d: ok=%v err=%v", id, ok, err)
	}
	return protocol
}

func (f *fixture) position(user crypto.Address, id ProtocolID) *Position {
	f.t.Helper()
	position, err := f.engine.Position(user, id)
	if err != nil {
		f.t.Fatalf("position: %v", err)
	}
	return position
}

func (f *fixture) deposit(user crypto.Address, amount int64) *DepositReceipt {
	f.t.Helper()
	receipt, err := f.engine.DepositToBest(user, big.NewInt(amount), nil)
	if err != nil {
		f.t.Fatalf("deposit: %v", err)
	}
	return receipt
}
