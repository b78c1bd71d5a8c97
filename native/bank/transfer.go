package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"

	"yieldrouter/core/events"
	"yieldrouter/crypto"
	nativecommon "yieldrouter/native/common"
)

var (
	ErrInvalidAmount     = errors.New("bank: amount must not be negative")
	ErrInvalidAddress    = errors.New("bank: address must not be empty")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrBalanceOverflow   = errors.New("bank: balance exceeds 256 bits")
	errNilState          = errors.New("bank: state not configured")
)

const maxMemoLength = 256

var balancePrefix = []byte("bank/balance/")

// Transferer moves fungible balances between accounts. A returned error means
// no balance changed.
type Transferer interface {
	Transfer(amount *big.Int, from, to crypto.Address, memo string) error
}

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger keeps fungible balances in the shared state so that transfers are
// committed or discarded together with the rest of the enclosing unit of
// work.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewLedger creates a ledger backed by st.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used to broadcast transfers.
// Passing nil resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

func balanceKey(addr crypto.Address) []byte {
	buf := make([]byte, len(balancePrefix)+crypto.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr[:])
	return buf
}

// BalanceOf returns the balance of addr, zero for unknown accounts.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	ok, err := l.state.KVGet(balanceKey(addr), balance)
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) putBalance(addr crypto.Address, balance *big.Int) error {
	if _, overflow := uint256.FromBig(balance); overflow {
		return ErrBalanceOverflow
	}
	return l.state.KVPut(balanceKey(addr), balance)
}

// Credit mints amount into addr. It is used for genesis allocations and
// operator funding of reward pools.
func (l *Ledger) Credit(addr crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if addr.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(addr)
	if err != nil {
		return err
	}
	return l.putBalance(addr, new(big.Int).Add(balance, amount))
}

// Transfer moves amount from one account to another. Zero amounts are
// accepted and change nothing. Both balances are validated before either is
// written.
func (l *Ledger) Transfer(amount *big.Int, from, to crypto.Address, memo string) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, nativecommon.ModuleBank); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}

	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	nextTo := new(big.Int).Add(toBalance, amount)
	if _, overflow := uint256.FromBig(nextTo); overflow {
		return ErrBalanceOverflow
	}

	if err := l.putBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.putBalance(to, nextTo); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
		Memo:   normalizeMemo(memo),
	})
	return nil
}

func normalizeMemo(memo string) string {
	memo = strings.TrimSpace(memo)
	if len(memo) <= maxMemoLength {
		return memo
	}
	cut := maxMemoLength
	for cut > 0 && !utf8.RuneStart(memo[cut]) {
		cut--
	}
	return memo[:cut]
}
