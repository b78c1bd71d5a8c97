package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"yieldrouter/storage"
)

type kvRecord struct {
	Name   string
	Amount *big.Int
	Height uint64
	Active bool
}

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestKVPutGetRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	record := kvRecord{Name: "alpha", Amount: big.NewInt(1_000_000), Height: 7, Active: true}
	require.NoError(t, m.KVPut([]byte("record/alpha"), record))

	var out kvRecord
	ok, err := m.KVGet([]byte("record/alpha"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alpha", out.Name)
	require.Zero(t, out.Amount.Cmp(big.NewInt(1_000_000)))
	require.True(t, out.Active)

	ok, err = m.KVGet([]byte("record/missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = m.KVGet(nil, &out)
	require.Error(t, err)
}

func TestAtomicCommitsAllWrites(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Atomic(func() error {
		require.True(t, m.InAtomic())
		if err := m.KVPut([]byte("a"), uint64(1)); err != nil {
			return err
		}
		var seen uint64
		ok, err := m.KVGet([]byte("a"), &seen)
		require.NoError(t, err)
		require.True(t, ok, "writes must be visible inside the unit")
		require.Equal(t, uint64(1), seen)
		return m.KVPut([]byte("b"), uint64(2))
	})
	require.NoError(t, err)
	require.False(t, m.InAtomic())

	var b uint64
	ok, err := m.KVGet([]byte("b"), &b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), b)
}

func TestAtomicDiscardsOnError(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.KVPut([]byte("a"), uint64(1)))

	boom := errors.New("boom")
	err := m.Atomic(func() error {
		require.NoError(t, m.KVPut([]byte("a"), uint64(99)))
		require.NoError(t, m.KVDelete([]byte("a")))
		require.NoError(t, m.KVPut([]byte("c"), uint64(3)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	var a uint64
	ok, err := m.KVGet([]byte("a"), &a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), a)

	ok, err = m.KVGet([]byte("c"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAtomicDiscardsOnPanic(t *testing.T) {
	m, _ := newTestManager(t)

	require.Panics(t, func() {
		_ = m.Atomic(func() error {
			_ = m.KVPut([]byte("p"), uint64(1))
			panic("unexpected")
		})
	})
	require.False(t, m.InAtomic())
	ok, err := m.KVGet([]byte("p"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNestedAtomicJoinsOuterUnit(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Atomic(func() error {
		if err := m.Atomic(func() error {
			return m.KVPut([]byte("inner"), uint64(5))
		}); err != nil {
			return err
		}
		return errors.New("outer failure")
	})
	require.Error(t, err)

	ok, err := m.KVGet([]byte("inner"), nil)
	require.NoError(t, err)
	require.False(t, ok, "inner writes must be discarded with the outer unit")
}

func TestDeleteInsideUnitHidesValue(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.KVPut([]byte("d"), uint64(4)))

	require.NoError(t, m.Atomic(func() error {
		require.NoError(t, m.KVDelete([]byte("d")))
		ok, err := m.KVGet([]byte("d"), nil)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))

	ok, err := m.KVGet([]byte("d"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParamStore(t *testing.T) {
	m, _ := newTestManager(t)

	_, ok, err := m.ParamStoreGet("system/pauses")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.ParamStoreSet("system/pauses", []byte(`{"aggregator":true}`)))
	raw, ok, err := m.ParamStoreGet("system/pauses")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"aggregator":true}`, string(raw))
}
