package aggregator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccrueLinear(t *testing.T) {
	position := &Position{Amount: big.NewInt(1_000_000), Rewards: big.NewInt(0)}
	require.Equal(t, "500000", Accrue(position, 500, 10).String())
}

func TestAccrueFloorsRemainder(t *testing.T) {
	position := &Position{Amount: big.NewInt(3), Rewards: big.NewInt(0), AccrualHeight: 4}
	// 3 * 1 * 3333 / 10000 = 0.9999
	require.Zero(t, Accrue(position, 3_333, 5).Sign())
	require.Equal(t, "1", Accrue(position, 3_334, 5).String())
}

func TestAccrueZeroCases(t *testing.T) {
	require.Zero(t, Accrue(nil, 500, 10).Sign())
	require.Zero(t, Accrue(&Position{Amount: big.NewInt(0)}, 500, 10).Sign())
	require.Zero(t, Accrue(&Position{Amount: big.NewInt(100), AccrualHeight: 10}, 500, 10).Sign())
	require.Zero(t, Accrue(&Position{Amount: big.NewInt(100), AccrualHeight: 12}, 500, 10).Sign(), "heights before the basis saturate at zero")
	require.Zero(t, Accrue(&Position{Amount: big.NewInt(100)}, 0, 10).Sign())
}

func TestSettleAndFinalize(t *testing.T) {
	position := &Position{Amount: big.NewInt(10_000), Rewards: big.NewInt(50)}
	folded := settle(position, 100, 3)
	require.Equal(t, "300", folded.String())
	require.Equal(t, "350", position.Rewards.String())
	require.Equal(t, uint64(3), position.AccrualHeight)
	require.Equal(t, "350", Claimable(position, 100, 3).String())
	require.Equal(t, "550", Claimable(position, 100, 5).String())

	claimed := finalizeClaim(position, 3)
	require.Equal(t, "350", claimed.String())
	require.Zero(t, position.Rewards.Sign())
	require.Equal(t, uint64(3), position.LastClaimHeight)
}
