package main

import (
	"bytes"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yieldrouter/config"
	"yieldrouter/crypto"
	gatewayconfig "yieldrouter/gateway/config"
	"yieldrouter/gateway/routes"
	"yieldrouter/storage"
)

func testAddress(fill byte) crypto.Address {
	return crypto.NewAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.BlockIntervalSeconds = 10
	cfg.GenesisTime = 1_000
	cfg.Aggregator.Owner = testAddress(0x01).String()
	cfg.Aggregator.CustodyAddress = testAddress(0x02).String()
	cfg.Genesis.Balances = []config.GenesisBalance{
		{Address: testAddress(0xA1).String(), Amount: "5000000"},
	}
	return cfg
}

func TestBuildNodeAppliesGenesisOnce(t *testing.T) {
	db := storage.NewMemDB()
	cfg := testConfig()
	clock := func() time.Time { return time.Unix(1_000, 0) }

	n, err := buildNode(db, cfg, clock, nil)
	require.NoError(t, err)
	params, err := n.engine.Params()
	require.NoError(t, err)
	require.Equal(t, testAddress(0x01), params.Owner)
	require.Equal(t, testAddress(0x01), params.FeeCollector)
	balance, err := n.bank.BalanceOf(testAddress(0xA1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000), balance)

	// Reopening the same database must not credit genesis balances again.
	again, err := buildNode(db, cfg, clock, nil)
	require.NoError(t, err)
	balance, err = again.bank.BalanceOf(testAddress(0xA1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000), balance)
}

func TestBuildNodeRejectsInvalidGenesis(t *testing.T) {
	cfg := testConfig()
	cfg.Aggregator.CustodyAddress = cfg.Aggregator.Owner
	_, err := buildNode(storage.NewMemDB(), cfg, time.Now, nil)
	require.Error(t, err)
}

func TestBuildNodeAppliesConfiguredPauses(t *testing.T) {
	cfg := testConfig()
	cfg.Pauses.Aggregator = true
	n, err := buildNode(storage.NewMemDB(), cfg, time.Now, nil)
	require.NoError(t, err)
	require.True(t, n.pauses.IsPaused("aggregator"))
	require.False(t, n.pauses.IsPaused("bank"))
}

func TestHeightSourceCountsIntervals(t *testing.T) {
	now := time.Unix(1_000, 0)
	source := heightSource(1_000, 10, func() time.Time { return now })
	require.Equal(t, uint64(0), source())

	now = time.Unix(1_095, 0)
	require.Equal(t, uint64(9), source())

	now = time.Unix(500, 0)
	require.Equal(t, uint64(0), source())
}

func TestRestartKeepsAccruedRewards(t *testing.T) {
	db := storage.NewMemDB()
	cfg := testConfig()
	cfg.GenesisTime = 0
	now := time.Unix(50_000, 0)
	clock := func() time.Time { return now }
	owner := testAddress(0x01)
	alice := testAddress(0xA1)

	n, err := buildNode(db, cfg, clock, nil)
	require.NoError(t, err)
	id, err := n.engine.RegisterProtocol(owner, testAddress(0x41).String(), "staking")
	require.NoError(t, err)
	require.NoError(t, n.engine.UpdateProtocolStats(owner, id, 100, big.NewInt(0)))

	now = now.Add(1_000 * time.Second)
	_, err = n.engine.DepositToBest(alice, big.NewInt(10_000), nil)
	require.NoError(t, err)

	now = now.Add(1_000 * time.Second)
	pending, err := n.engine.PendingRewards(alice, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), pending)

	restarted, err := buildNode(db, cfg, clock, nil)
	require.NoError(t, err)
	pending, err = restarted.engine.PendingRewards(alice, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), pending)

	now = now.Add(1_000 * time.Second)
	pending, err = restarted.engine.PendingRewards(alice, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(20_000), pending)
}

func TestStoredGenesisTimeOverridesConfig(t *testing.T) {
	db := storage.NewMemDB()
	cfg := testConfig()
	clock := func() time.Time { return time.Unix(1_000, 0) }
	n, err := buildNode(db, cfg, clock, nil)
	require.NoError(t, err)
	genesis, err := n.genesisTime(cfg, clock, slog.Default())
	require.NoError(t, err)
	require.Equal(t, int64(1_000), genesis)

	cfg.GenesisTime = 9_999
	again, err := buildNode(db, cfg, clock, nil)
	require.NoError(t, err)
	genesis, err = again.genesisTime(cfg, clock, slog.Default())
	require.NoError(t, err)
	require.Equal(t, int64(1_000), genesis)
}

func TestRateLimitsDefaults(t *testing.T) {
	limits := rateLimits(nil)
	require.Contains(t, limits, routes.LimitReads)
	require.Contains(t, limits, routes.LimitWrites)

	limits = rateLimits([]gatewayconfig.RateLimitConfig{{ID: "writes", RatePerSecond: 5, Burst: 7}})
	require.Len(t, limits, 1)
	require.Equal(t, 7, limits["writes"].Burst)
}

func TestReplayGuardPersistsUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	guard, closeFn, err := buildReplayGuard(gatewayconfig.IdempotencyConfig{Enabled: true, Path: "idempotency"}, dir)
	require.NoError(t, err)
	require.NotNil(t, guard)
	closeFn()

	guard, closeFn, err = buildReplayGuard(gatewayconfig.IdempotencyConfig{Enabled: false}, dir)
	require.NoError(t, err)
	require.Nil(t, guard)
	closeFn()
}

func TestIsLoopbackAddress(t *testing.T) {
	require.True(t, isLoopbackAddress("127.0.0.1:8080"))
	require.True(t, isLoopbackAddress("localhost:8080"))
	require.False(t, isLoopbackAddress(":8080"))
	require.False(t, isLoopbackAddress("10.0.0.5:8080"))
}
