package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"yieldrouter/config"
	"yieldrouter/core/events"
	"yieldrouter/core/state"
	"yieldrouter/native/aggregator"
	"yieldrouter/native/bank"
	"yieldrouter/native/params"
	"yieldrouter/observability"
	"yieldrouter/storage"
)

const recentEventLimit = 512

var genesisTimeKey = []byte("node/genesis_time")

// node bundles the long-lived components behind the gateway.
type node struct {
	db       storage.Database
	manager  *state.Manager
	bank     *bank.Ledger
	engine   *aggregator.Engine
	pauses   *params.Store
	recorder *events.Recorder
}

func (n *node) Close() {
	if n != nil && n.db != nil {
		n.db.Close()
	}
}

// openNode opens the LevelDB state under cfg.DataDir and wires the engine.
func openNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	n, err := buildNode(db, cfg, time.Now, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return n, nil
}

// buildNode wires storage, state, bank and engine and applies genesis on a
// fresh database.
func buildNode(db storage.Database, cfg *config.Config, now func() time.Time, logger *slog.Logger) (*node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	pauses := params.NewStore(manager)

	engine := aggregator.NewEngine()
	engine.SetState(manager)
	engine.SetPauses(pauses)
	engine.SetPauseControl(pauses)
	engine.SetMetrics(observability.Aggregator())

	ledger := bank.NewLedger(manager)
	ledger.SetPauses(pauses)
	ledger.SetEmitter(engine.EventSink())
	engine.SetTransferer(ledger)

	recorder := events.NewRecorder(recentEventLimit)
	engine.SetEmitter(events.Fanout{recorder, observability.Events()})

	n := &node{db: db, manager: manager, bank: ledger, engine: engine, pauses: pauses, recorder: recorder}
	genesis, err := n.genesisTime(cfg, now, logger)
	if err != nil {
		return nil, err
	}
	engine.SetHeightSource(heightSource(genesis, cfg.BlockIntervalSeconds, now))
	if err := n.applyGenesis(cfg, logger); err != nil {
		return nil, err
	}
	if err := manager.Atomic(func() error { return pauses.SetPauses(cfg.Pauses) }); err != nil {
		return nil, fmt.Errorf("apply pauses: %w", err)
	}
	return n, nil
}

// applyGenesis initialises the engine and credits genesis balances in one
// unit of work. An already initialised database is left untouched.
func (n *node) applyGenesis(cfg *config.Config, logger *slog.Logger) error {
	if _, err := n.engine.Params(); err == nil {
		return nil
	} else if !errors.Is(err, aggregator.ErrNotInitialized) {
		return fmt.Errorf("load aggregator params: %w", err)
	}
	settings, err := cfg.AggregatorSettings()
	if err != nil {
		return err
	}
	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}
	err = n.manager.Atomic(func() error {
		if err := n.engine.Initialize(aggregator.Params{
			Owner:                settings.Owner,
			Custody:              settings.Custody,
			FeeCollector:         settings.FeeCollector,
			RewardPool:           settings.RewardPool,
			MinDeposit:           settings.MinDeposit,
			MaxSlippageBps:       settings.MaxSlippageBps,
			PlatformFeeBps:       settings.PlatformFeeBps,
			AllowOpaqueAddresses: settings.AllowOpaqueAddresses,
		}); err != nil {
			return fmt.Errorf("initialise aggregator: %w", err)
		}
		for _, alloc := range allocations {
			if err := n.bank.Credit(alloc.Address, alloc.Amount); err != nil {
				return fmt.Errorf("credit %s: %w", alloc.Address, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("genesis applied",
		slog.String("owner", settings.Owner.String()),
		slog.Int("allocations", len(allocations)))
	return nil
}

// genesisTime returns the unix time the height clock counts from. The first
// boot stores it in state (cfg.GenesisTime, or now when unset) and every
// later boot reads it back, so heights keep growing across restarts.
func (n *node) genesisTime(cfg *config.Config, now func() time.Time, logger *slog.Logger) (int64, error) {
	var stored uint64
	found, err := n.manager.KVGet(genesisTimeKey, &stored)
	if err != nil {
		return 0, fmt.Errorf("load genesis time: %w", err)
	}
	if found {
		if cfg.GenesisTime != 0 && cfg.GenesisTime != int64(stored) {
			logger.Warn("configured genesis time ignored",
				slog.Int64("configured", cfg.GenesisTime),
				slog.Int64("stored", int64(stored)))
		}
		return int64(stored), nil
	}
	genesis := cfg.GenesisTime
	if genesis <= 0 {
		genesis = now().Unix()
	}
	if err := n.manager.Atomic(func() error { return n.manager.KVPut(genesisTimeKey, uint64(genesis)) }); err != nil {
		return 0, fmt.Errorf("store genesis time: %w", err)
	}
	return genesis, nil
}

// heightSource derives the accrual height from wall-clock time elapsed since
// genesis in interval-second steps.
func heightSource(genesis int64, interval uint64, now func() time.Time) func() uint64 {
	if interval == 0 {
		interval = 1
	}
	return func() uint64 {
		elapsed := now().Unix() - genesis
		if elapsed <= 0 {
			return 0
		}
		return uint64(elapsed) / interval
	}
}
