package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"yetifarm/config"
	"yetifarm/core/events"
	"yetifarm/core/genesis"
	"yetifarm/core/state"
	"yetifarm/crypto"
	"yetifarm/explorer"
	"yetifarm/native/bank"
	nativecommon "yetifarm/native/common"
	"yetifarm/native/farm"
	"yetifarm/observability/metrics"
	"yetifarm/rpc"
	"yetifarm/storage"
)

type nodeOptions struct {
	allowMigrate bool
	clock        farm.Clock
	// registerer and gatherer default to the Prometheus globals.
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// node is the wired farm: storage, ledgers, engine, journal and RPC server.
type node struct {
	db        *storage.LevelDB
	journalDB *gorm.DB
	module    crypto.Address
	staked    *bank.Ledger
	reward    *bank.Ledger
	engine    *farm.Engine
	pauses    *nativecommon.PauseSet
	server    *rpc.Server
}

func openNode(cfg *config.Config, logger *slog.Logger, opts nodeOptions) (_ *node, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(cfg.DataDir, "farm")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n := &node{db: db, module: crypto.ModuleAddress(farm.ModuleName)}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	manager := state.NewManager(db)
	if err := manager.EnsureStateVersion(opts.allowMigrate); err != nil {
		return nil, err
	}
	if n.staked, err = bank.NewLedger(cfg.Farm.StakedAsset, db); err != nil {
		return nil, fmt.Errorf("staked ledger: %w", err)
	}
	if n.reward, err = bank.NewLedger(cfg.Farm.RewardAsset, db); err != nil {
		return nil, fmt.Errorf("reward ledger: %w", err)
	}

	farmMetrics, rpcMetrics := metrics.Farm(), metrics.RPC()
	if opts.registerer != nil {
		farmMetrics = metrics.NewFarmMetrics(opts.registerer)
		rpcMetrics = metrics.NewRPCMetrics(opts.registerer)
	}

	var emitters events.MultiEmitter
	var journal *explorer.Journal
	if dsn := strings.TrimSpace(cfg.EventsDSN); dsn != "" {
		n.journalDB, err = explorer.Open(dsn)
		if err != nil {
			return nil, err
		}
		journal = explorer.NewJournal(n.journalDB, n.staked.Symbol(), n.reward.Symbol(), logger)
		emitters = append(emitters, journal)
	}

	n.pauses = nativecommon.NewPauseSet()
	n.pauses.SetPaused(farm.ModuleName, cfg.Farm.Paused)

	n.engine = farm.NewEngine(n.module, bank.NewGateway(n.staked, n.module), bank.NewGateway(n.reward, n.module))
	n.engine.SetState(manager)
	n.engine.SetClock(opts.clock)
	n.engine.SetEmitter(emitters)
	n.engine.SetPauses(n.pauses)
	n.engine.SetMetrics(farmMetrics)

	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		if err := n.applyGenesis(path, manager, logger); err != nil {
			return nil, err
		}
	}
	if err := n.engine.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("farm state inconsistent: %w", err)
	}

	n.server, err = rpc.NewServer(rpc.Options{
		Engine:          n.engine,
		Staked:          n.staked,
		Reward:          n.reward,
		Journal:         journal,
		Pauses:          n.pauses,
		AuthToken:       cfg.AuthToken(),
		AccountAuth:     cfg.AccountAuth,
		AccountSecret:   cfg.AccountSecret(),
		DefaultDuration: cfg.Farm.DefaultDuration,
		RateLimit:       cfg.RateLimit,
		Logger:          logger,
		Metrics:         rpcMetrics,
		Gatherer:        opts.gatherer,
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// applyGenesis commits the allocations and the reward funding once. The first
// reward period opens on any start that finds genesis funding in custody but
// no period yet, so a failed notify is retried on the next start.
func (n *node) applyGenesis(path string, manager *state.Manager, logger *slog.Logger) error {
	spec, err := genesis.LoadGenesisSpec(path)
	if err != nil {
		return err
	}
	applied, err := genesis.Apply(spec, manager, n.module, n.reward, n.staked)
	if err != nil {
		return err
	}
	if applied {
		logger.Info("genesis applied", slog.Int("mints", len(spec.Mints())), slog.Int("approvals", len(spec.ApprovalEntries())))
	} else {
		logger.Debug("genesis already applied")
	}

	amount, duration, ok := spec.RewardAmount()
	if !ok {
		return nil
	}
	finish, err := n.engine.PeriodFinish()
	if err != nil {
		return err
	}
	if finish != 0 {
		return nil
	}
	// The engine refuses mutations while paused; the genesis period opens regardless.
	paused := n.pauses.IsPaused(farm.ModuleName)
	n.pauses.SetPaused(farm.ModuleName, false)
	err = n.engine.NotifyRewardAmount(amount, duration)
	n.pauses.SetPaused(farm.ModuleName, paused)
	if err != nil {
		return fmt.Errorf("genesis: open reward period: %w", err)
	}
	logger.Info("genesis reward period opened", slog.String("amount", amount.String()), slog.Uint64("duration", duration))
	return nil
}

// Close releases the journal connection and the database.
func (n *node) Close() error {
	if n == nil {
		return nil
	}
	var errs []error
	if n.journalDB != nil {
		if sqlDB, err := n.journalDB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		} else {
			errs = append(errs, err)
		}
	}
	if n.db != nil {
		n.db.Close()
	}
	return errors.Join(errs...)
}
