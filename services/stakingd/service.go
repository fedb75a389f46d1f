package stakingd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tuturu-tech/nft-staking/config"
	"github.com/tuturu-tech/nft-staking/core/events"
	"github.com/tuturu-tech/nft-staking/gateway/middleware"
	"github.com/tuturu-tech/nft-staking/native/nftstake"
	"github.com/tuturu-tech/nft-staking/storage"
)

// Service is a fully wired daemon: storage, engine, event sinks and API.
type Service struct {
	Engine  *nftstake.Engine
	Ledger  *Ledger
	Backend *Backend
	Hub     *Hub
	History *History
	Server  *Server

	db   storage.Database
	idem *IdempotencyStore
}

// Build opens every store named in cfg and wires the API over them.
func Build(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("stakingd: nil config")
	}
	if cfg.Storage.InMemory {
		return buildOn(cfg, storage.NewMemDB(), logger)
	}
	if err := os.MkdirAll(cfg.Storage.LedgerDir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	ldb, err := storage.NewLevelDB(cfg.Storage.LedgerDir)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return buildOn(cfg, ldb, logger)
}

// buildOn wires the service over an already open ledger database. The
// service owns db from here on and closes it on failure.
func buildOn(cfg *config.Config, db storage.Database, logger *slog.Logger) (_ *Service, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{db: db}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()
	engineCfg, err := cfg.Ledger.EngineConfig()
	if err != nil {
		return nil, err
	}

	seed, err := seedFrom(cfg.Devnet)
	if err != nil {
		return nil, err
	}
	svc.Backend, err = OpenBackend(svc.db, engineCfg, seed, logger)
	if err != nil {
		return nil, err
	}

	svc.Engine, err = nftstake.NewEngine(svc.Backend.Custody(), svc.Backend.Vault(), engineCfg)
	if err != nil {
		return nil, err
	}
	svc.Engine.SetLogger(logger)
	// Token state is written in the same batch as the ledger records.
	ledgerStore := nftstake.NewKVStore(svc.db)
	ledgerStore.Attach(svc.Backend)
	if err := svc.Engine.Restore(ledgerStore); err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}

	if dir := filepath.Dir(cfg.Storage.IdempotencyPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create idempotency dir: %w", err)
		}
	}
	svc.idem, err = OpenIdempotencyStore(cfg.Storage.IdempotencyPath, defaultIdempotencyTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}
	if path := strings.TrimPrefix(cfg.Storage.HistoryDSN, "file:"); path != cfg.Storage.HistoryDSN {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create history dir: %w", err)
			}
		}
	}
	svc.History, err = OpenHistory(cfg.Storage.HistoryDSN, logger)
	if err != nil {
		return nil, err
	}

	svc.Hub = NewHub()
	svc.Engine.SetEmitter(events.Fanout{metricsEmitter{}, svc.History, svc.Hub})

	svc.Ledger = NewLedger(svc.Engine, logger)

	svc.Server, err = NewServer(ServerOptions{
		Ledger:      svc.Ledger,
		History:     svc.History,
		Hub:         svc.Hub,
		Idempotency: svc.idem,
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		RateLimit: middleware.RateLimit{
			RatePerSecond: cfg.RateLimit.RatePerSecond,
			Burst:         cfg.RateLimit.Burst,
		},
		Logger:      logger,
		LogRequests: cfg.Logging.Env != "prod",
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// Close releases every store. It is safe to call on a partially built
// service.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	if s.idem != nil {
		errs = append(errs, s.idem.Close())
	}
	if s.db != nil {
		s.db.Close()
	}
	return errors.Join(errs...)
}

func seedFrom(devnet config.DevnetConfig) (*Seed, error) {
	if !devnet.Enabled {
		return nil, nil
	}
	float, err := devnet.Float()
	if err != nil {
		return nil, err
	}
	seed := &Seed{RewardFloat: float}
	for _, mint := range devnet.Mints {
		seed.Mints = append(seed.Mints, SeedMint{Owner: common.HexToAddress(mint.Owner), Count: mint.Count})
	}
	return seed, nil
}
