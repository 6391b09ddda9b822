package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/liquidbot/internal/blob/s3"
	"github.com/alanyoungcy/liquidbot/internal/cache/redis"
	"github.com/alanyoungcy/liquidbot/internal/chain"
	"github.com/alanyoungcy/liquidbot/internal/config"
	"github.com/alanyoungcy/liquidbot/internal/crypto"
	"github.com/alanyoungcy/liquidbot/internal/directory"
	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/ledger"
	"github.com/alanyoungcy/liquidbot/internal/market"
	"github.com/alanyoungcy/liquidbot/internal/metrics"
	"github.com/alanyoungcy/liquidbot/internal/notify"
	"github.com/alanyoungcy/liquidbot/internal/store/postgres"
	"github.com/alanyoungcy/liquidbot/internal/strategy"
	"github.com/alanyoungcy/liquidbot/internal/valuation"
)

// Dependencies bundles everything the modes need. Optional infrastructure
// fields are nil when the corresponding section is disabled.
type Dependencies struct {
	// Chain
	Backend *ethclient.Client
	Reader  *chain.Reader
	Prices  *valuation.Service
	Markets *market.Registry
	Params  strategy.ParamsProvider
	Pairing strategy.Pairing

	// Signing side, liquidate mode only.
	Wallet *crypto.Wallet
	Sender *chain.Transactor

	// Engine state
	Directory *directory.Directory
	Ledger    *ledger.Ledger

	// Stores
	Postgres         *postgres.Client
	LiquidationStore domain.LiquidationStore
	AuditStore       domain.AuditStore

	// Caches
	Redis       *redis.Client
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Blob storage
	Blobs    *s3blob.Store
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Postgres = pgClient
		deps.LiquidationStore = pgClient.Liquidations()
		deps.AuditStore = pgClient.Audit()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 ledger archive ---
	if cfg.S3.Enabled {
		store, err := s3blob.Open(ctx, s3blob.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Blobs = store
		deps.Archiver = s3blob.NewArchiver(store, deps.AuditStore)
	}

	// --- Chain ---
	backend, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, backend.Close)
	deps.Backend = backend

	markets, err := market.NewRegistry(toDomainMarkets(cfg.Markets))
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Markets = markets

	oracle, err := chain.NewOracle(backend, common.HexToAddress(cfg.Protocol.Oracle), chain.OracleKind(cfg.Protocol.OracleKind))
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Prices = valuation.NewService(oracle, deps.PriceCache, logger)
	deps.Reader = chain.NewReader(backend, common.HexToAddress(cfg.Protocol.Comptroller), markets, deps.Prices, logger)

	if cfg.Protocol.VerifyMarkets {
		for _, w := range deps.Reader.VerifyMarkets(ctx) {
			logger.WarnContext(ctx, "market verification", slog.String("warning", w))
		}
	}

	fallback := strategy.ProtocolParams{
		CloseFactor:          cfg.Protocol.CloseFactor,
		LiquidationIncentive: cfg.Protocol.LiquidationIncentive,
	}
	switch strategy.ParamsMode(cfg.Protocol.ParamsMode) {
	case strategy.ParamsOnchain:
		deps.Params = strategy.NewCachedParams(deps.Reader, cfg.Protocol.ParamsRefresh.Duration, fallback, logger)
	default:
		deps.Params = strategy.StaticParams{P: fallback}
	}

	pairing, err := strategy.NewRegistry().Get(cfg.Protocol.Pairing)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Pairing = pairing

	// --- Wallet (liquidate mode only) ---
	if cfg.Mode == ModeLiquidate {
		wallet, err := crypto.OpenWallet(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: wallet: %w", err))
		}
		opts, err := wallet.TransactOpts(bigChainID(cfg.Chain.ChainID))
		if err != nil {
			return fail(fmt.Errorf("wire: wallet: %w", err))
		}
		deps.Wallet = wallet
		deps.Sender = chain.NewTransactor(backend, opts, chain.TransactorConfig{
			GasLimitFloor:  cfg.Execution.GasLimitFloor,
			GasHeadroomPct: cfg.Execution.GasHeadroomPct,
			ConfirmTimeout: cfg.Execution.ConfirmTimeout.Duration,
		}, logger)
	}

	// --- Borrower directory and ledger ---
	var source directory.Source
	if strings.TrimSpace(cfg.Directory.APIBase) != "" {
		source = directory.NewClient(cfg.Directory.APIBase, cfg.Directory.Timeout.Duration)
	}
	deps.Directory = directory.New(source, cfg.Directory.FallbackAddresses, logger)
	deps.Ledger = ledger.New(deps.LiquidationStore, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Metrics = metrics.New()

	return deps, cleanup, nil
}

// toDomainMarkets converts validated market configuration. "native" or an
// empty underlying maps to domain.NativeAsset.
func toDomainMarkets(in []config.MarketConfig) []domain.MarketConfig {
	out := make([]domain.MarketConfig, 0, len(in))
	for _, m := range in {
		dm := domain.MarketConfig{
			Symbol:             m.Symbol,
			Market:             common.HexToAddress(m.Market),
			Decimals:           uint8(m.Decimals),
			UnderlyingDecimals: uint8(m.UnderlyingDecimals),
		}
		if !m.IsNative() {
			dm.Underlying = common.HexToAddress(m.Underlying)
		}
		out = append(out, dm)
	}
	return out
}

// thresholds converts the required liquidation settings. Validate guarantees
// every pointer is set.
func thresholds(c config.LiquidationConfig) strategy.Thresholds {
	return strategy.Thresholds{
		MinProfitUSD:      deref(c.MinProfitUSD),
		MaxGasPriceGwei:   deref(c.MaxGasPriceGwei),
		MaxLiquidationUSD: deref(c.MaxLiquidationUSD),
		MinCollateralUSD:  deref(c.MinCollateralUSD),
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
