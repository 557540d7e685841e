package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/polygens/wagerd/internal/blob/s3"
	"github.com/polygens/wagerd/internal/cache/redis"
	"github.com/polygens/wagerd/internal/config"
	"github.com/polygens/wagerd/internal/crypto"
	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/ledger/solana"
	"github.com/polygens/wagerd/internal/notify"
	"github.com/polygens/wagerd/internal/service"
	"github.com/polygens/wagerd/internal/store/postgres"
	"github.com/polygens/wagerd/internal/treasury"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Markets domain.MarketStore
	Bets    domain.BetStore
	Users   domain.UserStore
	Intents domain.IntentStore
	Audit   domain.AuditStore

	// Coordination
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Bus     domain.SignalBus

	// Ledger
	Ledger   domain.LedgerClient
	Treasury *treasury.Treasury
	Keyring  *crypto.Keyring

	// Blob storage (nil when no bucket is configured)
	Blob domain.BlobWriter

	// Notifications
	Notifier *notify.Notifier

	// Services
	Wagers     *service.WagerService
	CashOuts   *service.CashOutService
	Settlement *service.SettlementService
	MarketSvc  *service.MarketService

	// Raw clients kept for health checks.
	PG    *postgres.Client
	Redis *redis.Client
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PG = pgClient
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Bets = postgres.NewBetStore(pool)
	deps.Users = postgres.NewUserStore(pool)
	deps.Intents = postgres.NewIntentStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)

	// --- S3 settlement report archive (optional) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blob = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Ledger and treasury ---
	treasuryHandle, err := crypto.LoadTreasuryKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Treasury.PrivateKey,
		EncryptedKeyPath: cfg.Treasury.EncryptedKeyPath,
		KeyPassword:      cfg.Treasury.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
	}
	ledgerClient := solana.NewClient(
		cfg.Ledger.RPCURL,
		cfg.Ledger.Commitment,
		cfg.Ledger.ConfirmTimeout.Duration,
		cfg.Ledger.RequestTimeout.Duration,
	)
	deps.Ledger = ledgerClient
	deps.Treasury = treasury.New(treasuryHandle, ledgerClient)

	keyring, err := crypto.NewKeyring(cfg.Engine.KeyEncryptionSecret)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: keyring: %w", err)
	}
	deps.Keyring = keyring

	// --- Services ---
	deps.Wagers = service.NewWagerService(
		deps.Markets, deps.Bets, deps.Users, deps.Intents, deps.Audit,
		deps.Locks, deps.Limiter, deps.Bus, deps.Ledger, deps.Keyring,
		deps.Treasury, deps.Notifier,
		service.WagerConfig{
			MinStake:        cfg.Engine.MinStake,
			LockTTL:         cfg.Engine.LockTTL.Duration,
			LockWait:        cfg.Engine.LockWait.Duration,
			PlaceRateLimit:  cfg.Engine.PlaceRateLimit,
			PlaceRateWindow: cfg.Engine.PlaceRateWindow.Duration,
		},
		logger,
	)
	deps.CashOuts = service.NewCashOutService(
		deps.Markets, deps.Bets, deps.Users, deps.Intents, deps.Audit,
		deps.Locks, deps.Bus, deps.Ledger, deps.Treasury, deps.Notifier,
		cfg.Engine.LockTTL.Duration, cfg.Engine.LockWait.Duration, logger,
	)
	deps.Settlement = service.NewSettlementService(
		deps.Markets, deps.Bets, deps.Users, deps.Intents, deps.Audit,
		deps.Locks, deps.Bus, deps.Ledger, deps.Treasury, deps.Blob,
		deps.Notifier,
		cfg.Engine.LockTTL.Duration, cfg.Engine.LockWait.Duration, logger,
	)
	deps.MarketSvc = service.NewMarketService(
		deps.Markets, deps.Bets, deps.Users, deps.Treasury, deps.Bus, logger,
	)

	return deps, cleanup, nil
}
