package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/config"
	"github.com/celery8911/InnerLedger/internal/db"
	"github.com/celery8911/InnerLedger/internal/events"
	"github.com/celery8911/InnerLedger/internal/metatx"
	"github.com/celery8911/InnerLedger/internal/metrics"
	"github.com/celery8911/InnerLedger/internal/middleware"
	"github.com/celery8911/InnerLedger/internal/ratelimit"
	"github.com/celery8911/InnerLedger/internal/repository"
	"github.com/celery8911/InnerLedger/internal/services"
)

// ChainClient is the slice of ethclient.Client the relayer uses.
type ChainClient interface {
	clients.ChainBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Options overrides for tests. Zero value dials everything from config.
type Options struct {
	Chain ChainClient
	DB    *gorm.DB
	Redis redis.UniversalClient
}

// ServiceContainer owns every long lived dependency of the relayer process
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Infrastructure
	DB        *gorm.DB
	Redis     redis.UniversalClient
	NATS      *clients.NATSClient
	Chain     ChainClient
	ethClient *ethclient.Client
	Registry  *config.DeploymentRegistry

	// Repositories
	TxRepo   repository.RelayTransactionRepository
	IdemRepo repository.IdempotencyRepository

	// Chain
	Domain    metatx.Domain
	Forwarder *clients.ForwarderClient
	Ledger    *clients.LedgerClient
	KMS       *clients.KMSClient // nil unless the relayer signs through KMS

	// Relay
	Limiter     ratelimit.Limiter
	memoryStore *ratelimit.MemoryStore
	IPLimiter   *middleware.IPRateLimiter
	Bus         *events.Bus
	Push        *services.WebSocketPushService
	Watcher     *services.TxWatcherService
	Relay       *services.RelayService

	// Read side
	Journeys *services.JourneyService
	AI       *clients.AIClient

	// Auth
	WalletAuth *services.WalletAuthService
	AdminAuth  *services.AdminAuthService

	Monitoring *services.MonitoringService

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewServiceContainer builds the container. Optional dependencies (database, NATS, subgraph,
// AI, auth) degrade to disabled features; an unusable chain or relayer credential is an error.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (*ServiceContainer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &ServiceContainer{
		Config:   cfg,
		Logger:   logger,
		Registry: config.GetDeploymentRegistry(),
	}
	c.Registry.FillContracts(cfg)
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, problem := range cfg.Validate() {
		logger.Warn("⚠️ config: " + problem)
	}

	steps := []struct {
		name string
		run  func(context.Context, Options) error
	}{
		{"storage", c.initStorage},
		{"chain", c.initChain},
		{"events", c.initEvents},
		{"relay", c.initRelay},
		{"read services", c.initReadServices},
		{"auth", c.initAuth},
	}
	for _, step := range steps {
		if err := step.run(ctx, opts); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.Info("✅ Service container initialized")
	return c, nil
}

// initStorage database, redis
func (c *ServiceContainer) initStorage(_ context.Context, opts Options) error {
	c.DB = opts.DB
	if c.DB == nil {
		gdb, err := db.InitDB(c.Config.Database, c.Logger)
		if err != nil {
			return err
		}
		c.DB = gdb
	}
	if c.DB != nil {
		c.TxRepo = repository.NewRelayTransactionRepository(c.DB)
		c.IdemRepo = repository.NewIdempotencyRepository(c.DB)
	}

	c.Redis = opts.Redis
	if c.Redis == nil && strings.EqualFold(c.Config.Relay.RateLimitStore, "redis") {
		rc := c.Config.Redis
		timeout := 5 * time.Second
		if rc.Timeout > 0 {
			timeout = time.Duration(rc.Timeout) * time.Second
		}
		c.Redis = redis.NewClient(&redis.Options{
			Addr:        rc.Addr(),
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: timeout,
			ReadTimeout: timeout,
		})
	}
	return nil
}

// initChain RPC client, forwarder and ledger bindings, domain check
func (c *ServiceContainer) initChain(ctx context.Context, opts Options) error {
	cfg := c.Config
	c.Chain = opts.Chain
	if c.Chain == nil {
		ec, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.Chain.RPCURL, err)
		}
		c.ethClient = ec
		c.Chain = ec
	}

	forwarder := common.Address{}
	if common.IsHexAddress(cfg.Contracts.Forwarder) {
		forwarder = common.HexToAddress(cfg.Contracts.Forwarder)
	}
	c.Domain = metatx.Domain{
		Name:              cfg.Contracts.ForwarderName,
		Version:           cfg.Contracts.ForwarderVersion,
		ChainID:           big.NewInt(cfg.Chain.ChainID),
		VerifyingContract: forwarder,
	}

	var strategy clients.TxSigningStrategy
	if cfg.RelayerConfigured() {
		s, err := c.signingStrategy(ctx)
		if err != nil {
			return err
		}
		strategy = s
	}

	var gasPrice *big.Int
	if cfg.Chain.GasPrice != "" {
		p, ok := metatx.ParseAmount(cfg.Chain.GasPrice)
		if !ok {
			return fmt.Errorf("invalid chain.gasPrice %q", cfg.Chain.GasPrice)
		}
		gasPrice = p
	}
	if forwarder != (common.Address{}) {
		c.Forwarder = clients.NewForwarderClient(c.Chain, forwarder, big.NewInt(cfg.Chain.ChainID), strategy, clients.ForwarderOptions{
			GasPrice:            gasPrice,
			GasPriceBumpPercent: int64(cfg.Chain.GasPriceBumpPercent),
			GasOverhead:         cfg.Chain.GasOverhead,
		}, c.Logger)
		if err := c.checkDomain(ctx); err != nil {
			return err
		}
	}

	c.Ledger = clients.NewLedgerClient(c.Chain, addressOrZero(cfg.Contracts.InnerLedger), addressOrZero(cfg.Contracts.GrowthSBT))
	return nil
}

func (c *ServiceContainer) signingStrategy(ctx context.Context) (clients.TxSigningStrategy, error) {
	cfg := c.Config
	var kms services.KMSSigner
	if cfg.Relayer.KMSEnabled {
		c.KMS = clients.NewKMSClient(cfg.KMS)
		kms = c.KMS
		if err := c.resolveKMSAddress(ctx); err != nil {
			return nil, err
		}
	}
	var secrets services.SecretFetcher
	if cfg.Relayer.PrivateKey == "" && cfg.Relayer.SecretID != "" {
		sm, err := clients.NewSecretsManagerClient(ctx, cfg.Relayer.SecretRegion, c.Logger)
		if err != nil {
			return nil, err
		}
		secrets = sm
	}
	return services.NewRelayerSigningStrategy(ctx, cfg, kms, secrets, c.Logger)
}

// resolveKMSAddress fills relayer.address from the key service when it is not configured,
// and warns when the configured one differs from the key registered under the alias.
func (c *ServiceContainer) resolveKMSAddress(ctx context.Context) error {
	r := &c.Config.Relayer
	info, err := c.KMS.GetKeyByAlias(ctx, r.KMSKeyAlias, c.Config.Chain.ChainID)
	if err != nil {
		if r.Address != "" {
			c.Logger.WithError(err).Warn("⚠️ KMS key lookup failed, using configured relayer address")
			return nil
		}
		return fmt.Errorf("resolve KMS relayer address: %w", err)
	}
	switch {
	case r.Address == "":
		r.Address = info.PublicAddress
	case !strings.EqualFold(r.Address, info.PublicAddress):
		c.Logger.WithFields(logrus.Fields{
			"configured": r.Address,
			"kms":        info.PublicAddress,
		}).Warn("⚠️ relayer address differs from the KMS key, using the KMS key")
		r.Address = info.PublicAddress
	}
	return nil
}

// checkDomain compares the configured signing domain with the forwarder's eip712Domain.
// A mismatch means every signature will fail; strict mode refuses to start.
func (c *ServiceContainer) checkDomain(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, time.Duration(c.Config.Chain.ReadTimeout)*time.Second)
	defer cancel()

	onChain, err := c.Forwarder.Domain(readCtx)
	if err != nil {
		if c.Config.Relay.StrictDomainCheck {
			return fmt.Errorf("read forwarder domain: %w", err)
		}
		c.Logger.WithError(err).Warn("⚠️ could not read forwarder eip712Domain, skipping domain check")
		return nil
	}
	if err := metatx.CheckDomain(c.Domain, onChain); err != nil {
		if c.Config.Relay.StrictDomainCheck {
			return err
		}
		c.Logger.WithError(err).Warn("⚠️ configured signing domain differs from the forwarder")
		return nil
	}
	c.Logger.WithField("domain", c.Domain.String()).Info("🔏 forwarder signing domain verified")
	return nil
}

// initEvents websocket push, NATS, watcher
func (c *ServiceContainer) initEvents(_ context.Context, _ Options) error {
	cfg := c.Config
	c.Push = services.NewWebSocketPushService(cfg.CORS.AllowedOrigins, c.Logger)
	c.Bus = events.NewBus(c.Logger, c.Push)

	if cfg.NATS.URL != "" {
		nc, err := clients.NewNATSClient(cfg.NATS, c.Logger)
		if err != nil {
			c.Logger.WithError(err).Warn("⚠️ NATS unavailable, relay events are not published")
			metrics.NATSConnectionStatus.Set(0)
		} else {
			c.NATS = nc
			c.Bus.Attach(events.PublisherSink{Publisher: nc})
		}
	}

	if cfg.Relay.WatchTransactions {
		schedule := services.DefaultWatcherBackoff
		if cfg.Chain.ConfirmTimeout > 0 {
			schedule.MaxElapsedTime = time.Duration(cfg.Chain.ConfirmTimeout) * time.Second
		}
		c.Watcher = services.NewTxWatcherService(c.Chain, c.TxRepo, c.Bus, schedule, c.Logger)
	}
	return nil
}

// initRelay rate limiters and the relay service
func (c *ServiceContainer) initRelay(ctx context.Context, _ Options) error {
	cfg := c.Config
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis rate limit store %s: %w", cfg.Redis.Addr(), err)
		}
		c.Limiter = ratelimit.NewRedisStore(c.Redis, cfg.Redis.KeyPrefix, cfg.Relay.RateLimit, cfg.Relay.RateWindow())
		c.Logger.WithField("addr", cfg.Redis.Addr()).Info("📦 rate limit store: redis")
	} else {
		c.memoryStore = ratelimit.NewMemoryStore(cfg.Relay.RateLimit, cfg.Relay.RateWindow())
		c.Limiter = c.memoryStore
		c.Logger.Info("📦 rate limit store: memory")
	}
	c.IPLimiter = middleware.NewIPRateLimiter(cfg.Relay.IPRatePerSecond, cfg.Relay.IPBurst, c.Logger)

	relayOpts := []services.RelayOption{services.WithEventBus(c.Bus)}
	if c.TxRepo != nil {
		relayOpts = append(relayOpts, services.WithAuditLog(c.TxRepo))
	}
	if c.IdemRepo != nil && cfg.Relay.IdempotencyTTL > 0 {
		relayOpts = append(relayOpts, services.WithIdempotency(c.IdemRepo))
	}
	if c.Watcher != nil {
		relayOpts = append(relayOpts, services.WithWatcher(c.Watcher))
	}

	// a read-only forwarder must stay a nil interface so the service reports not configured
	var submitter services.ChainForwarder
	if c.Forwarder != nil && c.Forwarder.CanSubmit() {
		submitter = c.Forwarder
	}
	c.Relay = services.NewRelayService(submitter, c.Limiter, services.RelayPolicy{
		Ledger:            addressOrZero(cfg.Contracts.InnerLedger),
		MaxGas:            cfg.Relay.MaxGas,
		RequireSenderAuth: cfg.Relay.RequireSenderAuth,
		IdempotencyTTL:    time.Duration(cfg.Relay.IdempotencyTTL) * time.Second,
	}, c.Logger, relayOpts...)

	var minBalance *big.Int
	if cfg.Relayer.MinBalance != "" {
		if v, ok := metatx.ParseAmount(cfg.Relayer.MinBalance); ok {
			minBalance = v
		} else {
			c.Logger.WithField("value", cfg.Relayer.MinBalance).Warn("⚠️ invalid relayer.minBalance ignored")
		}
	}
	c.Monitoring = services.NewMonitoringService(c.DB, c.Chain, c.RelayerAddress(), minBalance,
		time.Duration(cfg.Monitoring.BalanceInterval)*time.Second, c.Logger)
	return nil
}

// initReadServices journey view, subgraph, AI proxy
func (c *ServiceContainer) initReadServices(_ context.Context, _ Options) error {
	cfg := c.Config
	var index services.RecordIndex
	if cfg.Subgraph.URL != "" {
		index = clients.NewSubgraphClient(cfg.Subgraph.URL, time.Duration(cfg.Subgraph.Timeout)*time.Second)
	}
	c.Journeys = services.NewJourneyService(c.Ledger, index, c.Logger)
	c.AI = clients.NewAIClient(cfg.AI)
	return nil
}

func (c *ServiceContainer) initAuth(_ context.Context, _ Options) error {
	cfg := c.Config
	c.WalletAuth = services.NewWalletAuthService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour, cfg.Chain.ChainID)
	adminSecret := cfg.Admin.JWTSecret
	if adminSecret == "" {
		adminSecret = cfg.Auth.JWTSecret
	}
	c.AdminAuth = services.NewAdminAuthService(cfg.Admin.Username, cfg.Admin.PasswordHash, cfg.Admin.TOTPSecret, adminSecret)
	if cfg.Relay.RequireSenderAuth && !c.WalletAuth.Enabled() {
		return errors.New("relay.requireSenderAuth needs JWT_SECRET")
	}
	return nil
}

// RelayerAddress zero when no credential is configured
func (c *ServiceContainer) RelayerAddress() common.Address {
	if c.Forwarder == nil {
		return common.Address{}
	}
	return c.Forwarder.RelayerAddress()
}

// Start launches the background loops: monitoring, limiter sweeps, idempotency cleanup.
func (c *ServiceContainer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	sweep := time.Duration(c.Config.Relay.SweepIntervalSeconds) * time.Second

	c.Monitoring.Start()
	if c.memoryStore != nil {
		c.goLoop(func() { c.memoryStore.Run(ctx, sweep, c.Logger) })
	}
	c.goLoop(func() { c.IPLimiter.Run(ctx, sweep) })
	if c.IdemRepo != nil && c.Config.Relay.IdempotencyTTL > 0 {
		c.goLoop(func() { c.sweepIdempotency(ctx, sweep) })
	}
}

func (c *ServiceContainer) goLoop(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *ServiceContainer) sweepIdempotency(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := c.IdemRepo.DeleteExpired(ctx, now)
			if err != nil {
				c.Logger.WithError(err).Warn("idempotency sweep failed")
				continue
			}
			if n > 0 {
				c.Logger.WithField("removed", n).Debug("idempotency sweep")
			}
		}
	}
}

// Close stops background work and releases connections. Safe to call more than once.
func (c *ServiceContainer) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			c.Monitoring.Stop()
		}
		c.wg.Wait()
		if c.Watcher != nil {
			c.Watcher.Stop()
		}
		if c.Push != nil {
			c.Push.Close()
		}
		if c.NATS != nil {
			c.NATS.Close()
		}
		if c.Redis != nil {
			if err := c.Redis.Close(); err != nil {
				c.Logger.WithError(err).Warn("redis close failed")
			}
		}
		if c.DB != nil {
			if sqlDB, err := c.DB.DB(); err == nil {
				sqlDB.Close()
			}
		}
		if c.ethClient != nil {
			c.ethClient.Close()
		}
	})
}

func addressOrZero(s string) common.Address {
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
