package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/celery8911/InnerLedger/internal/metrics"
)

// BalanceReader reads native balances. Implemented by ethclient.Client.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// MonitoringService 监控服务，定期更新 relayer 余额与数据库连接指标
type MonitoringService struct {
	db         *gorm.DB
	balances   BalanceReader
	relayer    common.Address
	minBalance *big.Int
	interval   time.Duration
	logger     *logrus.Logger

	mu          sync.RWMutex
	lastBalance *big.Int
	lastChecked time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitoringService db may be nil; a zero relayer address disables the balance probe.
func NewMonitoringService(db *gorm.DB, balances BalanceReader, relayer common.Address, minBalance *big.Int, interval time.Duration, logger *logrus.Logger) *MonitoringService {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MonitoringService{
		db:         db,
		balances:   balances,
		relayer:    relayer,
		minBalance: minBalance,
		interval:   interval,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start 启动监控服务
func (m *MonitoringService) Start() {
	m.logger.Info("🚀 Starting monitoring service...")
	if m.db != nil {
		m.wg.Add(1)
		go m.monitorDatabaseConnection()
	}
	if m.balances != nil && m.relayer != (common.Address{}) {
		m.wg.Add(1)
		go m.monitorBalance()
	}
}

// Stop 停止监控服务
func (m *MonitoringService) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("✅ Monitoring service stopped")
}

func (m *MonitoringService) monitorDatabaseConnection() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.updateDatabaseMetrics()
		}
	}
}

func (m *MonitoringService) updateDatabaseMetrics() {
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}

func (m *MonitoringService) monitorBalance() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// 立即执行一次
	m.probe()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *MonitoringService) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.CheckBalance(ctx); err != nil {
		m.logger.WithError(err).Warn("relayer balance probe failed")
	}
}

// CheckBalance reads the relayer balance now and updates the gauges.
func (m *MonitoringService) CheckBalance(ctx context.Context) (*big.Int, error) {
	balance, err := m.balances.BalanceAt(ctx, m.relayer, nil)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lastBalance = balance
	m.lastChecked = time.Now()
	m.mu.Unlock()

	f, _ := new(big.Float).SetInt(balance).Float64()
	metrics.RelayerBalance.Set(f)

	if m.IsLow(balance) {
		metrics.RelayerBalanceLow.Set(1)
		m.logger.WithFields(logrus.Fields{
			"relayer": m.relayer.Hex(),
			"balance": FormatEther(balance),
			"minimum": FormatEther(m.minBalance),
		}).Warn("⚠️ relayer balance below minimum")
	} else {
		metrics.RelayerBalanceLow.Set(0)
	}
	return balance, nil
}

// IsLow reports whether balance is under the configured minimum. No minimum means never low.
func (m *MonitoringService) IsLow(balance *big.Int) bool {
	return m.minBalance != nil && m.minBalance.Sign() > 0 && balance.Cmp(m.minBalance) < 0
}

// LastBalance most recent probe result, nil before the first probe
func (m *MonitoringService) LastBalance() (*big.Int, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBalance, m.lastChecked
}

// FormatEther renders wei as a decimal native-token amount.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', 6)
}
