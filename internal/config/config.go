package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	Chain      ChainConfig      `yaml:"chain"`
	Contracts  ContractsConfig  `yaml:"contracts"`
	Relayer    RelayerConfig    `yaml:"relayer"`
	Relay      RelayConfig      `yaml:"relay"`
	KMS        KMSConfig        `yaml:"kms"`
	AI         AIConfig         `yaml:"ai"`
	Subgraph   SubgraphConfig   `yaml:"subgraph"`
	Auth       AuthConfig       `yaml:"auth"`
	Admin      AdminConfig      `yaml:"admin"`
	CORS       CORSConfig       `yaml:"cors"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig Database configuration. An empty DSN disables the relay audit log.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	Driver       string `yaml:"driver"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig Redis connection used by the shared rate-limit store
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Timeout   int    `yaml:"timeout"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ChainConfig RPC and transaction settings for the chain hosting the forwarder
type ChainConfig struct {
	RPCURL              string `yaml:"rpcUrl"`
	ChainID             int64  `yaml:"chainId"`
	Name                string `yaml:"name"`
	Explorer            string `yaml:"explorer"`
	ReadTimeout         int    `yaml:"readTimeout"`  // seconds
	WriteTimeout        int    `yaml:"writeTimeout"` // seconds
	GasPrice            string `yaml:"gasPrice"`     // wei, empty = suggested + bump
	GasPriceBumpPercent int    `yaml:"gasPriceBumpPercent"`
	GasOverhead         uint64 `yaml:"gasOverhead"` // added on top of the request gas for the outer tx
	ConfirmTimeout      int    `yaml:"confirmTimeout"`
}

// ContractsConfig deployed contract addresses and the forwarder's signing domain
type ContractsConfig struct {
	Forwarder        string `yaml:"forwarder"`
	InnerLedger      string `yaml:"innerLedger"`
	GrowthSBT        string `yaml:"growthSbt"`
	ForwarderName    string `yaml:"forwarderName"`
	ForwarderVersion string `yaml:"forwarderVersion"`
}

// RelayerConfig credential of the account paying gas for relayed requests
type RelayerConfig struct {
	PrivateKey   string `yaml:"privateKey"` // hex, with or without 0x
	KMSEnabled   bool   `yaml:"kmsEnabled"`
	KMSKeyAlias  string `yaml:"kmsKeyAlias"`
	KMSK1        string `yaml:"kmsK1"`
	Address      string `yaml:"address"`  // required when signing through KMS
	SecretID     string `yaml:"secretId"` // AWS Secrets Manager id holding the private key
	SecretRegion string `yaml:"secretRegion"`
	MinBalance   string `yaml:"minBalance"` // wei
}

// RelayConfig relay endpoint policy
type RelayConfig struct {
	MaxGas               uint64  `yaml:"maxGas"`
	RateLimit            int     `yaml:"rateLimit"`
	RateWindowSeconds    int     `yaml:"rateWindowSeconds"`
	RateLimitStore       string  `yaml:"rateLimitStore"` // memory or redis
	SweepIntervalSeconds int     `yaml:"sweepIntervalSeconds"`
	IPRatePerSecond      float64 `yaml:"ipRatePerSecond"`
	IPBurst              int     `yaml:"ipBurst"`
	RequireSenderAuth    bool    `yaml:"requireSenderAuth"`
	StrictDomainCheck    bool    `yaml:"strictDomainCheck"`
	IdempotencyTTL       int     `yaml:"idempotencyTtl"` // seconds, 0 disables idempotency keys
	WatchTransactions    bool    `yaml:"watchTransactions"`
}

// RateWindow returns the configured window as a duration
func (r RelayConfig) RateWindow() time.Duration {
	return time.Duration(r.RateWindowSeconds) * time.Second
}

// KMSConfig KMS service configuration
type KMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ServiceURL string `yaml:"serviceUrl"`
	AuthToken  string `yaml:"authToken"`
	Timeout    int    `yaml:"timeout"` // request timeout (seconds)
}

// AIConfig reflection service (OpenAI compatible chat completions)
type AIConfig struct {
	APIKey     string `yaml:"apiKey"`
	BaseURL    string `yaml:"baseUrl"`
	Model      string `yaml:"model"`
	MaxTokens  int    `yaml:"maxTokens"`
	Timeout    int    `yaml:"timeout"`
	MaxRetries int    `yaml:"maxRetries"`
}

// SubgraphConfig indexer endpoint
type SubgraphConfig struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"`
}

// AuthConfig wallet JWT settings
type AuthConfig struct {
	JWTSecret     string `yaml:"jwtSecret"`
	TokenTTLHours int    `yaml:"tokenTtlHours"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"passwordHash"` // bcrypt
	TOTPSecret   string   `yaml:"totpSecret"`
	JWTSecret    string   `yaml:"jwtSecret"`
	AllowedIPs   []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

// MonitoringConfig relayer balance monitor
type MonitoringConfig struct {
	BalanceInterval int `yaml:"balanceInterval"` // seconds
}

var AppConfig *Config

// Default returns a configuration with every default applied and no secrets set
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			fmt.Printf("🔧 Using local configuration file: config.local.yaml\n")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		fmt.Printf("✅ [%s] Loading configuration from: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)
	case os.IsNotExist(err):
		// Environment-only deployments are allowed
		fmt.Printf("⚠️  Config file %s not found, using defaults and environment\n", configPath)
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	if len(config.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(config.Admin.AllowedIPs))
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}
	if len(config.CORS.AllowedOrigins) == 0 {
		fmt.Printf("📋 [Config] CORS: not configured (will allow all origins *)\n")
	}

	AppConfig = &config
	return nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "innerledger"
	}
	if config.Redis.Port == 0 {
		config.Redis.Port = 6379
	}
	if config.Redis.KeyPrefix == "" {
		config.Redis.KeyPrefix = "innerledger:ratelimit:"
	}

	if config.Chain.RPCURL == "" {
		config.Chain.RPCURL = "https://testnet-rpc.monad.xyz/"
	}
	if config.Chain.ChainID == 0 {
		config.Chain.ChainID = 10143
	}
	if config.Chain.Name == "" {
		config.Chain.Name = "Monad Testnet"
	}
	if config.Chain.ReadTimeout == 0 {
		config.Chain.ReadTimeout = 10
	}
	if config.Chain.WriteTimeout == 0 {
		config.Chain.WriteTimeout = 30
	}
	if config.Chain.GasPriceBumpPercent == 0 {
		config.Chain.GasPriceBumpPercent = 20
	}
	if config.Chain.GasOverhead == 0 {
		config.Chain.GasOverhead = 100000
	}
	if config.Chain.ConfirmTimeout == 0 {
		config.Chain.ConfirmTimeout = 120
	}

	if config.Contracts.ForwarderName == "" {
		config.Contracts.ForwarderName = "InnerLedgerForwarder"
	}
	if config.Contracts.ForwarderVersion == "" {
		config.Contracts.ForwarderVersion = "1"
	}

	if config.Relay.MaxGas == 0 {
		config.Relay.MaxGas = 500000
	}
	if config.Relay.RateLimit == 0 {
		config.Relay.RateLimit = 10
	}
	if config.Relay.RateWindowSeconds == 0 {
		config.Relay.RateWindowSeconds = 60
	}
	if config.Relay.RateLimitStore == "" {
		config.Relay.RateLimitStore = "memory"
	}
	if config.Relay.SweepIntervalSeconds == 0 {
		config.Relay.SweepIntervalSeconds = 60
	}
	if config.Relay.IPRatePerSecond == 0 {
		config.Relay.IPRatePerSecond = 5
	}
	if config.Relay.IPBurst == 0 {
		config.Relay.IPBurst = 20
	}

	if config.AI.BaseURL == "" {
		config.AI.BaseURL = "https://api.openai.com/v1"
	}
	if config.AI.Model == "" {
		config.AI.Model = "gpt-4o-mini"
	}
	if config.AI.MaxTokens == 0 {
		config.AI.MaxTokens = 60
	}
	if config.AI.Timeout == 0 {
		config.AI.Timeout = 20
	}
	if config.AI.MaxRetries == 0 {
		config.AI.MaxRetries = 2
	}
	if config.Subgraph.Timeout == 0 {
		config.Subgraph.Timeout = 10
	}
	if config.Auth.TokenTTLHours == 0 {
		config.Auth.TokenTTLHours = 24
	}
	if config.Monitoring.BalanceInterval == 0 {
		config.Monitoring.BalanceInterval = 60
	}
}

// overrideFromEnv Override configuration from environment variables.
// Names follow the deployed front-end's .env so one file serves both.
func overrideFromEnv(config *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	setString("DATABASE_DSN", &config.Database.DSN)
	setString("SERVER_HOST", &config.Server.Host)
	setInt("SERVER_PORT", &config.Server.Port)
	setString("LOG_LEVEL", &config.Log.Level)
	setString("LOG_FORMAT", &config.Log.Format)

	setString("NATS_URL", &config.NATS.URL)
	setInt("NATS_TIMEOUT", &config.NATS.Timeout)

	setString("REDIS_HOST", &config.Redis.Host)
	setInt("REDIS_PORT", &config.Redis.Port)
	setString("REDIS_PASSWORD", &config.Redis.Password)
	setInt("REDIS_DB", &config.Redis.DB)

	setString("RPC_URL", &config.Chain.RPCURL)
	setString("NEXT_PUBLIC_RPC_URL", &config.Chain.RPCURL)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Chain.ChainID = id
		}
	}
	setString("GAS_PRICE", &config.Chain.GasPrice)

	setString("FORWARDER_ADDRESS", &config.Contracts.Forwarder)
	setString("NEXT_PUBLIC_FORWARDER_ADDRESS", &config.Contracts.Forwarder)
	setString("INNER_LEDGER_ADDRESS", &config.Contracts.InnerLedger)
	setString("NEXT_PUBLIC_INNER_LEDGER_ADDRESS", &config.Contracts.InnerLedger)
	setString("GROWTH_SBT_ADDRESS", &config.Contracts.GrowthSBT)
	setString("NEXT_PUBLIC_GROWTH_SBT_ADDRESS", &config.Contracts.GrowthSBT)

	setString("RELAYER_PRIVATE_KEY", &config.Relayer.PrivateKey)
	setBool("RELAYER_KMS_ENABLED", &config.Relayer.KMSEnabled)
	setString("KMS_KEY_ALIAS", &config.Relayer.KMSKeyAlias)
	setString("KMS_K1", &config.Relayer.KMSK1)
	setString("RELAYER_ADDRESS", &config.Relayer.Address)
	setString("RELAYER_SECRET_ID", &config.Relayer.SecretID)
	setString("RELAYER_SECRET_REGION", &config.Relayer.SecretRegion)

	setBool("RELAY_REQUIRE_SENDER_AUTH", &config.Relay.RequireSenderAuth)
	setString("RATE_LIMIT_STORE", &config.Relay.RateLimitStore)

	setBool("KMS_ENABLED", &config.KMS.Enabled)
	setString("KMS_SERVICE_URL", &config.KMS.ServiceURL)
	setString("KMS_AUTH_TOKEN", &config.KMS.AuthToken)
	setInt("KMS_TIMEOUT", &config.KMS.Timeout)

	setString("OPENAI_API_KEY", &config.AI.APIKey)
	setString("OPENAI_BASE_URL", &config.AI.BaseURL)
	setString("OPENAI_MODEL", &config.AI.Model)

	setString("SUBGRAPH_URL", &config.Subgraph.URL)
	setString("NEXT_PUBLIC_SUBGRAPH_URL", &config.Subgraph.URL)

	setString("JWT_SECRET", &config.Auth.JWTSecret)
	setString("ADMIN_USERNAME", &config.Admin.Username)
	setString("ADMIN_PASSWORD_HASH", &config.Admin.PasswordHash)
	setString("ADMIN_TOTP_SECRET", &config.Admin.TOTPSecret)
	setString("ADMIN_JWT_SECRET", &config.Admin.JWTSecret)

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitList(corsOrigins)
	}
	if adminIPs := os.Getenv("ADMIN_ALLOWED_IPS"); adminIPs != "" {
		config.Admin.AllowedIPs = splitList(adminIPs)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RelayerConfigured reports whether a relayer credential and forwarder address are present
func (c *Config) RelayerConfigured() bool {
	if c.Contracts.Forwarder == "" {
		return false
	}
	if c.Relayer.KMSEnabled {
		return c.Relayer.KMSKeyAlias != "" && c.Relayer.Address != ""
	}
	return c.Relayer.PrivateKey != "" || c.Relayer.SecretID != ""
}

// Validate returns human readable problems with the configuration. None of them are fatal:
// the relay route fails closed when the relayer is missing.
func (c *Config) Validate() []string {
	var problems []string
	if c.Contracts.Forwarder == "" {
		problems = append(problems, "FORWARDER_ADDRESS is not set")
	}
	if !c.RelayerConfigured() {
		problems = append(problems, "relayer credential is not set (RELAYER_PRIVATE_KEY, RELAYER_SECRET_ID or KMS)")
	}
	if c.Contracts.InnerLedger == "" {
		problems = append(problems, "INNER_LEDGER_ADDRESS is not set, relay target allow-list is disabled")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is not set, wallet login is disabled")
	}
	return problems
}

// Check returns the problems the relayer must not start with. A set but malformed address would
// otherwise read as unset, and an unset ledger address turns the target allow-list off.
func (c *Config) Check() error {
	var errs []error
	addresses := []struct{ name, value string }{
		{"contracts.forwarder (FORWARDER_ADDRESS)", c.Contracts.Forwarder},
		{"contracts.innerLedger (INNER_LEDGER_ADDRESS)", c.Contracts.InnerLedger},
		{"contracts.growthSbt (GROWTH_SBT_ADDRESS)", c.Contracts.GrowthSBT},
		{"relayer.address (RELAYER_ADDRESS)", c.Relayer.Address},
	}
	for _, a := range addresses {
		if v := strings.TrimSpace(a.value); v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s is not a hex address: %q", a.name, a.value))
		}
	}

	positive := []struct {
		name  string
		value int
	}{
		{"relay.rateLimit", c.Relay.RateLimit},
		{"relay.rateWindowSeconds", c.Relay.RateWindowSeconds},
		{"relay.sweepIntervalSeconds", c.Relay.SweepIntervalSeconds},
		{"monitoring.balanceInterval", c.Monitoring.BalanceInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}
	return errors.Join(errs...)
}
