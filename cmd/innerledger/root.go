package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/celery8911/InnerLedger/internal/clients"
	"github.com/celery8911/InnerLedger/internal/config"
	"github.com/celery8911/InnerLedger/internal/metatx"
)

const envPrefix = "INNERLEDGER"

// chainClient is what the commands need from an RPC connection.
type chainClient interface {
	clients.ChainBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// dialFunc opens chainClient; the returned func releases it.
type dialFunc func(ctx context.Context, rpcURL string) (chainClient, func(), error)

func dialEthClient(ctx context.Context, rpcURL string) (chainClient, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return client, client.Close, nil
}

// cli is shared by every subcommand of one root command.
type cli struct {
	v      *viper.Viper
	dial   dialFunc
	logger *logrus.Logger
}

func newRootCmd(dial dialFunc) *cobra.Command {
	c := &cli{v: viper.New(), dial: dial, logger: logrus.New()}

	root := &cobra.Command{
		Use:           "innerledger",
		Short:         "Gasless InnerLedger client",
		Long:          "Sign InnerLedger records as ERC-2771 forward requests and submit them through a relay that pays the gas.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "optional config file (yaml, json or toml)")
	flags.String("relay-url", "http://localhost:8080", "relay service base URL")
	flags.String("rpc-url", "", "chain RPC endpoint (default: from the deployment registry)")
	flags.Int64("chain-id", metatx.MonadTestnetChainID, "EVM chain id")
	flags.String("forwarder", "", "forwarder address (default: from the deployment registry)")
	flags.String("ledger", "", "InnerLedger address (default: from the deployment registry)")
	flags.String("sbt", "", "GrowthSBT address (default: from the deployment registry)")
	flags.StringP("output", "o", "table", "output format: table or json")
	flags.Duration("timeout", 30*time.Second, "timeout for chain and relay calls")
	flags.Bool("verbose", false, "debug logging")

	root.AddCommand(
		newNonceCmd(c),
		newDomainCmd(c),
		newRecordCmd(c),
		newVerifyCmd(c),
		newJourneyCmd(c),
	)
	return root
}

// init binds flags and environment into viper. INNERLEDGER_RELAY_URL overrides --relay-url's
// default, an explicit flag wins over both.
func (c *cli) init(cmd *cobra.Command) error {
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	c.logger.SetOutput(cmd.ErrOrStderr())
	if c.v.GetBool("verbose") {
		c.logger.SetLevel(logrus.DebugLevel)
	} else {
		c.logger.SetLevel(logrus.WarnLevel)
	}

	switch c.v.GetString("output") {
	case "table", "json":
	default:
		return fmt.Errorf("unknown output format %q", c.v.GetString("output"))
	}
	return nil
}

func (c *cli) deployment() *config.Deployment {
	d, _ := config.GetDeploymentRegistry().ByChainID(c.v.GetInt64("chain-id"))
	return d
}

func (c *cli) rpcURL() (string, error) {
	if u := c.v.GetString("rpc-url"); u != "" {
		return u, nil
	}
	if d := c.deployment(); d != nil && len(d.RpcUrls) > 0 {
		return d.RpcUrls[0], nil
	}
	return "", fmt.Errorf("no RPC URL for chain %d: pass --rpc-url or set %s_RPC_URL", c.v.GetInt64("chain-id"), envPrefix)
}

// contract resolves an address flag, falling back to the deployment registry.
func (c *cli) contract(flag string) (common.Address, error) {
	raw := c.v.GetString(flag)
	if raw == "" {
		if d := c.deployment(); d != nil {
			switch flag {
			case "forwarder":
				raw = d.Contracts.Forwarder
			case "ledger":
				raw = d.Contracts.InnerLedger
			case "sbt":
				raw = d.Contracts.GrowthSBT
			}
		}
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("no %s address for chain %d", flag, c.v.GetInt64("chain-id"))
	}
	return common.HexToAddress(raw), nil
}

func (c *cli) domain() (metatx.Domain, error) {
	forwarder, err := c.contract("forwarder")
	if err != nil {
		return metatx.Domain{}, err
	}
	return metatx.NewDomain(c.v.GetInt64("chain-id"), forwarder), nil
}

// connect dials the chain and returns a read-only forwarder client on it.
func (c *cli) connect(ctx context.Context) (chainClient, *clients.ForwarderClient, func(), error) {
	rpcURL, err := c.rpcURL()
	if err != nil {
		return nil, nil, nil, err
	}
	forwarder, err := c.contract("forwarder")
	if err != nil {
		return nil, nil, nil, err
	}
	c.logger.WithFields(logrus.Fields{"rpc": rpcURL, "forwarder": forwarder.Hex()}).Debug("connecting")

	chain, closeFn, err := c.dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, nil, err
	}
	fc := clients.NewForwarderClient(chain, forwarder, big.NewInt(c.v.GetInt64("chain-id")), nil, clients.ForwarderOptions{}, c.logger)
	return chain, fc, closeFn, nil
}

func (c *cli) timeoutCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.v.GetDuration("timeout"))
}

func (c *cli) jsonOutput() bool {
	return c.v.GetString("output") == "json"
}
