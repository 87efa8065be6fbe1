// Deployment registry for the InnerLedger contract set
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DeployedContracts contract addresses of one deployment
type DeployedContracts struct {
	Forwarder   string `yaml:"forwarder" json:"forwarder"`
	InnerLedger string `yaml:"inner_ledger" json:"inner_ledger"`
	GrowthSBT   string `yaml:"growth_sbt" json:"growth_sbt"`
}

// Deployment one network with the InnerLedger contracts deployed on it
type Deployment struct {
	ChainID      int64             `yaml:"chain_id" json:"chain_id"`
	Name         string            `yaml:"name" json:"name"`
	NativeSymbol string            `yaml:"native_symbol" json:"native_symbol"`
	Explorer     string            `yaml:"explorer" json:"explorer"`
	RpcUrls      []string          `yaml:"rpc_urls" json:"rpc_urls"`
	Contracts    DeployedContracts `yaml:"contracts" json:"contracts"`
}

// DeploymentsFile layout of deployments.yaml
type DeploymentsFile struct {
	Version     string                `yaml:"version" json:"version"`
	Deployments map[string]Deployment `yaml:"deployments" json:"deployments"`
}

// DeploymentRegistry deployment lookup by chain id or name
type DeploymentRegistry struct {
	file DeploymentsFile
	mu   sync.RWMutex
}

var (
	globalDeployments *DeploymentRegistry
	deploymentsOnce   sync.Once
)

// GetDeploymentRegistry returns the process-wide registry, loading DEPLOYMENTS_FILE
// (default deployments.yaml) on first use
func GetDeploymentRegistry() *DeploymentRegistry {
	deploymentsOnce.Do(func() {
		path := os.Getenv("DEPLOYMENTS_FILE")
		if path == "" {
			path = "deployments.yaml"
		}
		globalDeployments = NewDeploymentRegistry(path)
	})
	return globalDeployments
}

// NewDeploymentRegistry loads the registry from path, falling back to the built-in deployments
func NewDeploymentRegistry(path string) *DeploymentRegistry {
	r := &DeploymentRegistry{file: defaultDeployments()}
	if path == "" {
		return r
	}
	if err := r.load(path); err != nil && !os.IsNotExist(err) {
		fmt.Printf("⚠️ Unable to load deployments file %s: %v\n", path, err)
	}
	return r
}

func (r *DeploymentRegistry) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file DeploymentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse deployments YAML: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, d := range file.Deployments {
		r.file.Deployments[name] = d
	}
	if file.Version != "" {
		r.file.Version = file.Version
	}
	return nil
}

func defaultDeployments() DeploymentsFile {
	return DeploymentsFile{
		Version: "1.0",
		Deployments: map[string]Deployment{
			"monad-testnet": {
				ChainID:      10143,
				Name:         "Monad Testnet",
				NativeSymbol: "MON",
				Explorer:     "https://testnet.monadexplorer.com",
				RpcUrls:      []string{"https://testnet-rpc.monad.xyz/"},
				Contracts: DeployedContracts{
					Forwarder:   "0x6Fd7b0D88e8b812aa2Cb4F394ee2660FC2FeA4A5",
					InnerLedger: "0x0379201C1014ece6FEc1bFE4E6371C484748406a",
					GrowthSBT:   "0x1572281F7604D09333dCdFBD9F5A971dcA0a67Ea",
				},
			},
		},
	}
}

// ByChainID returns the deployment on the given EVM chain id
func (r *DeploymentRegistry) ByChainID(chainID int64) (*Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.file.Deployments {
		if d.ChainID == chainID {
			d := d
			return &d, true
		}
	}
	return nil, false
}

// ByName returns a deployment by its key in deployments.yaml
func (r *DeploymentRegistry) ByName(name string) (*Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.file.Deployments[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &d, true
}

// ExplorerTxURL link to a transaction, empty when the chain has no explorer configured
func (r *DeploymentRegistry) ExplorerTxURL(chainID int64, txHash string) string {
	d, ok := r.ByChainID(chainID)
	if !ok || d.Explorer == "" {
		return ""
	}
	return strings.TrimRight(d.Explorer, "/") + "/tx/" + txHash
}

// FillContracts copies the registry addresses for cfg.Chain.ChainID into any empty contract field.
// Explicit configuration always wins.
func (r *DeploymentRegistry) FillContracts(cfg *Config) {
	d, ok := r.ByChainID(cfg.Chain.ChainID)
	if !ok {
		return
	}
	if cfg.Contracts.Forwarder == "" {
		cfg.Contracts.Forwarder = d.Contracts.Forwarder
	}
	if cfg.Contracts.InnerLedger == "" {
		cfg.Contracts.InnerLedger = d.Contracts.InnerLedger
	}
	if cfg.Contracts.GrowthSBT == "" {
		cfg.Contracts.GrowthSBT = d.Contracts.GrowthSBT
	}
	if cfg.Chain.Explorer == "" {
		cfg.Chain.Explorer = d.Explorer
	}
}
