package ledgerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperledger/fabric-sdk-go/pkg/common/providers/fab"
	fabconfig "github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
	"github.com/medrex/record-provenance/pkg/config"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/sirupsen/logrus"
)

// Contract names as registered by the record-provenance chaincode
const (
	RegistryContract    = "registry"
	RolesContract       = "roles"
	PermissionsContract = "permissions"
	AnchoringContract   = "anchoring"
)

// Contract is the subset of *gateway.Contract the client drives
type Contract interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
	RegisterEvent(eventFilter string) (fab.Registration, <-chan *fab.CCEvent, error)
	Unregister(registration fab.Registration)
}

// Client issues typed calls against the record-provenance chaincode
type Client struct {
	gw         *gateway.Gateway
	contract   Contract
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
	middleware *monitoring.MonitoringMiddleware
}

// Connect opens a gateway connection using the identity stored in the wallet
// directory, importing it from the configured certificate and key on first use.
func Connect(cfg *config.FabricConfig, log *logger.Logger, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager) (*Client, error) {
	if cfg.DiscoveryAsLocal {
		if err := os.Setenv("DISCOVERY_AS_LOCALHOST", "true"); err != nil {
			return nil, fmt.Errorf("failed to set DISCOVERY_AS_LOCALHOST: %w", err)
		}
	}

	wallet, err := gateway.NewFileSystemWallet(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}

	if !wallet.Exists(cfg.IdentityLabel) {
		if err := populateWallet(wallet, cfg); err != nil {
			return nil, fmt.Errorf("failed to populate wallet: %w", err)
		}
	}

	gw, err := gateway.Connect(
		gateway.WithConfig(fabconfig.FromFile(filepath.Clean(cfg.ConnectionProfile))),
		gateway.WithIdentity(wallet, cfg.IdentityLabel),
		gateway.WithTimeout(cfg.Timeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	network, err := gw.GetNetwork(cfg.ChannelName)
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("failed to get network %s: %w", cfg.ChannelName, err)
	}

	client := New(network.GetContract(cfg.ChaincodeName), log, metrics, tracing)
	client.gw = gw

	log.WithComponent("ledgerclient").WithFields(logrus.Fields{
		"channel":   cfg.ChannelName,
		"chaincode": cfg.ChaincodeName,
		"identity":  cfg.IdentityLabel,
	}).Info("Connected to Fabric gateway")

	return client, nil
}

// New wraps an already resolved contract
func New(contract Contract, log *logger.Logger, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager) *Client {
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	return &Client{
		contract:   contract,
		logger:     log,
		metrics:    metrics,
		middleware: monitoring.NewMonitoringMiddleware(metrics, tracing, log),
	}
}

func populateWallet(wallet *gateway.Wallet, cfg *config.FabricConfig) error {
	cert, err := os.ReadFile(filepath.Clean(cfg.CertPath))
	if err != nil {
		return err
	}

	key, err := os.ReadFile(filepath.Clean(cfg.KeyPath))
	if err != nil {
		return err
	}

	return wallet.Put(cfg.IdentityLabel, gateway.NewX509Identity(cfg.MSPID, string(cert), string(key)))
}

// Close releases the gateway connection
func (c *Client) Close() {
	if c.gw != nil {
		c.gw.Close()
	}
}

// RegisterEvent subscribes to chaincode events whose name matches filter
func (c *Client) RegisterEvent(filter string) (fab.Registration, <-chan *fab.CCEvent, error) {
	return c.contract.RegisterEvent(filter)
}

// Unregister closes an event subscription
func (c *Client) Unregister(registration fab.Registration) {
	c.contract.Unregister(registration)
}

func (c *Client) submit(ctx context.Context, contract, function string, args ...string) ([]byte, error) {
	return c.invoke(ctx, true, contract, function, args...)
}

func (c *Client) evaluate(ctx context.Context, contract, function string, args ...string) ([]byte, error) {
	return c.invoke(ctx, false, contract, function, args...)
}

func (c *Client) invoke(ctx context.Context, submit bool, contract, function string, args ...string) ([]byte, error) {
	name := contract + ":" + function
	start := time.Now()

	var result []byte
	err := c.middleware.LedgerMiddleware(contract, function, submit)(ctx, func(context.Context) error {
		var err error
		if submit {
			result, err = c.contract.SubmitTransaction(name, args...)
		} else {
			result, err = c.contract.EvaluateTransaction(name, args...)
		}
		return err
	})

	if err != nil {
		err = types.ParseLedgerError(err)
		c.metrics.RecordLedgerRejection(contract, string(types.ErrorTypeOf(err)))
	}

	if submit || err != nil {
		details := map[string]interface{}{}
		if err != nil {
			details["error"] = err.Error()
		}
		c.logger.LedgerTransaction(ctx, contract, function, args, err == nil, "", time.Since(start).Milliseconds(), details)
	}

	return result, err
}

func decode(payload []byte, out interface{}) error {
	if len(payload) == 0 {
		return types.NewInternalError(types.ErrCodeInternalError, "empty ledger response", nil)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to decode ledger response", err)
	}
	return nil
}

func decodeList[T any](payload []byte) ([]T, error) {
	if len(payload) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := decode(payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func parseBool(payload []byte) (bool, error) {
	switch strings.TrimSpace(string(payload)) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	}
	return false, types.NewInternalError(types.ErrCodeInternalError, fmt.Sprintf("unexpected boolean response %q", payload), nil)
}
