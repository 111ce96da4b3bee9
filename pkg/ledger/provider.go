package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Provider is the execution context granting the client signing authority
// over the user's ledger identity. Two modes exist:
//
//   - keyed: a local ECDSA key signs transactions client-side
//   - node-managed: the connected node holds the accounts and signs via
//     eth_sendTransaction (the legacy provider path)
type Provider struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	chainID *big.Int
	timeout time.Duration
	logger  *zap.Logger
}

// Config holds configuration for the provider
type Config struct {
	// RPCURL is the JSON-RPC endpoint of the ledger node
	RPCURL string

	// PrivateKey is an optional hex-encoded ECDSA key for local signing
	PrivateKey string

	// RequestTimeout bounds each round trip
	// If zero, defaults to 30 seconds
	RequestTimeout time.Duration
}

// Dial connects a provider to the configured ledger node
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger node: %w", err)
	}

	p := &Provider{
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		timeout: timeout,
		logger:  logger,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		p.key = key
	}

	return p, nil
}

// Keyed reports whether the provider signs transactions locally
func (p *Provider) Keyed() bool {
	return p.key != nil
}

// RequestPermission asks the execution context for access to the user's
// accounts. Wallet-style endpoints implement eth_requestAccounts; plain
// nodes reject the method, which is treated as the legacy already-connected
// path rather than a failure.
func (p *Provider) RequestPermission(ctx context.Context) error {
	if p.key != nil {
		// Local key needs no grant
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var accounts []common.Address
	err := p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts")
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not supported") {
		p.logger.Debug("eth_requestAccounts unsupported, using existing connection")
		return nil
	}
	return fmt.Errorf("permission request failed: %w", err)
}

// Accounts returns the addresses the execution context can sign for
func (p *Provider) Accounts(ctx context.Context) ([]string, error) {
	if p.key != nil {
		addr := crypto.PubkeyToAddress(p.key.PublicKey)
		return []string{addr.Hex()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	result := make([]string, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, a.Hex())
	}
	return result, nil
}

// NetworkID returns the connected network reference as a decimal string
func (p *Provider) NetworkID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	chainID, err := p.eth.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to query network id: %w", err)
	}
	p.chainID = chainID
	return chainID.String(), nil
}

// transactor builds signing options for keyed mode. Returns nil in
// node-managed mode, where the node signs instead.
func (p *Provider) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if p.key == nil {
		return nil, nil
	}
	if p.chainID == nil {
		chainID, err := p.eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query chain id for signing: %w", err)
		}
		p.chainID = chainID
	}
	opts, err := bind.NewKeyedTransactorWithChainID(p.key, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close releases the underlying RPC connection
func (p *Provider) Close() {
	p.rpc.Close()
}
