package txsigner

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainClient is the part of the node JSON-RPC API the signers consume.
// *ethclient.Client satisfies it.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

var (
	_ ChainClient = (*ethclient.Client)(nil)
	_ ChainClient = (*Provider)(nil)
)

// Provider is a ChainClient that dials its endpoint on first use.
type Provider struct {
	url string

	mu     sync.Mutex
	client *ethclient.Client
	closed bool
}

// NewProvider returns a provider for rpcURL without connecting.
func NewProvider(rpcURL string) *Provider {
	return &Provider{url: rpcURL}
}

func (p *Provider) URL() string { return p.url }

func (p *Provider) dial(ctx context.Context) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("%w: provider closed", ErrConnection)
	}
	if p.client != nil {
		return p.client, nil
	}

	client, err := ethclient.DialContext(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to blockchain node: %w", ErrConnection, err)
	}
	p.client = client
	return client, nil
}

// Close releases the connection. Later calls fail with ErrConnection.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	p.closed = true
}

func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return c.ChainID(ctx)
}

func (p *Provider) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return 0, err
	}
	return c.PendingNonceAt(ctx, account)
}

func (p *Provider) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return c.SuggestGasTipCap(ctx)
}

func (p *Provider) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return c.HeaderByNumber(ctx, number)
}

func (p *Provider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return 0, err
	}
	return c.EstimateGas(ctx, msg)
}

func (p *Provider) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c, err := p.dial(ctx)
	if err != nil {
		return err
	}
	return c.SendTransaction(ctx, tx)
}

func (p *Provider) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return c.BalanceAt(ctx, account, blockNumber)
}

func (p *Provider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return c.TransactionReceipt(ctx, txHash)
}

func (p *Provider) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	return c.CodeAt(ctx, account, blockNumber)
}

// Network identifies the chain behind a ChainClient.
type Network struct {
	ChainID *big.Int
	Name    string
}

var knownNetworks = map[uint64]string{
	1:        "mainnet",
	10:       "optimism",
	137:      "matic",
	8453:     "base",
	42161:    "arbitrum",
	84532:    "base-sepolia",
	11155111: "sepolia",
}

// LookupNetwork asks the node for its chain id and names it when known.
func LookupNetwork(ctx context.Context, client ChainClient) (Network, error) {
	id, err := client.ChainID(ctx)
	if err != nil {
		return Network{}, fmt.Errorf("failed to get chain id: %w", err)
	}

	name := "unknown"
	if id.IsUint64() {
		if n, ok := knownNetworks[id.Uint64()]; ok {
			name = n
		}
	}
	return Network{ChainID: id, Name: name}, nil
}
