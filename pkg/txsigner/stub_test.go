package txsigner

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/tokenkit/pkg/sign"
)

const (
	testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress    = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

var testRecipient = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1111")

func testKey(t *testing.T) *sign.EthereumSigner {
	t.Helper()
	key, err := sign.NewEthereumSigner(testPrivateKey)
	require.NoError(t, err)
	return key
}

func testOptions() (Options, *Metrics) {
	metrics := NewMetricsWithRegistry(prometheus.NewRegistry())
	return Options{Metrics: metrics}, metrics
}

func ptr[T any](v T) *T { return &v }

// explicitRequest carries every field so no node query is needed.
func explicitRequest() TransactionRequest {
	return TransactionRequest{
		To:                   &testRecipient,
		Value:                big.NewInt(1_000_000_000_000_000),
		GasLimit:             ptr(uint64(21000)),
		MaxFeePerGas:         big.NewInt(1_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(100_000_000),
		Nonce:                ptr(uint64(5)),
		ChainID:              big.NewInt(8453),
	}
}

// stubClient is a ChainClient answering from fixed values and counting calls.
type stubClient struct {
	mu    sync.Mutex
	calls map[string]int
	sent  []*types.Transaction

	chainID *big.Int
	nonce   uint64
	tip     *big.Int
	baseFee *big.Int
	gas     uint64
	balance *big.Int

	chainIDFn func() (*big.Int, error)
	sendFn    func(tx *types.Transaction) error
}

var _ ChainClient = (*stubClient)(nil)

func newStubClient() *stubClient {
	return &stubClient{
		calls:   make(map[string]int),
		chainID: big.NewInt(8453),
		nonce:   5,
		tip:     big.NewInt(100_000_000),
		baseFee: big.NewInt(450_000_000),
		gas:     21000,
		balance: big.NewInt(0),
	}
}

func (c *stubClient) count(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *stubClient) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *stubClient) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *stubClient) ChainID(context.Context) (*big.Int, error) {
	c.count("ChainID")
	if c.chainIDFn != nil {
		return c.chainIDFn()
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *stubClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.count("PendingNonceAt")
	return c.nonce, nil
}

func (c *stubClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	c.count("SuggestGasTipCap")
	return new(big.Int).Set(c.tip), nil
}

func (c *stubClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	c.count("HeaderByNumber")
	head := &types.Header{Number: big.NewInt(100)}
	if c.baseFee != nil {
		head.BaseFee = new(big.Int).Set(c.baseFee)
	}
	return head, nil
}

func (c *stubClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	c.count("EstimateGas")
	return c.gas, nil
}

func (c *stubClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.count("SendTransaction")
	if c.sendFn != nil {
		if err := c.sendFn(tx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.sent = append(c.sent, tx)
	c.mu.Unlock()
	return nil
}

func (c *stubClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	c.count("BalanceAt")
	return new(big.Int).Set(c.balance), nil
}

func (c *stubClient) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.count("TransactionReceipt")
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.sent {
		if tx.Hash() == hash {
			return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(101)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (c *stubClient) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	c.count("CodeAt")
	return nil, nil
}

// stubDevice signs with an in-memory key and records how it is driven.
type stubDevice struct {
	key  *sign.EthereumSigner
	addr common.Address

	mu          sync.Mutex
	deriveCalls int
	signCalls   int
	closeCalls  int
	inFlight    int
	maxInFlight int

	deriveErr error
	signErr   error
	// block, when set, holds SignTransaction until it is closed or ctx ends.
	block chan struct{}
}

func newStubDevice(t *testing.T) *stubDevice {
	key := testKey(t)
	return &stubDevice{key: key, addr: key.EthAddress()}
}

func (d *stubDevice) enter() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
}

func (d *stubDevice) leave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
}

func (d *stubDevice) DeriveAddress(context.Context, accounts.DerivationPath) (common.Address, error) {
	d.enter()
	defer d.leave()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.deriveCalls++
	if d.deriveErr != nil {
		return common.Address{}, d.deriveErr
	}
	return d.addr, nil
}

func (d *stubDevice) SignTransaction(ctx context.Context, _ accounts.DerivationPath, tx *types.Transaction, chainID *big.Int) (sign.Signature, error) {
	d.enter()
	defer d.leave()

	d.mu.Lock()
	d.signCalls++
	err, block := d.signErr, d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return d.key.Sign(types.LatestSignerForChainID(chainID).Hash(tx).Bytes())
}

func (d *stubDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *stubDevice) setSignErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signErr = err
}

func (d *stubDevice) counts() (derive, sign, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deriveCalls, d.signCalls, d.closeCalls
}

// countingOpener hands out dev and counts how often it was asked to.
type countingOpener struct {
	mu    sync.Mutex
	dev   Device
	err   error
	opens int
}

func (o *countingOpener) Open(context.Context) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.dev, nil
}

func (o *countingOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

var errTransport = errors.New("hidapi: failed to write to device")
