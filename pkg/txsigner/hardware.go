package txsigner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erc7824/tokenkit/pkg/log"
	"github.com/erc7824/tokenkit/pkg/sign"
)

// HardwareSigner signs on a hardware wallet. The device session is opened on
// first use and kept until Disconnect or Close; after that the signer is
// unusable and every device operation fails with ErrConnection.
//
// Device commands are serialised: concurrent callers wait their turn, and
// give up when their context ends.
type HardwareSigner struct {
	path       accounts.DerivationPath
	client     ChainClient
	ownsClient bool
	open       DeviceOpener
	opts       Options

	// slot is a one-slot semaphore held for the whole device exchange of an
	// operation, connect included.
	slot chan struct{}
	done chan struct{}

	mu      sync.Mutex // guards the fields below; never held across device I/O
	state   HardwareState
	closed  bool
	device  Device
	address common.Address
}

var _ Signer = (*HardwareSigner)(nil)

// NewHardwareSigner returns a signer for the key at path on the device
// opened by open. Nothing is opened until the first operation.
func NewHardwareSigner(client ChainClient, open DeviceOpener, path accounts.DerivationPath, opts Options) *HardwareSigner {
	return &HardwareSigner{
		path:   path,
		client: client,
		open:   open,
		opts:   opts.withDefaults(KindLedger),
		slot:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (h *HardwareSigner) Kind() Kind { return KindLedger }

func (h *HardwareSigner) Provider() ChainClient { return h.client }

func (h *HardwareSigner) Path() accounts.DerivationPath { return h.path }

// State reports the connection state. A closed signer is Disconnected.
func (h *HardwareSigner) State() HardwareState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Address returns the cached account, connecting to the device first if
// needed.
func (h *HardwareSigner) Address(ctx context.Context) (common.Address, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return common.Address{}, errSignerClosed
	}
	if h.state == StateConnected {
		addr := h.address
		h.mu.Unlock()
		return addr, nil
	}
	h.mu.Unlock()

	ctx, span, _ := startOperation(ctx, h.opts, KindLedger, "address")
	addr, err := h.addressSlow(ctx)
	finishOperation(span, h.opts, KindLedger, "address", err)
	return addr, err
}

func (h *HardwareSigner) addressSlow(ctx context.Context) (common.Address, error) {
	release, err := h.acquire(ctx)
	if err != nil {
		return common.Address{}, err
	}
	defer release()

	_, addr, err := h.connect(ctx)
	return addr, err
}

func (h *HardwareSigner) SignTransaction(ctx context.Context, req TransactionRequest) (*SignedTransaction, error) {
	ctx, span, lg := startOperation(ctx, h.opts, KindLedger, "sign")
	_, signed, err := h.sign(ctx, lg, req)
	finishOperation(span, h.opts, KindLedger, "sign", err)
	return signed, err
}

func (h *HardwareSigner) SendTransaction(ctx context.Context, req TransactionRequest) (*PendingTransaction, error) {
	ctx, span, lg := startOperation(ctx, h.opts, KindLedger, "send")
	pending, err := h.send(ctx, lg, req)
	finishOperation(span, h.opts, KindLedger, "send", err)
	return pending, err
}

func (h *HardwareSigner) send(ctx context.Context, lg log.Logger, req TransactionRequest) (*PendingTransaction, error) {
	from, signed, err := h.sign(ctx, lg, req)
	if err != nil {
		return nil, err
	}
	if h.retired() {
		return nil, errSignerClosed
	}
	return sendSigned(ctx, h.client, lg, from, signed)
}

func (h *HardwareSigner) sign(ctx context.Context, lg log.Logger, req TransactionRequest) (common.Address, *SignedTransaction, error) {
	release, err := h.acquire(ctx)
	if err != nil {
		return common.Address{}, nil, err
	}
	defer release()

	dev, from, err := h.connect(ctx)
	if err != nil {
		return common.Address{}, nil, err
	}

	unsigned, err := populate(ctx, h.client, from, req)
	if err != nil {
		lg.Debug("failed to resolve transaction", "error", err)
		return common.Address{}, nil, err
	}
	tx := types.NewTx(unsigned)

	lg.Info("waiting for confirmation on device", "nonce", unsigned.Nonce, "chainId", unsigned.ChainID)
	var sig sign.Signature
	err = h.command(ctx, "sign", func(ctx context.Context) error {
		var err error
		sig, err = dev.SignTransaction(ctx, h.path, tx, unsigned.ChainID)
		return err
	})
	if err != nil {
		return common.Address{}, nil, h.commandFailed(ctx, lg, dev, err)
	}
	if h.retired() {
		lg.Info("discarding signature, signer was disconnected during the prompt")
		return common.Address{}, nil, errSignerClosed
	}
	if !sig.Valid() {
		return common.Address{}, nil, fmt.Errorf("device returned a %d byte signature", len(sig))
	}

	signer := types.LatestSignerForChainID(unsigned.ChainID)
	signedTx, err := tx.WithSignature(signer, sig.Raw())
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to attach device signature: %w", err)
	}
	sender, err := types.Sender(signer, signedTx)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to recover signer of device signature: %w", err)
	}
	if sender != from {
		return common.Address{}, nil, fmt.Errorf("device signed for %s, expected %s", sender.Hex(), from.Hex())
	}

	signed, err := newSignedTransaction(signedTx)
	if err != nil {
		return common.Address{}, nil, err
	}
	lg.Debug("transaction signed", "hash", signed.Hash)
	return from, signed, nil
}

// commandFailed decides what a failed device command does to the session.
// Rejections, timeouts and a locked screen leave it open; anything else is
// treated as a broken transport and drops it so the next call reconnects.
func (h *HardwareSigner) commandFailed(ctx context.Context, lg log.Logger, dev Device, err error) error {
	switch {
	case errors.Is(err, ErrUserRejected):
		lg.Info("transaction rejected on device")
		return err
	case errors.Is(err, ErrDeviceTimeout), errors.Is(err, ErrDeviceLocked):
		lg.Warn("device command failed", "error", err)
		return err
	case ctx.Err() != nil:
		return err
	}

	lg.Warn("device transport failed, dropping session", "error", err)
	h.dropSession(dev)
	return asConnectionError(err)
}

// connect returns the open session and its address, opening it when needed.
// The caller must hold the slot.
func (h *HardwareSigner) connect(ctx context.Context) (Device, common.Address, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, common.Address{}, errSignerClosed
	}
	if h.state == StateConnected {
		dev, addr := h.device, h.address
		h.mu.Unlock()
		return dev, addr, nil
	}
	h.state = StateConnecting
	h.mu.Unlock()

	lg := log.FromContext(ctx)
	lg.Debug("opening device session", "path", h.path.String())

	var dev Device
	err := h.command(ctx, "open", func(ctx context.Context) error {
		var err error
		dev, err = h.open(ctx)
		return err
	})
	if err != nil {
		h.setDisconnected()
		lg.Warn("failed to open device", "error", err)
		return nil, common.Address{}, asConnectionError(err)
	}

	var addr common.Address
	err = h.command(ctx, "derive", func(ctx context.Context) error {
		var err error
		addr, err = dev.DeriveAddress(ctx, h.path)
		return err
	})
	if err != nil {
		h.setDisconnected()
		if cerr := dev.Close(); cerr != nil {
			lg.Debug("failed to close device after derive failure", "error", cerr)
		}
		lg.Warn("failed to derive address", "error", err)
		return nil, common.Address{}, asConnectionError(err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = dev.Close()
		return nil, common.Address{}, errSignerClosed
	}
	h.device = dev
	h.address = addr
	h.state = StateConnected
	h.mu.Unlock()

	h.opts.Metrics.sessionOpened()
	lg.Info("device connected", "address", addr.Hex())
	return dev, addr, nil
}

// command runs fn with the device timeout applied and records how long the
// device took.
func (h *HardwareSigner) command(ctx context.Context, name string, fn func(context.Context) error) error {
	cmdCtx := ctx
	if h.opts.DeviceTimeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, h.opts.DeviceTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(cmdCtx)
	h.opts.Metrics.observeDeviceCommand(name, time.Since(start))

	if err != nil && ctx.Err() == nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrDeviceTimeout) {
		return fmt.Errorf("%w: no answer within %s: %w", ErrDeviceTimeout, h.opts.DeviceTimeout, err)
	}
	return err
}

func (h *HardwareSigner) acquire(ctx context.Context) (func(), error) {
	select {
	case <-h.done:
		return nil, errSignerClosed
	default:
	}

	select {
	case h.slot <- struct{}{}:
		return func() { <-h.slot }, nil
	case <-h.done:
		return nil, errSignerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HardwareSigner) retired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *HardwareSigner) setDisconnected() {
	h.mu.Lock()
	h.state = StateDisconnected
	h.mu.Unlock()
}

func (h *HardwareSigner) dropSession(dev Device) {
	h.mu.Lock()
	if h.device == dev {
		h.device = nil
		h.address = common.Address{}
		h.state = StateDisconnected
	}
	h.mu.Unlock()

	if err := dev.Close(); err != nil {
		h.opts.Logger.Debug("failed to close broken device session", "error", err)
	}
}

// Disconnect closes the device session and retires the signer. It may be
// called at any time and any number of times.
func (h *HardwareSigner) Disconnect() error {
	h.mu.Lock()
	dev := h.device
	h.device = nil
	h.address = common.Address{}
	h.state = StateDisconnected
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	h.mu.Unlock()

	if dev == nil {
		return nil
	}
	h.opts.Logger.Info("device disconnected")
	if err := dev.Close(); err != nil {
		return fmt.Errorf("failed to close device session: %w", err)
	}
	return nil
}

// Close disconnects the device and releases the RPC connection when the
// signer dialled it itself.
func (h *HardwareSigner) Close() error {
	err := h.Disconnect()
	if h.ownsClient {
		if p, ok := h.client.(*Provider); ok {
			p.Close()
		}
	}
	return err
}
