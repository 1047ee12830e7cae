package txsigner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erc7824/tokenkit/pkg/sign"
)

// OpenLedger opens the first Ledger found on USB. It is the default
// DeviceOpener for ledger signers.
func OpenLedger(ctx context.Context) (Device, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("%w: ledger hub unavailable: %w", ErrConnection, err)
	}
	wallets := hub.Wallets()
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: no ledger device found", ErrConnection)
	}

	return openLedgerWallet(ctx, wallets[0])
}

func openLedgerWallet(ctx context.Context, wallet accounts.Wallet) (Device, error) {
	dev := newLedgerDevice(wallet)
	if err := dev.exchange(ctx, func() error { return wallet.Open("") }); err != nil {
		// Open may still finish in the background or leave the HID handle
		// assigned after failing.
		_ = dev.Close()
		return nil, asConnectionError(classifyLedgerError(err))
	}
	return dev, nil
}

// ledgerDevice adapts an accounts.Wallet from usbwallet to Device.
type ledgerDevice struct {
	wallet accounts.Wallet
	// busy is held by the goroutine talking to the device. A prompt on the
	// device screen cannot be cancelled, so the slot stays taken until the
	// user answers even when the caller has given up.
	busy chan struct{}

	mu       sync.Mutex
	accounts map[string]accounts.Account
	closed   bool
}

func newLedgerDevice(wallet accounts.Wallet) *ledgerDevice {
	return &ledgerDevice{
		wallet:   wallet,
		busy:     make(chan struct{}, 1),
		accounts: make(map[string]accounts.Account),
	}
}

func (d *ledgerDevice) exchange(ctx context.Context, fn func() error) error {
	select {
	case d.busy <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		<-d.busy
		return accounts.ErrWalletClosed
	}

	errc := make(chan error, 1)
	go func() {
		defer func() { <-d.busy }()
		errc <- fn()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *ledgerDevice) DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error) {
	acc, err := d.derive(ctx, path)
	if err != nil {
		return common.Address{}, err
	}
	return acc.Address, nil
}

func (d *ledgerDevice) derive(ctx context.Context, path accounts.DerivationPath) (accounts.Account, error) {
	d.mu.Lock()
	acc, ok := d.accounts[path.String()]
	d.mu.Unlock()
	if ok {
		return acc, nil
	}

	err := d.exchange(ctx, func() error {
		var err error
		// Pinning registers the path with the wallet so SignTx can find it.
		acc, err = d.wallet.Derive(path, true)
		return err
	})
	if err != nil {
		return accounts.Account{}, classifyLedgerError(err)
	}

	d.mu.Lock()
	d.accounts[path.String()] = acc
	d.mu.Unlock()
	return acc, nil
}

func (d *ledgerDevice) SignTransaction(ctx context.Context, path accounts.DerivationPath, tx *types.Transaction, chainID *big.Int) (sign.Signature, error) {
	acc, err := d.derive(ctx, path)
	if err != nil {
		return nil, err
	}

	var signed *types.Transaction
	err = d.exchange(ctx, func() error {
		var err error
		signed, err = d.wallet.SignTx(acc, tx, chainID)
		return err
	})
	if err != nil {
		return nil, classifyLedgerError(err)
	}

	v, r, s := signed.RawSignatureValues()
	sig := make(sign.Signature, sign.SignatureLength)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[64] = byte(v.Uint64()) + 27
	return sig, nil
}

// Close releases the USB handle. With a command in flight the handle is
// released once the device answers.
func (d *ledgerDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.busy <- struct{}{}:
		defer func() { <-d.busy }()
		return d.wallet.Close()
	default:
		go func() {
			d.busy <- struct{}{}
			defer func() { <-d.busy }()
			_ = d.wallet.Close()
		}()
		return nil
	}
}

// classifyLedgerError maps go-ethereum's Ledger driver errors and APDU
// status words onto the package sentinels.
func classifyLedgerError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrDeviceTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, accounts.ErrWalletClosed):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "reply lacks signature"),
		strings.Contains(msg, "denied"),
		strings.Contains(msg, "rejected"),
		strings.Contains(msg, "6985"):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case strings.Contains(msg, "locked"),
		strings.Contains(msg, "6b0c"),
		strings.Contains(msg, "5515"),
		strings.Contains(msg, "6d00"),
		strings.Contains(msg, "app offline"),
		strings.Contains(msg, "invalid reply header"):
		return fmt.Errorf("%w: %w", ErrDeviceLocked, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return fmt.Errorf("%w: %w", ErrDeviceTimeout, err)
	case strings.Contains(msg, "hidapi"), strings.Contains(msg, "usb"):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}
