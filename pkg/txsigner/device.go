package txsigner

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erc7824/tokenkit/pkg/sign"
)

// Device is an open session with a hardware wallet. Implementations must
// return once ctx is done even if the device has not answered, and must
// classify failures with ErrUserRejected, ErrDeviceLocked, ErrDeviceTimeout
// or ErrConnection where they can tell.
type Device interface {
	// DeriveAddress returns the account at path.
	DeriveAddress(ctx context.Context, path accounts.DerivationPath) (common.Address, error)
	// SignTransaction asks the device to sign tx for chainID with the key at
	// path. The signature is 65 bytes, R || S || V with V in {27, 28}.
	SignTransaction(ctx context.Context, path accounts.DerivationPath, tx *types.Transaction, chainID *big.Int) (sign.Signature, error)
	// Close ends the session. It may be called while a command is pending.
	Close() error
}

// DeviceOpener opens a device session.
type DeviceOpener func(ctx context.Context) (Device, error)

// HardwareState is the connection state of a HardwareSigner.
type HardwareState int32

const (
	StateDisconnected HardwareState = iota
	StateConnecting
	StateConnected
)

func (s HardwareState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
