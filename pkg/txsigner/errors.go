package txsigner

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a missing or invalid signer setting. It is
	// returned before any I/O happens.
	ErrConfiguration = errors.New("invalid signer configuration")
	// ErrUnknownSignerType is a configuration error for an unsupported Type.
	ErrUnknownSignerType = fmt.Errorf("%w: unknown signer type", ErrConfiguration)

	// ErrConnection reports an unreachable RPC endpoint or device transport,
	// or a hardware signer used after it was disconnected.
	ErrConnection = errors.New("connection error")
	// ErrResolution reports a failure to fill nonce, fees, gas or chain id
	// from the node. Nothing is signed when it occurs.
	ErrResolution = errors.New("failed to resolve transaction fields")

	// ErrUserRejected means the operator declined on the device.
	ErrUserRejected = errors.New("rejected on device")
	// ErrDeviceTimeout means the device did not answer in time.
	ErrDeviceTimeout = errors.New("device timed out")
	// ErrDeviceLocked means the device is locked or the Ethereum app is not open.
	ErrDeviceLocked = errors.New("device locked or ethereum app not open")
)

var errSignerClosed = fmt.Errorf("%w: signer has been disconnected", ErrConnection)

func resolutionError(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrResolution, field, err)
}

// asConnectionError wraps err in ErrConnection unless it already is one.
func asConnectionError(err error) error {
	if errors.Is(err, ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUserRejected):
		return "rejected"
	case errors.Is(err, ErrDeviceTimeout):
		return "timeout"
	case errors.Is(err, ErrDeviceLocked):
		return "locked"
	case errors.Is(err, ErrResolution):
		return "resolution"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
