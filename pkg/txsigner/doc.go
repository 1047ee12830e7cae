// Package txsigner builds, signs and broadcasts EIP-1559 transactions
// through one Signer interface, whether the key is held in memory
// (LocalSigner) or on a Ledger device (HardwareSigner).
//
// Signers come from a declarative Config:
//
//	signer, err := txsigner.New(txsigner.Config{
//	    Type:   txsigner.KindLedger,
//	    RPCURL: "https://mainnet.base.org",
//	})
//	if err != nil {
//	    return err
//	}
//	defer signer.Close()
//
//	to := common.HexToAddress("0x...")
//	pending, err := signer.SendTransaction(ctx, txsigner.TransactionRequest{To: &to, Value: wei})
//
// Construction never touches the network or the device. The RPC endpoint is
// dialled on the first call that needs it and the Ledger session is opened
// on the first Address or SignTransaction. Fields left nil in a
// TransactionRequest are filled from the node before signing; fields that
// are set are used as given.
//
// Errors are classified with sentinels so callers can branch with errors.Is:
// ErrConfiguration, ErrConnection, ErrResolution, ErrUserRejected,
// ErrDeviceTimeout and ErrDeviceLocked.
//
// A HardwareSigner serialises device commands internally; concurrent callers
// queue rather than interleave on the USB session. Always Close it.
package txsigner
