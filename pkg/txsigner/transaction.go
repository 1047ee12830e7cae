package txsigner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransactionRequest describes an intended transaction independently of the
// signer. Nil fields are resolved by the signer; set fields are used as is.
// Signers never modify a request or the values it points to.
type TransactionRequest struct {
	// To is nil for contract creation.
	To *common.Address
	// Value in wei; nil means zero.
	Value *big.Int
	Data  []byte

	GasLimit             *uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *uint64
	ChainID              *big.Int
}

// SignedTransaction is a signed, EIP-2718 encoded transaction ready for
// broadcast. Hash is always keccak256 of the raw bytes.
type SignedTransaction struct {
	RawTransaction string `json:"rawTransaction"`
	Hash           string `json:"hash"`
}

func newSignedTransaction(tx *types.Transaction) (*SignedTransaction, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	return &SignedTransaction{
		RawTransaction: hexutil.Encode(raw),
		Hash:           crypto.Keccak256Hash(raw).Hex(),
	}, nil
}

// Verify recomputes the hash from the raw bytes and compares it to Hash.
func (s *SignedTransaction) Verify() error {
	raw, err := hexutil.Decode(s.RawTransaction)
	if err != nil {
		return fmt.Errorf("invalid raw transaction: %w", err)
	}
	if got := crypto.Keccak256Hash(raw).Hex(); got != s.Hash {
		return fmt.Errorf("hash mismatch: raw bytes hash to %s, have %s", got, s.Hash)
	}
	return nil
}

// Transaction decodes the raw bytes.
func (s *SignedTransaction) Transaction() (*types.Transaction, error) {
	raw, err := hexutil.Decode(s.RawTransaction)
	if err != nil {
		return nil, fmt.Errorf("invalid raw transaction: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw transaction: %w", err)
	}
	return tx, nil
}

// PendingTransaction is a transaction accepted by the node but not yet mined.
type PendingTransaction struct {
	Hash   common.Hash
	From   common.Address
	Tx     *types.Transaction
	Signed *SignedTransaction

	backend bind.DeployBackend
}

// Wait polls the node until the transaction is mined or ctx ends.
func (p *PendingTransaction) Wait(ctx context.Context) (*types.Receipt, error) {
	return bind.WaitMined(ctx, p.backend, p.Hash)
}
