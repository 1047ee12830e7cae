package txsigner

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erc7824/tokenkit/pkg/log"
	"github.com/erc7824/tokenkit/pkg/sign"
)

// LocalSigner signs with a private key held in process memory.
// It is safe for concurrent use.
type LocalSigner struct {
	key        sign.Signer
	address    common.Address
	client     ChainClient
	ownsClient bool
	opts       Options
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner returns a signer for key that resolves fields through
// client. It performs no I/O.
func NewLocalSigner(key sign.Signer, client ChainClient, opts Options) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: common.HexToAddress(key.PublicKey().Address().String()),
		client:  client,
		opts:    opts.withDefaults(KindLocal),
	}
}

func (s *LocalSigner) Kind() Kind { return KindLocal }

func (s *LocalSigner) Provider() ChainClient { return s.client }

// Address never fails for a local signer.
func (s *LocalSigner) Address(context.Context) (common.Address, error) {
	return s.address, nil
}

func (s *LocalSigner) SignTransaction(ctx context.Context, req TransactionRequest) (*SignedTransaction, error) {
	ctx, span, lg := startOperation(ctx, s.opts, KindLocal, "sign")
	signed, err := s.sign(ctx, lg, req)
	finishOperation(span, s.opts, KindLocal, "sign", err)
	return signed, err
}

func (s *LocalSigner) SendTransaction(ctx context.Context, req TransactionRequest) (*PendingTransaction, error) {
	ctx, span, lg := startOperation(ctx, s.opts, KindLocal, "send")
	pending, err := s.send(ctx, lg, req)
	finishOperation(span, s.opts, KindLocal, "send", err)
	return pending, err
}

func (s *LocalSigner) send(ctx context.Context, lg log.Logger, req TransactionRequest) (*PendingTransaction, error) {
	signed, err := s.sign(ctx, lg, req)
	if err != nil {
		return nil, err
	}
	return sendSigned(ctx, s.client, lg, s.address, signed)
}

func (s *LocalSigner) sign(ctx context.Context, lg log.Logger, req TransactionRequest) (*SignedTransaction, error) {
	unsigned, err := populate(ctx, s.client, s.address, req)
	if err != nil {
		lg.Debug("failed to resolve transaction", "error", err)
		return nil, err
	}

	tx := types.NewTx(unsigned)
	signer := types.LatestSignerForChainID(unsigned.ChainID)
	sig, err := s.key.Sign(signer.Hash(tx).Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	signedTx, err := tx.WithSignature(signer, sig.Raw())
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}

	signed, err := newSignedTransaction(signedTx)
	if err != nil {
		return nil, err
	}
	lg.Debug("transaction signed", "hash", signed.Hash, "nonce", unsigned.Nonce, "chainId", unsigned.ChainID)
	return signed, nil
}

// Close releases the RPC connection when the signer dialled it itself.
func (s *LocalSigner) Close() error {
	if s.ownsClient {
		if p, ok := s.client.(*Provider); ok {
			p.Close()
		}
	}
	return nil
}
