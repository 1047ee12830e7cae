package txsigner

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// populate turns req into a complete dynamic-fee transaction for sender
// from. Set fields are copied; nil fields are asked from the node. The
// node is not queried for anything the request already carries.
func populate(ctx context.Context, client ChainClient, from common.Address, req TransactionRequest) (*types.DynamicFeeTx, error) {
	tx := &types.DynamicFeeTx{
		To:    copyAddress(req.To),
		Value: new(big.Int),
		Data:  common.CopyBytes(req.Data),
	}
	if req.Value != nil {
		if req.Value.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative value", ErrResolution)
		}
		tx.Value.Set(req.Value)
	}

	if req.ChainID != nil {
		tx.ChainID = new(big.Int).Set(req.ChainID)
	} else {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, resolutionError("chain id", err)
		}
		tx.ChainID = id
	}

	if req.Nonce != nil {
		tx.Nonce = *req.Nonce
	} else {
		nonce, err := client.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, resolutionError("nonce", err)
		}
		tx.Nonce = nonce
	}

	tip, feeCap, err := resolveFees(ctx, client, req)
	if err != nil {
		return nil, err
	}
	tx.GasTipCap, tx.GasFeeCap = tip, feeCap

	if req.GasLimit != nil {
		tx.Gas = *req.GasLimit
	} else {
		gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:      from,
			To:        tx.To,
			GasFeeCap: tx.GasFeeCap,
			GasTipCap: tx.GasTipCap,
			Value:     tx.Value,
			Data:      tx.Data,
		})
		if err != nil {
			return nil, resolutionError("gas limit", err)
		}
		tx.Gas = gas
	}

	return tx, nil
}

// resolveFees fills the EIP-1559 fee pair. A missing tip comes from
// eth_maxPriorityFeePerGas, capped by an explicit fee cap; a missing fee cap
// is twice the latest base fee plus the tip.
func resolveFees(ctx context.Context, client ChainClient, req TransactionRequest) (tip, feeCap *big.Int, err error) {
	if req.MaxPriorityFeePerGas != nil {
		tip = new(big.Int).Set(req.MaxPriorityFeePerGas)
	} else {
		suggested, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, nil, resolutionError("priority fee", err)
		}
		tip = suggested
		if req.MaxFeePerGas != nil && req.MaxFeePerGas.Cmp(tip) < 0 {
			tip = new(big.Int).Set(req.MaxFeePerGas)
		}
	}

	if req.MaxFeePerGas != nil {
		feeCap = new(big.Int).Set(req.MaxFeePerGas)
	} else {
		head, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, nil, resolutionError("base fee", err)
		}
		if head == nil || head.BaseFee == nil {
			return nil, nil, resolutionError("base fee", errors.New("network does not report a base fee"))
		}
		feeCap = new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
	}

	if tip.Cmp(feeCap) > 0 {
		return nil, nil, fmt.Errorf("%w: max priority fee %s exceeds max fee %s", ErrResolution, tip, feeCap)
	}
	return tip, feeCap, nil
}

func copyAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}
