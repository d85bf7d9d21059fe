package mint

import (
	"context"
	"errors"
	"fmt"

	"nftmint/pkg/models"
	"nftmint/pkg/network"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrMintFailed   = errors.New("mint failed")
)

// NetworkGuard verifies the wallet network before anything is submitted.
type NetworkGuard interface {
	Ensure(ctx context.Context) (network.State, error)
}

// Gateway runs a guarded mint against a contract binding.
type Gateway struct {
	guard    NetworkGuard
	contract common.Address
}

func NewGateway(guard NetworkGuard, contract common.Address) *Gateway {
	return &Gateway{guard: guard, contract: contract}
}

// Mint submits mintNFT through binding and waits for the receipt. A nil
// binding fails with ErrNotConnected before any request is made; a network
// guard failure is returned as is.
func (g *Gateway) Mint(ctx context.Context, binding Binding) (*models.MintResult, error) {
	if binding == nil {
		return nil, ErrNotConnected
	}
	if _, err := g.guard.Ensure(ctx); err != nil {
		return nil, err
	}

	tx, err := binding.MintNFT(ctx)
	if err != nil {
		log.Error("Mint submission failed", "contract", g.contract.Hex(), "err", err)
		return nil, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	log.Info("Mint submitted", "tx", tx.Hash().Hex())

	receipt, err := binding.WaitMined(ctx, tx)
	if err != nil {
		log.Error("Mint confirmation failed", "tx", tx.Hash().Hex(), "err", err)
		return nil, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Error("Mint reverted", "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)
		return nil, fmt.Errorf("%w: transaction %s reverted", ErrMintFailed, tx.Hash().Hex())
	}

	res := &models.MintResult{
		TxHash:  tx.Hash().Hex(),
		GasUsed: receipt.GasUsed,
		TokenID: MintedTokenID(receipt, g.contract),
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	log.Info("Mint confirmed", "tx", res.TxHash, "block", res.BlockNumber, "token", res.TokenID)
	return res, nil
}
