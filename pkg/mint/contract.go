// Package mint submits mintNFT transactions and waits for their receipts.
package mint

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"nftmint/pkg/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NFTABI is the subset of the collection contract the client uses.
const NFTABI = `[
	{"type":"function","name":"mintNFT","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"tokenURI","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}
	]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(NFTABI))
	if err != nil {
		panic(fmt.Sprintf("invalid NFT ABI: %v", err))
	}
	return parsed
}

// Binding is a contract handle bound to one signing account.
type Binding interface {
	MintNFT(ctx context.Context) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Contract is the collection contract bound to an account's signer.
type Contract struct {
	contract *bind.BoundContract
	backend  wallet.Backend
	opts     *bind.TransactOpts
}

// NewContract binds the contract at address to opts' signer.
func NewContract(address common.Address, backend wallet.Backend, opts *bind.TransactOpts) (*Contract, error) {
	if opts == nil {
		return nil, fmt.Errorf("no signer for contract %s", address.Hex())
	}
	return &Contract{
		contract: bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		backend:  backend,
		opts:     opts,
	}, nil
}

// Account returns the account the binding signs for.
func (c *Contract) Account() common.Address {
	return c.opts.From
}

func (c *Contract) MintNFT(ctx context.Context) (*types.Transaction, error) {
	opts := *c.opts
	opts.Context = ctx
	return c.contract.Transact(&opts, "mintNFT")
}

func (c *Contract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}

// BalanceOf returns how many tokens owner holds.
func (c *Contract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// TokenURI returns the metadata URI of tokenID.
func (c *Contract) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// MintedTokenID returns the token id from the first Transfer log emitted by
// contract in receipt, or nil when there is none.
func MintedTokenID(receipt *types.Receipt, contract common.Address) *big.Int {
	transfer := parsedABI.Events["Transfer"].ID
	for _, l := range receipt.Logs {
		if l.Address != contract || len(l.Topics) != 4 || l.Topics[0] != transfer {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes())
	}
	return nil
}
