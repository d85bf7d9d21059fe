package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"nftmint/pkg/events"
	"nftmint/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider talks to an EIP-1193 wallet bridge over JSON-RPC. Transactions
// are signed by the wallet through eth_signTransaction and broadcast through
// the same endpoint.
type RPCProvider struct {
	url     string
	client  *rpc.Client
	eth     *ethclient.Client
	hub     *events.Hub
	watcher *Watcher

	SignTimeout time.Duration
}

// DialRPCProvider connects to the wallet bridge at url.
func DialRPCProvider(ctx context.Context, url string, pollInterval time.Duration) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	p := &RPCProvider{
		url:         url,
		client:      client,
		eth:         ethclient.NewClient(client),
		hub:         events.NewHub(),
		SignTimeout: defaultSignTimeoutSecs * time.Second,
	}
	p.watcher = NewWatcher(p, p.hub, pollInterval)
	return p, nil
}

func (p *RPCProvider) RequestPermissions(ctx context.Context) error {
	var result json.RawMessage
	params := map[string]any{"eth_accounts": struct{}{}}
	return p.client.CallContext(ctx, &result, "wallet_requestPermissions", params)
}

func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainIDHex string) error {
	params := map[string]string{"chainId": chainIDHex}
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params)
}

func (p *RPCProvider) AddChain(ctx context.Context, params models.ChainParams) error {
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Signer returns transact options for the wallet's active account. Signing is
// delegated to the wallet.
func (p *RPCProvider) Signer(ctx context.Context) (*bind.TransactOpts, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "no authorized accounts"}
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	from := accounts[0]
	return &bind.TransactOpts{
		From: from,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != from {
				return nil, errNotAuthorized
			}
			sctx, cancel := context.WithTimeout(context.Background(), p.SignTimeout)
			defer cancel()
			return p.signTransaction(sctx, from, chainID, tx)
		},
	}, nil
}

func (p *RPCProvider) Backend(ctx context.Context) (Backend, error) {
	return p.eth, nil
}

type txArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

func newTxArgs(from common.Address, chainID *big.Int, tx *types.Transaction) txArgs {
	args := txArgs{
		From:    from,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

func (p *RPCProvider) signTransaction(ctx context.Context, from common.Address, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, "eth_signTransaction", newTxArgs(from, chainID, tx)); err != nil {
		return nil, err
	}
	raw, err := decodeSignResult(result)
	if err != nil {
		return nil, err
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		return nil, fmt.Errorf("recover signer: %w", err)
	}
	if sender != from {
		return nil, fmt.Errorf("wallet signed with %s, expected %s", sender.Hex(), from.Hex())
	}
	return signed, nil
}

// decodeSignResult accepts both the bare raw-hex result and the
// {"raw": ..., "tx": ...} object some wallets return.
func decodeSignResult(result json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("empty eth_signTransaction result")
	}
	if trimmed[0] == '"' {
		var raw hexutil.Bytes
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	var obj struct {
		Raw hexutil.Bytes `json:"raw"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	if len(obj.Raw) == 0 {
		return nil, errors.New("eth_signTransaction result has no raw transaction")
	}
	return obj.Raw, nil
}

func (p *RPCProvider) Subscribe() events.Subscriber {
	return p.hub.Subscribe()
}

func (p *RPCProvider) Unsubscribe(sub events.Subscriber) {
	p.hub.Unsubscribe(sub)
}

// Start begins polling the wallet for account and chain changes.
func (p *RPCProvider) Start(ctx context.Context) {
	p.watcher.Start(ctx)
}

func (p *RPCProvider) Close() {
	p.watcher.Stop()
	p.client.Close()
}
