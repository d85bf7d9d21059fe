package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"nftmint/pkg/config"
	"nftmint/pkg/events"
	"nftmint/pkg/models"
	chainrpc "nftmint/pkg/rpc"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// KeystoreProvider is a local wallet backed by a go-ethereum keystore. It
// keeps its own registry of known networks the way a browser wallet does:
// switching to an unregistered chain fails with CodeUnrecognizedChain until
// the chain is added.
type KeystoreProvider struct {
	ks       *keystore.KeyStore
	want     common.Address
	password string

	hub *events.Hub

	mu       sync.Mutex
	account  *accounts.Account
	chains   map[uint64]models.ChainParams
	order    []uint64
	active   uint64
	client   *ethclient.Client
	closed   bool
	stopOnce sync.Once
	stop     chan struct{}
}

// NewKeystoreProvider opens the keystore directory and seeds the network
// registry from cfg.KnownChains, or from fallback when none are configured.
// The first known chain is active initially.
func NewKeystoreProvider(cfg config.WalletConfig, fallback config.ChainConfig) (*KeystoreProvider, error) {
	if strings.TrimSpace(cfg.KeystoreDir) == "" {
		return nil, errors.New("no keystore_dir configured")
	}
	if _, err := os.Stat(cfg.KeystoreDir); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
	return newKeystoreProvider(ks, cfg, fallback), nil
}

func newKeystoreProvider(ks *keystore.KeyStore, cfg config.WalletConfig, fallback config.ChainConfig) *KeystoreProvider {
	p := &KeystoreProvider{
		ks:     ks,
		hub:    events.NewHub(),
		chains: make(map[uint64]models.ChainParams),
		stop:   make(chan struct{}),
	}
	if common.IsHexAddress(cfg.Account) {
		p.want = common.HexToAddress(cfg.Account)
	}
	if cfg.PasswordEnv != "" {
		p.password = os.Getenv(cfg.PasswordEnv)
	}
	known := cfg.KnownChains
	if len(known) == 0 {
		known = []config.ChainConfig{fallback}
	}
	for _, c := range known {
		p.register(uint64(c.ChainID), c.Params())
	}
	if len(p.order) > 0 {
		p.active = p.order[0]
	}
	return p
}

func (p *KeystoreProvider) register(id uint64, params models.ChainParams) {
	if _, ok := p.chains[id]; !ok {
		p.order = append(p.order, id)
	}
	p.chains[id] = params
}

// SetPassword overrides the passphrase read from the environment.
func (p *KeystoreProvider) SetPassword(password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.password = password
}

func (p *KeystoreProvider) RequestPermissions(ctx context.Context) error {
	p.mu.Lock()
	password := p.password
	p.mu.Unlock()

	all := p.ks.Accounts()
	if len(all) == 0 {
		return &ProviderError{Code: CodeUnauthorized, Message: "keystore has no accounts"}
	}
	acct := all[0]
	if p.want != (common.Address{}) {
		found, err := p.ks.Find(accounts.Account{Address: p.want})
		if err != nil {
			return &ProviderError{Code: CodeUnauthorized, Message: fmt.Sprintf("account %s not in keystore", p.want.Hex())}
		}
		acct = found
	}
	// Unlock runs scrypt and takes a while; the keystore does its own locking.
	if err := p.ks.Unlock(acct, password); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return &ProviderError{Code: CodeUserRejected, Message: "user rejected the request"}
		}
		return err
	}

	p.mu.Lock()
	p.account = &acct
	p.mu.Unlock()
	return nil
}

// ChainID asks the active network's RPC for its chain id.
func (p *KeystoreProvider) ChainID(ctx context.Context) (*big.Int, error) {
	client, err := p.activeClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.ChainID(ctx)
}

func (p *KeystoreProvider) activeClient(ctx context.Context) (*ethclient.Client, error) {
	p.mu.Lock()
	if p.client != nil {
		client := p.client
		p.mu.Unlock()
		return client, nil
	}
	active := p.active
	params, ok := p.chains[active]
	p.mu.Unlock()
	if !ok {
		return nil, &ProviderError{Code: CodeInternal, Message: "no active network"}
	}

	client, used, failed, err := chainrpc.DialFirst(ctx, params.RPCURLs)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", params.ChainName, err)
	}
	if len(failed) > 0 {
		log.Warn("Skipped unreachable RPC endpoints", "chain", params.ChainName, "failed", failed)
	}

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		client.Close()
		return nil, &ProviderError{Code: CodeInternal, Message: "wallet closed"}
	case p.active != active:
		// Switched while dialing; the client is for the old network.
		p.mu.Unlock()
		client.Close()
		return p.activeClient(ctx)
	case p.client != nil:
		existing := p.client
		p.mu.Unlock()
		client.Close()
		return existing, nil
	}
	p.client = client
	p.mu.Unlock()
	log.Debug("Wallet network connected", "chain", params.ChainName, "rpc", used)
	return client, nil
}

func (p *KeystoreProvider) SwitchChain(ctx context.Context, chainIDHex string) error {
	id, err := hexutil.DecodeBig(chainIDHex)
	if err != nil || !id.IsUint64() {
		return &ProviderError{Code: -32602, Message: fmt.Sprintf("invalid chainId %q", chainIDHex)}
	}
	p.mu.Lock()
	if _, ok := p.chains[id.Uint64()]; !ok {
		p.mu.Unlock()
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("Unrecognized chain ID %q", chainIDHex)}
	}
	changed := p.active != id.Uint64()
	if changed {
		p.active = id.Uint64()
		if p.client != nil {
			p.client.Close()
			p.client = nil
		}
	}
	p.mu.Unlock()

	if changed {
		p.hub.Publish(events.Event{Type: EventChainChanged, Data: Notification{ChainID: id}})
	}
	return nil
}

// AddChain registers the network and then switches to it.
func (p *KeystoreProvider) AddChain(ctx context.Context, params models.ChainParams) error {
	id, err := hexutil.DecodeBig(params.ChainID)
	if err != nil || !id.IsUint64() {
		return &ProviderError{Code: -32602, Message: fmt.Sprintf("invalid chainId %q", params.ChainID)}
	}
	if len(params.RPCURLs) == 0 {
		return &ProviderError{Code: -32602, Message: "rpcUrls must not be empty"}
	}
	p.mu.Lock()
	p.register(id.Uint64(), params)
	p.mu.Unlock()
	log.Info("Network added to wallet", "chain", params.ChainName, "id", id)
	return p.SwitchChain(ctx, params.ChainID)
}

func (p *KeystoreProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return []common.Address{}, nil
	}
	return []common.Address{p.account.Address}, nil
}

func (p *KeystoreProvider) Signer(ctx context.Context) (*bind.TransactOpts, error) {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	acct := p.account
	p.mu.Unlock()
	if acct == nil {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "no authorized accounts"}
	}
	return bind.NewKeyStoreTransactorWithChainID(p.ks, *acct, chainID)
}

func (p *KeystoreProvider) Backend(ctx context.Context) (Backend, error) {
	return p.activeClient(ctx)
}

func (p *KeystoreProvider) Subscribe() events.Subscriber {
	return p.hub.Subscribe()
}

func (p *KeystoreProvider) Unsubscribe(sub events.Subscriber) {
	p.hub.Unsubscribe(sub)
}

// Start watches the keystore and reports the unlocked account as gone when
// its key file disappears.
func (p *KeystoreProvider) Start(ctx context.Context) {
	sink := make(chan accounts.WalletEvent, 16)
	sub := p.ks.Subscribe(sink)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-sink:
				if ev.Kind == accounts.WalletDropped {
					p.handleDropped(ev.Wallet)
				}
			case <-sub.Err():
				return
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *KeystoreProvider) handleDropped(w accounts.Wallet) {
	p.mu.Lock()
	acct := p.account
	if acct == nil || !w.Contains(*acct) {
		p.mu.Unlock()
		return
	}
	p.account = nil
	p.mu.Unlock()
	log.Warn("Wallet account removed from keystore", "account", acct.Address.Hex())
	p.hub.Publish(events.Event{Type: EventAccountsChanged, Data: Notification{Accounts: []common.Address{}}})
}

func (p *KeystoreProvider) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}
