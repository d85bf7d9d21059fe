// Package app wires the wallet session, gallery and mint gateway together
// and is the single entry point used by the TUI and the API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"nftmint/pkg/config"
	"nftmint/pkg/events"
	"nftmint/pkg/gallery"
	"nftmint/pkg/gateway"
	"nftmint/pkg/mint"
	"nftmint/pkg/models"
	"nftmint/pkg/network"
	"nftmint/pkg/session"
	"nftmint/pkg/utils"
	"nftmint/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// ErrMintInProgress is returned when Mint is called while another mint is
// waiting for its receipt.
var ErrMintInProgress = errors.New("a mint is already in progress")

// Status is everything a front end needs to render the header.
type Status struct {
	Session     session.Snapshot   `json:"session"`
	Owned       *big.Int           `json:"owned,omitempty"`
	LastMint    *models.MintResult `json:"last_mint,omitempty"`
	Loading     bool               `json:"loading"`
	Minting     bool               `json:"minting"`
	Guarding    bool               `json:"guarding"`
	WalletError string             `json:"wallet_error,omitempty"`
	Contract    string             `json:"contract"`
	Explorer    string             `json:"explorer,omitempty"`
}

// App owns the one WalletSession of the process.
type App struct {
	cfg         config.Config
	hub         *events.Hub
	provider    wallet.Provider
	providerErr error
	guard       *network.Guard
	session     *session.WalletSession
	resolver    *gateway.Resolver
	loader      *gallery.Loader
	images      *gallery.ImageLoader
	minter      *mint.Gateway
	contract    common.Address

	mu         sync.RWMutex
	items      []*gallery.DisplayItem
	loading    bool
	loadGen    uint64
	loadCancel context.CancelFunc
	minting    bool
	lastMint   *models.MintResult
	owned      *big.Int
}

// New builds the App and its wallet provider. A wallet that cannot be set up
// is not fatal: the gallery still works and Connect reports the wallet as
// unavailable.
func New(ctx context.Context, cfg config.Config) *App {
	provider, err := wallet.New(ctx, cfg)
	if err != nil {
		log.Warn("Wallet unavailable", "mode", cfg.Wallet.Mode, "err", err)
		a := NewWithProvider(cfg, nil)
		a.providerErr = err
		return a
	}
	return NewWithProvider(cfg, provider)
}

// NewWithProvider builds the App around an existing provider, which may be nil.
func NewWithProvider(cfg config.Config, provider wallet.Provider) *App {
	hub := events.NewHub()
	target := cfg.Target()
	contract := common.HexToAddress(cfg.ContractAddress)
	resolver := gateway.New(cfg.Gallery.Gateways)

	a := &App{
		cfg:      cfg,
		hub:      hub,
		contract: contract,
		resolver: resolver,
		loader:   gallery.NewLoader(resolver, cfg.Gallery),
		images:   gallery.NewImageLoader(cfg.Gallery.FetchTimeout()),
		items:    []*gallery.DisplayItem{},
	}
	var chain network.ChainProvider
	if provider != nil {
		a.provider = provider
		chain = provider
	}
	a.guard = network.NewGuard(chain, target, cfg.AllowAddNetwork)
	a.guard.OnTransition = func(s network.State) {
		log.Debug("Network guard", "state", s)
	}
	a.session = session.New(a.provider, a.guard, target, session.ContractBinder(contract), hub)
	a.minter = mint.NewGateway(a.guard, contract)
	return a
}

func (a *App) Hub() *events.Hub {
	return a.hub
}

func (a *App) Config() config.Config {
	return a.cfg
}

func (a *App) Session() *session.WalletSession {
	return a.session
}

// Run starts the wallet notification plumbing, loads the gallery and reloads
// it whenever the session is reset by a network change. It blocks until ctx
// is done.
func (a *App) Run(ctx context.Context) {
	sub := a.hub.Subscribe()
	defer a.hub.Unsubscribe(sub)

	if a.provider != nil {
		a.provider.Start(ctx)
		go a.session.Listen(ctx)
	}
	go a.LoadGallery(ctx)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Type == events.EventReload {
				a.setOwned(nil)
				a.notify(events.LevelInfo, "Wallet network changed. Reloading.")
				go a.LoadGallery(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the wallet provider.
func (a *App) Close() {
	if a.provider != nil {
		a.provider.Close()
	}
}

// Connect runs the wallet connect sequence and reports the outcome as a notice.
func (a *App) Connect(ctx context.Context) error {
	if err := a.session.Connect(ctx); err != nil {
		if errors.Is(err, wallet.ErrWalletUnavailable) && a.providerErr != nil {
			log.Warn("Connect without wallet", "err", a.providerErr)
		}
		a.notify(events.LevelError, Notice(err))
		return err
	}
	if acct := a.session.Account(); acct != nil {
		a.notify(events.LevelInfo, "Wallet connected: "+utils.ShortAddress(acct.Hex()))
	}
	a.refreshOwned(ctx)
	return nil
}

// SetWalletPassword hands a keystore passphrase to the wallet. It reports
// false when the wallet does not take one.
func (a *App) SetWalletPassword(password string) bool {
	p, ok := a.provider.(interface{ SetPassword(string) })
	if !ok {
		return false
	}
	p.SetPassword(password)
	return true
}

// Disconnect clears the session locally.
func (a *App) Disconnect() {
	a.session.Disconnect()
	a.setOwned(nil)
	a.notify(events.LevelInfo, "Wallet disconnected.")
}

// Mint mints one token. slot is the gallery item the request came from and is
// only used for display.
func (a *App) Mint(ctx context.Context, slot int) (*models.MintResult, error) {
	a.mu.Lock()
	if a.minting {
		a.mu.Unlock()
		return nil, ErrMintInProgress
	}
	a.minting = true
	a.mu.Unlock()

	a.hub.Publish(events.Event{Type: events.EventMintStarted, Data: slot})
	res, err := a.minter.Mint(ctx, a.session.Binding())
	if err == nil {
		a.lookupTokenURI(ctx, res)
	}

	a.mu.Lock()
	a.minting = false
	if err == nil {
		a.lastMint = res
	}
	a.mu.Unlock()

	a.hub.Publish(events.Event{Type: events.EventMintFinished, Data: res})
	if err != nil {
		a.notify(events.LevelError, Notice(err))
		return nil, err
	}
	msg := "Minted! tx " + utils.ShortAddress(res.TxHash)
	if res.TokenID != nil {
		msg = fmt.Sprintf("Minted token #%s, tx %s", res.TokenID, utils.ShortAddress(res.TxHash))
	}
	a.notify(events.LevelInfo, msg)
	a.refreshOwned(ctx)
	return res, nil
}

// LoadGallery fetches all item metadata, then probes every slot's image
// candidates. Image results are published as they arrive. A call made while
// another load is running cancels that load and starts over; only the newest
// load updates the gallery.
func (a *App) LoadGallery(ctx context.Context) {
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	if a.loadCancel != nil {
		a.loadCancel()
	}
	a.loadGen++
	gen := a.loadGen
	a.loadCancel = cancel
	a.loading = true
	a.mu.Unlock()

	items := a.loader.LoadAll(lctx, a.cfg.Gallery.ItemCount, a.cfg.Gallery.BaseURI)

	a.mu.Lock()
	if a.loadGen != gen {
		a.mu.Unlock()
		log.Debug("Gallery load superseded", "generation", gen)
		return
	}
	a.items = items
	a.mu.Unlock()
	a.hub.Publish(events.Event{Type: events.EventGalleryLoaded, Data: len(items)})

	a.images.LoadImages(lctx, items, func(res models.ImageResult) {
		if a.currentLoad(gen) {
			a.hub.Publish(events.Event{Type: events.EventImageResolved, Data: res})
		}
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loadGen != gen {
		log.Debug("Gallery load superseded", "generation", gen)
		return
	}
	a.loading = false
	a.loadCancel = nil
	log.Info("Gallery loaded", "items", len(items))
}

func (a *App) currentLoad(gen uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadGen == gen
}

// Gallery returns a snapshot of every item in slot order.
func (a *App) Gallery() []gallery.ItemView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]gallery.ItemView, len(a.items))
	for i, item := range a.items {
		out[i] = item.View()
	}
	return out
}

// Latencies returns image gateway latency samples per host.
func (a *App) Latencies() map[string][]float64 {
	return a.images.Latencies()
}

// GatewayStatus returns the last observed latency for each gateway host.
func (a *App) GatewayStatus() []models.GatewayLatency {
	return a.images.LastLatency()
}

func (a *App) Snapshot() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := Status{
		Session:  a.session.Snapshot(),
		Loading:  a.loading,
		Minting:  a.minting,
		Guarding: a.guard.InFlight(),
		LastMint: a.lastMint,
		Contract: a.contract.Hex(),
	}
	if a.owned != nil {
		st.Owned = new(big.Int).Set(a.owned)
	}
	if a.providerErr != nil {
		st.WalletError = a.providerErr.Error()
	}
	if len(a.cfg.Chain.BlockExplorerURLs) > 0 {
		st.Explorer = a.cfg.Chain.BlockExplorerURLs[0]
	}
	return st
}

// TxURL returns the explorer page of a transaction, or "" without an explorer.
func (a *App) TxURL(hash string) string {
	if len(a.cfg.Chain.BlockExplorerURLs) == 0 || hash == "" {
		return ""
	}
	return utils.JoinURL(a.cfg.Chain.BlockExplorerURLs[0], "tx", hash)
}

func (a *App) refreshOwned(ctx context.Context) {
	c, ok := a.session.Binding().(*mint.Contract)
	if !ok {
		return
	}
	n, err := c.BalanceOf(ctx, c.Account())
	if err != nil {
		log.Debug("Balance query failed", "err", err)
		return
	}
	a.setOwned(n)
}

// lookupTokenURI fills in the minted token's URI. A failed lookup only loses
// the link.
func (a *App) lookupTokenURI(ctx context.Context, res *models.MintResult) {
	c, ok := a.session.Binding().(*mint.Contract)
	if !ok || res.TokenID == nil {
		return
	}
	uri, err := c.TokenURI(ctx, res.TokenID)
	if err != nil {
		log.Debug("Token URI lookup failed", "token", res.TokenID, "err", err)
		return
	}
	res.TokenURI = uri
}

// Owned returns how many tokens the connected account holds, or nil when
// unknown.
func (a *App) Owned() *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.owned == nil {
		return nil
	}
	return new(big.Int).Set(a.owned)
}

func (a *App) setOwned(n *big.Int) {
	a.mu.Lock()
	a.owned = n
	a.mu.Unlock()
	a.hub.Publish(events.Event{Type: events.EventSessionUpdated, Data: a.session.Snapshot()})
}

func (a *App) notify(level, text string) {
	a.hub.Publish(events.Event{Type: events.EventNotice, Data: events.Notice{Level: level, Text: text}})
}
