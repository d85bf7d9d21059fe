package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"nftmint/pkg/events"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Source is what the Watcher polls.
type Source interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Watcher turns a poll-only wallet into accountsChanged / chainChanged
// notifications. The first poll only records a baseline.
type Watcher struct {
	source   Source
	hub      *events.Hub
	interval time.Duration

	accounts []common.Address
	chainID  *big.Int
	primed   bool

	mu       sync.Mutex
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWatcher creates a Watcher publishing to hub.
func NewWatcher(source Source, hub *events.Hub, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		source:   source,
		hub:      hub,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop.
func (w *Watcher) Start(ctx context.Context) {
	go w.pollingLoop(ctx)
}

// Stop stops the polling loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, w.interval+5*time.Second)
	defer cancel()

	accounts, accErr := w.source.Accounts(pctx)
	chainID, chainErr := w.source.ChainID(pctx)

	w.mu.Lock()
	var pending []events.Event
	if accErr != nil {
		log.Debug("Wallet account poll failed", "err", accErr)
	} else {
		if w.primed && !sameAccounts(w.accounts, accounts) {
			pending = append(pending, events.Event{Type: EventAccountsChanged, Data: Notification{Accounts: accounts}})
		}
		w.accounts = accounts
	}
	if chainErr != nil {
		log.Debug("Wallet chain poll failed", "err", chainErr)
	} else {
		if w.primed && w.chainID != nil && w.chainID.Cmp(chainID) != 0 {
			pending = append(pending, events.Event{Type: EventChainChanged, Data: Notification{ChainID: chainID}})
		}
		w.chainID = chainID
	}
	if accErr == nil && chainErr == nil {
		w.primed = true
	}
	w.mu.Unlock()

	for _, ev := range pending {
		w.hub.Publish(ev)
	}
}
