// Package session owns the connected wallet account and its contract binding.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"nftmint/pkg/config"
	"nftmint/pkg/events"
	"nftmint/pkg/mint"
	"nftmint/pkg/network"
	"nftmint/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

var (
	ErrPermissionRejected = errors.New("connection request rejected")
	ErrConnectFailed      = errors.New("failed to connect wallet")
	ErrSessionReset       = errors.New("session reset while connecting")
	ErrDisconnected       = errors.New("disconnected while connecting")
)

// Status is the connection state of the session.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Message is a notification from the wallet.
type Message interface {
	message()
}

// AccountsChanged carries the wallet's new account list.
type AccountsChanged struct {
	Accounts []common.Address
}

// ChainChanged carries the wallet's new active chain id.
type ChainChanged struct {
	ChainID *big.Int
}

func (AccountsChanged) message() {}
func (ChainChanged) message()    {}

// Guard is the network check run before completing a connect.
type Guard interface {
	Ensure(ctx context.Context) (network.State, error)
}

// BindFunc builds a contract binding for account.
type BindFunc func(ctx context.Context, p wallet.Provider, account common.Address) (mint.Binding, error)

// Snapshot is a copy of the session state for display.
type Snapshot struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	Epoch     string `json:"epoch"`
	Chain     string `json:"chain"`
}

// WalletSession is the single owner of the session. Connect, Disconnect and
// Dispatch are the only operations that mutate it.
type WalletSession struct {
	provider wallet.Provider
	guard    Guard
	target   config.ChainTarget
	bind     BindFunc
	hub      *events.Hub

	mu      sync.Mutex
	status  Status
	account *common.Address
	binding mint.Binding
	epoch   uuid.UUID
	// resetErr is what a connect started under an older epoch returns.
	resetErr error
	bindSeq  uint64
}

// New creates a disconnected session. provider may be nil, in which case
// Connect fails with wallet.ErrWalletUnavailable.
func New(provider wallet.Provider, guard Guard, target config.ChainTarget, bind BindFunc, hub *events.Hub) *WalletSession {
	if hub == nil {
		hub = events.NewHub()
	}
	return &WalletSession{
		provider: provider,
		guard:    guard,
		target:   target,
		bind:     bind,
		hub:      hub,
		epoch:    uuid.New(),
		resetErr: ErrSessionReset,
	}
}

// Connect requests account access, verifies the network and binds the
// contract to the active account. Any failure leaves the session
// Disconnected with no account and no binding.
func (s *WalletSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.provider == nil {
		s.mu.Unlock()
		return wallet.ErrWalletUnavailable
	}
	if s.status == Connected {
		s.mu.Unlock()
		return nil
	}
	s.status = Connecting
	epoch := s.epoch
	s.mu.Unlock()
	s.publish()

	if err := s.provider.RequestPermissions(ctx); err != nil {
		if wallet.IsUserRejected(err) {
			return s.fail(epoch, fmt.Errorf("%w: %w", ErrPermissionRejected, err))
		}
		return s.fail(epoch, fmt.Errorf("%w: %w", ErrConnectFailed, err))
	}

	if _, err := s.guard.Ensure(ctx); err != nil {
		return s.fail(epoch, err)
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return s.fail(epoch, fmt.Errorf("%w: %w", ErrConnectFailed, err))
	}
	if len(accounts) == 0 {
		return s.fail(epoch, fmt.Errorf("%w: wallet returned no accounts", ErrConnectFailed))
	}
	account := accounts[0]

	binding, err := s.bind(ctx, s.provider, account)
	if err != nil {
		return s.fail(epoch, fmt.Errorf("%w: %w", ErrConnectFailed, err))
	}

	s.mu.Lock()
	if s.epoch != epoch {
		reset := s.resetErr
		s.mu.Unlock()
		log.Info("Discarding stale connect", "account", account.Hex(), "reason", reset)
		return reset
	}
	s.status = Connected
	s.account = &account
	s.binding = binding
	s.mu.Unlock()

	log.Info("Wallet connected", "account", account.Hex())
	s.publish()
	return nil
}

func (s *WalletSession) fail(epoch uuid.UUID, err error) error {
	s.mu.Lock()
	if s.epoch != epoch {
		reset := s.resetErr
		s.mu.Unlock()
		return reset
	}
	s.clearLocked()
	s.mu.Unlock()

	log.Warn("Wallet connect failed", "err", err)
	s.publish()
	return err
}

func (s *WalletSession) clearLocked() {
	s.status = Disconnected
	s.account = nil
	s.binding = nil
	s.bindSeq++
}

// Disconnect clears the session locally. The wallet keeps its permission.
func (s *WalletSession) Disconnect() {
	s.mu.Lock()
	s.clearLocked()
	s.epoch = uuid.New()
	s.resetErr = ErrDisconnected
	s.mu.Unlock()
	s.publish()
}

// Dispatch applies a wallet notification to the session.
func (s *WalletSession) Dispatch(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case AccountsChanged:
		s.accountsChanged(ctx, m.Accounts)
	case ChainChanged:
		s.chainChanged(m.ChainID)
	}
}

func (s *WalletSession) accountsChanged(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		log.Info("Wallet reported no accounts, disconnecting")
		s.Disconnect()
		return
	}
	next := accounts[0]

	s.mu.Lock()
	if s.status != Connected || (s.account != nil && *s.account == next) {
		s.mu.Unlock()
		return
	}
	s.account = &next
	rebuild := s.binding != nil
	s.bindSeq++
	seq, epoch := s.bindSeq, s.epoch
	s.mu.Unlock()

	log.Info("Wallet account changed", "account", next.Hex())
	s.publish()
	if rebuild {
		go s.rebind(ctx, seq, epoch, next)
	}
}

func (s *WalletSession) rebind(ctx context.Context, seq uint64, epoch uuid.UUID, account common.Address) {
	binding, err := s.bind(ctx, s.provider, account)

	s.mu.Lock()
	if s.bindSeq != seq || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.clearLocked()
		s.mu.Unlock()
		log.Warn("Rebinding contract failed", "account", account.Hex(), "err", err)
		s.hub.Publish(events.Event{Type: events.EventNotice, Data: events.Notice{Level: events.LevelError, Text: "Wallet account changed but the contract could not be rebound. Please reconnect."}})
		s.publish()
		return
	}
	s.binding = binding
	s.mu.Unlock()
	log.Debug("Contract rebound", "account", account.Hex())
	s.publish()
}

func (s *WalletSession) chainChanged(id *big.Int) {
	if s.target.Matches(id) {
		log.Debug("Wallet now on target chain", "chain", id)
		return
	}
	s.mu.Lock()
	s.clearLocked()
	s.epoch = uuid.New()
	s.resetErr = ErrSessionReset
	epoch := s.epoch
	s.mu.Unlock()

	log.Info("Wallet changed network, resetting session", "chain", id, "epoch", epoch)
	s.publish()
	s.hub.Publish(events.Event{Type: events.EventReload, Data: epoch.String()})
}

// Listen dispatches the provider's notifications until ctx ends.
func (s *WalletSession) Listen(ctx context.Context) {
	if s.provider == nil {
		return
	}
	sub := s.provider.Subscribe()
	defer s.provider.Unsubscribe(sub)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			n, _ := ev.Data.(wallet.Notification)
			switch ev.Type {
			case wallet.EventAccountsChanged:
				s.Dispatch(ctx, AccountsChanged{Accounts: n.Accounts})
			case wallet.EventChainChanged:
				s.Dispatch(ctx, ChainChanged{ChainID: n.ChainID})
			}
		case <-ctx.Done():
			return
		}
	}
}

// Status returns the current connection state.
func (s *WalletSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Account returns the connected account, or nil.
func (s *WalletSession) Account() *common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return nil
	}
	a := *s.account
	return &a
}

// Binding returns the contract binding, or nil when not connected.
func (s *WalletSession) Binding() mint.Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding
}

func (s *WalletSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Status:    s.status.String(),
		Connected: s.status == Connected,
		Epoch:     s.epoch.String(),
		Chain:     s.target.Params.ChainName,
	}
	if s.account != nil {
		snap.Account = s.account.Hex()
	}
	return snap
}

func (s *WalletSession) publish() {
	s.hub.Publish(events.Event{Type: events.EventSessionUpdated, Data: s.Snapshot()})
}
