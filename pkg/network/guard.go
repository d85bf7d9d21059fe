// Package network verifies that the wallet is on the target chain and, when
// it is not, asks the wallet to switch or to add the network.
package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"nftmint/pkg/config"
	"nftmint/pkg/models"
	"nftmint/pkg/wallet"

	"github.com/ethereum/go-ethereum/log"
)

// State is a step of the network check.
type State int

const (
	Idle State = iota
	Checking
	Switching
	Adding
	Correct
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case Switching:
		return "switching"
	case Adding:
		return "adding"
	case Correct:
		return "correct"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrNetworkMismatch is wrapped by every MismatchError.
var ErrNetworkMismatch = errors.New("network mismatch")

// MismatchKind says which step of the repair failed.
type MismatchKind int

const (
	SwitchFailed MismatchKind = iota
	AddRequired
	AddFailed
)

func (k MismatchKind) String() string {
	switch k {
	case SwitchFailed:
		return "switch_failed"
	case AddRequired:
		return "add_required"
	case AddFailed:
		return "add_failed"
	}
	return "unknown"
}

// MismatchError reports that the wallet could not be brought onto the target
// network.
type MismatchError struct {
	Kind  MismatchKind
	Chain string
	Err   error
}

func (e *MismatchError) Error() string {
	var msg string
	switch e.Kind {
	case AddRequired:
		msg = fmt.Sprintf("please add %s to your wallet", e.Chain)
	case AddFailed:
		msg = fmt.Sprintf("please add %s to your wallet (adding failed)", e.Chain)
	default:
		msg = fmt.Sprintf("please switch your wallet to %s", e.Chain)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *MismatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetworkMismatch}
	}
	return []error{ErrNetworkMismatch, e.Err}
}

// ChainProvider is the part of a wallet the guard needs.
type ChainProvider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainIDHex string) error
	AddChain(ctx context.Context, params models.ChainParams) error
}

// Guard runs the check/switch/add sequence against one fixed target.
type Guard struct {
	provider ChainProvider
	target   config.ChainTarget
	allowAdd bool
	inFlight atomic.Int32

	// OnTransition, when set, is called with every state the guard enters.
	OnTransition func(State)
}

func NewGuard(provider ChainProvider, target config.ChainTarget, allowAdd bool) *Guard {
	return &Guard{provider: provider, target: target, allowAdd: allowAdd}
}

// InFlight reports whether an Ensure call is running.
func (g *Guard) InFlight() bool {
	return g.inFlight.Load() > 0
}

func (g *Guard) enter(s State) State {
	if g.OnTransition != nil {
		g.OnTransition(s)
	}
	return s
}

// Ensure makes sure the wallet is on the target chain. It never caches a
// previous result. On failure the returned state is Failed and the error is a
// *MismatchError.
func (g *Guard) Ensure(ctx context.Context) (State, error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	name := g.target.Params.ChainName
	g.enter(Checking)
	current, err := g.provider.ChainID(ctx)
	if err != nil {
		return g.enter(Failed), &MismatchError{Kind: SwitchFailed, Chain: name, Err: err}
	}
	if g.target.Matches(current) {
		return g.enter(Correct), nil
	}

	log.Info("Wallet on wrong network, requesting switch", "current", current, "target", g.target.DecimalID)
	g.enter(Switching)
	err = g.provider.SwitchChain(ctx, g.target.HexID)
	if err == nil {
		return g.enter(Correct), nil
	}
	if !wallet.IsUnrecognizedChain(err) {
		log.Warn("Network switch failed", "target", g.target.HexID, "err", err)
		return g.enter(Failed), &MismatchError{Kind: SwitchFailed, Chain: name, Err: err}
	}
	if !g.allowAdd {
		return g.enter(Failed), &MismatchError{Kind: AddRequired, Chain: name}
	}

	log.Info("Wallet does not know the target network, requesting add", "chain", name)
	g.enter(Adding)
	if err := g.provider.AddChain(ctx, g.target.Params); err != nil {
		log.Warn("Adding network failed", "chain", name, "err", err)
		return g.enter(Failed), &MismatchError{Kind: AddFailed, Chain: name, Err: err}
	}
	return g.enter(Correct), nil
}
