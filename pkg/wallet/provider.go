// Package wallet implements the wallet provider boundary: account
// permissions, network queries and switches, signing, and account/chain
// change notifications.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"nftmint/pkg/config"
	"nftmint/pkg/events"
	"nftmint/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 / EIP-3326 provider error codes.
const (
	CodeUserRejected       = 4001
	CodeUnauthorized       = 4100
	CodeUnrecognizedChain  = 4902
	CodeInternal           = -32603
	EventAccountsChanged   = events.EventType("accountsChanged")
	EventChainChanged      = events.EventType("chainChanged")
	defaultSignTimeoutSecs = 300
)

// ErrWalletUnavailable is returned when no wallet provider is present.
var ErrWalletUnavailable = errors.New("wallet not available")

var errNotAuthorized = errors.New("not authorized to sign for this account")

// ProviderError is an error reported by the wallet with an EIP-1193 code.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// ErrorCode makes ProviderError satisfy rpc.Error.
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorCode extracts the provider error code from err, or 0 if it has none.
func ErrorCode(err error) int {
	var re rpc.Error
	if errors.As(err, &re) {
		return re.ErrorCode()
	}
	return 0
}

// IsUserRejected reports whether err is a user rejection.
func IsUserRejected(err error) bool { return ErrorCode(err) == CodeUserRejected }

// IsUnrecognizedChain reports whether err says the wallet does not know the chain.
func IsUnrecognizedChain(err error) bool { return ErrorCode(err) == CodeUnrecognizedChain }

// Notification is the payload of accountsChanged and chainChanged events.
type Notification struct {
	Accounts []common.Address `json:"accounts,omitempty"`
	ChainID  *big.Int         `json:"chain_id,omitempty"`
}

// Backend is what a contract binding needs to transact and wait for receipts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Provider is a connected wallet.
type Provider interface {
	RequestPermissions(ctx context.Context) error
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainIDHex string) error
	AddChain(ctx context.Context, params models.ChainParams) error
	Accounts(ctx context.Context) ([]common.Address, error)
	Signer(ctx context.Context) (*bind.TransactOpts, error)
	Backend(ctx context.Context) (Backend, error)

	Subscribe() events.Subscriber
	Unsubscribe(sub events.Subscriber)
	Start(ctx context.Context)
	Close()
}

// New builds the provider selected by the wallet configuration. The returned
// error wraps ErrWalletUnavailable when no wallet can be reached.
func New(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.Wallet.Mode {
	case config.WalletModeKeystore:
		p, err := NewKeystoreProvider(cfg.Wallet, cfg.Chain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
		}
		return p, nil
	case config.WalletModeRPC, "":
		if strings.TrimSpace(cfg.Wallet.RPCURL) == "" {
			return nil, fmt.Errorf("%w: no wallet rpc_url configured", ErrWalletUnavailable)
		}
		p, err := DialRPCProvider(ctx, cfg.Wallet.RPCURL, cfg.Wallet.PollInterval())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown wallet mode %q", ErrWalletUnavailable, cfg.Wallet.Mode)
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
