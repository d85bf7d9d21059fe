package session

import (
	"context"
	"fmt"

	"nftmint/pkg/mint"
	"nftmint/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
)

// ContractBinder returns a BindFunc binding the collection contract at
// address to the wallet's signer.
func ContractBinder(address common.Address) BindFunc {
	return func(ctx context.Context, p wallet.Provider, account common.Address) (mint.Binding, error) {
		opts, err := p.Signer(ctx)
		if err != nil {
			return nil, err
		}
		if opts.From != account {
			return nil, fmt.Errorf("wallet signer %s does not match account %s", opts.From.Hex(), account.Hex())
		}
		backend, err := p.Backend(ctx)
		if err != nil {
			return nil, err
		}
		c, err := mint.NewContract(address, backend, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
