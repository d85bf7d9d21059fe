package app

import (
	"errors"

	"nftmint/pkg/mint"
	"nftmint/pkg/network"
	"nftmint/pkg/session"
	"nftmint/pkg/wallet"
)

// Notice turns an error from Connect or Mint into the message shown to the
// user.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var mm *network.MismatchError
	switch {
	case errors.Is(err, wallet.ErrWalletUnavailable):
		return "No wallet found. Configure a wallet bridge or keystore and try again."
	case errors.Is(err, session.ErrPermissionRejected):
		return "Connection request rejected."
	case errors.As(err, &mm):
		switch mm.Kind {
		case network.AddRequired:
			return "Please add " + mm.Chain + " to your wallet."
		case network.AddFailed:
			return "Could not add " + mm.Chain + ". Please add it in your wallet."
		default:
			return "Please switch your wallet to " + mm.Chain + "."
		}
	case errors.Is(err, session.ErrSessionReset):
		return "Wallet network changed while connecting. Please connect again."
	case errors.Is(err, session.ErrDisconnected):
		return "Connection cancelled."
	case errors.Is(err, mint.ErrNotConnected):
		return "Connect your wallet first."
	case errors.Is(err, mint.ErrMintFailed):
		return "Mint failed. Check the log for details."
	case errors.Is(err, session.ErrConnectFailed):
		return "Failed to connect wallet."
	}
	return "Error: " + err.Error()
}
