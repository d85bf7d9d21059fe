package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"nftmint/pkg/config"
	"nftmint/pkg/models"
	"nftmint/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

var DialTimeout = 10 * time.Second

// DialFirst walks rpcURLs in order and returns a client for the first one
// that answers eth_chainId, together with the URLs that failed.
func DialFirst(ctx context.Context, rpcURLs []string) (*ethclient.Client, string, []string, error) {
	var failedRPCs []string
	var lastErr error

	for _, rpcURL := range rpcURLs {
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			failedRPCs = append(failedRPCs, rpcURL)
			lastErr = err
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, DialTimeout)
		_, err = client.ChainID(cctx)
		cancel()
		if err != nil {
			client.Close()
			failedRPCs = append(failedRPCs, rpcURL)
			lastErr = err
			log.Warn("RPC endpoint unavailable", "url", rpcURL, "err", err)
			continue
		}
		return client, rpcURL, failedRPCs, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no RPC URLs configured")
	}
	return nil, "", failedRPCs, lastErr
}

// ProbeChain queries every RPC URL of chain and reports the observed chain
// ids and whether they agree with each other and with the configuration.
func ProbeChain(ctx context.Context, chain config.ChainConfig) models.ChainResult {
	result := models.ChainResult{
		Name:          chain.ChainName,
		ConfigChainID: chain.ChainID,
	}
	var observed *big.Int
	for _, rpcURL := range chain.RPCURLs {
		rResult := models.RPCResult{URL: rpcURL}
		start := time.Now()
		id, err := fetchChainID(ctx, rpcURL)
		if err != nil {
			rResult.Status = "error"
			rResult.Error = err.Error()
			result.RPCs = append(result.RPCs, rResult)
			continue
		}
		rResult.Status = "ok"
		rResult.ChainID = id.Int64()
		rResult.Latency = utils.FormatLatency(time.Since(start))
		if observed == nil {
			observed = id
			result.ObservedChainID = id.Int64()
		} else if observed.Cmp(id) != 0 {
			result.Inconsistent = true
		}
		if id.Cmp(big.NewInt(chain.ChainID)) != 0 {
			rResult.Error = fmt.Sprintf("Mismatch! Expected %d", chain.ChainID)
			result.Inconsistent = true
		}
		result.RPCs = append(result.RPCs, rResult)
	}
	return result
}

func fetchChainID(ctx context.Context, rpcURL string) (*big.Int, error) {
	cctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	client, err := ethclient.DialContext(cctx, rpcURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	id, err := client.ChainID(cctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return id, nil
}

// HasContractCode reports whether address holds deployed code on the first
// reachable RPC URL.
func HasContractCode(ctx context.Context, rpcURLs []string, address string) (bool, error) {
	client, _, _, err := DialFirst(ctx, rpcURLs)
	if err != nil {
		return false, err
	}
	defer client.Close()
	cctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	code, err := client.CodeAt(cctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// FetchGatewayLatency times a HEAD request against a gateway base URL.
func FetchGatewayLatency(ctx context.Context, gatewayURL string) (models.RPCResult, error) {
	res := models.RPCResult{URL: gatewayURL}
	cctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodHead, gatewayURL, nil)
	if err != nil {
		res.Status, res.Error = "error", err.Error()
		return res, err
	}
	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		res.Status, res.Error = "error", err.Error()
		return res, err
	}
	_ = resp.Body.Close()
	res.Latency = utils.FormatLatency(time.Since(start))
	if resp.StatusCode >= 500 {
		res.Status, res.Error = "error", resp.Status
		return res, fmt.Errorf("gateway returned %s", resp.Status)
	}
	res.Status = "ok"
	return res, nil
}
