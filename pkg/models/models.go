package models

import (
	"math/big"
	"time"
)

// NativeCurrency describes a chain's gas token for wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainParams is the EIP-3085 chain descriptor passed to wallet_addEthereumChain.
type ChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// Attribute is a single trait entry from item metadata.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Metadata is the JSON document served for each item slot.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// ImageResult is the outcome of walking one slot's candidate list.
type ImageResult struct {
	Slot     int           `json:"slot"`
	URL      string        `json:"url"`
	OK       bool          `json:"ok"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
}

// GatewayLatency is a single timed request against a gateway host.
type GatewayLatency struct {
	Host    string        `json:"host"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// MintResult describes a confirmed mint.
type MintResult struct {
	TxHash      string   `json:"tx_hash"`
	BlockNumber uint64   `json:"block_number"`
	TokenID     *big.Int `json:"token_id,omitempty"`
	GasUsed     uint64   `json:"gas_used"`
	TokenURI    string   `json:"token_uri,omitempty"`
}

// RPCResult holds test results for a specific RPC URL.
type RPCResult struct {
	URL     string `json:"url"`
	Status  string `json:"status"` // "ok" or "error"
	ChainID int64  `json:"chain_id,omitempty"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChainResult holds test results for the target chain.
type ChainResult struct {
	Name            string      `json:"name"`
	ConfigChainID   int64       `json:"config_chain_id"`
	RPCs            []RPCResult `json:"rpcs"`
	Inconsistent    bool        `json:"inconsistent"`
	ObservedChainID int64       `json:"observed_chain_id,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string       `json:"config_path"`
	ValidStructure  bool         `json:"valid_structure"`
	StructureErrors []string     `json:"structure_errors,omitempty"`
	Chain           *ChainResult `json:"chain,omitempty"`
	ContractCode    bool         `json:"contract_code"`
	Gateways        []RPCResult  `json:"gateways,omitempty"`
}
