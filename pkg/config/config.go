package config

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"nftmint/pkg/gateway"
	"nftmint/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const ConfigFileName = ".nftmint.json"
const LogFileName = ".nftmint.log"

const (
	WalletModeRPC      = "rpc"
	WalletModeKeystore = "keystore"
)

// Defaults for the Sepolia deployment.
const (
	DefaultChainID         = 11155111
	DefaultContractAddress = "0xF6469EECC027A8EF50eCf0FAD9764fE5e948D755"
	DefaultBaseURI         = "https://ipfs.io/ipfs/QmVcio2y1UP7XdvaBhJkKWQT1bCKXXVeeyTVj1KMB9Mz5W/"
	DefaultItemCount       = 16
	DefaultImageExt        = "jpg"
	DefaultNamePrefix      = "Item"
	DefaultWalletRPCURL    = "http://127.0.0.1:8546"
	DefaultPasswordEnv     = "NFTMINT_PASSWORD"
)

// ChainConfig is the on-disk description of a network, in the shape wallets
// accept for wallet_addEthereumChain.
type ChainConfig struct {
	ChainID           int64                 `json:"chain_id"`
	ChainName         string                `json:"chain_name"`
	NativeCurrency    models.NativeCurrency `json:"native_currency"`
	RPCURLs           []string              `json:"rpc_urls"`
	BlockExplorerURLs []string              `json:"block_explorer_urls,omitempty"`
}

// Params converts the chain into its wallet_addEthereumChain parameter form.
func (c ChainConfig) Params() models.ChainParams {
	return models.ChainParams{
		ChainID:           hexutil.EncodeBig(big.NewInt(c.ChainID)),
		ChainName:         c.ChainName,
		NativeCurrency:    c.NativeCurrency,
		RPCURLs:           append([]string(nil), c.RPCURLs...),
		BlockExplorerURLs: append([]string(nil), c.BlockExplorerURLs...),
	}
}

// WalletConfig selects and configures the wallet provider.
type WalletConfig struct {
	Mode                string        `json:"mode"`
	RPCURL              string        `json:"rpc_url,omitempty"`
	KeystoreDir         string        `json:"keystore_dir,omitempty"`
	Account             string        `json:"account,omitempty"`
	PasswordEnv         string        `json:"password_env,omitempty"`
	PollIntervalSeconds int           `json:"poll_interval_seconds"`
	KnownChains         []ChainConfig `json:"known_chains,omitempty"`
}

// GalleryConfig describes the fixed set of items and where their content lives.
type GalleryConfig struct {
	BaseURI             string   `json:"base_uri"`
	ItemCount           int      `json:"item_count"`
	ImageExt            string   `json:"image_ext"`
	NamePrefix          string   `json:"name_prefix"`
	Gateways            []string `json:"gateways"`
	FetchTimeoutSeconds int      `json:"fetch_timeout_seconds"`
}

// Config is the full application configuration.
type Config struct {
	Chain           ChainConfig   `json:"chain"`
	ContractAddress string        `json:"contract_address"`
	AllowAddNetwork bool          `json:"allow_add_network"`
	Gallery         GalleryConfig `json:"gallery"`
	Wallet          WalletConfig  `json:"wallet"`
	LogLevel        string        `json:"log_level"`
}

// ChainTarget is the single acceptable network. It is derived once from the
// configuration and never mutated afterwards.
type ChainTarget struct {
	DecimalID *big.Int
	HexID     string
	Params    models.ChainParams
}

// Target derives the ChainTarget from the configured chain.
func (c Config) Target() ChainTarget {
	id := big.NewInt(c.Chain.ChainID)
	return ChainTarget{
		DecimalID: id,
		HexID:     hexutil.EncodeBig(id),
		Params:    c.Chain.Params(),
	}
}

// Matches reports whether id is the target chain id.
func (t ChainTarget) Matches(id *big.Int) bool {
	return id != nil && t.DecimalID != nil && id.Cmp(t.DecimalID) == 0
}

// FetchTimeout returns the per-request timeout for metadata and image fetches.
func (g GalleryConfig) FetchTimeout() time.Duration {
	return time.Duration(g.FetchTimeoutSeconds) * time.Second
}

// PollInterval returns the wallet notification polling interval.
func (w WalletConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

func DefaultChain() ChainConfig {
	return ChainConfig{
		ChainID:   DefaultChainID,
		ChainName: "Sepolia Test Network",
		NativeCurrency: models.NativeCurrency{
			Name:     "Sepolia Ether",
			Symbol:   "SEP",
			Decimals: 18,
		},
		RPCURLs:           []string{"https://sepolia.gateway.tenderly.co", "https://rpc.sepolia.org"},
		BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
	}
}

func Default() Config {
	return Config{
		Chain:           DefaultChain(),
		ContractAddress: DefaultContractAddress,
		AllowAddNetwork: true,
		Gallery: GalleryConfig{
			BaseURI:             DefaultBaseURI,
			ItemCount:           DefaultItemCount,
			ImageExt:            DefaultImageExt,
			NamePrefix:          DefaultNamePrefix,
			Gateways:            append([]string(nil), gateway.DefaultGateways...),
			FetchTimeoutSeconds: 15,
		},
		Wallet: WalletConfig{
			Mode:                WalletModeRPC,
			RPCURL:              DefaultWalletRPCURL,
			PasswordEnv:         DefaultPasswordEnv,
			PollIntervalSeconds: 2,
		},
		LogLevel: "info",
	}
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var raw struct {
		Chain           *ChainConfig `json:"chain"`
		ContractAddress *string      `json:"contract_address"`
		AllowAddNetwork *bool        `json:"allow_add_network"`
		Gallery         *struct {
			BaseURI             *string  `json:"base_uri"`
			ItemCount           *int     `json:"item_count"`
			ImageExt            *string  `json:"image_ext"`
			NamePrefix          *string  `json:"name_prefix"`
			Gateways            []string `json:"gateways"`
			FetchTimeoutSeconds *int     `json:"fetch_timeout_seconds"`
		} `json:"gallery"`
		Wallet *struct {
			Mode                *string       `json:"mode"`
			RPCURL              *string       `json:"rpc_url"`
			KeystoreDir         *string       `json:"keystore_dir"`
			Account             *string       `json:"account"`
			PasswordEnv         *string       `json:"password_env"`
			PollIntervalSeconds *int          `json:"poll_interval_seconds"`
			KnownChains         []ChainConfig `json:"known_chains"`
		} `json:"wallet"`
		LogLevel *string `json:"log_level"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if raw.Chain != nil {
		cfg.Chain = *raw.Chain
	}
	if raw.ContractAddress != nil {
		cfg.ContractAddress = strings.TrimSpace(*raw.ContractAddress)
	}
	if raw.AllowAddNetwork != nil {
		cfg.AllowAddNetwork = *raw.AllowAddNetwork
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}

	if g := raw.Gallery; g != nil {
		if g.BaseURI != nil {
			cfg.Gallery.BaseURI = *g.BaseURI
		}
		if g.ItemCount != nil {
			cfg.Gallery.ItemCount = *g.ItemCount
		}
		if g.ImageExt != nil {
			cfg.Gallery.ImageExt = strings.TrimPrefix(*g.ImageExt, ".")
		}
		if g.NamePrefix != nil {
			cfg.Gallery.NamePrefix = *g.NamePrefix
		}
		if len(g.Gateways) > 0 {
			cfg.Gallery.Gateways = g.Gateways
		}
		if g.FetchTimeoutSeconds != nil {
			cfg.Gallery.FetchTimeoutSeconds = *g.FetchTimeoutSeconds
		}
	}

	if w := raw.Wallet; w != nil {
		if w.Mode != nil {
			cfg.Wallet.Mode = strings.ToLower(strings.TrimSpace(*w.Mode))
		}
		if w.RPCURL != nil {
			cfg.Wallet.RPCURL = *w.RPCURL
		}
		if w.KeystoreDir != nil {
			cfg.Wallet.KeystoreDir = *w.KeystoreDir
		}
		if w.Account != nil {
			cfg.Wallet.Account = *w.Account
		}
		if w.PasswordEnv != nil {
			cfg.Wallet.PasswordEnv = *w.PasswordEnv
		}
		if w.PollIntervalSeconds != nil {
			cfg.Wallet.PollIntervalSeconds = *w.PollIntervalSeconds
		}
		cfg.Wallet.KnownChains = w.KnownChains
	}

	return cfg, nil
}

// Validate checks the configuration for values the client cannot run with.
func Validate(cfg Config) error {
	if cfg.Chain.ChainID <= 0 {
		return fmt.Errorf("validation failed: chain_id must be positive")
	}
	if strings.TrimSpace(cfg.Chain.ChainName) == "" {
		return fmt.Errorf("validation failed: chain has no name")
	}
	if len(cfg.Chain.RPCURLs) == 0 {
		return fmt.Errorf("validation failed: chain %s has no RPC URLs", cfg.Chain.ChainName)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("validation failed: invalid contract address %q", cfg.ContractAddress)
	}
	if cfg.Gallery.ItemCount < 0 {
		return fmt.Errorf("validation failed: item_count must not be negative")
	}
	switch cfg.Wallet.Mode {
	case WalletModeRPC, WalletModeKeystore, "":
	default:
		return fmt.Errorf("validation failed: unknown wallet mode %q", cfg.Wallet.Mode)
	}
	for i, c := range cfg.Wallet.KnownChains {
		if c.ChainID <= 0 || len(c.RPCURLs) == 0 {
			return fmt.Errorf("validation failed: known chain at index %d needs chain_id and rpc_urls", i)
		}
	}
	return nil
}

func SaveConfig(cfg Config, path string) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
