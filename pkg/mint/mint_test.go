package mint

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nftmint/pkg/network"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0xF6469EECC027A8EF50eCf0FAD9764fE5e948D755")

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) Ensure(ctx context.Context) (network.State, error) {
	args := m.Called()
	return args.Get(0).(network.State), args.Error(1)
}

type MockBinding struct {
	mock.Mock
}

func (m *MockBinding) MintNFT(ctx context.Context) (*types.Transaction, error) {
	args := m.Called()
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

func (m *MockBinding) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	args := m.Called(tx)
	r, _ := args.Get(0).(*types.Receipt)
	return r, args.Error(1)
}

func transferLog(tokenID int64) *types.Log {
	to := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	return &types.Log{
		Address: testContract,
		Topics: []common.Hash{
			parsedABI.Events["Transfer"].ID,
			{},
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
	}
}

func TestMint_NilBinding(t *testing.T) {
	guard := new(MockGuard)
	g := NewGateway(guard, testContract)

	res, err := g.Mint(context.Background(), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNotConnected)
	guard.AssertNotCalled(t, "Ensure")
}

func TestMint_GuardFailure(t *testing.T) {
	guardErr := &network.MismatchError{Kind: network.SwitchFailed, Chain: "Sepolia"}
	guard := new(MockGuard)
	guard.On("Ensure").Return(network.Failed, guardErr)
	binding := new(MockBinding)

	_, err := NewGateway(guard, testContract).Mint(context.Background(), binding)
	assert.ErrorIs(t, err, network.ErrNetworkMismatch)
	assert.NotErrorIs(t, err, ErrMintFailed)
	binding.AssertNotCalled(t, "MintNFT")
}

func TestMint_SubmissionFailure(t *testing.T) {
	guard := new(MockGuard)
	guard.On("Ensure").Return(network.Correct, nil)
	binding := new(MockBinding)
	cause := errors.New("insufficient funds for gas")
	binding.On("MintNFT").Return(nil, cause)

	_, err := NewGateway(guard, testContract).Mint(context.Background(), binding)
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.ErrorIs(t, err, cause)
	binding.AssertNotCalled(t, "WaitMined", mock.Anything)
}

func TestMint_ConfirmationFailure(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 1})
	guard := new(MockGuard)
	guard.On("Ensure").Return(network.Correct, nil)
	binding := new(MockBinding)
	binding.On("MintNFT").Return(tx, nil)
	binding.On("WaitMined", tx).Return(nil, context.DeadlineExceeded)

	_, err := NewGateway(guard, testContract).Mint(context.Background(), binding)
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMint_Reverted(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 2})
	guard := new(MockGuard)
	guard.On("Ensure").Return(network.Correct, nil)
	binding := new(MockBinding)
	binding.On("MintNFT").Return(tx, nil)
	binding.On("WaitMined", tx).Return(&types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)}, nil)

	_, err := NewGateway(guard, testContract).Mint(context.Background(), binding)
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.Contains(t, err.Error(), "reverted")
}

func TestMint_Success(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 3})
	guard := new(MockGuard)
	guard.On("Ensure").Return(network.Correct, nil)
	binding := new(MockBinding)
	binding.On("MintNFT").Return(tx, nil)
	binding.On("WaitMined", tx).Return(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(42),
		GasUsed:     51000,
		Logs:        []*types.Log{transferLog(7)},
	}, nil)

	res, err := NewGateway(guard, testContract).Mint(context.Background(), binding)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), res.TxHash)
	assert.Equal(t, uint64(42), res.BlockNumber)
	assert.Equal(t, uint64(51000), res.GasUsed)
	assert.Equal(t, int64(7), res.TokenID.Int64())
	guard.AssertNumberOfCalls(t, "Ensure", 1)
}

func TestMintedTokenID(t *testing.T) {
	other := transferLog(9)
	other.Address = common.HexToAddress("0x01")

	receipt := &types.Receipt{Logs: []*types.Log{other, transferLog(12)}}
	assert.Equal(t, int64(12), MintedTokenID(receipt, testContract).Int64())
	assert.Nil(t, MintedTokenID(&types.Receipt{}, testContract))
}

// chainServer is a minimal JSON-RPC node that accepts one raw transaction and
// returns a successful receipt with a Transfer log for it.
type chainServer struct {
	mu      sync.Mutex
	sent    []string
	methods []string
}

func newChainServer(t *testing.T) (*chainServer, *httptest.Server) {
	t.Helper()
	cs := &chainServer{}
	server := httptest.NewServer(http.HandlerFunc(cs.serve))
	t.Cleanup(server.Close)
	return cs, server
}

func (cs *chainServer) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params []interface{}   `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.methods = append(cs.methods, req.Method)

	zeroHash := "0x" + strings.Repeat("00", 32)
	var result interface{}
	switch req.Method {
	case "eth_chainId":
		result = "0xaa36a7"
	case "eth_getTransactionCount":
		result = "0x0"
	case "eth_gasPrice":
		result = "0x3b9aca00"
	case "eth_estimateGas":
		result = "0x30000"
	case "eth_getCode":
		result = "0x6080604052"
	case "eth_call":
		result = "0x0000000000000000000000000000000000000000000000000000000000000002"
	case "eth_getBlockByNumber":
		result = map[string]interface{}{
			"number":           "0x1000",
			"hash":             "0x0000000000000000000000000000000000000000000000000000000000000001",
			"parentHash":       "0x0000000000000000000000000000000000000000000000000000000000000002",
			"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
			"timestamp":        "0x5f5e1000",
			"miner":            "0x0000000000000000000000000000000000000000",
			"gasLimit":         "0x1c9c380",
			"gasUsed":          "0x0",
			"difficulty":       "0x0",
			"extraData":        "0x",
			"mixHash":          zeroHash,
			"nonce":            "0x0000000000000000",
			"stateRoot":        zeroHash,
			"receiptsRoot":     zeroHash,
			"transactionsRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
			"logsBloom":        "0x" + strings.Repeat("00", 256),
		}
	case "eth_sendRawTransaction":
		raw, _ := req.Params[0].(string)
		cs.sent = append(cs.sent, raw)
		result = zeroHash
	case "eth_getTransactionReceipt":
		txHash, _ := req.Params[0].(string)
		result = map[string]interface{}{
			"type":              "0x0",
			"status":            "0x1",
			"cumulativeGasUsed": "0xc738",
			"gasUsed":           "0xc738",
			"effectiveGasPrice": "0x3b9aca00",
			"logsBloom":         "0x" + strings.Repeat("00", 256),
			"transactionHash":   txHash,
			"transactionIndex":  "0x0",
			"blockHash":         "0x0000000000000000000000000000000000000000000000000000000000000001",
			"blockNumber":       "0x1001",
			"contractAddress":   nil,
			"logs": []map[string]interface{}{{
				"address": testContract.Hex(),
				"topics": []string{
					parsedABI.Events["Transfer"].ID.Hex(),
					zeroHash,
					common.BytesToHash(common.HexToAddress("0xa1").Bytes()).Hex(),
					common.BigToHash(big.NewInt(5)).Hex(),
				},
				"data":             "0x",
				"blockNumber":      "0x1001",
				"blockHash":        "0x0000000000000000000000000000000000000000000000000000000000000001",
				"transactionHash":  txHash,
				"transactionIndex": "0x0",
				"logIndex":         "0x0",
				"removed":          false,
			}},
		}
	default:
		result = "0x0"
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func TestContract_MintAgainstNode(t *testing.T) {
	cs, server := newChainServer(t)
	client, err := ethclient.Dial(server.URL)
	require.NoError(t, err)
	defer client.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(11155111))
	require.NoError(t, err)

	c, err := NewContract(testContract, client, opts)
	require.NoError(t, err)
	assert.Equal(t, opts.From, c.Account())

	guard := new(MockGuard)
	guard.On("Ensure").Return(network.Correct, nil)

	res, err := NewGateway(guard, testContract).Mint(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1001), res.BlockNumber)
	assert.Equal(t, int64(5), res.TokenID.Int64())

	cs.mu.Lock()
	require.Len(t, cs.sent, 1)
	raw, err := hexutil.Decode(cs.sent[0])
	cs.mu.Unlock()
	require.NoError(t, err)

	var sent types.Transaction
	require.NoError(t, sent.UnmarshalBinary(raw))
	assert.Equal(t, testContract, *sent.To())
	assert.Equal(t, parsedABI.Methods["mintNFT"].ID, sent.Data()[:4])
	assert.Equal(t, res.TxHash, sent.Hash().Hex())

	balance, err := c.BalanceOf(context.Background(), opts.From)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance.Int64())
}

func TestNewContract_NoSigner(t *testing.T) {
	_, err := NewContract(testContract, nil, nil)
	assert.Error(t, err)
}
