package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs/arcpay/internal/identity"
)

const (
	testKey      = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testRPC      = "https://sepolia.base.org"
	testContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

var seller = identity.MustParse("0x2222222222222222222222222222222222222222")

// fakeClient is a scriptable EthClient.
type fakeClient struct {
	nonce       uint64
	nonceErr    error
	gasPrice    *big.Int
	sendErr     error
	sentTx      *types.Transaction
	callResult  []byte
	callErr     error
	receipt     *types.Receipt
	receiptErr  error
	estimateGas uint64
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, f.nonceErr
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return f.gasPrice, nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if f.estimateGas == 0 {
		return 0, errors.New("estimation unavailable")
	}
	return f.estimateGas, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sentTx = tx
	return f.sendErr
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callResult, f.callErr
}

func (f *fakeClient) Close() {}

func newTestWallet(t *testing.T, client EthClient) *Wallet {
	t.Helper()
	w, err := New(Config{
		RPCURL:       testRPC,
		PrivateKey:   testKey,
		ChainID:      84532,
		USDCContract: testContract,
	}, WithClient(client))
	require.NoError(t, err)
	return w
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New(Config{
		RPCURL:       testRPC,
		PrivateKey:   "zz23456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		ChainID:      84532,
		USDCContract: testContract,
	}, WithClient(&fakeClient{}))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestAddress_DerivedFromKey(t *testing.T) {
	w := newTestWallet(t, &fakeClient{})

	addr := w.Address()
	assert.False(t, addr.IsZero())
	assert.Equal(t, w.address, addr.Common())
}

func TestTransfer_Submits(t *testing.T) {
	client := &fakeClient{nonce: 7}
	w := newTestWallet(t, client)

	result, err := w.Transfer(context.Background(), seller, big.NewInt(1_500_000))
	require.NoError(t, err)

	assert.NotEmpty(t, result.TxHash)
	assert.Equal(t, seller.String(), result.To)
	assert.Equal(t, "1.500000", result.Amount)
	assert.Equal(t, uint64(7), result.Nonce)
	require.NotNil(t, client.sentTx)
	assert.Equal(t, w.usdcContract, *client.sentTx.To())
	// Gas estimation failed, so the default limit applies.
	assert.Equal(t, DefaultGasLimit, client.sentTx.Gas())
}

func TestTransfer_RejectsBadAmounts(t *testing.T) {
	w := newTestWallet(t, &fakeClient{})

	_, err := w.Transfer(context.Background(), seller, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = w.Transfer(context.Background(), seller, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransfer_SendFailure(t *testing.T) {
	client := &fakeClient{sendErr: errors.New("rpc unreachable")}
	w := newTestWallet(t, client)

	_, err := w.Transfer(context.Background(), seller, big.NewInt(1_000_000))
	require.Error(t, err)

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "send", te.Op)
	assert.NotEmpty(t, te.TxHash)
}

func TestTransfer_NonceFailure(t *testing.T) {
	client := &fakeClient{nonceErr: errors.New("backend down")}
	w := newTestWallet(t, client)

	_, err := w.Transfer(context.Background(), seller, big.NewInt(1_000_000))

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "nonce", te.Op)
}

func TestExecuteTransfer_NoConfirmation(t *testing.T) {
	client := &fakeClient{}
	w := newTestWallet(t, client)

	err := w.ExecuteTransfer(context.Background(), seller, big.NewInt(2_000_000))
	require.NoError(t, err)
	require.NotNil(t, client.sentTx)
}

func TestBalanceOf(t *testing.T) {
	balance := big.NewInt(42_000_000)
	client := &fakeClient{callResult: common.LeftPadBytes(balance.Bytes(), 32)}
	w := newTestWallet(t, client)

	got, err := w.BalanceOf(context.Background(), seller)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Cmp(got))

	formatted, err := w.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42.000000", formatted)
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func TestVerifyEscrowDeposit(t *testing.T) {
	buyer := identity.MustParse("0x1111111111111111111111111111111111111111")
	client := &fakeClient{}
	w := newTestWallet(t, client)

	transferLog := &types.Log{
		Address: w.usdcContract,
		Topics: []common.Hash{
			{}, // event signature, unchecked
			addressTopic(buyer.Common()),
			addressTopic(w.address),
		},
		Data: common.LeftPadBytes(big.NewInt(5_000_000).Bytes(), 32),
	}
	client.receipt = &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{transferLog},
	}

	ok, err := w.VerifyEscrowDeposit(context.Background(), buyer, "5.000000", "0xdeadbeef")
	require.NoError(t, err)
	assert.True(t, ok)

	// Amount below the minimum fails.
	ok, err = w.VerifyEscrowDeposit(context.Background(), buyer, "6.000000", "0xdeadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	// Wrong sender fails.
	ok, err = w.VerifyEscrowDeposit(context.Background(), seller, "5.000000", "0xdeadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	// Reverted transaction fails.
	client.receipt.Status = types.ReceiptStatusFailed
	ok, err = w.VerifyEscrowDeposit(context.Background(), buyer, "5.000000", "0xdeadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyEscrowDeposit_BadAmount(t *testing.T) {
	w := newTestWallet(t, &fakeClient{})

	_, err := w.VerifyEscrowDeposit(context.Background(), seller, "not-money", "0xabc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransferError(t *testing.T) {
	tests := []struct {
		name     string
		err      *TransferError
		contains string
	}{
		{
			name: "with tx hash",
			err: &TransferError{
				Op:     "send",
				TxHash: "0xabc123",
				Err:    errors.New("network error"),
			},
			contains: "0xabc123",
		},
		{
			name: "without tx hash",
			err: &TransferError{
				Op:  "nonce",
				Err: errors.New("failed to get nonce"),
			},
			contains: "nonce failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.True(t, errors.Is(tt.err, tt.err.Err))
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				RPCURL:       testRPC,
				PrivateKey:   testKey,
				ChainID:      84532,
				USDCContract: testContract,
			},
			wantErr: false,
		},
		{
			name: "valid config with 0x prefix",
			cfg: Config{
				RPCURL:       testRPC,
				PrivateKey:   "0x" + testKey,
				ChainID:      84532,
				USDCContract: testContract,
			},
			wantErr: false,
		},
		{
			name: "missing RPC URL",
			cfg: Config{
				PrivateKey:   testKey,
				ChainID:      84532,
				USDCContract: testContract,
			},
			wantErr: true,
		},
		{
			name: "missing private key",
			cfg: Config{
				RPCURL:       testRPC,
				ChainID:      84532,
				USDCContract: testContract,
			},
			wantErr: true,
		},
		{
			name: "invalid private key length",
			cfg: Config{
				RPCURL:       testRPC,
				PrivateKey:   "tooshort",
				ChainID:      84532,
				USDCContract: testContract,
			},
			wantErr: true,
		},
		{
			name: "missing chain ID",
			cfg: Config{
				RPCURL:       testRPC,
				PrivateKey:   testKey,
				USDCContract: testContract,
			},
			wantErr: true,
		},
		{
			name: "missing contract",
			cfg: Config{
				RPCURL:     testRPC,
				PrivateKey: testKey,
				ChainID:    84532,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
