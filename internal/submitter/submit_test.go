package submitter_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/api3dao/airkeeper-go/internal/chain"
	"github.com/api3dao/airkeeper-go/internal/model"
	"github.com/api3dao/airkeeper-go/internal/submitter"
)

type capturingSender struct {
	sentTx *types.Transaction
}

func (s *capturingSender) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.sentTx = tx
	return nil
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestSubmitPSPSendsEIP1559Transaction(t *testing.T) {
	airnodeKey := mustKey(t)
	sponsorWallet := mustKey(t)
	sender := &capturingSender{}

	gasTarget := chain.GasTarget{
		TxType:               model.TxTypeEIP1559,
		MaxFeePerGas:         big.NewInt(21_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}

	sub := submitter.PSPSubmission{
		SubscriptionID: common.HexToHash("0x1"),
		Relayer:        common.HexToAddress("0x2"),
		Sponsor:        common.HexToAddress("0x3"),
		APIValue:       big.NewInt(12345),
	}

	hash, err := submitter.SubmitPSP(context.Background(), sender, big.NewInt(1), common.HexToAddress("0xd1"),
		airnodeKey, common.HexToAddress("0xa1"), sponsorWallet, sub, gasTarget, 7, 1_700_000_000)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.NotNil(t, sender.sentTx)
	require.Equal(t, uint64(7), sender.sentTx.Nonce())
	require.Equal(t, uint8(types.DynamicFeeTxType), sender.sentTx.Type())
}

func TestSubmitRRPSendsLegacyTransaction(t *testing.T) {
	keeperWallet := mustKey(t)
	sender := &capturingSender{}

	gasTarget := chain.GasTarget{TxType: model.TxTypeLegacy, GasPrice: big.NewInt(10_000_000_000)}

	hash, err := submitter.SubmitRRP(context.Background(), sender, big.NewInt(1), common.HexToAddress("0xb1"),
		keeperWallet, common.HexToHash("0xaa"), common.HexToAddress("0x4"), common.HexToAddress("0x5"), []byte{0x01}, gasTarget, 3)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.Equal(t, uint64(3), sender.sentTx.Nonce())
	require.Equal(t, uint8(types.LegacyTxType), sender.sentTx.Type())
}
