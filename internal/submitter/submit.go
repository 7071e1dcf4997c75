package submitter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/api3dao/airkeeper-go/internal/chain"
	"github.com/api3dao/airkeeper-go/internal/contracts"
	"github.com/api3dao/airkeeper-go/internal/model"
)

// pspFulfillGasLimit and rrpRequestGasLimit are spec.md §4.7's fixed gas
// limits for the two submission calls; neither call's gas usage varies
// meaningfully with its inputs, so estimation is skipped in favor of a
// fixed, generous budget.
const (
	pspFulfillGasLimit = uint64(500_000)
	rrpRequestGasLimit = uint64(500_000)
)

// Sender is the subset of ethclient.Client needed to broadcast a
// signed transaction.
type Sender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var int256Args = abi.Arguments{mustArg("int256")}

func mustArg(t string) abi.Argument {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("submitter: " + err.Error())
	}
	return abi.Argument{Type: typ}
}

// signPSPFulfillment implements spec.md §4.7 step 2's signature:
// keccak256(solidityPack(["bytes32","uint256","address"],
// [subscriptionId, timestamp, sponsorWallet])), signed by the airnode
// wallet under the Ethereum personal-message prefix.
func signPSPFulfillment(airnodeKey *ecdsa.PrivateKey, subscriptionID common.Hash, timestamp int64, sponsorWalletAddress common.Address) ([]byte, error) {
	packed := make([]byte, 0, 32+32+20)
	packed = append(packed, subscriptionID.Bytes()...)
	var timestampBytes [32]byte
	big.NewInt(timestamp).FillBytes(timestampBytes[:])
	packed = append(packed, timestampBytes[:]...)
	packed = append(packed, sponsorWalletAddress.Bytes()...)

	messageHash := crypto.Keccak256(packed)
	digest := accounts.TextHash(messageHash)

	signature, err := crypto.Sign(digest, airnodeKey)
	if err != nil {
		return nil, fmt.Errorf("submitter: sign PSP fulfillment: %w", err)
	}
	signature[64] += 27 // go-ethereum's crypto.Sign returns a 0/1 recovery id; the wire format wants 27/28
	return signature, nil
}

func buildAndSignTx(chainID *big.Int, signer *ecdsa.PrivateKey, to common.Address, nonce, gasLimit uint64, gasTarget chain.GasTarget, data []byte) (*types.Transaction, error) {
	var txData types.TxData
	switch gasTarget.TxType {
	case model.TxTypeEIP1559:
		txData = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: gasTarget.MaxPriorityFeePerGas,
			GasFeeCap: gasTarget.MaxFeePerGas,
			Gas:       gasLimit,
			To:        &to,
			Data:      data,
		}
	default:
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasTarget.GasPrice,
			Gas:      gasLimit,
			To:       &to,
			Data:     data,
		}
	}

	tx := types.NewTx(txData)
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), signer)
}

// SubmitPSP implements spec.md §4.7 steps 2: it signs the PSP
// fulfillment message with the airnode wallet, builds
// DapiServer.fulfillPspBeaconUpdate, and signs/sends the transaction
// with the sponsor wallet at the given nonce.
func SubmitPSP(ctx context.Context, sender Sender, chainID *big.Int, dapiServer common.Address, airnodeKey *ecdsa.PrivateKey, airnodeAddress common.Address, sponsorWallet *ecdsa.PrivateKey, sub PSPSubmission, gasTarget chain.GasTarget, nonce uint64, now int64) (common.Hash, error) {
	sponsorWalletAddress := crypto.PubkeyToAddress(sponsorWallet.PublicKey)

	signature, err := signPSPFulfillment(airnodeKey, sub.SubscriptionID, now, sponsorWalletAddress)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := int256Args.Pack(sub.APIValue)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitter: encode api value: %w", err)
	}

	calldata, err := contracts.DapiServerABI.Pack("fulfillPspBeaconUpdate",
		sub.SubscriptionID, airnodeAddress, sub.Relayer, sub.Sponsor, big.NewInt(now), data, signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitter: pack fulfillPspBeaconUpdate: %w", err)
	}

	tx, err := buildAndSignTx(chainID, sponsorWallet, dapiServer, nonce, pspFulfillGasLimit, gasTarget, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitter: sign PSP transaction: %w", err)
	}

	if err := sender.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("submitter: send PSP transaction: %w", err)
	}
	return tx.Hash(), nil
}

// PSPSubmission is the data SubmitPSP needs about one subscription,
// kept narrow and separate from model.Subscription so this package
// doesn't need to know how a subscription was resolved.
type PSPSubmission struct {
	SubscriptionID common.Hash
	Relayer        common.Address
	Sponsor        common.Address
	APIValue       *big.Int
}

// NewSubmissionPSP constructs a PSPSubmission from its constituent fields.
func NewSubmissionPSP(subscriptionID common.Hash, relayer, sponsor common.Address, apiValue *big.Int) PSPSubmission {
	return PSPSubmission{SubscriptionID: subscriptionID, Relayer: relayer, Sponsor: sponsor, APIValue: apiValue}
}

// SubmitRRP implements spec.md §4.7 step 3:
// RrpBeaconServer.requestBeaconUpdate, signed by the keeper sponsor
// wallet at the given nonce.
func SubmitRRP(ctx context.Context, sender Sender, chainID *big.Int, rrpBeaconServer common.Address, keeperSponsorWallet *ecdsa.PrivateKey, templateID common.Hash, requestSponsor, requestSponsorWallet common.Address, encodedParameters []byte, gasTarget chain.GasTarget, nonce uint64) (common.Hash, error) {
	calldata, err := contracts.RrpBeaconServerABI.Pack("requestBeaconUpdate", templateID, requestSponsor, requestSponsorWallet, encodedParameters)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitter: pack requestBeaconUpdate: %w", err)
	}

	tx, err := buildAndSignTx(chainID, keeperSponsorWallet, rrpBeaconServer, nonce, rrpRequestGasLimit, gasTarget, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitter: sign RRP transaction: %w", err)
	}

	if err := sender.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("submitter: send RRP transaction: %w", err)
	}
	return tx.Hash(), nil
}
