// Package wallet derives sponsor and airnode wallets deterministically
// from a mnemonic, per spec.md §6. The derivation path must be
// byte-identical to the Airnode reference implementation so that the
// same (mnemonic, sponsor, protocolId) always yields the same wallet.
package wallet

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Protocol-id constants used in the sponsor-wallet derivation path
// (spec.md §6, §9). Kept as distinct named constants and never unified:
// the on-chain expectation differs per operating mode.
const (
	ProtocolIDAirnode    = "1"     // airnode wallet itself
	ProtocolIDPSP        = "2"     // PSP sponsor wallets
	ProtocolIDLegacyPSP  = "3"     // older PSP convention, kept for compatibility
	ProtocolIDRRPKeeper  = "12345" // RRP keeper-sponsor convention
)

const (
	purposeIndex  = 44 + hdkeychain.HardenedKeyStart
	coinTypeIndex = 60 + hdkeychain.HardenedKeyStart
	accountIndex  = 0 + hdkeychain.HardenedKeyStart
)

// addressPathSegments splits a 20-byte address into six 31-bit unsigned
// groups used as the final six non-hardened path components (spec.md
// §6; resolved per DESIGN.md's "Open Question resolutions" #3):
// group[i] = (addressInt >> (31*i)) & 0x7FFFFFFF, for i = 0..5.
func addressPathSegments(addr common.Address) [6]uint32 {
	addrInt := new(big.Int).SetBytes(addr.Bytes())
	mask := big.NewInt(0x7FFFFFFF)
	var segments [6]uint32
	tmp := new(big.Int)
	for i := 0; i < 6; i++ {
		tmp.Rsh(addrInt, uint(31*i))
		tmp.And(tmp, mask)
		segments[i] = uint32(tmp.Uint64())
	}
	return segments
}

// Derive returns the secp256k1 key pair for (mnemonic, sponsor, protocolId)
// along the path m/44'/60'/0'/<protocolId>/<a>/<b>/<c>/<d>/<e>/<f>.
func Derive(mnemonic string, sponsor common.Address, protocolID string) (*ecdsa.PrivateKey, error) {
	seed := bip39.NewSeed(mnemonic, "")

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	key := master
	for _, idx := range derivationIndices(protocolID, sponsor) {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, err
		}
	}

	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(ecPriv.Serialize())
}

// derivationIndices builds the full list of BIP-32 child indices for
// m/44'/60'/0'/<protocolId>/<a>/<b>/<c>/<d>/<e>/<f>. The protocolId
// segment itself is a plain (non-hardened) index, matching the
// reference: protocol ids in use ("1", "2", "3", "12345") are all well
// below the hardened threshold 2^31.
func derivationIndices(protocolID string, sponsor common.Address) []uint32 {
	protocolIDInt := new(big.Int)
	protocolIDInt.SetString(protocolID, 10)

	indices := []uint32{purposeIndex, coinTypeIndex, accountIndex, uint32(protocolIDInt.Uint64())}
	segments := addressPathSegments(sponsor)
	indices = append(indices, segments[:]...)
	return indices
}

// Address derives only the wallet's address, without exposing the key.
func Address(mnemonic string, sponsor common.Address, protocolID string) (common.Address, error) {
	priv, err := Derive(mnemonic, sponsor, protocolID)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// AirnodeKey derives the private key at m/44'/60'/0'/0/0 from the
// mnemonic, the fixed path used to identify the airnode itself
// (spec.md §4.1, GLOSSARY). This is the key that signs PSP fulfillment
// messages (spec.md §4.7 step 2) -- distinct from any sponsor wallet.
func AirnodeKey(mnemonic string) (*ecdsa.PrivateKey, error) {
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	key := master
	for _, idx := range []uint32{purposeIndex, coinTypeIndex, accountIndex, 0, 0} {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, err
		}
	}
	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(ecPriv.Serialize())
}

// AirnodeAddress derives only the airnode's address, without exposing
// the key.
func AirnodeAddress(mnemonic string) (common.Address, error) {
	priv, err := AirnodeKey(mnemonic)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}
