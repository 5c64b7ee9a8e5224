package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Receipt(uint256 bondId,address holder,uint256 units,uint256 payout,uint256 redeemedAt)
	receiptTypeHash = ethcrypto.Keccak256(
		[]byte("Receipt(uint256 bondId,address holder,uint256 units,uint256 payout,uint256 redeemedAt)"),
	)
)

// Receipt is the signed attestation handed to an investor after a
// redemption settles: which bond, how many units were retired, and the
// native amount paid out. The signature lets the holder prove the payout to
// a third party without trusting the API.
type Receipt struct {
	BondID     int64          `json:"bond_id"`
	Holder     common.Address `json:"holder"`
	Units      int64          `json:"units"`
	Payout     int64          `json:"payout"`
	RedeemedAt int64          `json:"redeemed_at"` // unix seconds
}

// Signer produces EIP-712 signatures over settlement receipts using the
// engine operator's key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID used in the signing domain.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = buildDomainSeparator("BondLedger", "1", chainID)
	return s, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignReceipt signs a settlement receipt. The returned string is a
// hex-encoded signature with recovery byte (65 bytes total).
func (s *Signer) SignReceipt(r Receipt) (string, error) {
	digest := eip712Hash(s.domainSep, receiptStructHash(r))
	return s.signDigest(digest)
}

// RecoverReceiptSigner returns the address that signed the given receipt.
// Verification recomputes the digest from the receipt fields, so a tampered
// receipt recovers a different address.
func RecoverReceiptSigner(r Receipt, sigHex string, chainID int) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature length %d, want 65", len(sig))
	}

	// go-ethereum expects v in {0,1}.
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}

	domainSep := buildDomainSeparator("BondLedger", "1", chainID)
	digest := eip712Hash(domainSep, receiptStructHash(r))

	pub, err := ethcrypto.SigToPub(digest, cp)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// receiptStructHash encodes and hashes a Receipt according to EIP-712.
func receiptStructHash(r Receipt) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			receiptTypeHash,
			bigIntTo32Bytes(big.NewInt(r.BondID)),
			common.LeftPadBytes(r.Holder.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(r.Units)),
			bigIntTo32Bytes(big.NewInt(r.Payout)),
			bigIntTo32Bytes(big.NewInt(r.RedeemedAt)),
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
