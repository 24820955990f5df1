package escrow

import (
	"bytes"
	"encoding/hex"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"
)

const (
	digestBlake3    = "blake3:"
	digestKeccak256 = "keccak256:"
)

// AgreementDigest returns the canonical content digest recorded as an escrow's
// agreement hash.
func AgreementDigest(document []byte) string {
	sum := blake3.Sum256(document)
	return digestBlake3 + hex.EncodeToString(sum[:])
}

// MatchAgreement reports whether document hashes to the recorded digest.
// Digests without a recognised algorithm prefix never match.
func MatchAgreement(recorded string, document []byte) bool {
	recorded = strings.TrimSpace(recorded)
	var (
		want   []byte
		actual []byte
		err    error
	)
	switch {
	case strings.HasPrefix(recorded, digestBlake3):
		want, err = hex.DecodeString(strings.TrimPrefix(recorded, digestBlake3))
		sum := blake3.Sum256(document)
		actual = sum[:]
	case strings.HasPrefix(recorded, digestKeccak256):
		want, err = hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(recorded, digestKeccak256), "0x"))
		actual = ethcrypto.Keccak256(document)
	default:
		return false
	}
	if err != nil || len(want) != len(actual) {
		return false
	}
	return bytes.Equal(want, actual)
}
