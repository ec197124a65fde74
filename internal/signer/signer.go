package signer

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	myErrors "github.com/KStasi/pixel-map/internal/errors"
)

// Signer produces the engine's counter-signature over a canonical payload.
type Signer interface {
	Sign(payload []byte) (string, error)
	Address() string
}

// Verifier checks that a signature over a canonical payload was produced by
// the wallet behind the given account address.
type Verifier interface {
	Verify(payload []byte, signature, address string) error
}

// EOASigner signs with a secp256k1 key the way browser wallets do: compact
// recoverable signature over the keccak-256 digest of the payload.
type EOASigner struct {
	key  *secp256k1.PrivateKey
	addr string
}

func NewEOASigner(privateKeyHex string) (*EOASigner, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("cannot decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	key := secp256k1.PrivKeyFromBytes(raw)
	return &EOASigner{key: key, addr: PubKeyAddress(key.PubKey())}, nil
}

func (s *EOASigner) Sign(payload []byte) (string, error) {
	sig := secpecdsa.SignCompact(s.key, digest(payload), false)
	return "0x" + hex.EncodeToString(sig), nil
}

func (s *EOASigner) Address() string {
	return s.addr
}

// RecoverVerifier recovers the signing address from a compact signature and
// compares it to the claimed participant address.
type RecoverVerifier struct{}

func (RecoverVerifier) Verify(payload []byte, signature, address string) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return fmt.Errorf("%w: not hex encoded", myErrors.ErrInvalidSignature)
	}
	pub, _, err := secpecdsa.RecoverCompact(raw, digest(payload))
	if err != nil {
		return fmt.Errorf("%w: %s", myErrors.ErrInvalidSignature, err)
	}
	if !strings.EqualFold(PubKeyAddress(pub), address) {
		return fmt.Errorf("%w: signer does not match participant", myErrors.ErrInvalidSignature)
	}
	return nil
}

// PubKeyAddress derives the 0x account address: last 20 bytes of the
// keccak-256 digest of the uncompressed public key.
func PubKeyAddress(pub *secp256k1.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

func digest(payload []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return h.Sum(nil)
}
