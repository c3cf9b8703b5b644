// Package signature recovers the wallet that produced an Ethereum personal
// message signature (EIP-191) and compares it with a claimed address.
package signature

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

const (
	signatureLen = 65
	addressLen   = 20
)

var errMalformed = errors.New("malformed signature")

// Verifier checks personal_sign signatures. It performs no I/O.
type Verifier struct{}

func NewVerifier() *Verifier { return &Verifier{} }

// Verify reports whether signature over message was produced by walletID.
// Mismatches are logged for audit and reported as false, never as an error.
func (v *Verifier) Verify(ctx context.Context, walletID, message, signature string) bool {
	recovered, err := RecoverAddress(message, signature)
	if err != nil || !strings.EqualFold(recovered, walletID) {
		slog.WarnContext(ctx, "signature mismatch",
			"address", walletID, "recovered", recovered,
			"message", message, "signature", signature, "err", err)
		return false
	}
	return true
}

// HashMessage returns keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func HashMessage(message string) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	return keccak256([]byte(prefix), []byte(message))
}

// RecoverAddress returns the lower-cased 0x address that signed message.
// signature is the 65-byte r||s||v value, hex encoded with or without 0x;
// v may be 0/1 or 27/28.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != signatureLen {
		return "", errMalformed
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 3 {
		return "", fmt.Errorf("recovery id %d: %w", sig[64], errMalformed)
	}
	// decred expects the recovery byte first: 27 + id for uncompressed keys.
	compact := make([]byte, 0, signatureLen)
	compact = append(compact, 27+v)
	compact = append(compact, sig[:64]...)

	pub, _, err := ecdsa.RecoverCompact(compact, HashMessage(message))
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return PublicKeyToAddress(pub), nil
}

// PublicKeyToAddress derives the lower-cased 0x address of pub.
func PublicKeyToAddress(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()[1:]
	h := keccak256(raw)
	return "0x" + hex.EncodeToString(h[len(h)-addressLen:])
}

// SignMessage produces a personal_sign signature (v = 27/28), the same shape
// wallets return. Used by tooling and tests.
func SignMessage(key *secp256k1.PrivateKey, message string) string {
	compact := ecdsa.SignCompact(key, HashMessage(message), false)
	sig := make([]byte, signatureLen)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

// IsHexAddress reports whether s is 0x followed by 40 hex digits.
func IsHexAddress(s string) bool {
	if len(s) != 2+2*addressLen || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// Normalize returns the canonical lower-case form used as walletId.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
