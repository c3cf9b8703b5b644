package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// FileSigner signs with an RSA private key read from a PEM file. It backs
// local development where no KMS key is provisioned.
type FileSigner struct {
	privateKey *rsa.PrivateKey
}

func NewFileSigner(privateKeyPath string) (*FileSigner, error) {
	privBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &FileSigner{privateKey: privKey}, nil
}

// NewKeySigner wraps an already loaded key.
func NewKeySigner(key *rsa.PrivateKey) *FileSigner {
	return &FileSigner{privateKey: key}
}

func (s *FileSigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("rsa sign: %w", err)
	}
	return sig, nil
}

func (s *FileSigner) PublicKey(context.Context) (*rsa.PublicKey, error) {
	return &s.privateKey.PublicKey, nil
}
