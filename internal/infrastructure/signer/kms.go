package signer

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/go-wallet-auth/internal/config"
	"github.com/go-wallet-auth/internal/infrastructure/awsclient"
)

// kmsAPI is the subset of the KMS client the signer calls. Decrypt and key
// export are deliberately absent.
type kmsAPI interface {
	Sign(ctx context.Context, in *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, in *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSSigner signs with an asymmetric RSA key held in AWS KMS.
type KMSSigner struct {
	client kmsAPI
	keyID  string
}

func NewKMSClient(ctx context.Context, cfg *config.Config) (*kms.Client, error) {
	awsCfg, err := awsclient.Load(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	return kms.NewFromConfig(awsCfg, func(o *kms.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(cfg)
	}), nil
}

func NewKMSSigner(client kmsAPI, keyID string) *KMSSigner {
	return &KMSSigner{client: client, keyID: keyID}
}

// Sign sends the SHA-256 digest of message to KMS for RSASSA_PSS_SHA_256.
func (s *KMSSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPssSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("kms sign: %w", err)
	}
	return out.Signature, nil
}

// PublicKey downloads and parses the DER-encoded public half of the key.
func (s *KMSSigner) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(s.keyID)})
	if err != nil {
		return nil, fmt.Errorf("kms get public key: %w", err)
	}
	return parseRSAPublicKey(out.PublicKey)
}

func parseRSAPublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", pub)
	}
	return rsaPub, nil
}
