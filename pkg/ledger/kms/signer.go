// Package kms implements pkg/ledger.Signer against AWS KMS, using an
// asymmetric RSA-PSS-2048-SHA-256 key (spec.md §4.8). There is no
// pack-example precedent for a KMS signer specifically; this follows
// the same narrowed-client-interface seam pkg/devicemanager uses for
// its S3 exporter (S3PutObjectClient), applied to the KMS SDK's Sign
// and Verify calls.
package kms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// Client is the subset of *kms.Client this signer needs, narrowed for
// testability.
type Client interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	Verify(ctx context.Context, params *kms.VerifyInput, optFns ...func(*kms.Options)) (*kms.VerifyOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// Signer signs and verifies ledger event hashes with an AWS KMS
// asymmetric key. KeyID is the key ARN or alias; Sign returns it as the
// value the caller records as signing_key_id.
type Signer struct {
	Client Client
	KeyID  string
}

// Sign asks KMS to sign eventHash directly, using DIGEST message type
// since the caller has already computed the SHA-256 digest (spec.md:
// "signs event_hash using an external KMS").
func (s *Signer) Sign(ctx context.Context, eventHash [32]byte) ([]byte, string, error) {
	out, err := s.Client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.KeyID),
		Message:          eventHash[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPssSha256,
	})
	if err != nil {
		return nil, "", fmt.Errorf("kms: sign: %w", err)
	}
	return out.Signature, s.KeyID, nil
}

// Verify asks KMS to verify signature against eventHash under keyID.
func (s *Signer) Verify(ctx context.Context, eventHash [32]byte, signature []byte, keyID string) error {
	out, err := s.Client.Verify(ctx, &kms.VerifyInput{
		KeyId:            aws.String(keyID),
		Message:          eventHash[:],
		MessageType:      types.MessageTypeDigest,
		Signature:        signature,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPssSha256,
	})
	if err != nil {
		return fmt.Errorf("kms: verify call: %w", err)
	}
	if !out.SignatureValid {
		return fmt.Errorf("kms: signature invalid for key %s", keyID)
	}
	return nil
}
