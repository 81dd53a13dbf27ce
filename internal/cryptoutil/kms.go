package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/xerrors"
)

// Verifier checks a detached signature over message.
type Verifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

// KeyFetcher is the slice of the KMS API the verifier uses.
type KeyFetcher interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSVerifier fetches an asymmetric KMS public key once and verifies
// signatures locally. RSA keys are checked with PSS only.
type KMSVerifier struct {
	client KeyFetcher
	keyARN string

	mu     sync.Mutex
	pubKey crypto.PublicKey
}

func NewKMSVerifier(client KeyFetcher, keyARN string) *KMSVerifier {
	return &KMSVerifier{client: client, keyARN: keyARN}
}

func (v *KMSVerifier) KeyARN() string { return v.keyARN }

// PublicKey returns the cached key, fetching it on first use. A failed fetch
// is not cached.
func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pubKey != nil {
		return v.pubKey, nil
	}
	if v.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := v.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(v.keyARN)})
	if err != nil {
		return nil, xerrors.Wrapf(err, "kms get public key %s", v.keyARN)
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has usage %s, want SIGN_VERIFY", v.keyARN, out.KeyUsage)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key")
	}
	v.pubKey = pub
	return pub, nil
}

// VerifySignature hashes message with SHA-384 for P-384 keys and SHA-256
// otherwise.
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}
	return verify(pub, message, signature)
}

func verify(pub crypto.PublicKey, message, signature []byte) error {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		var digest []byte
		switch key.Curve {
		case elliptic.P256():
			d := sha256.Sum256(message)
			digest = d[:]
		case elliptic.P384():
			d := sha512.Sum384(message)
			digest = d[:]
		default:
			return xerrors.Newf("unsupported ecdsa curve %s", key.Curve.Params().Name)
		}
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return xerrors.Newf("ecdsa %s signature mismatch", key.Curve.Params().Name)
		}
		return nil
	case *rsa.PublicKey:
		d := sha256.Sum256(message)
		if err := rsa.VerifyPSS(key, crypto.SHA256, d[:], signature, nil); err != nil {
			return xerrors.Wrap(err, "rsa-pss signature mismatch")
		}
		return nil
	default:
		return xerrors.Newf("unsupported public key type %T", pub)
	}
}
