package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when key material is missing, not PEM, or of an unsupported type.
var ErrInvalidKey = errors.New("invalid key")

// ReadKeyMaterial returns PEM bytes for s, which is either inline PEM or a file path
// (RKS_PRIVATE_KEY_PATH usually holds a path). Inline PEM copied into env files often
// carries literal \n sequences; those are expanded.
func ReadKeyMaterial(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	b, err := os.ReadFile(s)
	if err != nil {
		return nil, fmt.Errorf("security: read key file: %w", err)
	}
	return b, nil
}

func decodePEM(s string) (*pem.Block, error) {
	b, err := ReadKeyMaterial(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	return block, nil
}

// ParsePrivateKey parses the service account's signing key: PKCS#1 or PKCS#8 RSA, or an ECDSA key.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	var signer crypto.Signer
	switch block.Type {
	case "RSA PRIVATE KEY":
		signer, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		signer, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var key any
		if key, err = x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			var ok bool
			if signer, ok = key.(crypto.Signer); !ok {
				err = fmt.Errorf("%w: PKCS#8 key %T cannot sign", ErrInvalidKey, key)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, err
	}
	if _, err := SigningMethod(signer.Public()); err != nil {
		return nil, err
	}
	return signer, nil
}

// ParsePublicKey parses a PEM public key (PKCS#1 RSA or PKIX) used to check assertions.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKey, block.Type)
	}
}

// SigningMethod picks the JWT algorithm for a key: RS256 for RSA, ES256 for ECDSA P-256.
func SigningMethod(pub crypto.PublicKey) (jwt.SigningMethod, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ES256 needs a P-256 key, got %s", ErrInvalidKey, k.Curve.Params().Name)
		}
		return jwt.SigningMethodES256, nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, pub)
	}
}
