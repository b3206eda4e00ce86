package authtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const algES256 = "ES256"

// signingKey is the P-256 key ID tokens are signed with.
type signingKey struct {
	keyID   string
	private *ecdsa.PrivateKey
}

func newSigningKey() (*signingKey, error) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ES256 key: %w", err)
	}
	return &signingKey{keyID: uuid.NewString(), private: private}, nil
}

func (k *signingKey) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = k.keyID
	signed, err := token.SignedString(k.private)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

func (k *signingKey) jwks() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &k.private.PublicKey,
			KeyID:     k.keyID,
			Algorithm: algES256,
			Use:       "sig",
		}},
	}
}
