package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"time"
)

// Issuer and audience of providers returned by NewTestTokenProvider.
const (
	TestIssuer   = "canvas-test"
	TestAudience = "canvas-test-api"
)

var (
	testKeyOnce sync.Once
	testPrivPEM string
	testPubPEM  string
	testKeyErr  error
)

// TestKeyPEM returns a process-wide P-256 key pair as PEM, generated on first use.
// For unit tests in this and dependent packages only.
func TestKeyPEM() (privatePEM, publicPEM string, err error) {
	testKeyOnce.Do(func() {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			testKeyErr = err
			return
		}
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			testKeyErr = err
			return
		}
		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			testKeyErr = err
			return
		}
		testPrivPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
		testPubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	})
	return testPrivPEM, testPubPEM, testKeyErr
}

// NewTestTokenProvider returns an ES256 signing TokenProvider over TestKeyPEM with a 15 minute TTL.
func NewTestTokenProvider() (*TokenProvider, error) {
	priv, pub, err := TestKeyPEM()
	if err != nil {
		return nil, err
	}
	return NewTokenProviderFromPEM(priv, pub, TestIssuer, TestAudience, 15*time.Minute)
}
