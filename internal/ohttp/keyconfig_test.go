package ohttp

import (
	"encoding/base64"
	"testing"

	"github.com/cloudflare/circl/hpke"
	"github.com/stretchr/testify/require"
)

func TestNewStaticKeyFetcherFromBase64(t *testing.T) {
	kemID := hpke.KEM_X25519_HKDF_SHA256
	pub, priv, err := kemID.Scheme().GenerateKeyPair()
	require.NoError(t, err)

	pubBytes, err := pub.MarshalBinary()
	require.NoError(t, err)
	privBytes, err := priv.MarshalBinary()
	require.NoError(t, err)

	fetcher, err := NewStaticKeyFetcher(5, "X25519HKDFSHA256", "HKDFSHA256", "AES256GCM",
		base64.StdEncoding.EncodeToString(pubBytes), base64.StdEncoding.EncodeToString(privBytes))
	require.NoError(t, err)
	require.Equal(t, uint8(5), fetcher.KeyConfig().KeyID)
	require.Equal(t, pub, fetcher.PublicKey())
}

func TestNewStaticKeyFetcherRejectsBadBase64(t *testing.T) {
	_, err := NewStaticKeyFetcher(1, "X25519HKDFSHA256", "HKDFSHA256", "AES256GCM", "not-base64!!", "also-not")
	require.Error(t, err)
}
