package shardservice

import (
	"context"
	"testing"

	"github.com/bidscape/kvshard/internal/kvpb"
	"github.com/bidscape/kvshard/internal/kvstore"
	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/wire"
	"github.com/cloudflare/circl/hpke"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T) *ohttp.StaticKeyFetcher {
	t.Helper()
	kemID := hpke.KEM_X25519_HKDF_SHA256
	pub, priv, err := kemID.Scheme().GenerateKeyPair()
	require.NoError(t, err)

	return &ohttp.StaticKeyFetcher{
		Config: ohttp.KeyConfig{
			KeyID: 7,
			KEM:   kemID,
			KDF:   hpke.KDF_HKDF_SHA256,
			AEAD:  hpke.AEAD_AES256GCM,
		},
		Pub:  pub,
		Priv: priv,
	}
}

func TestSecureLookupResolvesLocalKeys(t *testing.T) {
	fetcher := newTestFetcher(t)
	store := kvstore.New()
	store.UpdateString("k1", "v1", 1)

	srv := New(store, fetcher, "", "", zap.NewNop())

	client := ohttp.NewClient(fetcher)
	req := wire.MarshalInternalLookupRequest(&model.InternalLookupRequest{Keys: []string{"k1"}})
	encrypted, err := client.EncryptRequest(req)
	require.NoError(t, err)

	resp, err := srv.SecureLookup(context.Background(), &kvpb.SecureLookupRequest{OHTTPRequest: encrypted})
	require.NoError(t, err)

	decrypted, err := client.DecryptResponse(resp.OHTTPResponse)
	require.NoError(t, err)

	result, err := wire.UnmarshalInternalLookupResponse(decrypted)
	require.NoError(t, err)
	require.True(t, result.KVPairs["k1"].HasValue)
	require.Equal(t, "v1", result.KVPairs["k1"].StringValue)
}

func TestSecureLookupResolvesPaddedRequest(t *testing.T) {
	fetcher := newTestFetcher(t)
	store := kvstore.New()
	store.UpdateString("k1", "v1", 1)

	srv := New(store, fetcher, "", "", zap.NewNop())

	client := ohttp.NewClient(fetcher)
	serialized := wire.MarshalInternalLookupRequest(&model.InternalLookupRequest{Keys: []string{"k1"}})
	padding := 16
	padded := wire.Pad(serialized, padding)
	encrypted, err := client.EncryptRequest(padded)
	require.NoError(t, err)

	resp, err := srv.SecureLookup(context.Background(), &kvpb.SecureLookupRequest{OHTTPRequest: encrypted, Padding: int32(padding)})
	require.NoError(t, err)

	decrypted, err := client.DecryptResponse(resp.OHTTPResponse)
	require.NoError(t, err)

	result, err := wire.UnmarshalInternalLookupResponse(decrypted)
	require.NoError(t, err)
	require.True(t, result.KVPairs["k1"].HasValue)
	require.Equal(t, "v1", result.KVPairs["k1"].StringValue)
}
