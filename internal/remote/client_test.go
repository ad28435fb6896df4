package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	kverrors "github.com/bidscape/kvshard/internal/errors"
	"github.com/bidscape/kvshard/internal/kvpb"
	"github.com/bidscape/kvshard/internal/kvstore"
	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/shardservice"
	"github.com/bidscape/kvshard/internal/wire"
	"github.com/cloudflare/circl/hpke"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type fakeSecureLookupServer struct {
	fetcher  ohttp.KeyFetcher
	response *model.InternalLookupResponse
	fail     bool
}

func (s *fakeSecureLookupServer) SecureLookup(ctx context.Context, req *kvpb.SecureLookupRequest) (*kvpb.SecureLookupResponse, error) {
	if s.fail {
		return nil, errors.New("synthetic rpc failure")
	}

	server := ohttp.NewServer(s.fetcher)
	if _, err := server.DecryptRequest(req.OHTTPRequest); err != nil {
		return nil, err
	}

	encoded := wire.MarshalInternalLookupResponse(s.response)
	encResp, err := server.EncryptResponse(encoded)
	if err != nil {
		return nil, err
	}
	return &kvpb.SecureLookupResponse{OHTTPResponse: encResp}, nil
}

func newTestFetcher(t *testing.T) *ohttp.StaticKeyFetcher {
	t.Helper()
	kemID := hpke.KEM_X25519_HKDF_SHA256
	pub, priv, err := kemID.Scheme().GenerateKeyPair()
	require.NoError(t, err)

	return &ohttp.StaticKeyFetcher{
		Config: ohttp.KeyConfig{
			KeyID: 3,
			KEM:   kemID,
			KDF:   hpke.KDF_HKDF_SHA256,
			AEAD:  hpke.AEAD_AES256GCM,
		},
		Pub:  pub,
		Priv: priv,
	}
}

func startFakeServer(t *testing.T, srv *fakeSecureLookupServer) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	kvpb.RegisterInternalLookupServiceServer(s, srv)

	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)
	return lis
}

func TestGetValuesRoundTrip(t *testing.T) {
	fetcher := newTestFetcher(t)
	expected := &model.InternalLookupResponse{
		KVPairs: map[string]model.SingleLookupResult{
			"key1": model.StringResult("value1"),
		},
	}
	lis := startFakeServer(t, &fakeSecureLookupServer{fetcher: fetcher, response: expected})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	client := NewRemoteLookupClient("passthrough:///bufnet", time.Second, fetcher, "", "", zap.NewNop(), dialer)

	got, err := client.GetValues(context.Background(), []byte("serialized"), 4)
	require.NoError(t, err)
	require.Equal(t, "value1", got.KVPairs["key1"].StringValue)
}

// TestGetValuesPaddedRoundTripAgainstRealServer drives padding > 0 through
// the real remote.Client and a real shardservice.Server peer (not the bare
// decrypt-only fake above), so a regression that forgets to carry or strip
// the out-of-band padding length fails this test with a deserialization
// error instead of slipping past a fake that never unmarshals the request.
func TestGetValuesPaddedRoundTripAgainstRealServer(t *testing.T) {
	fetcher := newTestFetcher(t)
	store := kvstore.New()
	store.UpdateString("key1", "value1", 1)

	srv := shardservice.New(store, fetcher, "", "", zap.NewNop())

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	kvpb.RegisterInternalLookupServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	client := NewRemoteLookupClient("passthrough:///bufnet", time.Second, fetcher, "", "", zap.NewNop(), dialer)

	serialized := wire.MarshalInternalLookupRequest(&model.InternalLookupRequest{Keys: []string{"key1"}})
	padding := 32

	got, err := client.GetValues(context.Background(), serialized, padding)
	require.NoError(t, err)
	require.True(t, got.KVPairs["key1"].HasValue)
	require.Equal(t, "value1", got.KVPairs["key1"].StringValue)
}

func TestGetValuesRPCFailureMapsToShardFailure(t *testing.T) {
	fetcher := newTestFetcher(t)
	lis := startFakeServer(t, &fakeSecureLookupServer{fetcher: fetcher, fail: true})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	client := NewRemoteLookupClient("passthrough:///bufnet", time.Second, fetcher, "", "", zap.NewNop(), dialer)

	_, err := client.GetValues(context.Background(), []byte("serialized"), 0)
	require.Error(t, err)
	require.Equal(t, kverrors.ErrCodeShardFailure, kverrors.Code(err))
}
