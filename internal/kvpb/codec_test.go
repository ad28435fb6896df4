package kvpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecureLookupRequestRoundTrip(t *testing.T) {
	req := &SecureLookupRequest{OHTTPRequest: []byte{1, 2, 3, 4}}

	data, err := req.Marshal()
	require.NoError(t, err)

	got := &SecureLookupRequest{}
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, req.OHTTPRequest, got.OHTTPRequest)
}

func TestSecureLookupRequestRoundTripWithPadding(t *testing.T) {
	req := &SecureLookupRequest{OHTTPRequest: []byte{1, 2, 3, 4}, Padding: 16}

	data, err := req.Marshal()
	require.NoError(t, err)

	got := &SecureLookupRequest{}
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, req.OHTTPRequest, got.OHTTPRequest)
	require.Equal(t, int32(16), got.Padding)
}

func TestSecureLookupResponseRoundTrip(t *testing.T) {
	resp := &SecureLookupResponse{OHTTPResponse: []byte("ciphertext")}

	data, err := resp.Marshal()
	require.NoError(t, err)

	got := &SecureLookupResponse{}
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, resp.OHTTPResponse, got.OHTTPResponse)
}

func TestCodecMarshalUnmarshal(t *testing.T) {
	c := codec{}
	req := &SecureLookupRequest{OHTTPRequest: []byte{9, 9, 9}}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	got := &SecureLookupRequest{}
	require.NoError(t, c.Unmarshal(data, got))
	require.Equal(t, req.OHTTPRequest, got.OHTTPRequest)

	require.Equal(t, "proto", c.Name())
}

func TestCodecRejectsNonWireMessage(t *testing.T) {
	c := codec{}
	_, err := c.Marshal("not a wire message")
	require.Error(t, err)
}
