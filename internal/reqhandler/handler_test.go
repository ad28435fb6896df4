package reqhandler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bidscape/kvshard/internal/metrics"
	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/udf"
	"github.com/bidscape/kvshard/internal/wire"
	"github.com/cloudflare/circl/hpke"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestKeyFetcher(t *testing.T) *ohttp.StaticKeyFetcher {
	t.Helper()
	kemID := hpke.KEM_X25519_HKDF_SHA256
	pub, priv, err := kemID.Scheme().GenerateKeyPair()
	require.NoError(t, err)
	return &ohttp.StaticKeyFetcher{
		Config: ohttp.KeyConfig{KeyID: 3, KEM: kemID, KDF: hpke.KDF_HKDF_SHA256, AEAD: hpke.AEAD_AES256GCM},
		Pub:    pub,
		Priv:   priv,
	}
}

func echoUDF(ctx context.Context, metadata udf.ExecutionMetadata, args []udf.Argument, hook udf.LookupHook) (string, error) {
	return "ok:" + metadata.PartitionMetadata["id"], nil
}

func newTestHandler(t *testing.T, fn udf.Func) *Handler {
	t.Helper()
	sandbox := udf.New(fn, nil, time.Second)
	return NewHandler(sandbox, newTestKeyFetcher(t), "", "", zap.NewNop(), metrics.New("test-"+t.Name()), time.Second)
}

func TestGetValuesNoPartitionsIsBadRequest(t *testing.T) {
	h := newTestHandler(t, echoUDF)

	body, _ := json.Marshal(model.GetValuesRequest{})
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.GetValues(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDOfMintsWhenHeaderAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", nil)
	id := requestIDOf(req)
	require.NotEmpty(t, id)

	req.Header.Set("X-Request-ID", "caller-supplied")
	require.Equal(t, "caller-supplied", requestIDOf(req))
}

func TestGetValuesSinglePartitionLegacyPath(t *testing.T) {
	h := newTestHandler(t, echoUDF)

	gvReq := model.GetValuesRequest{
		Partitions: []model.Partition{
			{ID: 1, Metadata: map[string]string{"id": "p1"}},
		},
	}
	body, _ := json.Marshal(gvReq)
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.GetValues(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.GetValuesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.SinglePartition)
	require.Equal(t, "ok:p1", resp.SinglePartition.StringOutput)
	require.Nil(t, resp.SinglePartition.Status)
	require.Empty(t, resp.CompressionGroups)
}

func TestGetValuesMultiPartitionGroupsByCompressionGroup(t *testing.T) {
	h := newTestHandler(t, echoUDF)

	gvReq := model.GetValuesRequest{
		Partitions: []model.Partition{
			{ID: 1, CompressionGroupID: 0, Metadata: map[string]string{"id": "a"}},
			{ID: 2, CompressionGroupID: 0, Metadata: map[string]string{"id": "b"}},
			{ID: 3, CompressionGroupID: 1, Metadata: map[string]string{"id": "c"}},
		},
	}
	body, _ := json.Marshal(gvReq)
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.GetValues(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.GetValuesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.SinglePartition)
	require.Len(t, resp.CompressionGroups, 2)

	byID := map[uint32][]model.PartitionOutput{}
	for _, g := range resp.CompressionGroups {
		var outs []model.PartitionOutput
		require.NoError(t, json.Unmarshal(g.EncodedContent, &outs))
		byID[g.CompressionGroupID] = outs
	}
	require.Len(t, byID[0], 2)
	require.Len(t, byID[1], 1)
	require.Equal(t, "ok:c", byID[1][0].StringOutput)
}

func TestGetValuesPartialFailureOmitsFailedPartitionFromGroup(t *testing.T) {
	fn := func(ctx context.Context, metadata udf.ExecutionMetadata, args []udf.Argument, hook udf.LookupHook) (string, error) {
		if metadata.PartitionMetadata["id"] == "fail" {
			return "", errFake
		}
		return "ok:" + metadata.PartitionMetadata["id"], nil
	}
	h := newTestHandler(t, fn)

	gvReq := model.GetValuesRequest{
		Partitions: []model.Partition{
			{ID: 1, CompressionGroupID: 0, Metadata: map[string]string{"id": "ok1"}},
			{ID: 2, CompressionGroupID: 0, Metadata: map[string]string{"id": "fail"}},
		},
	}
	body, _ := json.Marshal(gvReq)
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.GetValues(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.GetValuesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.CompressionGroups, 1)

	var outs []model.PartitionOutput
	require.NoError(t, json.Unmarshal(resp.CompressionGroups[0].EncodedContent, &outs))
	require.Len(t, outs, 1)
	require.Equal(t, "ok:ok1", outs[0].StringOutput)
}

func TestGetValuesAllPartitionsFailIsAggregateInternalError(t *testing.T) {
	fn := func(ctx context.Context, metadata udf.ExecutionMetadata, args []udf.Argument, hook udf.LookupHook) (string, error) {
		return "", errFake
	}
	h := newTestHandler(t, fn)

	gvReq := model.GetValuesRequest{
		Partitions: []model.Partition{
			{ID: 1, CompressionGroupID: 0},
			{ID: 2, CompressionGroupID: 1},
		},
	}
	body, _ := json.Marshal(gvReq)
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.GetValues(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetValuesProtobufContentType(t *testing.T) {
	h := newTestHandler(t, echoUDF)

	gvReq := &model.GetValuesRequest{
		Partitions: []model.Partition{{ID: 1, Metadata: map[string]string{"id": "p1"}}},
	}
	body := wire.MarshalGetValuesRequest(gvReq)
	req := httptest.NewRequest(http.MethodPost, "/v2/get_values", bytes.NewReader(body))
	req.Header.Set(kvContentTypeHeader, "application/protobuf")
	rec := httptest.NewRecorder()

	h.GetValues(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, contentTypeProto, rec.Header().Get("Content-Type"))

	resp, err := wire.UnmarshalGetValuesResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.NotNil(t, resp.SinglePartition)
	require.Equal(t, "ok:p1", resp.SinglePartition.StringOutput)
}

func TestObliviousGetValuesRoundTrip(t *testing.T) {
	h := newTestHandler(t, echoUDF)

	gvReq := model.GetValuesRequest{
		Partitions: []model.Partition{{ID: 1, Metadata: map[string]string{"id": "p1"}}},
	}
	plaintext, _ := json.Marshal(gvReq)

	client := ohttp.NewClient(h.keyFetcher)
	encReq, err := client.EncryptRequest(plaintext)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v2/oblivious_get_values", bytes.NewReader(encReq))
	rec := httptest.NewRecorder()

	h.ObliviousGetValues(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	decResp, err := client.DecryptResponse(rec.Body.Bytes())
	require.NoError(t, err)

	var resp model.GetValuesResponse
	require.NoError(t, json.Unmarshal(decResp, &resp))
	require.NotNil(t, resp.SinglePartition)
	require.Equal(t, "ok:p1", resp.SinglePartition.StringOutput)
}

var errFake = &fakeErr{"synthetic udf failure"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }
