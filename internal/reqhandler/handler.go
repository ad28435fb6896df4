// Package reqhandler implements the two externally visible operations of
// spec §4.8: the plaintext get_values RPC and its OHTTP-wrapped sibling
// oblivious_get_values. Both take a top-level request of global metadata
// plus a list of partitions, run each partition's UDF independently, and
// assemble a compression-grouped response.
//
// Grounded on original_source/components/data_server/request_handler/
// get_values_v2_handler.cc (partition iteration, compression-group
// grouping, all-failed aggregate error) and the teacher's
// api-gateway/internal/handler/handlers.go for the net/http handler-struct
// idiom (request-scoped context.WithTimeout, a shared error-writing
// helper, X-Request-ID propagation).
package reqhandler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	kverrors "github.com/bidscape/kvshard/internal/errors"
	"github.com/bidscape/kvshard/internal/metrics"
	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/udf"
	"github.com/bidscape/kvshard/internal/wire"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	kvContentTypeHeader = "kv-content-type"
	contentTypeProto    = "application/protobuf"
	contentTypeJSON     = "application/json"
)

// Handler serves get_values and oblivious_get_values.
type Handler struct {
	sandbox       *udf.Sandbox
	keyFetcher    ohttp.KeyFetcher
	requestLabel  string
	responseLabel string
	logger        *zap.Logger
	metrics       *metrics.Metrics
	timeout       time.Duration
}

// NewHandler builds a Handler. sandbox runs one partition's UDF; keyFetcher
// supplies the OHTTP key material used by ObliviousGetValues. requestLabel
// and responseLabel override the OHTTP envelope's framing labels (empty
// strings keep the package defaults); they come from config.OHTTPConfig so
// a deployment can match its peers' framing without a code change.
func NewHandler(sandbox *udf.Sandbox, keyFetcher ohttp.KeyFetcher, requestLabel, responseLabel string, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Handler {
	return &Handler{
		sandbox:       sandbox,
		keyFetcher:    keyFetcher,
		requestLabel:  requestLabel,
		responseLabel: responseLabel,
		logger:        logger,
		metrics:       m,
		timeout:       timeout,
	}
}

// GetValues handles the plaintext request/response path.
func (h *Handler) GetValues(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDOf(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, kverrors.InvalidArgument("failed to read request body", err), requestID)
		return
	}

	contentType := contentTypeOf(r.Header, contentTypeJSON)
	req, err := decodeGetValuesRequest(body, contentType)
	if err != nil {
		h.writeError(w, kverrors.InvalidArgument("failed to parse request", err), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.process(ctx, req)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeResponse(w, resp, contentType)
}

// ObliviousGetValues decrypts an OHTTP-wrapped request, runs the same
// processing as GetValues, and encrypts the response on the same Server
// context — OHTTP request/response state is request-scoped and must not be
// shared across requests (spec §5).
func (h *Handler) ObliviousGetValues(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDOf(r)

	encrypted, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, kverrors.InvalidArgument("failed to read request body", err), requestID)
		return
	}

	server := ohttp.NewServerWithLabels(h.keyFetcher, h.requestLabel, h.responseLabel)
	plaintext, err := server.DecryptRequest(encrypted)
	if err != nil {
		h.writeError(w, kverrors.DecryptionFailed(err), requestID)
		return
	}

	contentType := contentTypeOf(r.Header, contentTypeJSON)
	req, err := decodeGetValuesRequest(plaintext, contentType)
	if err != nil {
		h.writeError(w, kverrors.InvalidArgument("failed to parse request", err), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.process(ctx, req)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	responseBytes, encErr := encodeGetValuesResponse(resp, contentType)
	if encErr != nil {
		h.writeError(w, kverrors.NewLookupError(kverrors.ErrCodeInternal, "failed to serialize response", encErr), requestID)
		return
	}

	encryptedResp, err := server.EncryptResponse(responseBytes)
	if err != nil {
		h.writeError(w, kverrors.EncryptionFailed(err), requestID)
		return
	}

	w.Header().Set("Content-Type", "message/ohttp-res")
	w.Write(encryptedResp)
}

// process runs spec §4.8's algorithm: validate partitions exist, execute
// each partition's UDF, and assemble either the single-partition legacy
// response or a compression-grouped one.
func (h *Handler) process(ctx context.Context, req *model.GetValuesRequest) (*model.GetValuesResponse, error) {
	if len(req.Partitions) == 0 {
		return nil, kverrors.NoPartitions()
	}

	if len(req.Partitions) == 1 {
		out := h.processPartition(ctx, req.Metadata, req.Partitions[0])
		return &model.GetValuesResponse{SinglePartition: &out}, nil
	}

	outputs := make([]model.PartitionOutput, len(req.Partitions))
	var g errgroup.Group
	for i, p := range req.Partitions {
		i, p := i, p
		g.Go(func() error {
			outputs[i] = h.processPartition(ctx, req.Metadata, p)
			return nil
		})
	}
	_ = g.Wait() // partitions never fail the group itself; per-partition status carries the outcome

	return h.assembleCompressionGroups(req.Partitions, outputs)
}

// processPartition runs one partition's UDF and converts the outcome into
// a PartitionOutput, never returning an error itself — failure is carried
// in the output's Status field per spec §4.8 step 3.
func (h *Handler) processPartition(ctx context.Context, requestMetadata map[string]string, p model.Partition) model.PartitionOutput {
	args := make([]udf.Argument, len(p.Arguments))
	for i, a := range p.Arguments {
		var decoded interface{}
		if len(a.Data) > 0 {
			if err := json.Unmarshal(a.Data, &decoded); err != nil {
				return model.PartitionOutput{
					ID:     p.ID,
					Status: &model.PartitionStatus{Code: int32(kverrors.ErrCodeInvalidArgument), Message: "invalid argument data"},
				}
			}
		}
		encoded, err := udf.EncodeArgumentData(decoded)
		if err != nil {
			return model.PartitionOutput{
				ID:     p.ID,
				Status: &model.PartitionStatus{Code: int32(kverrors.ErrCodeInternal), Message: "failed to encode argument"},
			}
		}
		args[i] = udf.Argument{Tags: a.Tags, Data: encoded}
	}

	metadata := udf.ExecutionMetadata{RequestMetadata: requestMetadata, PartitionMetadata: p.Metadata}
	out, err := h.sandbox.Execute(ctx, metadata, args)
	if err != nil {
		h.logger.Warn("udf execution failed", zap.Int32("partition_id", p.ID), zap.Error(err))
		h.metrics.UDFInvocationFailures.Inc()
		return model.PartitionOutput{
			ID:     p.ID,
			Status: &model.PartitionStatus{Code: int32(kverrors.ErrCodeInternal), Message: err.Error()},
		}
	}
	return model.PartitionOutput{ID: p.ID, StringOutput: out}
}

// assembleCompressionGroups groups partitions by compression_group_id,
// omits failed partitions and whole-failed groups, and fails the request
// only when every partition in every group failed.
func (h *Handler) assembleCompressionGroups(partitions []model.Partition, outputs []model.PartitionOutput) (*model.GetValuesResponse, error) {
	var order []uint32
	byGroup := make(map[uint32][]model.PartitionOutput)
	anySucceeded := false

	for i, p := range partitions {
		out := outputs[i]
		if out.Status == nil {
			anySucceeded = true
		} else {
			h.metrics.PartitionsFailedTotal.Inc()
		}
		if _, seen := byGroup[p.CompressionGroupID]; !seen {
			order = append(order, p.CompressionGroupID)
		}
		byGroup[p.CompressionGroupID] = append(byGroup[p.CompressionGroupID], out)
	}

	if !anySucceeded {
		return nil, kverrors.NewLookupError(kverrors.ErrCodeInternal, "all partitions failed", nil)
	}

	groups := make([]model.CompressionGroup, 0, len(order))
	for _, gid := range order {
		successes := make([]model.PartitionOutput, 0, len(byGroup[gid]))
		for _, out := range byGroup[gid] {
			if out.Status == nil {
				successes = append(successes, out)
			}
		}
		if len(successes) == 0 {
			continue
		}
		content, err := json.Marshal(successes)
		if err != nil {
			return nil, kverrors.NewLookupError(kverrors.ErrCodeInternal, "failed to encode compression group", err)
		}
		groups = append(groups, model.CompressionGroup{CompressionGroupID: gid, EncodedContent: content})
		h.metrics.CompressionGroupsTotal.Inc()
	}

	return &model.GetValuesResponse{CompressionGroups: groups}, nil
}

// requestIDOf returns the caller-supplied X-Request-ID, or mints a fresh
// one so every logged/returned failure can still be correlated.
func requestIDOf(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func contentTypeOf(header http.Header, def string) string {
	v := strings.ToLower(strings.TrimSpace(header.Get(kvContentTypeHeader)))
	switch v {
	case contentTypeProto, "proto", "application/x-protobuf":
		return contentTypeProto
	case contentTypeJSON, "json":
		return contentTypeJSON
	default:
		return def
	}
}

func decodeGetValuesRequest(body []byte, contentType string) (*model.GetValuesRequest, error) {
	if contentType == contentTypeProto {
		return wire.UnmarshalGetValuesRequest(body)
	}
	var req model.GetValuesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func encodeGetValuesResponse(resp *model.GetValuesResponse, contentType string) ([]byte, error) {
	if contentType == contentTypeProto {
		return wire.MarshalGetValuesResponse(resp), nil
	}
	return json.Marshal(resp)
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *model.GetValuesResponse, contentType string) {
	body, err := encodeGetValuesResponse(resp, contentType)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// errorResponse is the JSON body written for a request-level failure.
type errorResponse struct {
	Status    string `json:"status"`
	ErrorCode int32  `json:"errorCode"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	code := kverrors.Code(err)
	status := httpStatusFor(code)

	h.logger.Warn("request failed",
		zap.Int("http_status", status),
		zap.Int("error_code", int(code)),
		zap.String("message", err.Error()),
		zap.String("request_id", requestID),
	)

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Status:    "error",
		ErrorCode: int32(code),
		Message:   err.Error(),
		RequestID: requestID,
	})
}

func httpStatusFor(code kverrors.ErrorCode) int {
	switch code {
	case kverrors.ErrCodeInvalidArgument, kverrors.ErrCodeEmptyQuery, kverrors.ErrCodeNoPartitions:
		return http.StatusBadRequest
	case kverrors.ErrCodeNotFound:
		return http.StatusNotFound
	case kverrors.ErrCodeUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
