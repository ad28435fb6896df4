// Package shardservice implements the server side of the shard-to-shard
// SecureLookup RPC (spec §4.6/§6): decrypt the OHTTP-wrapped
// InternalLookupRequest, resolve the keys against this node's own local
// keyspace, and return an OHTTP-wrapped InternalLookupResponse.
//
// Grounded on original_source/components/internal_server/lookup_service_impl.cc
// for the decrypt -> lookup -> encrypt shape, and on
// storage-node/internal/handler/storage_handler.go for the Go
// grpc.ServiceServer-adapter idiom (a thin struct wrapping the node's own
// service, logging failures with zap before returning a gRPC error).
package shardservice

import (
	"context"
	"fmt"

	"github.com/bidscape/kvshard/internal/kvpb"
	"github.com/bidscape/kvshard/internal/kvstore"
	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/wire"
	"go.uber.org/zap"
)

// Server implements kvpb.InternalLookupServiceServer by resolving an
// incoming shard's bucket of keys against the Local KV Store directly:
// no further fan-out, since a peer only ever asks this node about keys
// already bucketed to its own shard (spec §4.7).
type Server struct {
	local         *kvstore.Store
	keyFetcher    ohttp.KeyFetcher
	requestLabel  string
	responseLabel string
	logger        *zap.Logger
}

// New builds a Server bound to local, the node's own Local KV Store.
// requestLabel/responseLabel override the OHTTP envelope's framing labels
// (empty strings keep the package defaults), sourced from
// config.OHTTPConfig.
func New(local *kvstore.Store, keyFetcher ohttp.KeyFetcher, requestLabel, responseLabel string, logger *zap.Logger) *Server {
	return &Server{local: local, keyFetcher: keyFetcher, requestLabel: requestLabel, responseLabel: responseLabel, logger: logger}
}

// SecureLookup decrypts req, resolves the keys it carries, and returns the
// encrypted InternalLookupResponse.
func (s *Server) SecureLookup(ctx context.Context, req *kvpb.SecureLookupRequest) (*kvpb.SecureLookupResponse, error) {
	server := ohttp.NewServerWithLabels(s.keyFetcher, s.requestLabel, s.responseLabel)

	decrypted, err := server.DecryptRequest(req.OHTTPRequest)
	if err != nil {
		s.logger.Warn("failed to decrypt internal lookup request", zap.Error(err))
		return nil, fmt.Errorf("shardservice: decrypt request: %w", err)
	}

	unpadded, err := wire.Unpad(decrypted, int(req.Padding))
	if err != nil {
		s.logger.Warn("invalid padding on internal lookup request", zap.Error(err))
		return nil, fmt.Errorf("shardservice: unpad request: %w", err)
	}

	lookupReq, err := wire.UnmarshalInternalLookupRequest(unpadded)
	if err != nil {
		s.logger.Warn("failed to unmarshal internal lookup request", zap.Error(err))
		return nil, fmt.Errorf("shardservice: unmarshal request: %w", err)
	}

	kvPairs := s.local.GetTagged(lookupReq.Keys, lookupReq.LookupSets)
	encoded := wire.MarshalInternalLookupResponse(&model.InternalLookupResponse{KVPairs: kvPairs})

	encrypted, err := server.EncryptResponse(encoded)
	if err != nil {
		s.logger.Warn("failed to encrypt internal lookup response", zap.Error(err))
		return nil, fmt.Errorf("shardservice: encrypt response: %w", err)
	}

	return &kvpb.SecureLookupResponse{OHTTPResponse: encrypted}, nil
}
