// Package remote implements the Remote Lookup Client (spec §4.5): a
// gRPC-backed peer client that OHTTP-wraps an already-serialized
// InternalLookupRequest, dispatches it to a shard replica's SecureLookup
// RPC, and unwraps the InternalLookupResponse.
//
// Grounded on original_source/components/internal_server/remote_lookup_client_impl.cc
// for the Pad -> Encrypt -> RPC -> Decrypt -> parse flow, and on the
// teacher's coordinator/internal/client/storagenode_client.go for the Go
// gRPC-client idiom (lazily dialled, cached per-peer connections, zap
// logging of RPC failures).
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bidscape/kvshard/internal/errors"
	"github.com/bidscape/kvshard/internal/kvpb"
	"github.com/bidscape/kvshard/internal/model"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is the shard-to-shard RPC collaborator: a single method,
// GetValues, that performs the full OHTTP round trip against one peer
// shard replica.
type Client interface {
	GetValues(ctx context.Context, serialized []byte, padding int) (*model.InternalLookupResponse, error)
}

// RemoteLookupClient is the gRPC/OHTTP implementation of Client, bound to
// a single peer address.
type RemoteLookupClient struct {
	target        string
	timeout       time.Duration
	keyFetcher    ohttp.KeyFetcher
	requestLabel  string
	responseLabel string
	logger        *zap.Logger

	mu       sync.Mutex
	conn     *grpc.ClientConn
	client   kvpb.InternalLookupServiceClient
	dialOpts []grpc.DialOption
}

// NewRemoteLookupClient builds a client targeting a single peer shard
// replica at target ("host:port"), using keyFetcher for the OHTTP
// envelope's key configuration. requestLabel/responseLabel override the
// envelope's framing labels (empty strings keep the package defaults),
// sourced from config.OHTTPConfig so every shard replica frames its
// cross-shard traffic the same way. Extra dialOpts are appended to the
// default insecure transport credentials, primarily so tests can inject
// an in-memory bufconn dialer.
func NewRemoteLookupClient(target string, timeout time.Duration, keyFetcher ohttp.KeyFetcher, requestLabel, responseLabel string, logger *zap.Logger, dialOpts ...grpc.DialOption) *RemoteLookupClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RemoteLookupClient{
		target:        target,
		timeout:       timeout,
		keyFetcher:    keyFetcher,
		requestLabel:  requestLabel,
		responseLabel: responseLabel,
		logger:        logger,
		dialOpts:      dialOpts,
	}
}

// GetValues performs Pad -> EncryptRequest -> SecureLookup RPC ->
// DecryptResponse -> Unmarshal, mapping each stage's failure to its own
// error taxonomy kind (spec §4.5/§7).
func (c *RemoteLookupClient) GetValues(ctx context.Context, serialized []byte, padding int) (*model.InternalLookupResponse, error) {
	padded := wire.Pad(serialized, padding)

	envelope := ohttp.NewClientWithLabels(c.keyFetcher, c.requestLabel, c.responseLabel)
	encrypted, err := envelope.EncryptRequest(padded)
	if err != nil {
		return nil, errors.EncryptionFailed(err)
	}

	client, err := c.getClient()
	if err != nil {
		return nil, errors.ShardFailure(err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := client.SecureLookup(rpcCtx, &kvpb.SecureLookupRequest{OHTTPRequest: encrypted, Padding: int32(padding)})
	if err != nil {
		c.logger.Error("SecureLookup RPC failed",
			zap.String("target", c.target),
			zap.Error(err))
		return nil, errors.ShardFailure(fmt.Errorf("SecureLookup RPC to %s: %w", c.target, err))
	}

	decrypted, err := envelope.DecryptResponse(resp.OHTTPResponse)
	if err != nil {
		return nil, errors.DecryptionFailed(err)
	}

	result, err := wire.UnmarshalInternalLookupResponse(decrypted)
	if err != nil {
		return nil, errors.DeserializationFailed(err)
	}
	return result, nil
}

// getClient lazily dials and caches the peer connection and stub, the
// same pattern the teacher's StorageNodeClient.getClient uses for
// coordinator-to-storage-node RPCs.
func (c *RemoteLookupClient) getClient() (kvpb.InternalLookupServiceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.dialOpts...)
	conn, err := grpc.NewClient(c.target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.target, err)
	}

	c.conn = conn
	c.client = kvpb.NewInternalLookupServiceClient(conn)

	c.logger.Info("created gRPC client for shard replica", zap.String("target", c.target))
	return c.client, nil
}

// Close tears down the cached connection, if any.
func (c *RemoteLookupClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.client = nil
	return err
}
