// Package membership discovers peer shard replicas via gossip and keeps
// the Shard Manager's handle table in sync with cluster membership.
//
// Grounded on storage-node/internal/service/gossip_service.go: same
// memberlist.Delegate/EventDelegate wiring, same NodeMeta-carries-a-small-
// JSON-blob pattern (stdlib encoding/json there, kept here for the same
// reason — this is gossip protocol metadata, not the client-facing JSON
// content-type path that uses goccy/go-json). What's new is what the
// metadata carries (shard assignment + gRPC address instead of health
// metrics) and that membership changes drive shardmgr.Manager.Update
// instead of just logging.
package membership

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/remote"
	"github.com/bidscape/kvshard/internal/shardmgr"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// NodeInfo is the gossip metadata one node advertises about itself: which
// shard it serves and where its InternalLookupService listens.
type NodeInfo struct {
	NodeID string `json:"nodeId"`
	Shard  int    `json:"shard"`
	Addr   string `json:"addr"`
}

// Config holds the gossip protocol tuning knobs, mirrored from the
// teacher's GossipConfig.
type Config struct {
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// Service runs the memberlist gossip protocol and keeps a shardmgr.Manager
// up to date with the live replica set for every shard.
type Service struct {
	self          NodeInfo
	logger        *zap.Logger
	shardMgr      *shardmgr.Manager
	keyFetcher    ohttp.KeyFetcher
	requestLabel  string
	responseLabel string
	remoteTimeout time.Duration
	dialOpts      []grpc.DialOption

	ml *memberlist.Memberlist

	mu      sync.Mutex
	members map[string]NodeInfo
	clients map[string]remote.Client
}

// New builds and starts a Service: it creates the memberlist node, joins
// any configured seed nodes, and populates shardMgr with whatever replica
// set is immediately visible. requestLabel/responseLabel override the
// OHTTP envelope's framing labels used for every peer RemoteLookupClient
// this Service creates (empty strings keep the package defaults).
func New(cfg Config, self NodeInfo, shardMgr *shardmgr.Manager, keyFetcher ohttp.KeyFetcher, requestLabel, responseLabel string, remoteTimeout time.Duration, logger *zap.Logger, dialOpts ...grpc.DialOption) (*Service, error) {
	s := &Service{
		self:          self,
		logger:        logger,
		shardMgr:      shardMgr,
		keyFetcher:    keyFetcher,
		requestLabel:  requestLabel,
		responseLabel: responseLabel,
		remoteTimeout: remoteTimeout,
		dialOpts:      dialOpts,
		members:       map[string]NodeInfo{self.NodeID: self},
		clients:       make(map[string]remote.Client),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = self.NodeID
	if cfg.BindPort != 0 {
		mlConfig.BindPort = cfg.BindPort
	}
	if cfg.GossipInterval != 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout != 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval != 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = s
	mlConfig.Events = &eventDelegate{service: s}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("membership: create memberlist: %w", err)
	}
	s.ml = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	s.rebuildReplicas()
	return s, nil
}

// NodeMeta implements memberlist.Delegate: advertises this node's shard
// assignment and address to peers.
func (s *Service) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(s.self)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate. Membership metadata travels
// via NodeMeta/LocalState, not user messages; this deployment sends none.
func (s *Service) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate; there is nothing to
// broadcast beyond the membership protocol's own state.
func (s *Service) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements memberlist.Delegate: the full known membership
// view, exchanged during push/pull anti-entropy.
func (s *Service) LocalState(join bool) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]NodeInfo, 0, len(s.members))
	for _, info := range s.members {
		list = append(list, info)
	}
	data, _ := json.Marshal(list)
	return data
}

// MergeRemoteState implements memberlist.Delegate: merges a peer's view
// of membership into our own and rebuilds the shard table.
func (s *Service) MergeRemoteState(buf []byte, join bool) {
	var list []NodeInfo
	if err := json.Unmarshal(buf, &list); err != nil {
		s.logger.Warn("failed to unmarshal remote membership state", zap.Error(err))
		return
	}

	s.mu.Lock()
	for _, info := range list {
		s.members[info.NodeID] = info
	}
	s.mu.Unlock()

	s.rebuildReplicas()
}

// eventDelegate adapts memberlist.Node join/leave/update events into
// Service membership changes.
type eventDelegate struct {
	service *Service
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	info, ok := d.service.decodeMeta(node)
	if !ok {
		return
	}
	d.service.logger.Info("node joined", zap.String("node_id", node.Name), zap.String("addr", node.Addr.String()))

	d.service.mu.Lock()
	d.service.members[info.NodeID] = info
	d.service.mu.Unlock()

	d.service.rebuildReplicas()
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.service.logger.Info("node left", zap.String("node_id", node.Name))

	d.service.mu.Lock()
	delete(d.service.members, node.Name)
	client, ok := d.service.clients[node.Name]
	delete(d.service.clients, node.Name)
	d.service.mu.Unlock()

	if ok {
		if closer, ok := client.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	d.service.rebuildReplicas()
}

func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	info, ok := d.service.decodeMeta(node)
	if !ok {
		return
	}
	d.service.mu.Lock()
	d.service.members[info.NodeID] = info
	d.service.mu.Unlock()

	d.service.rebuildReplicas()
}

func (s *Service) decodeMeta(node *memberlist.Node) (NodeInfo, bool) {
	var info NodeInfo
	if err := json.Unmarshal(node.Meta, &info); err != nil {
		s.logger.Warn("failed to unmarshal node metadata", zap.String("node_id", node.Name), zap.Error(err))
		return NodeInfo{}, false
	}
	return info, true
}

// rebuildReplicas recomputes the full shard -> replica-set table from the
// current membership view and swaps it into the Shard Manager wholesale,
// per spec §5's copy-on-write requirement.
func (s *Service) rebuildReplicas() {
	s.mu.Lock()
	defer s.mu.Unlock()

	replicas := make(map[int][]shardmgr.Replica)
	for nodeID, info := range s.members {
		if nodeID == s.self.NodeID {
			continue
		}
		client, ok := s.clients[nodeID]
		if !ok {
			client = remote.NewRemoteLookupClient(info.Addr, s.remoteTimeout, s.keyFetcher, s.requestLabel, s.responseLabel, s.logger, s.dialOpts...)
			s.clients[nodeID] = client
		}
		replicas[info.Shard] = append(replicas[info.Shard], shardmgr.Replica{NodeID: nodeID, Client: client})
	}
	s.shardMgr.Update(replicas)
}

// Shutdown leaves the gossip cluster and closes every dialed peer client.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	clients := make([]remote.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if closer, ok := c.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	return s.ml.Shutdown()
}
