// Command kvshard runs one node of the sharded key-value lookup service:
// it owns one shard's keyspace locally, discovers peer shard replicas via
// gossip, and serves get_values/oblivious_get_values over HTTP plus
// SecureLookup over gRPC.
//
// Grounded on storage-node/cmd/storage/main.go for the overall shape
// (init logger -> load config -> construct services -> register servers
// -> signal-handled graceful shutdown), adapted from the teacher's
// commit-log/memtable/sstable storage stack to this module's in-memory
// Local KV Store and its OHTTP/gossip/UDF collaborators.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bidscape/kvshard/internal/config"
	"github.com/bidscape/kvshard/internal/defaultudf"
	"github.com/bidscape/kvshard/internal/health"
	"github.com/bidscape/kvshard/internal/kvpb"
	"github.com/bidscape/kvshard/internal/kvstore"
	"github.com/bidscape/kvshard/internal/lookupengine"
	"github.com/bidscape/kvshard/internal/membership"
	"github.com/bidscape/kvshard/internal/metrics"
	"github.com/bidscape/kvshard/internal/ohttp"
	"github.com/bidscape/kvshard/internal/reqhandler"
	"github.com/bidscape/kvshard/internal/shardmgr"
	"github.com/bidscape/kvshard/internal/shardservice"
	"github.com/bidscape/kvshard/internal/sharder"
	"github.com/bidscape/kvshard/internal/udf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("host", cfg.Server.Host),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("shard", cfg.Sharding.CurrentShardNum))

	shard, err := sharder.New(cfg.Sharding.NumShards, cfg.Sharding.KeyExtractionRegex)
	if err != nil {
		logger.Fatal("Failed to build sharder", zap.Error(err))
	}

	keyFetcher, err := ohttp.NewStaticKeyFetcher(
		cfg.OHTTP.KeyID, cfg.OHTTP.KEM, cfg.OHTTP.KDF, cfg.OHTTP.AEAD,
		cfg.OHTTP.PublicKeyBase64, cfg.OHTTP.PrivateKeyBase64,
	)
	if err != nil {
		logger.Fatal("Failed to build OHTTP key fetcher", zap.Error(err))
	}

	store := kvstore.New()
	store.StartCleanup(cfg.Server.TombstoneCleanupInterval, cfg.Server.TombstoneRetention)
	m := metrics.New(cfg.Server.NodeID)
	shardMgr := shardmgr.New()

	engine := lookupengine.New(cfg.Sharding.CurrentShardNum, shard, store, shardMgr, logger, m)

	sandbox := udf.New(defaultudf.Func, &lookupengine.Hook{Engine: engine}, cfg.Server.RequestDeadline)

	handler := reqhandler.NewHandler(sandbox, keyFetcher, cfg.OHTTP.RequestLabel, cfg.OHTTP.ResponseLabel, logger, m, cfg.Server.RequestDeadline)
	checker := health.NewChecker(cfg.Server.NodeID, logger)

	var memberSvc *membership.Service
	if cfg.Gossip.Enabled {
		memberSvc, err = membership.New(
			membership.Config{
				BindPort:       cfg.Gossip.BindPort,
				SeedNodes:      cfg.Gossip.SeedNodes,
				GossipInterval: cfg.Gossip.GossipInterval,
				ProbeTimeout:   cfg.Gossip.ProbeTimeout,
				ProbeInterval:  cfg.Gossip.ProbeInterval,
			},
			membership.NodeInfo{
				NodeID: cfg.Server.NodeID,
				Shard:  cfg.Sharding.CurrentShardNum,
				Addr:   fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort),
			},
			shardMgr,
			keyFetcher,
			cfg.OHTTP.RequestLabel,
			cfg.OHTTP.ResponseLabel,
			cfg.Server.RequestDeadline,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize membership service", zap.Error(err))
		}
		logger.Info("Membership service initialized")
	}

	// gRPC server: serves peer shards' SecureLookup calls against this
	// node's own local keyspace.
	shardSrv := shardservice.New(store, keyFetcher, cfg.OHTTP.RequestLabel, cfg.OHTTP.ResponseLabel, logger)
	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.Server.MaxConnections)),
	)
	kvpb.RegisterInternalLookupServiceServer(grpcServer, shardSrv)

	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	// HTTP server: the two client-facing operations plus health/metrics.
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/get_values", handler.GetValues)
	mux.HandleFunc("/v2/oblivious_get_values", handler.ObliviousGetValues)
	checker.RegisterHandlers(mux)

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpServer := &http.Server{Addr: httpAddr, Handler: mux}

	go func() {
		logger.Info("HTTP server starting", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	logger.Info("Sharded lookup node starting",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("grpc_address", grpcAddr))

	checker.MarkReady()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...")
		checker.Drain()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if memberSvc != nil {
			if err := memberSvc.Shutdown(); err != nil {
				logger.Error("Failed to shut down membership service", zap.Error(err))
			}
		}

		store.StopCleanup()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Failed to shut down HTTP server", zap.Error(err))
		}

		grpcServer.GracefulStop()
	}()

	if err := grpcServer.Serve(listener); err != nil {
		logger.Fatal("Failed to serve gRPC", zap.Error(err))
	}
}

// initLogger initializes the zap logger the same way the teacher's
// storage node does: production config pinned to info level.
func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
