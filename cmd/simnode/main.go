// Command simnode is the node process: it hosts containers, serves the
// control-plane gRPC surface, exposes Prometheus metrics, and heartbeats
// its Lease, all driven by one NodeConfig (spec.md §6/§9).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/anvil-platform/simnode/internal/config"
	"github.com/anvil-platform/simnode/internal/container"
	"github.com/anvil-platform/simnode/internal/controlplane"
	"github.com/anvil-platform/simnode/internal/metrics"
)

func main() {
	var configPath string
	var inCluster bool
	flag.StringVar(&configPath, "config", "", "path to a NodeConfig YAML file")
	flag.BoolVar(&inCluster, "in-cluster", false, "use the in-cluster Kubernetes config for the control-plane heartbeat")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simnode: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	containers := container.NewManager(container.ManagerConfig{
		StateRoot:            cfg.StateRoot,
		MaxEntities:          cfg.Container.MaxEntities,
		MaxComponents:        cfg.Container.MaxComponents,
		MaxCommandsPerTick:   cfg.Container.MaxCommandsPerTick,
		MaxQueueLength:       cfg.Container.MaxQueueLength,
		MaxSnapshotHistory:   cfg.Container.MaxSnapshotHistory,
		MaxConsecutiveErrors: cfg.Container.MaxConsecutiveErrors,
		Logger:               logger,
	})

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	grpcServer := grpc.NewServer()
	controlplane.RegisterServer(grpcServer, controlplane.NewServer(containers))

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal("listening for grpc", zap.String("addr", cfg.ListenAddr), zap.Error(err))
	}
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.ListenAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve error", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics serve error", zap.Error(err))
		}
	}()

	stopHeartbeat := startHeartbeat(logger, cfg, containers, inCluster)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

// startHeartbeat wires controlplane.Heartbeater against the in-cluster
// Kubernetes config when requested, returning a stop function. Outside a
// cluster (local dev, tests) heartbeating is skipped rather than failing
// startup.
func startHeartbeat(logger *zap.Logger, cfg config.NodeConfig, containers *container.Manager, inCluster bool) func() {
	if !inCluster {
		logger.Info("heartbeat disabled (not running in-cluster)")
		return nil
	}
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		logger.Warn("in-cluster config unavailable, heartbeat disabled", zap.Error(err))
		return nil
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		logger.Warn("building kubernetes clientset, heartbeat disabled", zap.Error(err))
		return nil
	}

	hb := controlplane.NewHeartbeater(clientset, "default", cfg.NodeID, int32(cfg.HeartbeatEvery.Seconds()*3), containers, cfg.Container.MaxEntities)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := hb.Heartbeat(ctx); err != nil {
					logger.Warn("heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
	return cancel
}
