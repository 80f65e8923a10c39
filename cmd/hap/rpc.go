package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/capiscio/hap-core/internal/rpc"
	"github.com/capiscio/hap-core/pkg/registry"
)

var (
	rpcSocket      string
	rpcAddress     string
	rpcKeyCacheTTL time.Duration
)

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Start the gRPC verification server",
	Long: `Start the gRPC server exposing hap.v1.VerificationService.

The server can listen on either a Unix socket (default) or TCP address.
Key sets are cached for --key-cache-ttl; claim records are always fetched
fresh so revocations are seen immediately.`,
	RunE: runRPCServer,
}

func init() {
	rpcCmd.Flags().StringVar(&rpcSocket, "socket", "", "Unix socket path (default: ~/.hap/rpc.sock)")
	rpcCmd.Flags().StringVar(&rpcAddress, "address", "", "TCP address to listen on (e.g., localhost:50051)")
	rpcCmd.Flags().DurationVar(&rpcKeyCacheTTL, "key-cache-ttl", registry.DefaultCacheTTL, "Key set cache lifetime (0 disables caching)")
	rootCmd.AddCommand(rpcCmd)
}

func runRPCServer(_ *cobra.Command, _ []string) error {
	var listener net.Listener
	var err error

	if rpcAddress != "" {
		listener, err = net.Listen("tcp", rpcAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", rpcAddress, err)
		}
		slog.Info("gRPC server listening", "addr", "tcp://"+rpcAddress)
	} else {
		socketPath := rpcSocket
		if socketPath == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			socketDir := filepath.Join(homeDir, ".hap")
			if err := os.MkdirAll(socketDir, 0700); err != nil {
				return fmt.Errorf("failed to create socket directory: %w", err)
			}
			socketPath = filepath.Join(socketDir, "rpc.sock")
		}

		if err := os.RemoveAll(socketPath); err != nil {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}

		listener, err = net.Listen("unix", socketPath)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", socketPath, err)
		}
		slog.Info("gRPC server listening", "addr", "unix://"+socketPath)

		defer func() { _ = os.RemoveAll(socketPath) }()
	}

	var resolver registry.Resolver = newResolver()
	if rpcKeyCacheTTL > 0 {
		resolver = registry.NewCachingResolver(resolver, rpcKeyCacheTTL)
	}
	pipeline, err := newPipeline(resolver)
	if err != nil {
		return err
	}

	server := grpc.NewServer()
	healthServer := rpc.RegisterServices(server, pipeline)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutting down gRPC server")
		healthServer.Shutdown()
		server.GracefulStop()
	}()

	if err := server.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
