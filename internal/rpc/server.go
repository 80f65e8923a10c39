// Package rpc provides the gRPC server for HAP verification.
package rpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/capiscio/hap-core/pkg/verify"
)

// RegisterServices registers the verification and health services with
// the server and returns the health server so callers can flip serving
// status on shutdown. Reflection is not registered: VerificationService
// speaks JSON and has no proto descriptor to serve.
func RegisterServices(server *grpc.Server, pipeline *verify.Pipeline) *health.Server {
	// Register health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	RegisterVerificationServiceServer(server, NewVerificationService(pipeline))
	return healthServer
}
