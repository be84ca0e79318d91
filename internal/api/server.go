package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "dealtrail.v1.CRM"

// APIServer serves the HTTP/JSON boundary and a gRPC health endpoint.
type APIServer struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	grpcPort   int
	httpPort   int
	handler    http.Handler
	logger     *slog.Logger
}

// NewAPIServer mounts service and /metrics (from gatherer) on a gateway mux.
func NewAPIServer(service *CRMService, gatherer prometheus.Gatherer, grpcPort, httpPort int) (*APIServer, error) {
	hs := health.NewServer()
	mux, err := NewMux(service, gatherer, hs)
	if err != nil {
		return nil, err
	}
	return &APIServer{
		health:   hs,
		grpcPort: grpcPort,
		httpPort: httpPort,
		handler:  mux,
		logger:   slog.Default().With("component", "api"),
	}, nil
}

// NewMux builds the HTTP handler: the CRM routes, /metrics and /healthz.
func NewMux(service *CRMService, gatherer prometheus.Gatherer, hs *health.Server) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	if err := service.Register(mux); err != nil {
		return nil, err
	}
	if gatherer != nil {
		metricsHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metricsHandler.ServeHTTP(w, r)
		})
		if err != nil {
			return nil, fmt.Errorf("mux.HandlePath /metrics: %w", err)
		}
	}
	err := mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		resp, err := hs.Check(r.Context(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "serving"})
	})
	if err != nil {
		return nil, fmt.Errorf("mux.HandlePath /healthz: %w", err)
	}
	return mux, nil
}

// Start launches the gRPC and HTTP servers and blocks until ctx is done or
// one of them fails.
func (s *APIServer) Start(ctx context.Context) error {
	errCh := make(chan error, 2)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	go func() {
		s.logger.Info("api: gRPC server listening", "port", s.grpcPort)
		if err := s.grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.httpPort),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("api: HTTP server listening", "port", s.httpPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		s.Stop()
		return err
	case <-ctx.Done():
		s.Stop()
		return nil
	}
}

// Stop marks the service as not serving and shuts both servers down.
func (s *APIServer) Stop() {
	s.health.Shutdown()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("api: http shutdown", "error", err)
		}
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}
