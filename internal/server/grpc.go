package server

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name the scorekeeper reports under.
const ServiceName = "scorekeeper.v1.Scorekeeper"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer is a gRPC server exposing the standard health service. The
// scorekeeper status follows the event store.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	store  Pinger
	logger *zap.Logger
}

// NewHealthServer builds the gRPC server. store may be nil, in which case the
// service is always SERVING.
func NewHealthServer(store Pinger, maxStreams uint32, logger *zap.Logger) *HealthServer {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	}
	if maxStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(maxStreams))
	}
	hs := &HealthServer{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		store:  store,
		logger: logger,
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// Server returns the underlying gRPC server.
func (hs *HealthServer) Server() *grpc.Server { return hs.grpc }

// Check pings the store once and updates the reported status.
func (hs *HealthServer) Check(ctx context.Context) {
	if hs.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if err := hs.store.Ping(ctx); err != nil {
		hs.logger.Warn("event store unreachable", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.health.SetServingStatus(ServiceName, st)
	hs.health.SetServingStatus("", st)
}

// Watch checks the store every interval until ctx is cancelled.
func (hs *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	hs.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (hs *HealthServer) Shutdown() {
	hs.health.Shutdown()
	hs.grpc.GracefulStop()
}

// ChainUnaryInterceptors runs interceptors in order, the first outermost.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor, inner := interceptors[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, inner)
			}
		}
		return next(ctx, req)
	}
}

// RecoveryInterceptor turns handler panics into Internal errors.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				buf = buf[:runtime.Stack(buf, false)]
				logger.Error("panic in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", buf),
				)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call at debug level and failures at warn.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("peer", peerAddress(ctx)),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("gRPC call failed", append(fields, zap.String("code", status.Code(err).String()), zap.Error(err))...)
		} else {
			logger.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}

func peerAddress(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
