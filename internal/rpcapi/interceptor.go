package rpcapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/observability"
)

// RequestIDKey is the metadata key carrying the request ID in both directions.
const RequestIDKey = "x-request-id"

// RequestLoggerInterceptor returns a UnaryServerInterceptor that handles structured logging.
// It resolves the request ID from metadata (generating one when absent),
// echoes it in the response header, injects a request logger into the
// context and logs the outcome of the call.
func RequestLoggerInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			// metadata keys are normalized to lowercase
			if ids := md.Get(RequestIDKey); len(ids) > 0 {
				reqID = ids[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, reqID))

		newCtx := logger.WithRequestID(ctx, base.With(slog.String("rpc_method", info.FullMethod)), reqID)
		rpcLogger := logger.FromContext(newCtx)

		resp, err := handler(newCtx, req)

		code := status.Code(err)

				level := slog.LevelInfo
		switch code {
		case codes.Internal, codes.DataLoss, codes.Unknown:
			level = slog.LevelError
		case codes.DeadlineExceeded, codes.Unimplemented, codes.Unavailable:
			level = slog.LevelWarn
		}

		rpcLogger.Log(newCtx, level, "grpc request completed",
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
			slog.String("peer_addr", getPeerAddr(ctx)),
		)

		return resp, err
	}
}

// ObservabilityInterceptor records request counts and latency per method and status code.
func ObservabilityInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err).String()
		observability.GrpcDuration.WithLabelValues(info.FullMethod, code).Observe(time.Since(start).Seconds())
		observability.GrpcTotal.WithLabelValues(info.FullMethod, code).Inc()

		return resp, err
	}
}

// getPeerAddr is a helper to extract client IP safely
func getPeerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
