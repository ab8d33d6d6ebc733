// Package observability provides gRPC interceptors, error reporting and the
// metrics HTTP server.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lecture-interpreter/internal/observability/metrics"
)

// UnaryServerInterceptor logs unary calls. Health and reflection are the
// only unary services.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		st, _ := status.FromError(err)
		log.Debug().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor records ingress stream metrics, reports internal
// failures and recovers handler panics as codes.Internal.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		m.RecordStreamStart()

		defer func() {
			if r := recover(); r != nil {
				err = status.Errorf(codes.Internal, "panic in %s", info.FullMethod)
				CaptureError(fmt.Errorf("panic: %v", r), map[string]string{"method": info.FullMethod})
			}

			duration := time.Since(start)
			success := err == nil
			m.RecordStreamEnd(success, duration.Seconds())

			st, _ := status.FromError(err)
			if st.Code() == codes.Internal || st.Code() == codes.Unknown {
				CaptureError(err, map[string]string{"method": info.FullMethod})
			}

			log.Info().
				Str("method", info.FullMethod).
				Str("code", st.Code().String()).
				Dur("duration", duration).
				Bool("success", success).
				Msg("gRPC stream completed")
		}()

		return handler(srv, ss)
	}
}
