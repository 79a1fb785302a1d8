// Package observability provides gRPC interceptors for metrics and logging.
package observability

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-transcript-service/internal/observability/metrics"
)

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		st, _ := status.FromError(err)
		m.RecordGRPCServerCall(info.FullMethod, st.Code().String(), duration.Seconds())

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for metrics and logging.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		err := handler(srv, ss)

		duration := time.Since(start)
		st, _ := status.FromError(err)
		m.RecordGRPCServerCall(info.FullMethod, st.Code().String(), duration.Seconds())

		log.Info().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Bool("success", err == nil).
			Msg("gRPC stream completed")

		return err
	}
}

// StreamClientInterceptor returns a gRPC client stream interceptor that
// records how long outgoing streams (Speech-to-Text recognition) lived and
// how they ended.
func StreamClientInterceptor(m *metrics.Metrics) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		start := time.Now()

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			code := status.Code(err).String()
			m.RecordSTTStream(method, code, time.Since(start).Seconds())
			log.Warn().
				Err(err).
				Str("method", method).
				Str("code", code).
				Msg("gRPC client stream failed to open")
			return nil, err
		}

		return &observedClientStream{
			ClientStream: cs,
			method:       method,
			start:        start,
			metrics:      m,
		}, nil
	}
}

// observedClientStream reports the end of a client stream once.
type observedClientStream struct {
	grpc.ClientStream
	method  string
	start   time.Time
	metrics *metrics.Metrics
	once    sync.Once
}

func (s *observedClientStream) RecvMsg(msg interface{}) error {
	err := s.ClientStream.RecvMsg(msg)
	if err != nil {
		s.once.Do(func() { s.finish(err) })
	}
	return err
}

func (s *observedClientStream) finish(err error) {
	code := codes.OK
	if !errors.Is(err, io.EOF) {
		code = status.Code(err)
	}
	duration := time.Since(s.start)
	s.metrics.RecordSTTStream(s.method, code.String(), duration.Seconds())

	log.Info().
		Str("method", s.method).
		Str("code", code.String()).
		Dur("duration", duration).
		Msg("gRPC client stream completed")
}
