package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"deepspeak/internal/observability/metrics"
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that logs
// each outbound call and counts failures against provider.
func UnaryClientInterceptor(m *metrics.Metrics, provider string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		duration := time.Since(start)
		st, _ := status.FromError(err)
		if err != nil && m != nil {
			m.RecordSTTError(provider, "grpc_"+st.Code().String())
		}

		log.Debug().
			Str("method", method).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Msg("gRPC unary call")

		return err
	}
}
