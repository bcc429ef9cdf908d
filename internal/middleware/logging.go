package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/susu/internal/metrics"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call and records
// its outcome. It logs the procedure name, caller, duration, and any error codes/messages.
// Place it after RequireAuth so the caller is known.
func LoggingInterceptor(logger *slog.Logger, m *metrics.Metrics) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			elapsed := time.Since(start)
			actor := ActorFrom(ctx)
			attrs := []any{
				"procedure", procedure,
				"user_id", actor.UserID,
				"role", actor.Role,
				"duration_ms", elapsed.Milliseconds(),
			}
			if err == nil {
				m.RPC(procedure, "ok", elapsed)
				logger.InfoContext(ctx, "RPC ok", attrs...)
				return resp, nil
			}

			var connectErr *connect.Error
			if errors.As(err, &connectErr) {
				m.RPC(procedure, connectErr.Code().String(), elapsed)
				attrs = append(attrs, "code", connectErr.Code(), "error", connectErr.Message())
				if kind := connectErr.Meta().Get(ErrorKindHeader); kind != "" {
					attrs = append(attrs, "kind", kind)
				}
				if connectErr.Code() == connect.CodeInternal {
					logger.ErrorContext(ctx, "RPC error", attrs...)
				} else {
					logger.WarnContext(ctx, "RPC error", attrs...)
				}
			} else {
				m.RPC(procedure, connect.CodeUnknown.String(), elapsed)
				logger.ErrorContext(ctx, "RPC error", append(attrs, "error", err)...)
			}
			return resp, err
		}
	}
}

// ErrorKindHeader carries the domain error kind on failed responses.
const ErrorKindHeader = "Susu-Error-Kind"
