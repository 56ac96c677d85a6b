package interceptor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/webitel/datum-exporter/internal/errors"
	outerror "github.com/webitel/webitel-go-kit/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OuterInterceptor recovers handler panics and converts errors into the application error envelope.
func OuterInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				slog.ErrorContext(ctx, "datum_exporter.server.panic_recovered",
					slog.Any("err", panicErr), slog.String("stack", string(debug.Stack())))
				resp, err = nil, toGRPCError(ctx, errors.Internal("internal server error", errors.WithID("server.panic")), info)
			}
		}()
		resp, err = handler(ctx, req)
		if err != nil {
			return nil, toGRPCError(ctx, err, info)
		}
		return resp, nil
	}
}

// toGRPCError logs the error and converts it to a gRPC status carrying the JSON envelope.
func toGRPCError(ctx context.Context, err error, info *grpc.UnaryServerInfo) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)

	grpcCode := errors.Code(err)
	httpCode, id := httpStatus(grpcCode)
	slog.WarnContext(ctx, "datum_exporter.server.request_failed",
		slog.String("method", info.FullMethod), slog.String("error", errors.Details(err)))

	appErr := &outerror.ApplicationError{
		Id:            id,
		DetailedError: err.Error(),
		StatusCode:    httpCode,
		Status:        http.StatusText(httpCode),
	}
	marshaledErr, _ := json.Marshal(appErr)
	return status.Error(grpcCode, string(marshaledErr))
}

// httpStatus maps a gRPC code to the HTTP status and id of the error envelope.
func httpStatus(c codes.Code) (int, string) {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized, "api.process.unauthenticated"
	case codes.PermissionDenied:
		return http.StatusForbidden, "api.process.unauthorized"
	case codes.NotFound:
		return http.StatusNotFound, "api.process.not_found"
	case codes.InvalidArgument, codes.FailedPrecondition, codes.Aborted, codes.AlreadyExists:
		return http.StatusBadRequest, "api.process.bad_args"
	case codes.Canceled:
		return http.StatusRequestTimeout, "api.process.cancelled"
	case codes.Unavailable:
		return http.StatusServiceUnavailable, "api.process.unavailable"
	default:
		return http.StatusInternalServerError, "api.process.internal"
	}
}
