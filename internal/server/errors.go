package server

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/deltakey/pkg/delta"
	"github.com/nainya/deltakey/pkg/query"
	"github.com/nainya/deltakey/pkg/session"
	"github.com/nainya/deltakey/pkg/storage"
)

// errBadRequest marks malformed transport input
var errBadRequest = errors.New("bad request")

// grpcCode maps domain errors onto gRPC status codes
func grpcCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, query.ErrCharacterNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, storage.ErrNoMatrix):
		return codes.NotFound
	case errors.Is(err, query.ErrUnsupportedValue),
		errors.Is(err, delta.ErrInvalidValue),
		errors.Is(err, session.ErrInvalidID),
		errors.Is(err, errBadRequest):
		return codes.InvalidArgument
	case errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrExists):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// toStatus converts an error into a gRPC status error
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(grpcCode(err), err.Error())
}

// httpStatus maps domain errors onto HTTP status codes
func httpStatus(err error) int {
	switch grpcCode(err) {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
