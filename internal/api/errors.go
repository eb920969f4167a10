package api

import (
	"errors"

	"github.com/matheus3301/imstore/internal/outbox"
	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/resolver"
	"github.com/matheus3301/imstore/internal/route"
	"github.com/matheus3301/imstore/internal/status"
	"github.com/matheus3301/imstore/internal/store"
	intsync "github.com/matheus3301/imstore/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps store errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, route.ErrUnknownResource):
		code = codes.NotFound
	case errors.Is(err, query.ErrInvalidQuery), errors.Is(err, intsync.ErrLengthMismatch),
		errors.Is(err, status.ErrInvalidPresence):
		code = codes.InvalidArgument
	case errors.Is(err, resolver.ErrConflictingKey):
		code = codes.PermissionDenied
	case errors.Is(err, store.ErrConstraintViolation):
		code = codes.AlreadyExists
	case errors.Is(err, resolver.ErrUnsupported):
		code = codes.Unimplemented
	case errors.Is(err, status.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, outbox.ErrNoTransport):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
