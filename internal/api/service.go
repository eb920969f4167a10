// Package api serves the resolver over gRPC.
package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/imstore/internal/bus"
	"github.com/matheus3301/imstore/internal/query"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Resolver is the data core the service exposes.
type Resolver interface {
	Type(locator string) (string, error)
	Query(ctx context.Context, locator string, spec query.Spec) (*query.Cursor, error)
	Insert(ctx context.Context, locator string, vals query.Values) (string, error)
	Update(ctx context.Context, locator string, vals query.Values, where query.Expr) (int64, error)
	Delete(ctx context.Context, locator string, where query.Expr) (int64, error)
}

// Watcher hands out change subscriptions.
type Watcher interface {
	Subscribe(namespace string, bufSize int) (<-chan bus.Event, func())
}

// Service implements ResolverServer.
type Service struct {
	res      Resolver
	watch    Watcher
	accounts Accounts
	queue    Queue
	logger   *zap.Logger
}

var _ ResolverServer = (*Service)(nil)

// NewService creates the gRPC resolver service. w, accts and q may be nil;
// the matching RPCs then answer Unavailable.
func NewService(res Resolver, w Watcher, accts Accounts, q Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{res: res, watch: w, accounts: accts, queue: q, logger: logger}
}

// Query request: {"locator", "spec"}. Response: {"columns", "rows", "notify"}.
func (s *Service) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	spec, err := query.ParseSpec(field(in, "spec"))
	if err != nil {
		return nil, toStatus(err)
	}
	if spec.Where, err = decodeExprValues(spec.Where); err != nil {
		return nil, toStatus(err)
	}
	cur, err := s.res.Query(ctx, locatorOf(in), spec)
	if err != nil {
		return nil, toStatus(err)
	}
	cols := cur.Columns()
	rows, err := cur.All()
	if err != nil {
		return nil, toStatus(err)
	}

	outCols := make([]any, len(cols))
	for i, c := range cols {
		outCols[i] = c
	}
	outRows := make([]any, len(rows))
	for i, r := range rows {
		outRows[i] = EncodeValues(query.Values(r))
	}
	return newStruct(map[string]any{
		"columns": outCols,
		"rows":    outRows,
		"notify":  cur.Notify,
	})
}

// Insert request: {"locator", "values"}. Response: {"locator"}, empty when
// no row was created.
func (s *Service) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	vals, err := DecodeValues(field(in, "values"))
	if err != nil {
		return nil, toStatus(err)
	}
	loc, err := s.res.Insert(ctx, locatorOf(in), vals)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"locator": loc})
}

// Update request: {"locator", "values", "where"}. Response: {"count"}.
func (s *Service) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	vals, err := DecodeValues(field(in, "values"))
	if err != nil {
		return nil, toStatus(err)
	}
	where, err := parseWhere(in)
	if err != nil {
		return nil, toStatus(err)
	}
	n, err := s.res.Update(ctx, locatorOf(in), vals, where)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"count": float64(n)})
}

// Delete request: {"locator", "where"}. Response: {"count"}.
func (s *Service) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	where, err := parseWhere(in)
	if err != nil {
		return nil, toStatus(err)
	}
	n, err := s.res.Delete(ctx, locatorOf(in), where)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"count": float64(n)})
}

// Type request: {"locator"}. Response: {"type"}.
func (s *Service) Type(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.res.Type(locatorOf(in))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"type": t})
}

// Watch streams change notifications under {"locator"}; an empty locator
// watches everything. Each message is {"id", "locator", "ts", "origin"}.
func (s *Service) Watch(in *structpb.Struct, stream grpc.ServerStream) error {
	if s.watch == nil {
		return grpcstatus.Error(codes.Unavailable, "change notifications not available")
	}
	ns := locatorOf(in)
	ch, unsub := s.watch.Subscribe(ns, 256)
	defer unsub()
	s.logger.Debug("watch started", zap.String("locator", ns))

	for {
		select {
		case evt := <-ch:
			msg, err := newStruct(map[string]any{
				"id":      evt.ID,
				"locator": evt.Kind,
				"ts":      float64(evt.Timestamp.UnixMilli()),
				"origin":  evt.Origin,
			})
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func parseWhere(in *structpb.Struct) (query.Expr, error) {
	e, err := query.ParseExpr(field(in, "where"))
	if err != nil {
		return query.Expr{}, err
	}
	return decodeExprValues(e)
}

// decodeExprValues turns {"bytes": ...} operands into byte slices.
func decodeExprValues(e query.Expr) (query.Expr, error) {
	if e.Val != nil {
		v, err := DecodeValue(e.Val)
		if err != nil {
			return query.Expr{}, err
		}
		e.Val = v
	}
	for i, v := range e.Vals {
		d, err := DecodeValue(v)
		if err != nil {
			return query.Expr{}, err
		}
		e.Vals[i] = d
	}
	for i, a := range e.Args {
		d, err := decodeExprValues(a)
		if err != nil {
			return query.Expr{}, err
		}
		e.Args[i] = d
	}
	return e, nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return st, nil
}
